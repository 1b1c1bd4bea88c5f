package migration

import (
	alertdomain "github.com/quorumdesk/panelgate/internal/alert/domain"
	auditdomain "github.com/quorumdesk/panelgate/internal/audit/domain"
	"github.com/quorumdesk/panelgate/internal/config"
	exteventdomain "github.com/quorumdesk/panelgate/internal/extevent/domain"
	membershipdomain "github.com/quorumdesk/panelgate/internal/membership/domain"
	policydomain "github.com/quorumdesk/panelgate/internal/policy/domain"
	quotadomain "github.com/quorumdesk/panelgate/internal/quota/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// Embedded SQL is postgres-flavored; local sqlite gets the
			// schema straight from the models.
			return conn.AutoMigrate(
				&membershipdomain.Tenant{},
				&membershipdomain.Member{},
				&membershipdomain.Invitation{},
				&policydomain.RateLimitPolicy{},
				&quotadomain.QuotaCounter{},
				&quotadomain.SessionUsageRecord{},
				&alertdomain.BudgetAlert{},
				&auditdomain.AuditLog{},
				&exteventdomain.ProcessedEvent{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
