package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	alertdomain "github.com/quorumdesk/panelgate/internal/alert/domain"
	"github.com/quorumdesk/panelgate/internal/clock"
	membershipdomain "github.com/quorumdesk/panelgate/internal/membership/domain"
	"github.com/quorumdesk/panelgate/internal/metrics"
	quotadomain "github.com/quorumdesk/panelgate/internal/quota/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	MembershipSvc membershipdomain.Service
	Metrics       *metrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	membershipSvc membershipdomain.Service
	metrics       *metrics.Metrics
}

func NewService(p Params) alertdomain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("alert.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		membershipSvc: p.MembershipSvc,
		metrics:       p.Metrics,
	}
}

func (s *Service) Evaluate(ctx context.Context, tenantID snowflake.ID, statuses []quotadomain.LimitStatus) ([]alertdomain.BudgetAlert, error) {
	if tenantID == 0 {
		return nil, alertdomain.ErrInvalidTenant
	}

	now := s.clock.Now()
	var raised []alertdomain.BudgetAlert

	for _, status := range statuses {
		alertType := ""
		switch {
		case status.IsExceeded:
			alertType = status.Metric + alertdomain.SuffixExceeded
		case status.IsWarning:
			alertType = status.Metric + alertdomain.SuffixWarning
		default:
			continue
		}

		alert := alertdomain.BudgetAlert{
			ID:           s.genID.Generate(),
			TenantID:     tenantID,
			AlertType:    alertType,
			PeriodStart:  status.PeriodStart,
			CurrentValue: status.Current,
			LimitValue:   status.Limit,
			RaisedAt:     now,
		}

		// Conditional insert: an existing row for this key means the alert
		// was already raised this period.
		result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "tenant_id"},
				{Name: "alert_type"},
				{Name: "period_start"},
			},
			DoNothing: true,
		}).Create(&alert)
		if result.Error != nil {
			return raised, result.Error
		}
		if result.RowsAffected == 0 {
			continue
		}

		raised = append(raised, alert)
		if s.metrics != nil {
			s.metrics.IncAlertRaised(alertType)
		}
		s.log.Info("budget alert raised",
			zap.String("tenant_id", tenantID.String()),
			zap.String("alert_type", alertType),
			zap.Int64("current", status.Current),
			zap.Int64("limit", status.Limit),
		)
	}

	return raised, nil
}

func (s *Service) ListUnacknowledged(ctx context.Context, tenantID snowflake.ID) ([]alertdomain.BudgetAlert, error) {
	if tenantID == 0 {
		return nil, alertdomain.ErrInvalidTenant
	}

	var alerts []alertdomain.BudgetAlert
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND acknowledged_at IS NULL", tenantID).
		Order("raised_at DESC").
		Find(&alerts).Error
	return alerts, err
}

func (s *Service) Acknowledge(ctx context.Context, tenantID, alertID, callerID snowflake.ID) error {
	if tenantID == 0 {
		return alertdomain.ErrInvalidTenant
	}
	if alertID == 0 {
		return alertdomain.ErrInvalidAlert
	}

	role, err := s.membershipSvc.Role(ctx, tenantID, callerID)
	if err != nil {
		if errors.Is(err, membershipdomain.ErrNotAMember) {
			return alertdomain.ErrAccessDenied
		}
		return err
	}
	if role != membershipdomain.RoleOwner && role != membershipdomain.RoleAdmin {
		return alertdomain.ErrAccessDenied
	}

	now := s.clock.Now()
	result := s.db.WithContext(ctx).Exec(
		`UPDATE budget_alerts
		 SET acknowledged_at = ?
		 WHERE id = ? AND tenant_id = ? AND acknowledged_at IS NULL`,
		now,
		alertID,
		tenantID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&alertdomain.BudgetAlert{}).
			Where("id = ? AND tenant_id = ?", alertID, tenantID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return alertdomain.ErrAlertNotFound
		}
		return alertdomain.ErrAlreadyAcked
	}
	return nil
}
