// Package scheduler runs the background sweeps: stale quota window eviction
// and periodic ledger verification.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/quorumdesk/panelgate/internal/audit/domain"
	"github.com/quorumdesk/panelgate/internal/clock"
	"github.com/quorumdesk/panelgate/internal/metrics"
	quotadomain "github.com/quorumdesk/panelgate/internal/quota/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("scheduler: missing dependency")

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	QuotaRepo quotadomain.Repository
	AuditSvc  auditdomain.Service
	Clock     clock.Clock
	Metrics   *metrics.Metrics `optional:"true"`
	Config    Config           `optional:"true"`
}

type Scheduler struct {
	db        *gorm.DB
	log       *zap.Logger
	cfg       Config
	clock     clock.Clock
	quotaRepo quotadomain.Repository
	auditSvc  auditdomain.Service
	metrics   *metrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.QuotaRepo == nil || p.AuditSvc == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:        p.DB,
		log:       p.Log.Named("scheduler"),
		cfg:       p.Config.withDefaults(),
		clock:     p.Clock,
		quotaRepo: p.QuotaRepo,
		auditSvc:  p.AuditSvc,
		metrics:   p.Metrics,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	start := s.clock.Now()
	err := fn(ctx)
	s.log.Debug("job finished",
		zap.String("job", name),
		zap.Duration("elapsed", s.clock.Now().Sub(start)),
	)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		// Soft timeout: the next run picks up where this one stopped.
		s.log.Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", s.cfg.JobTimeout),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{"evict_windows", s.EvictWindowsJob},
		{"verify_ledgers", s.VerifyLedgersJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("sweep run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// EvictWindowsJob deletes counters whose window started before the retention
// horizon for its window type. Eviction is garbage collection only; live
// totals are never touched because retention always exceeds window length.
func (s *Scheduler) EvictWindowsJob(ctx context.Context) error {
	now := s.clock.Now()
	for _, windowType := range clock.WindowTypes {
		cutoff := now.Add(-windowType.Retention())
		evicted, err := s.quotaRepo.EvictStale(ctx, windowType, cutoff)
		if err != nil {
			return err
		}
		if evicted > 0 {
			if s.metrics != nil {
				s.metrics.AddWindowsEvicted(string(windowType), evicted)
			}
			s.log.Info("stale quota windows evicted",
				zap.String("window_type", string(windowType)),
				zap.Int64("evicted", evicted),
			)
		}
	}
	return nil
}

// VerifyLedgersJob sweeps every tenant's audit ledger and reports entries
// whose stored hash no longer matches.
func (s *Scheduler) VerifyLedgersJob(ctx context.Context) error {
	var tenantIDs []snowflake.ID
	if err := s.db.WithContext(ctx).
		Raw(`SELECT id FROM tenants ORDER BY id`).
		Scan(&tenantIDs).Error; err != nil {
		return err
	}

	var err error
	for _, tenantID := range tenantIDs {
		report, verifyErr := s.auditSvc.VerifyTenantLedger(ctx, tenantID)
		if verifyErr != nil {
			err = errors.Join(err, verifyErr)
			continue
		}
		if report.Invalid > 0 || report.MissingHash > 0 {
			s.log.Error("ledger verification found tampered entries",
				zap.String("tenant_id", tenantID.String()),
				zap.Int64("invalid", report.Invalid),
				zap.Int64("missing_hash", report.MissingHash),
			)
		}
	}
	return err
}
