package service

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/quorumdesk/panelgate/internal/clock"
	"github.com/quorumdesk/panelgate/internal/metrics"
	policydomain "github.com/quorumdesk/panelgate/internal/policy/domain"
	"github.com/quorumdesk/panelgate/internal/quota/domain"
	"github.com/quorumdesk/panelgate/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	PolicySvc policydomain.Service
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	policySvc policydomain.Service
	metrics   *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("quota.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		policySvc: p.PolicySvc,
		metrics:   p.Metrics,
	}
}

func (s *Service) IncrementUsage(ctx context.Context, tenantID snowflake.ID, req domain.IncrementRequest) (domain.UsageTotals, error) {
	if tenantID == 0 {
		return domain.UsageTotals{}, domain.ErrInvalidTenant
	}
	if req.Sessions < 0 || req.Tokens < 0 || req.CostCents < 0 {
		return domain.UsageTotals{}, domain.ErrInvalidIncrement
	}
	if req.Sessions == 0 && req.Tokens == 0 && req.CostCents == 0 {
		return domain.UsageTotals{}, domain.ErrInvalidIncrement
	}

	loc := s.tenantLocation(ctx, tenantID)
	now := s.clock.Now()

	var totals domain.UsageTotals
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		for _, windowType := range clock.WindowTypes {
			counter := domain.QuotaCounter{
				TenantID:    tenantID,
				WindowType:  windowType,
				WindowStart: clock.WindowStart(windowType, now, loc),
				Sessions:    req.Sessions,
				Tokens:      req.Tokens,
				CostCents:   req.CostCents,
				UpdatedAt:   now,
			}
			if err := repo.IncrementWindow(ctx, counter); err != nil {
				return err
			}
		}

		if err := s.recordSessionUsage(ctx, repo, tenantID, req, now); err != nil {
			return err
		}

		read, err := s.readTotals(ctx, repo, tenantID, now, loc)
		if err != nil {
			return err
		}
		totals = read
		return nil
	})
	if err != nil {
		return domain.UsageTotals{}, err
	}

	if s.metrics != nil {
		s.metrics.IncUsageIncrement(tenantID.String())
	}

	return totals, nil
}

func (s *Service) CheckLimits(ctx context.Context, tenantID snowflake.ID) ([]domain.LimitStatus, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}

	resolved, err := s.policySvc.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	loc := s.tenantLocation(ctx, tenantID)
	now := s.clock.Now()

	hourStart := clock.HourStart(now, loc)
	dayStart := clock.DayStart(now, loc)
	monthStart := clock.MonthStart(now, loc)

	hour, err := s.repo.GetWindow(ctx, tenantID, clock.WindowHour, hourStart)
	if err != nil {
		return nil, err
	}
	day, err := s.repo.GetWindow(ctx, tenantID, clock.WindowDay, dayStart)
	if err != nil {
		return nil, err
	}
	month, err := s.repo.GetWindow(ctx, tenantID, clock.WindowMonth, monthStart)
	if err != nil {
		return nil, err
	}

	statuses := []domain.LimitStatus{
		buildStatus(domain.MetricHourlySessions, counterSessions(hour), resolved.HourlySessionLimit, resolved.AlertThresholdPercent, hourStart),
		buildStatus(domain.MetricDailySessions, counterSessions(day), resolved.DailySessionLimit, resolved.AlertThresholdPercent, dayStart),
		buildStatus(domain.MetricMonthlyTokens, counterTokens(month), resolved.MonthlyTokenLimit, resolved.AlertThresholdPercent, monthStart),
		buildStatus(domain.MetricMonthlyCostCents, counterCost(month), resolved.MonthlyCostCentsLimit, resolved.AlertThresholdPercent, monthStart),
	}

	if s.metrics != nil {
		s.metrics.IncLimitCheck(worstOutcome(statuses))
	}

	return statuses, nil
}

func (s *Service) ListSessionRecords(ctx context.Context, tenantID snowflake.ID, req domain.ListRecordsRequest) (domain.ListRecordsResponse, error) {
	if tenantID == 0 {
		return domain.ListRecordsResponse{}, domain.ErrInvalidTenant
	}
	if req.StartAt != nil && req.EndAt != nil && req.EndAt.Before(*req.StartAt) {
		return domain.ListRecordsResponse{}, domain.ErrInvalidTimeRange
	}

	limit := req.PageSize
	if limit <= 0 {
		limit = 50
	}

	filter := domain.RecordFilter{
		TenantID: tenantID,
		StartAt:  req.StartAt,
		EndAt:    req.EndAt,
		Limit:    limit,
	}

	if req.PageToken != "" {
		cursor, err := decodeRecordCursor(req.PageToken)
		if err != nil {
			return domain.ListRecordsResponse{}, domain.ErrInvalidPageToken
		}
		filter.Cursor = cursor
	}

	records, err := s.repo.ListSessionRecords(ctx, filter)
	if err != nil {
		return domain.ListRecordsResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(records, limit, func(r *domain.SessionUsageRecord) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        r.ID.String(),
			CreatedAt: r.RecordedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	if len(records) > limit {
		records = records[:limit]
	}

	resp := domain.ListRecordsResponse{
		PageInfo: *pageInfo,
		Records:  make([]domain.SessionUsageRecord, 0, len(records)),
	}
	for _, r := range records {
		resp.Records = append(resp.Records, *r)
	}
	return resp, nil
}

func decodeRecordCursor(token string) (*domain.RecordCursor, error) {
	raw, err := pagination.DecodeCursor(token)
	if err != nil {
		return nil, err
	}
	id, err := strconv.ParseInt(raw.ID, 10, 64)
	if err != nil {
		return nil, err
	}
	recordedAt, err := time.Parse(time.RFC3339Nano, raw.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &domain.RecordCursor{ID: snowflake.ID(id), RecordedAt: recordedAt}, nil
}

func (s *Service) recordSessionUsage(ctx context.Context, repo domain.Repository, tenantID snowflake.ID, req domain.IncrementRequest, now time.Time) error {
	if req.SessionRef == "" && len(req.Models) == 0 {
		return nil
	}

	record := &domain.SessionUsageRecord{
		ID:         s.genID.Generate(),
		TenantID:   tenantID,
		SessionRef: req.SessionRef,
		TokensIn:   req.TokensIn,
		TokensOut:  req.TokensOut,
		CostCents:  req.CostCents,
		RecordedAt: now,
		CreatedAt:  now,
	}
	if len(req.Models) > 0 {
		encoded, err := json.Marshal(req.Models)
		if err != nil {
			return err
		}
		record.Models = datatypes.JSON(encoded)
	}
	return repo.CreateSessionRecord(ctx, record)
}

func (s *Service) readTotals(ctx context.Context, repo domain.Repository, tenantID snowflake.ID, now time.Time, loc *time.Location) (domain.UsageTotals, error) {
	hour, err := repo.GetWindow(ctx, tenantID, clock.WindowHour, clock.HourStart(now, loc))
	if err != nil {
		return domain.UsageTotals{}, err
	}
	day, err := repo.GetWindow(ctx, tenantID, clock.WindowDay, clock.DayStart(now, loc))
	if err != nil {
		return domain.UsageTotals{}, err
	}
	month, err := repo.GetWindow(ctx, tenantID, clock.WindowMonth, clock.MonthStart(now, loc))
	if err != nil {
		return domain.UsageTotals{}, err
	}

	return domain.UsageTotals{
		HourlySessions:   counterSessions(hour),
		DailySessions:    counterSessions(day),
		MonthlyTokens:    counterTokens(month),
		MonthlyCostCents: counterCost(month),
	}, nil
}

// tenantLocation resolves the tenant's configured timezone, defaulting to UTC.
func (s *Service) tenantLocation(ctx context.Context, tenantID snowflake.ID) *time.Location {
	var timezone string
	err := s.db.WithContext(ctx).
		Raw(`SELECT timezone FROM tenants WHERE id = ?`, tenantID).
		Scan(&timezone).Error
	if err != nil || timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		s.log.Warn("invalid tenant timezone, falling back to UTC",
			zap.String("tenant_id", tenantID.String()),
			zap.String("timezone", timezone),
		)
		return time.UTC
	}
	return loc
}

func buildStatus(metric string, current, limit int64, thresholdPercent int, periodStart time.Time) domain.LimitStatus {
	status := domain.LimitStatus{
		Metric:      metric,
		Current:     current,
		Limit:       limit,
		PeriodStart: periodStart,
	}
	if limit <= 0 {
		// Unlimited: report the value, never flag.
		return status
	}
	status.IsExceeded = current >= limit
	status.IsWarning = current*100 >= limit*int64(thresholdPercent)
	return status
}

func worstOutcome(statuses []domain.LimitStatus) string {
	outcome := "ok"
	for _, status := range statuses {
		if status.IsExceeded {
			return "exceeded"
		}
		if status.IsWarning {
			outcome = "warning"
		}
	}
	return outcome
}

func counterSessions(c *domain.QuotaCounter) int64 {
	if c == nil {
		return 0
	}
	return c.Sessions
}

func counterTokens(c *domain.QuotaCounter) int64 {
	if c == nil {
		return 0
	}
	return c.Tokens
}

func counterCost(c *domain.QuotaCounter) int64 {
	if c == nil {
		return 0
	}
	return c.CostCents
}
