package service

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/quorumdesk/panelgate/internal/audit/domain"
	"github.com/quorumdesk/panelgate/internal/clock"
	"github.com/quorumdesk/panelgate/internal/metrics"
	"github.com/quorumdesk/panelgate/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// verifyBatchSize bounds memory during full-ledger sweeps.
const verifyBatchSize = 500

type Params struct {
	fx.In

	Log     *zap.Logger
	Repo    domain.Repository
	GenID   *snowflake.Node
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	log     *zap.Logger
	repo    domain.Repository
	genID   *snowflake.Node
	clock   clock.Clock
	metrics *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		log:     p.Log.Named("audit.service"),
		repo:    p.Repo,
		genID:   p.GenID,
		clock:   p.Clock,
		metrics: p.Metrics,
	}
}

func (s *Service) Record(ctx context.Context, req domain.RecordRequest) (snowflake.ID, error) {
	if req.TenantID == 0 {
		return 0, domain.ErrInvalidTenant
	}
	if req.ActorID == 0 {
		return 0, domain.ErrInvalidActor
	}
	if !domain.ValidAction(req.Action) {
		return 0, domain.ErrInvalidAction
	}

	entry := &domain.AuditLog{
		ID:          s.genID.Generate(),
		TenantID:    req.TenantID,
		ActorID:     req.ActorID,
		Action:      req.Action,
		TargetRef:   req.TargetRef,
		Description: req.Description,
		CreatedAt:   s.clock.Now(),
	}

	if req.Before != nil {
		b, err := json.Marshal(req.Before)
		if err != nil {
			return 0, err
		}
		entry.Before = datatypes.JSON(b)
	}
	if req.After != nil {
		b, err := json.Marshal(req.After)
		if err != nil {
			return 0, err
		}
		entry.After = datatypes.JSON(b)
	}

	entry.Hash = domain.ComputeHash(entry)

	if err := s.repo.Insert(ctx, entry); err != nil {
		return 0, err
	}

	if s.metrics != nil {
		s.metrics.IncAuditEntry()
	}
	s.log.Debug("audit entry recorded",
		zap.String("tenant_id", req.TenantID.String()),
		zap.String("action", req.Action),
		zap.String("target_ref", req.TargetRef),
	)
	return entry.ID, nil
}

func (s *Service) VerifyEntry(ctx context.Context, tenantID, entryID snowflake.ID) (domain.VerifyResult, error) {
	entry, err := s.repo.FindByID(ctx, entryID)
	if err != nil {
		return domain.VerifyResult{}, err
	}
	if tenantID != 0 && entry.TenantID != tenantID {
		return domain.VerifyResult{}, domain.ErrEntryNotFound
	}
	return s.verify(entry), nil
}

func (s *Service) verify(entry *domain.AuditLog) domain.VerifyResult {
	computed := domain.ComputeHash(entry)
	result := domain.VerifyResult{
		EntryID:      entry.ID.String(),
		Valid:        entry.Hash != "" && entry.Hash == computed,
		StoredHash:   entry.Hash,
		ComputedHash: computed,
	}
	if !result.Valid {
		if s.metrics != nil {
			s.metrics.IncVerifyFailure()
		}
		s.log.Warn("audit entry failed verification",
			zap.String("entry_id", entry.ID.String()),
			zap.String("tenant_id", entry.TenantID.String()),
		)
	}
	return result
}

func (s *Service) VerifyTenantLedger(ctx context.Context, tenantID snowflake.ID) (domain.LedgerReport, error) {
	if tenantID == 0 {
		return domain.LedgerReport{}, domain.ErrInvalidTenant
	}

	report := domain.LedgerReport{TenantID: tenantID.String()}
	var afterID snowflake.ID

	for {
		batch, err := s.repo.ListBatch(ctx, tenantID, afterID, verifyBatchSize)
		if err != nil {
			return report, err
		}
		if len(batch) == 0 {
			break
		}

		for _, entry := range batch {
			report.Total++
			switch {
			case entry.Hash == "":
				report.MissingHash++
			case s.verify(entry).Valid:
				report.Valid++
			default:
				report.Invalid++
			}
		}
		afterID = batch[len(batch)-1].ID
	}

	return report, nil
}

func (s *Service) List(ctx context.Context, tenantID snowflake.ID, req domain.ListRequest) (domain.ListResponse, error) {
	if tenantID == 0 {
		return domain.ListResponse{}, domain.ErrInvalidTenant
	}
	if req.StartAt != nil && req.EndAt != nil && req.EndAt.Before(*req.StartAt) {
		return domain.ListResponse{}, domain.ErrInvalidTimeRange
	}

	limit := req.PageSize
	if limit <= 0 {
		limit = 50
	}

	filter := domain.ListFilter{
		TenantID:  tenantID,
		Action:    req.Action,
		TargetRef: req.TargetRef,
		StartAt:   req.StartAt,
		EndAt:     req.EndAt,
		Limit:     limit,
	}

	if req.PageToken != "" {
		cursor, err := decodeCursor(req.PageToken)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		filter.Cursor = cursor
	}

	entries, err := s.repo.List(ctx, filter)
	if err != nil {
		return domain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(entries, limit, func(e *domain.AuditLog) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        e.ID.String(),
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}

	resp := domain.ListResponse{
		PageInfo: *pageInfo,
		Entries:  make([]domain.AuditLog, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, *e)
	}
	return resp, nil
}

func decodeCursor(token string) (*domain.Cursor, error) {
	raw, err := pagination.DecodeCursor(token)
	if err != nil {
		return nil, err
	}
	id, err := strconv.ParseInt(raw.ID, 10, 64)
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, raw.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &domain.Cursor{ID: snowflake.ID(id), CreatedAt: createdAt}, nil
}
