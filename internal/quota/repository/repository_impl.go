package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/quorumdesk/panelgate/internal/clock"
	"github.com/quorumdesk/panelgate/internal/quota/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	db *gorm.DB
}

func New(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

// IncrementWindow is one atomic insert-or-add on the window key. Concurrent
// callers each add their delta; no update is ever lost.
func (r *repository) IncrementWindow(ctx context.Context, counter domain.QuotaCounter) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "tenant_id"},
			{Name: "window_type"},
			{Name: "window_start"},
		},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"sessions":   gorm.Expr("quota_counters.sessions + excluded.sessions"),
			"tokens":     gorm.Expr("quota_counters.tokens + excluded.tokens"),
			"cost_cents": gorm.Expr("quota_counters.cost_cents + excluded.cost_cents"),
			"updated_at": gorm.Expr("excluded.updated_at"),
		}),
	}).Create(&counter).Error
}

func (r *repository) GetWindow(ctx context.Context, tenantID snowflake.ID, windowType clock.WindowType, windowStart time.Time) (*domain.QuotaCounter, error) {
	var counter domain.QuotaCounter
	err := r.db.WithContext(ctx).
		First(&counter, "tenant_id = ? AND window_type = ? AND window_start = ?",
			tenantID, windowType, windowStart).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &counter, nil
}

func (r *repository) CreateSessionRecord(ctx context.Context, record *domain.SessionUsageRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) ListSessionRecords(ctx context.Context, filter domain.RecordFilter) ([]*domain.SessionUsageRecord, error) {
	query := r.db.WithContext(ctx).
		Model(&domain.SessionUsageRecord{}).
		Where("tenant_id = ?", filter.TenantID)

	if filter.StartAt != nil {
		query = query.Where("recorded_at >= ?", *filter.StartAt)
	}
	if filter.EndAt != nil {
		query = query.Where("recorded_at < ?", *filter.EndAt)
	}
	if filter.Cursor != nil {
		query = query.Where(
			"(recorded_at < ?) OR (recorded_at = ? AND id < ?)",
			filter.Cursor.RecordedAt, filter.Cursor.RecordedAt, filter.Cursor.ID,
		)
	}

	var records []*domain.SessionUsageRecord
	err := query.
		Order("recorded_at DESC, id DESC").
		Limit(filter.Limit + 1).
		Find(&records).Error
	return records, err
}

func (r *repository) EvictStale(ctx context.Context, windowType clock.WindowType, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Exec(
		`DELETE FROM quota_counters WHERE window_type = ? AND window_start < ?`,
		windowType,
		before,
	)
	return result.RowsAffected, result.Error
}
