package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/quorumdesk/panelgate/internal/audit/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB *gorm.DB
}

type repository struct {
	db *gorm.DB
}

func New(p Params) domain.Repository {
	return &repository{db: p.DB}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) Insert(ctx context.Context, entry *domain.AuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) FindByID(ctx context.Context, entryID snowflake.ID) (*domain.AuditLog, error) {
	var entry domain.AuditLog
	err := r.db.WithContext(ctx).
		Where("id = ?", entryID).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrEntryNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (r *repository) ListBatch(ctx context.Context, tenantID snowflake.ID, afterID snowflake.ID, limit int) ([]*domain.AuditLog, error) {
	var entries []*domain.AuditLog
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id > ?", tenantID, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (r *repository) List(ctx context.Context, filter domain.ListFilter) ([]*domain.AuditLog, error) {
	query := r.db.WithContext(ctx).
		Where("tenant_id = ?", filter.TenantID)

	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.TargetRef != "" {
		query = query.Where("target_ref = ?", filter.TargetRef)
	}
	if filter.StartAt != nil {
		query = query.Where("created_at >= ?", *filter.StartAt)
	}
	if filter.EndAt != nil {
		query = query.Where("created_at < ?", *filter.EndAt)
	}
	if filter.Cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}

	var entries []*domain.AuditLog
	err := query.
		Order("created_at DESC, id DESC").
		Limit(filter.Limit + 1).
		Find(&entries).Error
	return entries, err
}

// PurgeBefore bypasses the model hooks on purpose: retention is the one
// sanctioned delete path and only privileged operational jobs reach it.
func (r *repository) PurgeBefore(ctx context.Context, tenantID snowflake.ID, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Exec(
		`DELETE FROM audit_logs WHERE tenant_id = ? AND created_at < ?`,
		tenantID,
		before,
	)
	return result.RowsAffected, result.Error
}
