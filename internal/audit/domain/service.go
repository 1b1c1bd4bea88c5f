package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/quorumdesk/panelgate/pkg/db/pagination"
	"gorm.io/gorm"
)

// RecordRequest carries one auditable action.
type RecordRequest struct {
	TenantID    snowflake.ID
	ActorID     snowflake.ID
	Action      string
	TargetRef   string
	Description string
	Before      map[string]any
	After       map[string]any
}

// VerifyResult reports a single-entry integrity check.
type VerifyResult struct {
	EntryID      string `json:"entry_id"`
	Valid        bool   `json:"valid"`
	StoredHash   string `json:"stored_hash"`
	ComputedHash string `json:"computed_hash"`
}

// LedgerReport aggregates a full-tenant integrity sweep.
type LedgerReport struct {
	TenantID    string `json:"tenant_id"`
	Total       int64  `json:"total"`
	Valid       int64  `json:"valid"`
	Invalid     int64  `json:"invalid"`
	MissingHash int64  `json:"missing_hash"`
}

type ListRequest struct {
	pagination.Pagination
	Action    string
	TargetRef string
	StartAt   *time.Time
	EndAt     *time.Time
}

type ListResponse struct {
	pagination.PageInfo
	Entries []AuditLog `json:"entries"`
}

// Service is the append-only ledger plus its verifier.
type Service interface {
	Record(ctx context.Context, req RecordRequest) (snowflake.ID, error)
	VerifyEntry(ctx context.Context, tenantID, entryID snowflake.ID) (VerifyResult, error)
	// VerifyTenantLedger streams every entry for a tenant in batches; it is a
	// periodic sweep, never on a request path.
	VerifyTenantLedger(ctx context.Context, tenantID snowflake.ID) (LedgerReport, error)
	List(ctx context.Context, tenantID snowflake.ID, req ListRequest) (ListResponse, error)
}

// Repository is the storage surface. Insert is the only ordinary write;
// PurgeBefore is the privileged retention path.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Insert(ctx context.Context, entry *AuditLog) error
	FindByID(ctx context.Context, entryID snowflake.ID) (*AuditLog, error)
	// ListBatch returns entries with ID greater than afterID in ID order,
	// bounded by limit, for streaming verification.
	ListBatch(ctx context.Context, tenantID snowflake.ID, afterID snowflake.ID, limit int) ([]*AuditLog, error)
	List(ctx context.Context, filter ListFilter) ([]*AuditLog, error)
	// PurgeBefore deletes entries older than the cutoff. Callers must hold
	// the retention privilege; nothing else may delete ledger rows.
	PurgeBefore(ctx context.Context, tenantID snowflake.ID, before time.Time) (int64, error)
}

type ListFilter struct {
	TenantID  snowflake.ID
	Action    string
	TargetRef string
	StartAt   *time.Time
	EndAt     *time.Time
	Cursor    *Cursor
	Limit     int
}

type Cursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

var (
	ErrInvalidTenant    = errors.New("invalid_tenant")
	ErrInvalidActor     = errors.New("invalid_actor")
	ErrInvalidAction    = errors.New("invalid_action")
	ErrEntryNotFound    = errors.New("audit_entry_not_found")
	ErrImmutableEntry   = errors.New("audit_entry_immutable")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
)
