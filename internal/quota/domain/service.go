package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/quorumdesk/panelgate/internal/clock"
	"github.com/quorumdesk/panelgate/pkg/db/pagination"
	"gorm.io/gorm"
)

// IncrementRequest carries the usage deltas of one metered action.
type IncrementRequest struct {
	Sessions  int64 `json:"sessions"`
	Tokens    int64 `json:"tokens"`
	CostCents int64 `json:"cost_cents"`
	// Optional fine-grained breakdown recorded for analytics.
	SessionRef string              `json:"session_ref"`
	TokensIn   int64               `json:"tokens_in"`
	TokensOut  int64               `json:"tokens_out"`
	Models     []ModelContribution `json:"models"`
}

// UsageTotals is the state of all three windows after an increment.
type UsageTotals struct {
	HourlySessions   int64 `json:"hourly_sessions"`
	DailySessions    int64 `json:"daily_sessions"`
	MonthlyTokens    int64 `json:"monthly_tokens"`
	MonthlyCostCents int64 `json:"monthly_cost_cents"`
}

// LimitStatus reports one metric against its resolved ceiling. Advisory only:
// the caller decides whether to degrade service.
type LimitStatus struct {
	Metric      string    `json:"metric"`
	Current     int64     `json:"current"`
	Limit       int64     `json:"limit"`
	IsExceeded  bool      `json:"is_exceeded"`
	IsWarning   bool      `json:"is_warning"`
	PeriodStart time.Time `json:"period_start"`
}

// ListRecordsRequest pages through session usage records, newest first.
type ListRecordsRequest struct {
	pagination.Pagination
	StartAt *time.Time
	EndAt   *time.Time
}

type ListRecordsResponse struct {
	pagination.PageInfo
	Records []SessionUsageRecord `json:"records"`
}

// Service meters usage and evaluates it against the resolved policy.
type Service interface {
	IncrementUsage(ctx context.Context, tenantID snowflake.ID, req IncrementRequest) (UsageTotals, error)
	CheckLimits(ctx context.Context, tenantID snowflake.ID) ([]LimitStatus, error)
	ListSessionRecords(ctx context.Context, tenantID snowflake.ID, req ListRecordsRequest) (ListRecordsResponse, error)
}

// RecordCursor marks a position in the record listing.
type RecordCursor struct {
	ID         snowflake.ID
	RecordedAt time.Time
}

// RecordFilter scopes a session record listing.
type RecordFilter struct {
	TenantID snowflake.ID
	StartAt  *time.Time
	EndAt    *time.Time
	Cursor   *RecordCursor
	Limit    int
}

// Repository is the storage surface for quota counters. IncrementWindow must
// be a single atomic insert-or-add, never read-modify-write.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	IncrementWindow(ctx context.Context, counter QuotaCounter) error
	GetWindow(ctx context.Context, tenantID snowflake.ID, windowType clock.WindowType, windowStart time.Time) (*QuotaCounter, error)
	CreateSessionRecord(ctx context.Context, record *SessionUsageRecord) error
	ListSessionRecords(ctx context.Context, filter RecordFilter) ([]*SessionUsageRecord, error)
	// EvictStale garbage-collects windows started before the cutoff. It never
	// affects correctness of live totals.
	EvictStale(ctx context.Context, windowType clock.WindowType, before time.Time) (int64, error)
}

var (
	ErrInvalidTenant    = errors.New("invalid_tenant")
	ErrInvalidIncrement = errors.New("invalid_increment")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
)
