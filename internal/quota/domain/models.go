// Package domain contains persistence models for usage metering.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/quorumdesk/panelgate/internal/clock"
	"gorm.io/datatypes"
)

// QuotaCounter is a durable running total for one (tenant, window) key.
// Rows are created lazily on first increment and never decremented; the
// sweeper evicts them once the window is stale past its retention horizon.
type QuotaCounter struct {
	TenantID    snowflake.ID     `gorm:"primaryKey;autoIncrement:false" json:"tenant_id"`
	WindowType  clock.WindowType `gorm:"primaryKey;type:text" json:"window_type"`
	WindowStart time.Time        `gorm:"primaryKey" json:"window_start"`
	Sessions    int64            `gorm:"not null;default:0" json:"sessions"`
	Tokens      int64            `gorm:"not null;default:0" json:"tokens"`
	CostCents   int64            `gorm:"not null;default:0" json:"cost_cents"`
	UpdatedAt   time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (QuotaCounter) TableName() string { return "quota_counters" }

// SessionUsageRecord is the write-once fine-grained breakdown of a single AI
// invocation feeding the aggregate counters. Read for analytics only.
type SessionUsageRecord struct {
	ID         snowflake.ID   `gorm:"primaryKey" json:"id"`
	TenantID   snowflake.ID   `gorm:"not null;index" json:"tenant_id"`
	SessionRef string         `gorm:"type:text" json:"session_ref"`
	TokensIn   int64          `gorm:"not null;default:0" json:"tokens_in"`
	TokensOut  int64          `gorm:"not null;default:0" json:"tokens_out"`
	CostCents  int64          `gorm:"not null;default:0" json:"cost_cents"`
	Models     datatypes.JSON `json:"models"`
	RecordedAt time.Time      `gorm:"not null" json:"recorded_at"`
	CreatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (SessionUsageRecord) TableName() string { return "session_usage_records" }

// ModelContribution is one model's share of a council session.
type ModelContribution struct {
	Model     string `json:"model"`
	TokensIn  int64  `json:"tokens_in"`
	TokensOut int64  `json:"tokens_out"`
	CostCents int64  `json:"cost_cents"`
}

// Metric names reported by CheckLimits.
const (
	MetricHourlySessions   = "hourly_sessions"
	MetricDailySessions    = "daily_sessions"
	MetricMonthlyTokens    = "monthly_tokens"
	MetricMonthlyCostCents = "monthly_cost_cents"
)
