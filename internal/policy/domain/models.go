// Package domain contains the per-tenant rate limit policy model and the
// tiered defaults applied when a tenant has no explicit policy.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// RateLimitPolicy is an optional per-tenant override of the tier defaults.
// Only the tenant owner may mutate it. A ceiling of zero means unlimited.
type RateLimitPolicy struct {
	TenantID              snowflake.ID `gorm:"primaryKey" json:"tenant_id"`
	HourlySessionLimit    int64        `gorm:"not null" json:"hourly_session_limit"`
	DailySessionLimit     int64        `gorm:"not null" json:"daily_session_limit"`
	MonthlyTokenLimit     int64        `gorm:"not null" json:"monthly_token_limit"`
	MonthlyCostCentsLimit int64        `gorm:"not null" json:"monthly_cost_cents_limit"`
	AlertThresholdPercent int          `gorm:"not null;default:80" json:"alert_threshold_percent"`
	CreatedAt             time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt             time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (RateLimitPolicy) TableName() string { return "rate_limit_policies" }

// EffectivePolicy is the resolved policy for a tenant, either its explicit
// override or the defaults for its tier.
type EffectivePolicy struct {
	TenantID              snowflake.ID `json:"tenant_id"`
	Source                string       `json:"source"` // "override" or tier name
	HourlySessionLimit    int64        `json:"hourly_session_limit"`
	DailySessionLimit     int64        `json:"daily_session_limit"`
	MonthlyTokenLimit     int64        `json:"monthly_token_limit"`
	MonthlyCostCentsLimit int64        `json:"monthly_cost_cents_limit"`
	AlertThresholdPercent int          `json:"alert_threshold_percent"`
}

// UpdatePolicyRequest carries an owner-initiated policy change.
type UpdatePolicyRequest struct {
	HourlySessionLimit    int64 `json:"hourly_session_limit"`
	DailySessionLimit     int64 `json:"daily_session_limit"`
	MonthlyTokenLimit     int64 `json:"monthly_token_limit"`
	MonthlyCostCentsLimit int64 `json:"monthly_cost_cents_limit"`
	AlertThresholdPercent int   `json:"alert_threshold_percent"`
}

// Tier defaults. Tenants carry a tier; an explicit policy row overrides it.
const (
	TierFree    = "free"
	TierStarter = "starter"
	TierScale   = "scale"
)

var tierDefaults = map[string]EffectivePolicy{
	TierFree: {
		HourlySessionLimit:    20,
		DailySessionLimit:     100,
		MonthlyTokenLimit:     500_000,
		MonthlyCostCentsLimit: 1_000,
		AlertThresholdPercent: 80,
	},
	TierStarter: {
		HourlySessionLimit:    200,
		DailySessionLimit:     2_000,
		MonthlyTokenLimit:     10_000_000,
		MonthlyCostCentsLimit: 50_000,
		AlertThresholdPercent: 80,
	},
	TierScale: {
		HourlySessionLimit:    2_000,
		DailySessionLimit:     20_000,
		MonthlyTokenLimit:     200_000_000,
		MonthlyCostCentsLimit: 1_000_000,
		AlertThresholdPercent: 80,
	},
}

// TierDefaults returns the default policy for a tier, falling back to the
// free tier for unknown values.
func TierDefaults(tier string) EffectivePolicy {
	if p, ok := tierDefaults[tier]; ok {
		p.Source = tier
		return p
	}
	p := tierDefaults[TierFree]
	p.Source = TierFree
	return p
}

// Service resolves and mutates per-tenant rate limit policies.
type Service interface {
	Resolve(ctx context.Context, tenantID snowflake.ID) (EffectivePolicy, error)
	Update(ctx context.Context, tenantID, callerID snowflake.ID, req UpdatePolicyRequest) (EffectivePolicy, error)
}

var (
	ErrInvalidTenant    = errors.New("invalid_tenant")
	ErrInvalidPolicy    = errors.New("invalid_policy")
	ErrInvalidThreshold = errors.New("invalid_alert_threshold")
	ErrAccessDenied     = errors.New("access_denied")
)
