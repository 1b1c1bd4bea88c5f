// Package domain contains the budget alert model.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	quotadomain "github.com/quorumdesk/panelgate/internal/quota/domain"
)

// BudgetAlert records one threshold crossing. The unique index over
// (tenant_id, alert_type, period_start) makes alerting idempotent: crossing
// the same threshold any number of times within a period raises one row.
type BudgetAlert struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID       snowflake.ID `gorm:"not null;index;uniqueIndex:ux_budget_alert,priority:1" json:"tenant_id"`
	AlertType      string       `gorm:"type:text;not null;uniqueIndex:ux_budget_alert,priority:2" json:"alert_type"`
	PeriodStart    time.Time    `gorm:"not null;uniqueIndex:ux_budget_alert,priority:3" json:"period_start"`
	CurrentValue   int64        `gorm:"not null" json:"current_value"`
	LimitValue     int64        `gorm:"not null" json:"limit_value"`
	RaisedAt       time.Time    `gorm:"not null" json:"raised_at"`
	AcknowledgedAt *time.Time   `json:"acknowledged_at,omitempty"`
}

// TableName sets the database table name.
func (BudgetAlert) TableName() string { return "budget_alerts" }

// Alert type suffixes appended to the metric name.
const (
	SuffixWarning  = "_warning"
	SuffixExceeded = "_exceeded"
)

// Service turns advisory limit statuses into at-most-once alerts.
type Service interface {
	// Evaluate raises an alert for every flagged metric and returns the rows
	// actually created this call (already-raised alerts are skipped).
	Evaluate(ctx context.Context, tenantID snowflake.ID, statuses []quotadomain.LimitStatus) ([]BudgetAlert, error)
	ListUnacknowledged(ctx context.Context, tenantID snowflake.ID) ([]BudgetAlert, error)
	// Acknowledge is restricted to tenant owner/admin. It never deletes.
	Acknowledge(ctx context.Context, tenantID, alertID, callerID snowflake.ID) error
}

var (
	ErrInvalidTenant = errors.New("invalid_tenant")
	ErrInvalidAlert  = errors.New("invalid_alert")
	ErrAlertNotFound = errors.New("alert_not_found")
	ErrAccessDenied  = errors.New("access_denied")
	ErrAlreadyAcked  = errors.New("alert_already_acknowledged")
)
