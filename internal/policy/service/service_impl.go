package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	membershipdomain "github.com/quorumdesk/panelgate/internal/membership/domain"
	policydomain "github.com/quorumdesk/panelgate/internal/policy/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(p Params) policydomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("policy.service"),
	}
}

func (s *Service) Resolve(ctx context.Context, tenantID snowflake.ID) (policydomain.EffectivePolicy, error) {
	if tenantID == 0 {
		return policydomain.EffectivePolicy{}, policydomain.ErrInvalidTenant
	}

	var override policydomain.RateLimitPolicy
	err := s.db.WithContext(ctx).First(&override, "tenant_id = ?", tenantID).Error
	if err == nil {
		return policydomain.EffectivePolicy{
			TenantID:              tenantID,
			Source:                "override",
			HourlySessionLimit:    override.HourlySessionLimit,
			DailySessionLimit:     override.DailySessionLimit,
			MonthlyTokenLimit:     override.MonthlyTokenLimit,
			MonthlyCostCentsLimit: override.MonthlyCostCentsLimit,
			AlertThresholdPercent: override.AlertThresholdPercent,
		}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return policydomain.EffectivePolicy{}, err
	}

	tier, err := s.tenantTier(ctx, tenantID)
	if err != nil {
		return policydomain.EffectivePolicy{}, err
	}

	resolved := policydomain.TierDefaults(tier)
	resolved.TenantID = tenantID
	return resolved, nil
}

func (s *Service) Update(ctx context.Context, tenantID, callerID snowflake.ID, req policydomain.UpdatePolicyRequest) (policydomain.EffectivePolicy, error) {
	if tenantID == 0 {
		return policydomain.EffectivePolicy{}, policydomain.ErrInvalidTenant
	}
	if req.HourlySessionLimit < 0 || req.DailySessionLimit < 0 ||
		req.MonthlyTokenLimit < 0 || req.MonthlyCostCentsLimit < 0 {
		return policydomain.EffectivePolicy{}, policydomain.ErrInvalidPolicy
	}
	if req.AlertThresholdPercent < 1 || req.AlertThresholdPercent > 100 {
		return policydomain.EffectivePolicy{}, policydomain.ErrInvalidThreshold
	}

	role, err := s.callerRole(ctx, tenantID, callerID)
	if err != nil {
		return policydomain.EffectivePolicy{}, err
	}
	if role != membershipdomain.RoleOwner {
		return policydomain.EffectivePolicy{}, policydomain.ErrAccessDenied
	}

	now := time.Now().UTC()
	row := policydomain.RateLimitPolicy{
		TenantID:              tenantID,
		HourlySessionLimit:    req.HourlySessionLimit,
		DailySessionLimit:     req.DailySessionLimit,
		MonthlyTokenLimit:     req.MonthlyTokenLimit,
		MonthlyCostCentsLimit: req.MonthlyCostCentsLimit,
		AlertThresholdPercent: req.AlertThresholdPercent,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"hourly_session_limit",
			"daily_session_limit",
			"monthly_token_limit",
			"monthly_cost_cents_limit",
			"alert_threshold_percent",
			"updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return policydomain.EffectivePolicy{}, err
	}

	s.log.Info("rate limit policy updated",
		zap.String("tenant_id", tenantID.String()),
		zap.String("caller_id", callerID.String()),
	)

	return s.Resolve(ctx, tenantID)
}

func (s *Service) tenantTier(ctx context.Context, tenantID snowflake.ID) (string, error) {
	var tier string
	err := s.db.WithContext(ctx).
		Raw(`SELECT tier FROM tenants WHERE id = ?`, tenantID).
		Scan(&tier).Error
	if err != nil {
		return "", err
	}
	if tier == "" {
		return "", policydomain.ErrInvalidTenant
	}
	return tier, nil
}

func (s *Service) callerRole(ctx context.Context, tenantID, callerID snowflake.ID) (string, error) {
	if callerID == 0 {
		return "", policydomain.ErrAccessDenied
	}
	var role string
	err := s.db.WithContext(ctx).
		Raw(`SELECT role FROM tenant_members WHERE tenant_id = ? AND user_id = ?`, tenantID, callerID).
		Scan(&role).Error
	if err != nil {
		return "", err
	}
	if role == "" {
		return "", policydomain.ErrAccessDenied
	}
	return role, nil
}
