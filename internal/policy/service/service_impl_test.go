package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	membershipdomain "github.com/quorumdesk/panelgate/internal/membership/domain"
	"github.com/quorumdesk/panelgate/internal/policy/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTest(t *testing.T) (*gorm.DB, domain.Service) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&membershipdomain.Tenant{},
		&membershipdomain.Member{},
		&domain.RateLimitPolicy{},
	))

	svc := NewService(Params{DB: db, Log: zap.NewNop()})
	return db, svc
}

func createTenant(t *testing.T, db *gorm.DB, id snowflake.ID, tier string) {
	t.Helper()
	require.NoError(t, db.Create(&membershipdomain.Tenant{
		ID:   id,
		Name: fmt.Sprintf("tenant-%d", id),
		Tier: tier,
	}).Error)
}

func addMember(t *testing.T, db *gorm.DB, tenantID, userID snowflake.ID, role string) {
	t.Helper()
	member := membershipdomain.Member{
		ID:       snowflake.ID(int64(tenantID)<<16 | int64(userID)),
		TenantID: tenantID,
		UserID:   userID,
		Role:     role,
	}
	if role == membershipdomain.RoleOwner {
		member.OwnerKey = membershipdomain.OwnerKeyFor(tenantID)
	}
	require.NoError(t, db.Create(&member).Error)
}

func TestResolveUsesTierDefaults(t *testing.T) {
	db, svc := setupTest(t)
	ctx := context.Background()

	for i, tier := range []string{domain.TierFree, domain.TierStarter, domain.TierScale} {
		tenantID := snowflake.ID(100 + i)
		createTenant(t, db, tenantID, tier)

		resolved, err := svc.Resolve(ctx, tenantID)
		require.NoError(t, err)

		want := domain.TierDefaults(tier)
		assert.Equal(t, tier, resolved.Source)
		assert.Equal(t, want.HourlySessionLimit, resolved.HourlySessionLimit)
		assert.Equal(t, want.DailySessionLimit, resolved.DailySessionLimit)
		assert.Equal(t, want.MonthlyTokenLimit, resolved.MonthlyTokenLimit)
		assert.Equal(t, want.MonthlyCostCentsLimit, resolved.MonthlyCostCentsLimit)
		assert.Equal(t, tenantID, resolved.TenantID)
	}
}

func TestResolveUnknownTierFallsBackToFree(t *testing.T) {
	db, svc := setupTest(t)

	tenantID := snowflake.ID(101)
	createTenant(t, db, tenantID, "enterprise")

	resolved, err := svc.Resolve(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, domain.TierFree, resolved.Source)
	assert.Equal(t, domain.TierDefaults(domain.TierFree).HourlySessionLimit, resolved.HourlySessionLimit)
}

func TestResolvePrefersOverride(t *testing.T) {
	db, svc := setupTest(t)

	tenantID := snowflake.ID(101)
	createTenant(t, db, tenantID, domain.TierScale)
	require.NoError(t, db.Create(&domain.RateLimitPolicy{
		TenantID:              tenantID,
		HourlySessionLimit:    5,
		DailySessionLimit:     50,
		MonthlyTokenLimit:     1_000,
		MonthlyCostCentsLimit: 200,
		AlertThresholdPercent: 90,
	}).Error)

	resolved, err := svc.Resolve(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, "override", resolved.Source)
	assert.Equal(t, int64(5), resolved.HourlySessionLimit)
	assert.Equal(t, 90, resolved.AlertThresholdPercent)
}

func TestResolveValidation(t *testing.T) {
	_, svc := setupTest(t)
	ctx := context.Background()

	_, err := svc.Resolve(ctx, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidTenant)

	// Tenant row missing entirely.
	_, err = svc.Resolve(ctx, snowflake.ID(404))
	assert.ErrorIs(t, err, domain.ErrInvalidTenant)
}

func TestUpdateRequiresOwner(t *testing.T) {
	db, svc := setupTest(t)
	ctx := context.Background()

	tenantID := snowflake.ID(101)
	ownerID := snowflake.ID(7)
	adminID := snowflake.ID(8)
	createTenant(t, db, tenantID, domain.TierFree)
	addMember(t, db, tenantID, ownerID, membershipdomain.RoleOwner)
	addMember(t, db, tenantID, adminID, membershipdomain.RoleAdmin)

	req := domain.UpdatePolicyRequest{
		HourlySessionLimit:    50,
		DailySessionLimit:     500,
		MonthlyTokenLimit:     2_000_000,
		MonthlyCostCentsLimit: 5_000,
		AlertThresholdPercent: 75,
	}

	_, err := svc.Update(ctx, tenantID, adminID, req)
	assert.ErrorIs(t, err, domain.ErrAccessDenied)

	_, err = svc.Update(ctx, tenantID, snowflake.ID(999), req)
	assert.ErrorIs(t, err, domain.ErrAccessDenied)

	resolved, err := svc.Update(ctx, tenantID, ownerID, req)
	require.NoError(t, err)
	assert.Equal(t, "override", resolved.Source)
	assert.Equal(t, int64(50), resolved.HourlySessionLimit)
	assert.Equal(t, 75, resolved.AlertThresholdPercent)
}

func TestUpdateUpsertsExistingOverride(t *testing.T) {
	db, svc := setupTest(t)
	ctx := context.Background()

	tenantID := snowflake.ID(101)
	ownerID := snowflake.ID(7)
	createTenant(t, db, tenantID, domain.TierFree)
	addMember(t, db, tenantID, ownerID, membershipdomain.RoleOwner)

	first := domain.UpdatePolicyRequest{
		HourlySessionLimit: 10, DailySessionLimit: 100,
		MonthlyTokenLimit: 1_000, MonthlyCostCentsLimit: 100,
		AlertThresholdPercent: 80,
	}
	_, err := svc.Update(ctx, tenantID, ownerID, first)
	require.NoError(t, err)

	second := first
	second.HourlySessionLimit = 99
	resolved, err := svc.Update(ctx, tenantID, ownerID, second)
	require.NoError(t, err)
	assert.Equal(t, int64(99), resolved.HourlySessionLimit)

	var count int64
	require.NoError(t, db.Model(&domain.RateLimitPolicy{}).
		Where("tenant_id = ?", tenantID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestUpdateValidation(t *testing.T) {
	db, svc := setupTest(t)
	ctx := context.Background()

	tenantID := snowflake.ID(101)
	ownerID := snowflake.ID(7)
	createTenant(t, db, tenantID, domain.TierFree)
	addMember(t, db, tenantID, ownerID, membershipdomain.RoleOwner)

	valid := domain.UpdatePolicyRequest{
		HourlySessionLimit: 10, DailySessionLimit: 100,
		MonthlyTokenLimit: 1_000, MonthlyCostCentsLimit: 100,
		AlertThresholdPercent: 80,
	}

	_, err := svc.Update(ctx, 0, ownerID, valid)
	assert.ErrorIs(t, err, domain.ErrInvalidTenant)

	negative := valid
	negative.MonthlyTokenLimit = -1
	_, err = svc.Update(ctx, tenantID, ownerID, negative)
	assert.ErrorIs(t, err, domain.ErrInvalidPolicy)

	for _, threshold := range []int{0, -5, 101} {
		bad := valid
		bad.AlertThresholdPercent = threshold
		_, err = svc.Update(ctx, tenantID, ownerID, bad)
		assert.ErrorIs(t, err, domain.ErrInvalidThreshold)
	}

	// Threshold bounds are inclusive.
	ceiling := valid
	ceiling.AlertThresholdPercent = 100
	_, err = svc.Update(ctx, tenantID, ownerID, ceiling)
	require.NoError(t, err)
}
