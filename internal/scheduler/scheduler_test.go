package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/quorumdesk/panelgate/internal/audit/domain"
	auditrepo "github.com/quorumdesk/panelgate/internal/audit/repository"
	auditservice "github.com/quorumdesk/panelgate/internal/audit/service"
	"github.com/quorumdesk/panelgate/internal/clock"
	membershipdomain "github.com/quorumdesk/panelgate/internal/membership/domain"
	quotadomain "github.com/quorumdesk/panelgate/internal/quota/domain"
	quotarepo "github.com/quorumdesk/panelgate/internal/quota/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTest(t *testing.T) (*gorm.DB, *Scheduler, *clock.FakeClock) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&membershipdomain.Tenant{},
		&quotadomain.QuotaCounter{},
		&auditdomain.AuditLog{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC))

	quotaRepository := quotarepo.New(db)
	auditRepository := auditrepo.New(auditrepo.Params{DB: db})
	auditSvc := auditservice.NewService(auditservice.Params{
		Log:   zap.NewNop(),
		Repo:  auditRepository,
		GenID: node,
		Clock: fake,
	})

	sched, err := New(Params{
		DB:        db,
		Log:       zap.NewNop(),
		QuotaRepo: quotaRepository,
		AuditSvc:  auditSvc,
		Clock:     fake,
		Config:    Config{RunInterval: time.Minute, JobTimeout: 30 * time.Second},
	})
	require.NoError(t, err)
	return db, sched, fake
}

func insertCounter(t *testing.T, db *gorm.DB, tenantID snowflake.ID, windowType clock.WindowType, start time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&quotadomain.QuotaCounter{
		TenantID:    tenantID,
		WindowType:  windowType,
		WindowStart: start,
		Sessions:    1,
		UpdatedAt:   start,
	}).Error)
}

func countWindows(t *testing.T, db *gorm.DB, windowType clock.WindowType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&quotadomain.QuotaCounter{}).
		Where("window_type = ?", windowType).Count(&n).Error)
	return n
}

func TestEvictWindowsJobHonorsRetention(t *testing.T) {
	db, sched, fake := setupTest(t)
	ctx := context.Background()

	now := fake.Now()
	tenantID := snowflake.ID(101)

	// One stale and one live window per type.
	insertCounter(t, db, tenantID, clock.WindowHour, now.Add(-25*time.Hour))
	insertCounter(t, db, tenantID, clock.WindowHour, clock.HourStart(now, nil))
	insertCounter(t, db, tenantID, clock.WindowDay, now.Add(-8*24*time.Hour))
	insertCounter(t, db, tenantID, clock.WindowDay, clock.DayStart(now, nil))
	insertCounter(t, db, tenantID, clock.WindowMonth, now.Add(-4*31*24*time.Hour))
	insertCounter(t, db, tenantID, clock.WindowMonth, clock.MonthStart(now, nil))

	require.NoError(t, sched.RunOnce(ctx))

	for _, windowType := range clock.WindowTypes {
		assert.Equal(t, int64(1), countWindows(t, db, windowType), string(windowType))
	}
}

func TestEvictWindowsJobKeepsWindowsInsideHorizon(t *testing.T) {
	db, sched, fake := setupTest(t)
	ctx := context.Background()

	tenantID := snowflake.ID(101)
	insertCounter(t, db, tenantID, clock.WindowHour, fake.Now().Add(-23*time.Hour))

	require.NoError(t, sched.RunOnce(ctx))
	assert.Equal(t, int64(1), countWindows(t, db, clock.WindowHour))

	// Advancing past the horizon makes the same window eligible.
	fake.Advance(2 * time.Hour)
	require.NoError(t, sched.RunOnce(ctx))
	assert.Equal(t, int64(0), countWindows(t, db, clock.WindowHour))
}

func TestVerifyLedgersJobCoversAllTenants(t *testing.T) {
	db, sched, _ := setupTest(t)
	ctx := context.Background()

	for _, id := range []snowflake.ID{101, 202} {
		require.NoError(t, db.Create(&membershipdomain.Tenant{
			ID: id, Name: fmt.Sprintf("tenant-%d", id),
		}).Error)
	}

	_, err := sched.auditSvc.Record(ctx, auditdomain.RecordRequest{
		TenantID: 101, ActorID: 7, Action: "session.create", TargetRef: "session:abc",
	})
	require.NoError(t, err)

	require.NoError(t, sched.VerifyLedgersJob(ctx))

	// A tampered entry does not fail the sweep; it is reported and the
	// remaining tenants still get verified.
	require.NoError(t, db.Exec(`UPDATE audit_logs SET description = 'edited'`).Error)
	require.NoError(t, sched.VerifyLedgersJob(ctx))
}

func TestShutdownStopsSweepLoop(t *testing.T) {
	db, sched, fake := setupTest(t)
	sched.cfg.RunInterval = 5 * time.Millisecond

	lc := fxtest.NewLifecycle(t)
	registerHooks(lc, sched)

	lc.RequireStart()
	lc.RequireStop()

	// Stop returns only once the run loop has exited, so a window turning
	// stale afterwards must never be evicted.
	insertCounter(t, db, 101, clock.WindowHour, fake.Now().Add(-48*time.Hour))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int64(1), countWindows(t, db, clock.WindowHour))
}

func TestEnabledJobsFilter(t *testing.T) {
	db, sched, fake := setupTest(t)
	ctx := context.Background()

	sched.cfg.EnabledJobs = []string{"verify_ledgers"}
	insertCounter(t, db, 101, clock.WindowHour, fake.Now().Add(-48*time.Hour))

	require.NoError(t, sched.RunOnce(ctx))
	assert.Equal(t, int64(1), countWindows(t, db, clock.WindowHour))
}
