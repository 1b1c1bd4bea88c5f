package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/quorumdesk/panelgate/internal/audit/domain"
	"github.com/quorumdesk/panelgate/internal/audit/repository"
	"github.com/quorumdesk/panelgate/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTest(t *testing.T) (*gorm.DB, domain.Service, domain.Repository, *clock.FakeClock) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&domain.AuditLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2026, time.March, 14, 15, 0, 0, 0, time.UTC))

	repo := repository.New(repository.Params{DB: db})
	svc := NewService(Params{
		Log:   zap.NewNop(),
		Repo:  repo,
		GenID: node,
		Clock: fake,
	})
	return db, svc, repo, fake
}

func record(t *testing.T, svc domain.Service, tenantID, actorID snowflake.ID, action string) snowflake.ID {
	t.Helper()
	id, err := svc.Record(context.Background(), domain.RecordRequest{
		TenantID:    tenantID,
		ActorID:     actorID,
		Action:      action,
		TargetRef:   "session:abc",
		Description: "model invocation",
	})
	require.NoError(t, err)
	return id
}

func TestRecordAndVerifyEntry(t *testing.T) {
	_, svc, _, _ := setupTest(t)
	ctx := context.Background()

	tenantID := snowflake.ID(101)
	entryID := record(t, svc, tenantID, 7, "session.create")

	result, err := svc.VerifyEntry(ctx, tenantID, entryID)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, result.StoredHash, result.ComputedHash)
	assert.NotEmpty(t, result.StoredHash)

	// Another tenant cannot probe the entry.
	_, err = svc.VerifyEntry(ctx, 202, entryID)
	assert.ErrorIs(t, err, domain.ErrEntryNotFound)
}

func TestRecordRejectsInvalidInput(t *testing.T) {
	_, svc, _, _ := setupTest(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, domain.RecordRequest{ActorID: 7, Action: "session.create"})
	assert.ErrorIs(t, err, domain.ErrInvalidTenant)

	_, err = svc.Record(ctx, domain.RecordRequest{TenantID: 101, Action: "session.create"})
	assert.ErrorIs(t, err, domain.ErrInvalidActor)

	_, err = svc.Record(ctx, domain.RecordRequest{TenantID: 101, ActorID: 7, Action: "no-namespace"})
	assert.ErrorIs(t, err, domain.ErrInvalidAction)
}

func TestVerifyDetectsTampering(t *testing.T) {
	db, svc, _, _ := setupTest(t)
	ctx := context.Background()

	entryID := record(t, svc, 101, 7, "member.invite")

	// Mutate a hashed field behind the model's back.
	require.NoError(t, db.Exec(
		`UPDATE audit_logs SET description = ? WHERE id = ?`,
		"rewritten", entryID,
	).Error)

	result, err := svc.VerifyEntry(ctx, 101, entryID)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.NotEqual(t, result.StoredHash, result.ComputedHash)
}

func TestEntriesAreImmutable(t *testing.T) {
	db, svc, _, _ := setupTest(t)

	entryID := record(t, svc, 101, 7, "policy.update")

	var entry domain.AuditLog
	require.NoError(t, db.First(&entry, "id = ?", entryID).Error)

	err := db.Model(&entry).Update("description", "edited").Error
	assert.ErrorIs(t, err, domain.ErrImmutableEntry)

	err = db.Delete(&entry).Error
	assert.ErrorIs(t, err, domain.ErrImmutableEntry)

	var count int64
	require.NoError(t, db.Model(&domain.AuditLog{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestVerifyTenantLedger(t *testing.T) {
	db, svc, _, _ := setupTest(t)
	ctx := context.Background()

	tenantID := snowflake.ID(101)
	for i := 0; i < 5; i++ {
		record(t, svc, tenantID, 7, "session.create")
	}
	tamperedID := record(t, svc, tenantID, 7, "session.create")
	blankID := record(t, svc, tenantID, 7, "session.create")

	require.NoError(t, db.Exec(
		`UPDATE audit_logs SET target_ref = 'other' WHERE id = ?`, tamperedID,
	).Error)
	require.NoError(t, db.Exec(
		`UPDATE audit_logs SET hash = '' WHERE id = ?`, blankID,
	).Error)

	// Another tenant's entries must not leak into the report.
	record(t, svc, 202, 7, "session.create")

	report, err := svc.VerifyTenantLedger(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), report.Total)
	assert.Equal(t, int64(5), report.Valid)
	assert.Equal(t, int64(1), report.Invalid)
	assert.Equal(t, int64(1), report.MissingHash)
}

func TestListFiltersAndPaginates(t *testing.T) {
	_, svc, _, fake := setupTest(t)
	ctx := context.Background()

	tenantID := snowflake.ID(101)
	for i := 0; i < 3; i++ {
		record(t, svc, tenantID, 7, "session.create")
		fake.Advance(time.Minute)
	}
	record(t, svc, tenantID, 7, "member.invite")

	byAction, err := svc.List(ctx, tenantID, domain.ListRequest{Action: "member.invite"})
	require.NoError(t, err)
	assert.Len(t, byAction.Entries, 1)

	first, err := svc.List(ctx, tenantID, listPage("", 2))
	require.NoError(t, err)
	require.Len(t, first.Entries, 2)
	assert.True(t, first.HasMore)

	second, err := svc.List(ctx, tenantID, listPage(first.NextPageToken, 2))
	require.NoError(t, err)
	require.Len(t, second.Entries, 2)
	assert.False(t, second.HasMore)

	// Descending order, no overlap between pages.
	assert.True(t, first.Entries[0].CreatedAt.After(second.Entries[1].CreatedAt))
	for _, a := range first.Entries {
		for _, b := range second.Entries {
			assert.NotEqual(t, a.ID, b.ID)
		}
	}

	_, err = svc.List(ctx, tenantID, listPage("not-base64!", 2))
	assert.ErrorIs(t, err, domain.ErrInvalidPageToken)
}

func listPage(token string, size int) domain.ListRequest {
	req := domain.ListRequest{}
	req.PageToken = token
	req.PageSize = size
	return req
}

func TestPurgeBeforeIsScopedAndBounded(t *testing.T) {
	_, svc, repo, fake := setupTest(t)
	ctx := context.Background()

	tenantID := snowflake.ID(101)
	record(t, svc, tenantID, 7, "session.create")
	record(t, svc, 202, 7, "session.create")

	fake.Advance(48 * time.Hour)
	keptID := record(t, svc, tenantID, 7, "session.create")

	purged, err := repo.PurgeBefore(ctx, tenantID, fake.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	_, err = svc.VerifyEntry(ctx, tenantID, keptID)
	assert.NoError(t, err)

	// Other tenant untouched.
	report, err := svc.VerifyTenantLedger(ctx, 202)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Total)
}
