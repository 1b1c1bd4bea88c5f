package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/quorumdesk/panelgate/internal/clock"
	"github.com/quorumdesk/panelgate/internal/extevent/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type creditGrant struct {
	ID      snowflake.ID `gorm:"primaryKey"`
	EventID string       `gorm:"type:text;not null"`
	Amount  int64        `gorm:"not null"`
}

func (creditGrant) TableName() string { return "credit_grants" }

func setupTest(t *testing.T) (*gorm.DB, domain.Service) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&domain.ProcessedEvent{}, &creditGrant{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, time.March, 14, 15, 0, 0, 0, time.UTC)),
	})
	return db, svc
}

func grantHandler(db *gorm.DB, node *snowflake.Node, eventID string) domain.Handler {
	return func(ctx context.Context, tx *gorm.DB) error {
		return tx.Create(&creditGrant{ID: node.Generate(), EventID: eventID, Amount: 100}).Error
	}
}

func TestProcessRunsHandlerOnce(t *testing.T) {
	db, svc := setupTest(t)
	ctx := context.Background()

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	payload := []byte(`{"credits":100}`)
	handler := grantHandler(db, node, "evt_123")

	dup, err := svc.Process(ctx, "evt_123", "billing.credit_granted", payload, handler)
	require.NoError(t, err)
	assert.False(t, dup)

	// Redelivery of the same event id is a no-op.
	for i := 0; i < 3; i++ {
		dup, err = svc.Process(ctx, "evt_123", "billing.credit_granted", payload, handler)
		require.NoError(t, err)
		assert.True(t, dup)
	}

	var grants int64
	require.NoError(t, db.Model(&creditGrant{}).Count(&grants).Error)
	assert.Equal(t, int64(1), grants)
}

func TestProcessRollsBackMarkerOnHandlerFailure(t *testing.T) {
	db, svc := setupTest(t)
	ctx := context.Background()

	handlerErr := errors.New("provider unavailable")
	failing := func(ctx context.Context, tx *gorm.DB) error { return handlerErr }

	_, err := svc.Process(ctx, "evt_456", "billing.credit_granted", nil, failing)
	assert.ErrorIs(t, err, handlerErr)

	var markers int64
	require.NoError(t, db.Model(&domain.ProcessedEvent{}).Count(&markers).Error)
	assert.Equal(t, int64(0), markers)

	// The failed delivery can be retried and succeed.
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	dup, err := svc.Process(ctx, "evt_456", "billing.credit_granted", nil, grantHandler(db, node, "evt_456"))
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestProcessValidatesInput(t *testing.T) {
	_, svc := setupTest(t)
	ctx := context.Background()

	_, err := svc.Process(ctx, "", "billing.credit_granted", nil, func(context.Context, *gorm.DB) error { return nil })
	assert.ErrorIs(t, err, domain.ErrInvalidEventID)

	_, err = svc.Process(ctx, "evt_789", "billing.credit_granted", nil, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidHandler)
}

func TestDistinctEventIDsBothApply(t *testing.T) {
	db, svc := setupTest(t)
	ctx := context.Background()

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	for _, id := range []string{"evt_a", "evt_b"} {
		dup, err := svc.Process(ctx, id, "billing.credit_granted", nil, grantHandler(db, node, id))
		require.NoError(t, err)
		assert.False(t, dup)
	}

	var grants int64
	require.NoError(t, db.Model(&creditGrant{}).Count(&grants).Error)
	assert.Equal(t, int64(2), grants)
}
