package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/quorumdesk/panelgate/internal/membership/domain"
	"github.com/quorumdesk/panelgate/internal/membership/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTest(t *testing.T) (*gorm.DB, domain.Service, domain.Repository) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&domain.Tenant{},
		&domain.Member{},
		&domain.Invitation{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	repo := repository.New(db)
	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repo,
	})
	return db, svc, repo
}

func createTenant(t *testing.T, svc domain.Service, ownerID snowflake.ID) snowflake.ID {
	t.Helper()
	resp, err := svc.CreateTenant(context.Background(), domain.CreateTenantRequest{
		Name:        "acme",
		OwnerUserID: ownerID.String(),
	})
	require.NoError(t, err)
	tenantID, err := snowflake.ParseString(resp.ID)
	require.NoError(t, err)
	return tenantID
}

func TestCreateTenantCreatesSoleOwner(t *testing.T) {
	db, svc, _ := setupTest(t)

	ownerID := snowflake.ID(7)
	tenantID := createTenant(t, svc, ownerID)

	var members []domain.Member
	require.NoError(t, db.Find(&members, "tenant_id = ?", tenantID).Error)
	require.Len(t, members, 1)
	assert.Equal(t, domain.RoleOwner, members[0].Role)
	assert.Equal(t, ownerID, members[0].UserID)
	require.NotNil(t, members[0].OwnerKey)
	assert.Equal(t, tenantID.String(), *members[0].OwnerKey)
}

func TestCreateTenantValidation(t *testing.T) {
	_, svc, _ := setupTest(t)
	ctx := context.Background()

	_, err := svc.CreateTenant(ctx, domain.CreateTenantRequest{OwnerUserID: "7"})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = svc.CreateTenant(ctx, domain.CreateTenantRequest{Name: "acme"})
	assert.ErrorIs(t, err, domain.ErrInvalidUser)

	_, err = svc.CreateTenant(ctx, domain.CreateTenantRequest{
		Name: "acme", OwnerUserID: "7", Timezone: "Not/AZone",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTimezone)
}

func TestSecondOwnerRowIsStructurallyImpossible(t *testing.T) {
	db, svc, _ := setupTest(t)

	ownerID := snowflake.ID(7)
	tenantID := createTenant(t, svc, ownerID)

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	// Writing a second owner row directly trips the unique owner key.
	err = db.Create(&domain.Member{
		ID:       node.Generate(),
		TenantID: tenantID,
		UserID:   snowflake.ID(8),
		Role:     domain.RoleOwner,
		OwnerKey: domain.OwnerKeyFor(tenantID),
	}).Error
	require.Error(t, err)
}

func TestInvitationNeverGrantsOwnership(t *testing.T) {
	_, svc, _ := setupTest(t)
	ctx := context.Background()

	ownerID := snowflake.ID(7)
	tenantID := createTenant(t, svc, ownerID)

	invite, err := svc.InviteMember(ctx, tenantID, ownerID, domain.InviteRequest{
		Email: "new@example.com",
		Role:  domain.RoleOwner,
	})
	require.NoError(t, err)

	member, err := svc.AcceptInvitation(ctx, invite.Token, snowflake.ID(8))
	require.NoError(t, err)
	// Owner target role downgrades to admin on acceptance.
	assert.Equal(t, domain.RoleAdmin, member.Role)

	owner, err := svc.Role(ctx, tenantID, ownerID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOwner, owner)
}

func TestAcceptInvitationIsSingleUse(t *testing.T) {
	_, svc, _ := setupTest(t)
	ctx := context.Background()

	ownerID := snowflake.ID(7)
	tenantID := createTenant(t, svc, ownerID)

	invite, err := svc.InviteMember(ctx, tenantID, ownerID, domain.InviteRequest{
		Email: "new@example.com",
		Role:  domain.RoleMember,
	})
	require.NoError(t, err)

	_, err = svc.AcceptInvitation(ctx, invite.Token, snowflake.ID(8))
	require.NoError(t, err)

	_, err = svc.AcceptInvitation(ctx, invite.Token, snowflake.ID(9))
	assert.ErrorIs(t, err, domain.ErrInvitationNotPending)

	_, err = svc.AcceptInvitation(ctx, "no-such-token", snowflake.ID(9))
	assert.ErrorIs(t, err, domain.ErrInvalidInvitation)
}

func TestInviteMemberRequiresOwnerOrAdmin(t *testing.T) {
	_, svc, _ := setupTest(t)
	ctx := context.Background()

	ownerID := snowflake.ID(7)
	tenantID := createTenant(t, svc, ownerID)

	invite, err := svc.InviteMember(ctx, tenantID, ownerID, domain.InviteRequest{
		Email: "member@example.com",
		Role:  domain.RoleMember,
	})
	require.NoError(t, err)
	memberUser := snowflake.ID(8)
	_, err = svc.AcceptInvitation(ctx, invite.Token, memberUser)
	require.NoError(t, err)

	_, err = svc.InviteMember(ctx, tenantID, memberUser, domain.InviteRequest{
		Email: "other@example.com",
		Role:  domain.RoleMember,
	})
	assert.ErrorIs(t, err, domain.ErrAccessDenied)

	_, err = svc.InviteMember(ctx, tenantID, snowflake.ID(999), domain.InviteRequest{
		Email: "other@example.com",
		Role:  domain.RoleMember,
	})
	assert.ErrorIs(t, err, domain.ErrAccessDenied)
}

func TestTransferOwnership(t *testing.T) {
	_, svc, _ := setupTest(t)
	ctx := context.Background()

	ownerID := snowflake.ID(7)
	newOwnerID := snowflake.ID(8)
	tenantID := createTenant(t, svc, ownerID)

	invite, err := svc.InviteMember(ctx, tenantID, ownerID, domain.InviteRequest{
		Email: "new@example.com",
		Role:  domain.RoleMember,
	})
	require.NoError(t, err)
	_, err = svc.AcceptInvitation(ctx, invite.Token, newOwnerID)
	require.NoError(t, err)

	require.NoError(t, svc.TransferOwnership(ctx, tenantID, ownerID, newOwnerID))

	oldRole, err := svc.Role(ctx, tenantID, ownerID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, oldRole)

	newRole, err := svc.Role(ctx, tenantID, newOwnerID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOwner, newRole)

	// The old owner lost the privilege; a second transfer by them fails.
	err = svc.TransferOwnership(ctx, tenantID, ownerID, snowflake.ID(9))
	assert.ErrorIs(t, err, domain.ErrAccessDenied)
}

func TestTransferOwnershipGuards(t *testing.T) {
	_, svc, _ := setupTest(t)
	ctx := context.Background()

	ownerID := snowflake.ID(7)
	tenantID := createTenant(t, svc, ownerID)

	// Target must already be a member.
	err := svc.TransferOwnership(ctx, tenantID, ownerID, snowflake.ID(42))
	assert.ErrorIs(t, err, domain.ErrNotAMember)

	// Self-transfer is a no-op.
	require.NoError(t, svc.TransferOwnership(ctx, tenantID, ownerID, ownerID))
	role, err := svc.Role(ctx, tenantID, ownerID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOwner, role)

	// Non-owner callers are denied.
	err = svc.TransferOwnership(ctx, tenantID, snowflake.ID(42), ownerID)
	assert.ErrorIs(t, err, domain.ErrAccessDenied)

	// A self-transfer does not bypass the ownership check: a plain member
	// naming themselves as target is denied, and so is an outsider.
	invite, err := svc.InviteMember(ctx, tenantID, ownerID, domain.InviteRequest{
		Email: "member@example.com",
		Role:  domain.RoleMember,
	})
	require.NoError(t, err)
	_, err = svc.AcceptInvitation(ctx, invite.Token, snowflake.ID(9))
	require.NoError(t, err)

	err = svc.TransferOwnership(ctx, tenantID, snowflake.ID(9), snowflake.ID(9))
	assert.ErrorIs(t, err, domain.ErrAccessDenied)
	err = svc.TransferOwnership(ctx, tenantID, snowflake.ID(42), snowflake.ID(42))
	assert.ErrorIs(t, err, domain.ErrAccessDenied)

	role, err = svc.Role(ctx, tenantID, ownerID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOwner, role)
}

func TestConcurrentTransfersHaveOneWinner(t *testing.T) {
	db, svc, _ := setupTest(t)
	ctx := context.Background()

	ownerID := snowflake.ID(7)
	tenantID := createTenant(t, svc, ownerID)

	targets := []snowflake.ID{8, 9}
	for i, target := range targets {
		invite, err := svc.InviteMember(ctx, tenantID, ownerID, domain.InviteRequest{
			Email: fmt.Sprintf("user%d@example.com", i),
			Role:  domain.RoleMember,
		})
		require.NoError(t, err)
		_, err = svc.AcceptInvitation(ctx, invite.Token, target)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	results := make(chan error, len(targets))
	for _, target := range targets {
		wg.Add(1)
		go func(target snowflake.ID) {
			defer wg.Done()
			results <- svc.TransferOwnership(ctx, tenantID, ownerID, target)
		}(target)
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			// The loser either sees the new owner or loses the demote race.
			losable := errors.Is(err, domain.ErrAccessDenied) || errors.Is(err, domain.ErrOwnerConflict)
			assert.True(t, losable, "unexpected transfer error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)

	// Exactly one owner row remains whatever the interleaving.
	var owners int64
	require.NoError(t, db.Model(&domain.Member{}).
		Where("tenant_id = ? AND role = ?", tenantID, domain.RoleOwner).
		Count(&owners).Error)
	assert.Equal(t, int64(1), owners)
}
