package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/quorumdesk/panelgate/internal/membership/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func New(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) CreateTenant(ctx context.Context, tenant domain.Tenant) error {
	return r.db.WithContext(ctx).Create(&tenant).Error
}

func (r *repository) FindTenant(ctx context.Context, tenantID snowflake.ID) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := r.db.WithContext(ctx).First(&tenant, "id = ?", tenantID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tenant, nil
}

func (r *repository) AddMember(ctx context.Context, member domain.Member) error {
	return r.db.WithContext(ctx).Create(&member).Error
}

func (r *repository) FindMember(ctx context.Context, tenantID, userID snowflake.ID) (*domain.Member, error) {
	var member domain.Member
	err := r.db.WithContext(ctx).
		First(&member, "tenant_id = ? AND user_id = ?", tenantID, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &member, nil
}

func (r *repository) FindOwner(ctx context.Context, tenantID snowflake.ID) (*domain.Member, error) {
	var member domain.Member
	err := r.db.WithContext(ctx).
		First(&member, "tenant_id = ? AND role = ?", tenantID, domain.RoleOwner).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &member, nil
}

func (r *repository) DemoteOwner(ctx context.Context, memberID snowflake.ID) (int64, error) {
	result := r.db.WithContext(ctx).Exec(
		`UPDATE tenant_members
		 SET role = ?, owner_key = NULL, updated_at = ?
		 WHERE id = ? AND role = ?`,
		domain.RoleAdmin,
		time.Now().UTC(),
		memberID,
		domain.RoleOwner,
	)
	return result.RowsAffected, result.Error
}

func (r *repository) PromoteToOwner(ctx context.Context, memberID, tenantID snowflake.ID) (int64, error) {
	result := r.db.WithContext(ctx).Exec(
		`UPDATE tenant_members
		 SET role = ?, owner_key = ?, updated_at = ?
		 WHERE id = ? AND role <> ?`,
		domain.RoleOwner,
		tenantID.String(),
		time.Now().UTC(),
		memberID,
		domain.RoleOwner,
	)
	return result.RowsAffected, result.Error
}

func (r *repository) CreateInvitation(ctx context.Context, invite domain.Invitation) error {
	return r.db.WithContext(ctx).Create(&invite).Error
}

func (r *repository) FindInvitationByToken(ctx context.Context, token string) (*domain.Invitation, error) {
	var invite domain.Invitation
	err := r.db.WithContext(ctx).First(&invite, "token = ?", token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &invite, nil
}

func (r *repository) MarkInvitationAccepted(ctx context.Context, inviteID snowflake.ID) (int64, error) {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).Exec(
		`UPDATE tenant_invitations
		 SET status = ?, accepted_at = ?
		 WHERE id = ? AND status = ?`,
		domain.InviteStatusAccepted,
		now,
		inviteID,
		domain.InviteStatusPending,
	)
	return result.RowsAffected, result.Error
}
