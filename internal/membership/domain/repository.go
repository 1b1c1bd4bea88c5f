package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the storage surface for membership. Mutations that must be
// atomic run inside a transaction via WithTx.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateTenant(ctx context.Context, tenant Tenant) error
	FindTenant(ctx context.Context, tenantID snowflake.ID) (*Tenant, error)

	AddMember(ctx context.Context, member Member) error
	FindMember(ctx context.Context, tenantID, userID snowflake.ID) (*Member, error)
	FindOwner(ctx context.Context, tenantID snowflake.ID) (*Member, error)
	// DemoteOwner moves the owner row to admin. It affects zero rows if the
	// row is no longer the owner, which callers must treat as a conflict.
	DemoteOwner(ctx context.Context, memberID snowflake.ID) (int64, error)
	// PromoteToOwner moves a member row to owner, setting the owner key the
	// uniqueness constraint guards.
	PromoteToOwner(ctx context.Context, memberID, tenantID snowflake.ID) (int64, error)

	CreateInvitation(ctx context.Context, invite Invitation) error
	FindInvitationByToken(ctx context.Context, token string) (*Invitation, error)
	// MarkInvitationAccepted transitions pending -> accepted; zero rows
	// affected means the invitation was already consumed.
	MarkInvitationAccepted(ctx context.Context, inviteID snowflake.ID) (int64, error)
}
