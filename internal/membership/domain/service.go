package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateTenantRequest struct {
	Name        string `json:"name"`
	Tier        string `json:"tier"`
	Timezone    string `json:"timezone"`
	OwnerUserID string `json:"owner_user_id"`
}

type TenantResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Tier     string `json:"tier"`
	Timezone string `json:"timezone"`
}

type InviteRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Service enforces the membership invariants for every entry point: direct
// tenant creation, invitation acceptance and explicit ownership transfer.
type Service interface {
	CreateTenant(ctx context.Context, req CreateTenantRequest) (*TenantResponse, error)
	GetTenant(ctx context.Context, tenantID snowflake.ID) (*Tenant, error)
	InviteMember(ctx context.Context, tenantID, callerID snowflake.ID, req InviteRequest) (*Invitation, error)
	AcceptInvitation(ctx context.Context, token string, userID snowflake.ID) (*Member, error)
	TransferOwnership(ctx context.Context, tenantID, callerID, newOwnerID snowflake.ID) error
	Role(ctx context.Context, tenantID, userID snowflake.ID) (string, error)
}

var (
	ErrInvalidTenant        = errors.New("invalid_tenant")
	ErrInvalidName          = errors.New("invalid_name")
	ErrInvalidUser          = errors.New("invalid_user")
	ErrInvalidRole          = errors.New("invalid_role")
	ErrInvalidTier          = errors.New("invalid_tier")
	ErrInvalidTimezone      = errors.New("invalid_timezone")
	ErrInvalidInvitation    = errors.New("invalid_invitation")
	ErrInvitationNotPending = errors.New("invitation_not_pending")
	ErrAlreadyMember        = errors.New("already_member")
	ErrNotAMember           = errors.New("not_a_member")
	ErrAccessDenied         = errors.New("access_denied")
	ErrOwnerConflict        = errors.New("owner_conflict")
)
