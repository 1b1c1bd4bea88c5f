// Package domain contains persistence models for tenants and membership.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Tenant is the unit of isolation: all usage, audit and membership records
// are scoped to one tenant.
type Tenant struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Tier      string       `gorm:"type:text;not null;default:'free'" json:"tier"`
	Timezone  string       `gorm:"type:text;not null;default:'UTC'" json:"timezone"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Tenant) TableName() string { return "tenants" }

// Member represents membership of a user in a tenant.
//
// OwnerKey is set to the tenant ID on the owner row and NULL everywhere else;
// the unique index on it makes "exactly one owner per tenant" a storage-level
// invariant rather than an application convention.
type Member struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID  snowflake.ID `gorm:"not null;index;uniqueIndex:ux_tenant_member,priority:1" json:"tenant_id"`
	UserID    snowflake.ID `gorm:"not null;index;uniqueIndex:ux_tenant_member,priority:2" json:"user_id"`
	Role      string       `gorm:"type:text;not null" json:"role"`
	OwnerKey  *string      `gorm:"type:text;uniqueIndex:ux_tenant_owner" json:"-"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Member) TableName() string { return "tenant_members" }

// Invitation tracks a pending invite to a tenant. Invitations can never grant
// ownership: an owner target role is downgraded to admin on acceptance.
type Invitation struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID   snowflake.ID `gorm:"not null;index" json:"tenant_id"`
	Token      string       `gorm:"type:text;not null;uniqueIndex" json:"token"`
	Email      string       `gorm:"type:text;not null" json:"email"`
	Role       string       `gorm:"type:text;not null" json:"role"`
	Status     string       `gorm:"type:text;not null" json:"status"`
	InvitedBy  snowflake.ID `gorm:"column:invited_by;not null" json:"invited_by"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	AcceptedAt *time.Time   `json:"accepted_at,omitempty"`
}

// TableName sets the database table name.
func (Invitation) TableName() string { return "tenant_invitations" }

const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

const (
	InviteStatusPending  = "pending"
	InviteStatusAccepted = "accepted"
	InviteStatusRevoked  = "revoked"
)

// OwnerKeyFor returns the owner-key value for a tenant's owner row.
func OwnerKeyFor(tenantID snowflake.ID) *string {
	key := tenantID.String()
	return &key
}

// ValidMemberRole reports whether role is an assignable membership role.
func ValidMemberRole(role string) bool {
	switch role {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	default:
		return false
	}
}
