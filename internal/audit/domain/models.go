// Package domain contains the append-only audit ledger model and its
// content-hash integrity scheme.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLog is an immutable record of a tenant-scoped action. The hash is
// computed over the canonical field concatenation at insert time; any later
// mutation is detectable by recomputation.
type AuditLog struct {
	ID          snowflake.ID   `gorm:"primaryKey" json:"id"`
	TenantID    snowflake.ID   `gorm:"not null;index" json:"tenant_id"`
	ActorID     snowflake.ID   `gorm:"not null" json:"actor_id"`
	Action      string         `gorm:"type:text;not null" json:"action"`
	TargetRef   string         `gorm:"type:text;not null" json:"target_ref"`
	Description string         `gorm:"type:text" json:"description"`
	Before      datatypes.JSON `json:"before,omitempty"`
	After       datatypes.JSON `json:"after,omitempty"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
	Hash        string         `gorm:"type:text;not null" json:"hash"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }

// BeforeUpdate rejects every update: entries are immutable after insert.
func (AuditLog) BeforeUpdate(*gorm.DB) error { return ErrImmutableEntry }

// BeforeDelete rejects ordinary deletes. Retention purges go through the
// privileged repository path, which does not touch the model.
func (AuditLog) BeforeDelete(*gorm.DB) error { return ErrImmutableEntry }

// hashSeparator joins the canonical fields. A control character keeps field
// boundaries unambiguous regardless of content.
const hashSeparator = "\x1f"

// ComputeHash digests the immutable fields in fixed order:
// id, tenant, action, target ref, description, actor, timestamp.
func ComputeHash(entry *AuditLog) string {
	parts := []string{
		entry.ID.String(),
		entry.TenantID.String(),
		entry.Action,
		entry.TargetRef,
		entry.Description,
		entry.ActorID.String(),
		entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, hashSeparator)))
	return hex.EncodeToString(sum[:])
}

// Action tags are open strings with a validated namespace prefix
// ("<namespace>.<operation>"), so new operation types need no schema change.
var actionPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*\.[a-z][a-z0-9_.]*$`)

// ValidAction reports whether the action tag carries a namespace prefix.
func ValidAction(action string) bool {
	return actionPattern.MatchString(action)
}
