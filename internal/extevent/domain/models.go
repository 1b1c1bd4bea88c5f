// Package domain contains the processed-event marker used to apply
// externally delivered events exactly once.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ProcessedEvent marks an external event as applied. The unique event id is
// the dedup key: a row existing means the event's side effects already ran.
type ProcessedEvent struct {
	ID          snowflake.ID   `gorm:"primaryKey"`
	EventID     string         `gorm:"type:text;not null;uniqueIndex:ux_processed_event"`
	EventType   string         `gorm:"type:text;not null"`
	Payload     datatypes.JSON `json:"payload,omitempty"`
	ProcessedAt time.Time      `gorm:"not null"`
}

// TableName sets the database table name.
func (ProcessedEvent) TableName() string { return "processed_external_events" }

// Handler applies an event's side effects inside the dedup transaction.
// Returning an error rolls back both the side effects and the marker row, so
// a failed delivery can be retried.
type Handler func(ctx context.Context, tx *gorm.DB) error

// Service guards external event processing.
type Service interface {
	// Process inserts the dedup marker and runs handler in one transaction.
	// It reports alreadyProcessed=true, with no handler call, when the event
	// id was seen before.
	Process(ctx context.Context, eventID, eventType string, payload []byte, handler Handler) (alreadyProcessed bool, err error)
}

var (
	ErrInvalidEventID = errors.New("invalid_event_id")
	ErrInvalidHandler = errors.New("invalid_handler")
)
