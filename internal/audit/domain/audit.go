package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeSystem ActorType = "system"
)

// AuditLog is the persisted form of an Event.
type AuditLog struct {
	ID         snowflake.ID      `json:"id" gorm:"primaryKey"`
	OrgID      snowflake.ID      `json:"org_id" gorm:"column:org_id;not null;index"`
	EventID    string            `json:"event_id" gorm:"column:event_id;type:varchar(26);not null;uniqueIndex"`
	ActorType  string            `json:"actor_type" gorm:"type:varchar(32);not null"`
	ActorID    *string           `json:"actor_id,omitempty" gorm:"type:varchar(255)"`
	Action     string            `json:"action" gorm:"type:varchar(64);not null;index"`
	TargetType string            `json:"target_type" gorm:"type:varchar(64);not null"`
	TargetID   *string           `json:"target_id,omitempty" gorm:"type:varchar(64);index"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt  time.Time         `json:"created_at" gorm:"not null"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// Event describes a committed state change. Before and After hold the
// relevant entity state around the change; either may be nil.
type Event struct {
	ID         string         `json:"id"`
	OrgID      snowflake.ID   `json:"org_id"`
	Action     string         `json:"action"`
	TargetType string         `json:"target_type"`
	TargetID   string         `json:"target_id"`
	Actor      string         `json:"actor,omitempty"`
	Before     map[string]any `json:"before,omitempty"`
	After      map[string]any `json:"after,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// NewEvent stamps a new event with a sortable identifier.
func NewEvent(orgID snowflake.ID, action, targetType string, targetID snowflake.ID, actor string, at time.Time) Event {
	return Event{
		ID:         ulid.Make().String(),
		OrgID:      orgID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID.String(),
		Actor:      actor,
		OccurredAt: at.UTC(),
	}
}

// Emitter delivers events to a sink. Callers emit after their transaction
// commits and treat failures as non-fatal.
type Emitter interface {
	Emit(ctx context.Context, evt Event) error
}

type ListFilter struct {
	OrgID      snowflake.ID
	Action     string
	TargetType string
	TargetID   string
	Limit      int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}

type Service interface {
	Emitter
	List(ctx context.Context, filter ListFilter) ([]AuditLog, error)
}

const (
	ActionTariffCreated        = "tariff_created"
	ActionTariffVersionCreated = "tariff_version_created"
	ActionReadingRecorded      = "meter_reading_recorded"
	ActionReadingCorrected     = "meter_reading_corrected"
	ActionServiceAssigned      = "utility_service_assigned"
	ActionServiceDeactivated   = "utility_service_deactivated"
	ActionInvoiceGenerated     = "invoice_generated"
	ActionInvoiceFinalized     = "invoice_finalized"
)

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidAction       = errors.New("invalid_action")
)
