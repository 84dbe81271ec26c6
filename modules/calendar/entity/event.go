package entity

import (
	"encoding/json"
	"time"

	"chronos-server/core/entity"

	"github.com/google/uuid"
)

// Event statuses as the provider reports them.
const (
	StatusConfirmed = "confirmed"
	StatusTentative = "tentative"
	StatusCancelled = "cancelled"
)

const SourceGoogle = "google"

// Event is the canonical local mirror of one remote event: the series master
// for recurring events, or a plain single event. Unique per (user, calendar,
// external id); upserts replace every mutable field. Cancellation soft-deletes
// (deleted_at + status) rather than removing the row.
type Event struct {
	entity.BaseEntity
	UserID           uuid.UUID       `db:"user_id" json:"user_id"`
	CalendarID       uuid.UUID       `db:"calendar_id" json:"calendar_id"`
	ExternalID       string          `db:"external_id" json:"external_id"`
	Etag             *string         `db:"etag" json:"etag,omitempty"`
	Status           string          `db:"status" json:"status"`
	Summary          *string         `db:"summary" json:"summary,omitempty"`
	Description      *string         `db:"description" json:"description,omitempty"`
	Location         *string         `db:"location" json:"location,omitempty"`
	HangoutLink      *string         `db:"hangout_link" json:"hangout_link,omitempty"`
	ConferenceData   json.RawMessage `db:"conference_data" json:"conference_data,omitempty"`
	StartTS          time.Time       `db:"start_ts" json:"start_ts"`
	EndTS            time.Time       `db:"end_ts" json:"end_ts"`
	IsAllDay         bool            `db:"is_all_day" json:"is_all_day"`
	Transparency     string          `db:"transparency" json:"transparency"`
	Visibility       string          `db:"visibility" json:"visibility"`
	RecurrenceRule   *string         `db:"recurrence_rule" json:"recurrence_rule,omitempty"`
	RecurringEventID *string         `db:"recurring_event_id" json:"recurring_event_id,omitempty"`
	OrganizerEmail   *string         `db:"organizer_email" json:"organizer_email,omitempty"`
	Attendees        json.RawMessage `db:"attendees" json:"attendees,omitempty"`
	ExtendedProps    json.RawMessage `db:"extended_props" json:"extended_props,omitempty"`
	Source           string          `db:"source" json:"source"`
	LastSyncedAt     time.Time       `db:"last_synced_at" json:"last_synced_at"`
	LastModifiedAt   time.Time       `db:"last_modified_at" json:"last_modified_at"`
	DeletedAt        *time.Time      `db:"deleted_at" json:"deleted_at,omitempty"`
}

func (Event) TableName() string {
	return "events"
}

// IsRecurring reports whether the event carries a recurrence rule.
func (e *Event) IsRecurring() bool {
	return e.RecurrenceRule != nil && *e.RecurrenceRule != ""
}

// Duration is the master's span, applied to every materialized occurrence.
func (e *Event) Duration() time.Duration {
	return e.EndTS.Sub(e.StartTS)
}
