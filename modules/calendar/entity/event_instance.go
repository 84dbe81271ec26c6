package entity

import (
	"time"

	"github.com/google/uuid"
)

// EventInstance is one materialized occurrence of a recurring Event. The
// instance set is a derived cache: it is always rebuilt wholesale when the
// owning event's rule or anchor changes, never patched incrementally.
type EventInstance struct {
	ID              uuid.UUID `db:"id" json:"id"`
	EventID         uuid.UUID `db:"event_id" json:"event_id"`
	InstanceStartTS time.Time `db:"instance_start_ts" json:"instance_start_ts"`
	InstanceEndTS   time.Time `db:"instance_end_ts" json:"instance_end_ts"`
	OriginalStartTS time.Time `db:"original_start_ts" json:"original_start_ts"`
	Status          string    `db:"status" json:"status"`
	IsException     bool      `db:"is_exception" json:"is_exception"`
}

func (EventInstance) TableName() string {
	return "event_instances"
}
