package dto

import (
	"encoding/json"
)

// Sync run statuses.
const (
	SyncStatusCompleted = "completed"
	SyncStatusError     = "error"
	SyncStatusStarted   = "started"
)

// SyncResult reports one delta-sync run for one calendar.
type SyncResult struct {
	Status       string `json:"status"`
	EventsSynced int    `json:"events_synced"`
	Error        string `json:"error,omitempty"`
}

// SyncNowRequest triggers a sync pass.
type SyncNowRequest struct {
	InitialBackfill bool `json:"initial_backfill"`
	ForceFull       bool `json:"force_full"`
	Foreground      bool `json:"foreground"`
}

// SyncNowResponse acknowledges a triggered sync.
type SyncNowResponse struct {
	Status       string `json:"status"`
	Message      string `json:"message"`
	EventsSynced int    `json:"events_synced,omitempty"`
}

// SyncStatusEntry is the per-calendar projection of SyncState.
type SyncStatusEntry struct {
	CalendarID     string  `json:"calendar_id"`
	Summary        string  `json:"summary"`
	LastFullSync   *string `json:"last_full_sync_at,omitempty"`
	LastDeltaSync  *string `json:"last_delta_sync_at,omitempty"`
	CoverageBefore *string `json:"coverage_before,omitempty"`
	CoverageAfter  *string `json:"coverage_after,omitempty"`
	IsSyncing      bool    `json:"is_syncing"`
	LastError      *string `json:"last_error,omitempty"`
}

// LocalEvent is one row of the mirrored read path: either a non-recurring
// event or one materialized occurrence of a recurring series.
type LocalEvent struct {
	ID             string          `json:"id"`
	CalendarID     string          `json:"calendar_id"`
	ExternalID     string          `json:"external_id"`
	Summary        *string         `json:"summary,omitempty"`
	Description    *string         `json:"description,omitempty"`
	Location       *string         `json:"location,omitempty"`
	HangoutLink    *string         `json:"hangout_link,omitempty"`
	Start          string          `json:"start"` // RFC3339
	End            string          `json:"end"`   // RFC3339
	IsAllDay       bool            `json:"is_all_day"`
	Status         string          `json:"status"`
	IsRecurring    bool            `json:"is_recurring"`
	RecurrenceRule *string         `json:"recurrence_rule,omitempty"`
	OrganizerEmail *string         `json:"organizer_email,omitempty"`
	Attendees      json.RawMessage `json:"attendees,omitempty"`
}

// RangeCoverage tells the caller whether the requested range runs past what
// backfill has populated.
type RangeCoverage struct {
	HasBefore bool `json:"has_before"`
	HasAfter  bool `json:"has_after"`
}

// LocalEventsResponse is the mirror read-path payload.
type LocalEventsResponse struct {
	Events       []LocalEvent  `json:"events"`
	Coverage     RangeCoverage `json:"coverage"`
	LastSyncedAt *string       `json:"last_synced_at,omitempty"`
}

// WriteEventRequest wraps a raw provider event payload for the proxy
// create/update/patch endpoints.
type WriteEventRequest struct {
	CalendarID        string         `json:"calendar_id"`
	EventData         map[string]any `json:"event_data"`
	SendNotifications bool           `json:"send_notifications"`
}

// RespondRequest answers an invitation.
type RespondRequest struct {
	CalendarID     string `json:"calendar_id"`
	ResponseStatus string `json:"response_status"`
}

// ConnectedCalendarResponse is the stored-calendar listing item.
type ConnectedCalendarResponse struct {
	ID                 string `json:"id"`
	ProviderCalendarID string `json:"provider_calendar_id"`
	Summary            string `json:"summary"`
	Color              string `json:"color"`
	AccessRole         string `json:"access_role"`
	Selected           bool   `json:"selected"`
}
