package mapper

import (
	"encoding/json"
	"strings"
	"time"

	"chronos-server/core/errors"
	"chronos-server/modules/calendar/dto"
	"chronos-server/modules/calendar/entity"

	"github.com/google/uuid"
)

// NormalizeEvent converts a remote event document into the canonical local
// record. Pure: no I/O, no side effects; the only non-determinism is the
// embedded last-synced wall-clock timestamp. Returns ErrInvalidInput when a
// required boundary is missing or unparseable.
func NormalizeEvent(remote *dto.RemoteEvent, calendarID, userID uuid.UUID) (*entity.Event, *errors.AppError) {
	startTS, endTS, isAllDay, appErr := parseEventBoundaries(remote)
	if appErr != nil {
		return nil, appErr
	}

	now := time.Now().UTC()

	event := &entity.Event{
		UserID:       userID,
		CalendarID:   calendarID,
		ExternalID:   remote.ID,
		Status:       defaultString(remote.Status, entity.StatusConfirmed),
		StartTS:      startTS,
		EndTS:        endTS,
		IsAllDay:     isAllDay,
		Transparency: defaultString(remote.Transparency, "opaque"),
		Visibility:   defaultString(remote.Visibility, "default"),
		Source:       entity.SourceGoogle,
		LastSyncedAt: now,
	}

	if remote.Etag != "" {
		event.Etag = strPtr(remote.Etag)
	}
	if remote.Summary != "" {
		event.Summary = strPtr(remote.Summary)
	}
	if remote.Description != "" {
		event.Description = strPtr(remote.Description)
	}
	if remote.Location != "" {
		event.Location = strPtr(remote.Location)
	}
	if remote.RecurringEventID != "" {
		event.RecurringEventID = strPtr(remote.RecurringEventID)
	}
	if remote.Organizer != nil && remote.Organizer.Email != "" {
		event.OrganizerEmail = strPtr(remote.Organizer.Email)
	}

	// Only the first rule is honored; common calendars carry a single RRULE.
	if len(remote.Recurrence) > 0 && remote.Recurrence[0] != "" {
		event.RecurrenceRule = strPtr(remote.Recurrence[0])
	}

	if link := ResolveConferenceLink(remote); link != "" {
		event.HangoutLink = strPtr(link)
	}
	if remote.ConferenceData != nil {
		if data, err := json.Marshal(remote.ConferenceData); err == nil {
			event.ConferenceData = data
		}
	}
	if len(remote.Attendees) > 0 {
		if data, err := json.Marshal(remote.Attendees); err == nil {
			event.Attendees = data
		}
	}
	if remote.ExtendedProperties != nil {
		if data, err := json.Marshal(remote.ExtendedProperties); err == nil {
			event.ExtendedProps = data
		}
	}

	event.LastModifiedAt = now
	if remote.Updated != "" {
		if updated, err := time.Parse(time.RFC3339, remote.Updated); err == nil {
			event.LastModifiedAt = updated.UTC()
		}
	}

	return event, nil
}

// ResolveConferenceLink picks the event's video link: structured hangout
// link, then the legacy top-level alias, then the first video entry point,
// then the free-text location. First non-empty wins.
func ResolveConferenceLink(remote *dto.RemoteEvent) string {
	if remote.ConferenceData != nil && remote.ConferenceData.HangoutLink != "" {
		return remote.ConferenceData.HangoutLink
	}
	if remote.HangoutLink != "" {
		return remote.HangoutLink
	}
	if remote.ConferenceData != nil {
		for _, entry := range remote.ConferenceData.EntryPoints {
			if entry.EntryPointType == "video" && entry.URI != "" {
				return entry.URI
			}
		}
	}
	return strings.TrimSpace(remote.Location)
}

// parseEventBoundaries resolves the start/end instants in UTC. All-day events
// carry date-only boundaries; a missing all-day end defaults to start + one
// day. Timed events require both boundaries; a boundary without its own zone
// borrows the other boundary's, else UTC.
func parseEventBoundaries(remote *dto.RemoteEvent) (time.Time, time.Time, bool, *errors.AppError) {
	start := remote.Start
	end := remote.End
	if start == nil {
		start = &dto.RemoteEventTime{}
	}
	if end == nil {
		end = &dto.RemoteEventTime{}
	}

	isAllDay := start.Date != "" || (start.DateTime == "" && end.Date != "")

	if isAllDay {
		startTS, ok := parseDate(start.Date)
		if !ok {
			return time.Time{}, time.Time{}, false,
				errors.NewAppError(errors.ErrInvalidInput, "Invalid all-day start date", nil)
		}
		endTS, ok := parseDate(end.Date)
		if !ok {
			endTS = startTS.Add(24 * time.Hour)
		}
		return startTS, endTS, true, nil
	}

	tzid := start.TimeZone
	if tzid == "" {
		tzid = end.TimeZone
	}

	startTS, okStart := parseDateTime(start.DateTime, firstNonEmpty(start.TimeZone, tzid))
	endTS, okEnd := parseDateTime(end.DateTime, firstNonEmpty(end.TimeZone, tzid))
	if !okStart || !okEnd {
		return time.Time{}, time.Time{}, false,
			errors.NewAppError(errors.ErrInvalidInput, "Invalid event start/end time", nil)
	}
	return startTS, endTS, false, nil
}

func parseDate(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation("2006-01-02", value, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// parseDateTime parses a boundary timestamp and pins it to the given zone:
// the named zone overrides any offset baked into the value, matching the
// provider's "timeZone beats offset" semantics. The result is in UTC.
func parseDateTime(value, tzid string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}

	loc := time.UTC
	if tzid != "" {
		if parsed, err := time.LoadLocation(tzid); err == nil {
			loc = parsed
		}
	}

	if t, err := time.Parse(time.RFC3339, value); err == nil {
		if tzid != "" {
			// Reinterpret the wall-clock fields in the named zone.
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
		}
		return t.UTC(), true
	}

	// Naive timestamp without offset.
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", value, loc); err == nil {
		return t.UTC(), true
	}

	return time.Time{}, false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func strPtr(s string) *string {
	return &s
}
