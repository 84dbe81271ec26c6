package dto

import "time"

// RemoteCalendar is one entry of the provider's calendarList.
type RemoteCalendar struct {
	ID              string `json:"id"`
	Summary         string `json:"summary"`
	BackgroundColor string `json:"backgroundColor"`
	AccessRole      string `json:"accessRole"`
	Etag            string `json:"etag"`
	Primary         bool   `json:"primary"`
}

// RemoteEventTime is a remote event boundary: either a date-only all-day
// boundary or a zoned timestamp.
type RemoteEventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

type RemoteOrganizer struct {
	Email string `json:"email,omitempty"`
	Self  bool   `json:"self,omitempty"`
}

type RemoteAttendee struct {
	Email          string `json:"email,omitempty"`
	DisplayName    string `json:"displayName,omitempty"`
	ResponseStatus string `json:"responseStatus,omitempty"`
	Optional       bool   `json:"optional,omitempty"`
	Organizer      bool   `json:"organizer,omitempty"`
	Self           bool   `json:"self,omitempty"`
}

type RemoteEntryPoint struct {
	EntryPointType string `json:"entryPointType,omitempty"`
	URI            string `json:"uri,omitempty"`
	Label          string `json:"label,omitempty"`
}

type RemoteConferenceData struct {
	HangoutLink string             `json:"hangoutLink,omitempty"`
	EntryPoints []RemoteEntryPoint `json:"entryPoints,omitempty"`
}

type RemoteExtendedProperties struct {
	Private map[string]string `json:"private,omitempty"`
	Shared  map[string]string `json:"shared,omitempty"`
}

// RemoteEvent models every field of the provider's event document this
// backend reads. The payload is open-ended; anything else is dropped.
type RemoteEvent struct {
	ID                 string                    `json:"id"`
	Etag               string                    `json:"etag,omitempty"`
	Status             string                    `json:"status,omitempty"`
	Summary            string                    `json:"summary,omitempty"`
	Description        string                    `json:"description,omitempty"`
	Location           string                    `json:"location,omitempty"`
	Start              *RemoteEventTime          `json:"start,omitempty"`
	End                *RemoteEventTime          `json:"end,omitempty"`
	Recurrence         []string                  `json:"recurrence,omitempty"`
	RecurringEventID   string                    `json:"recurringEventId,omitempty"`
	Organizer          *RemoteOrganizer          `json:"organizer,omitempty"`
	Attendees          []RemoteAttendee          `json:"attendees,omitempty"`
	ExtendedProperties *RemoteExtendedProperties `json:"extendedProperties,omitempty"`
	ConferenceData     *RemoteConferenceData     `json:"conferenceData,omitempty"`
	HangoutLink        string                    `json:"hangoutLink,omitempty"`
	Transparency       string                    `json:"transparency,omitempty"`
	Visibility         string                    `json:"visibility,omitempty"`
	Updated            string                    `json:"updated,omitempty"`
}

// RemoteEventList is one page of a provider list call.
type RemoteEventList struct {
	Items         []RemoteEvent `json:"items"`
	NextPageToken string        `json:"nextPageToken,omitempty"`
	NextSyncToken string        `json:"nextSyncToken,omitempty"`
}

// EventsQuery collects the list-call parameters the sync engine uses. A
// non-empty SyncToken switches the call to incremental mode; TimeMin/TimeMax
// are ignored by the provider in that mode.
type EventsQuery struct {
	TimeMin      time.Time
	TimeMax      time.Time
	SyncToken    string
	PageToken    string
	SingleEvents bool
	ShowDeleted  bool
	OrderBy      string
	MaxResults   int
}
