package entity

import (
	"chronos-server/core/entity"

	"github.com/google/uuid"
)

const DefaultCalendarColor = "#4285f4"

// ConnectedCalendar mirrors one remote calendar under one linked account.
// Unique per (user, external account, provider calendar id). The sync engine
// creates it on first sight and refreshes display fields on every pass; it
// never hard-deletes it.
type ConnectedCalendar struct {
	entity.BaseEntity
	UserID             uuid.UUID `db:"user_id" json:"user_id"`
	ExternalAccountID  string    `db:"external_account_id" json:"external_account_id"`
	ProviderCalendarID string    `db:"provider_calendar_id" json:"provider_calendar_id"`
	Summary            string    `db:"summary" json:"summary"`
	Color              string    `db:"color" json:"color"`
	AccessRole         string    `db:"access_role" json:"access_role"`
	Etag               *string   `db:"etag" json:"etag,omitempty"`
	Selected           bool      `db:"selected" json:"selected"`
}

func (ConnectedCalendar) TableName() string {
	return "connected_calendars"
}
