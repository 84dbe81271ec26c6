package entity

import (
	"time"

	"chronos-server/core/entity"

	"github.com/google/uuid"
)

// SyncState is the per (user, calendar) sync bookkeeping row. Absence means
// "never synced, no coverage". Always written after the event batch it
// describes, so a crash mid-run understates coverage instead of overstating
// it. BackfillBeforeTS is the earliest instant the backfill has covered
// (how far before now) and BackfillAfterTS the latest; together they bound
// local coverage.
type SyncState struct {
	entity.BaseEntity
	UserID           uuid.UUID  `db:"user_id" json:"user_id"`
	CalendarID       uuid.UUID  `db:"calendar_id" json:"calendar_id"`
	BackfillBeforeTS *time.Time `db:"backfill_before_ts" json:"backfill_before_ts,omitempty"`
	BackfillAfterTS  *time.Time `db:"backfill_after_ts" json:"backfill_after_ts,omitempty"`
	LastFullSyncAt   *time.Time `db:"last_full_sync_at" json:"last_full_sync_at,omitempty"`
	LastDeltaSyncAt  *time.Time `db:"last_delta_sync_at" json:"last_delta_sync_at,omitempty"`
	NextSyncToken    *string    `db:"next_sync_token" json:"next_sync_token,omitempty"`
	IsSyncing        bool       `db:"is_syncing" json:"is_syncing"`
	LastError        *string    `db:"last_error" json:"last_error,omitempty"`
}

func (SyncState) TableName() string {
	return "event_sync_state"
}

// HasToken reports whether a continuation token is stored.
func (s *SyncState) HasToken() bool {
	return s.NextSyncToken != nil && *s.NextSyncToken != ""
}
