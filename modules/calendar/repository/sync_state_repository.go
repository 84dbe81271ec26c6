package repository

import (
	"context"
	"database/sql"

	"chronos-server/core/database"
	"chronos-server/modules/calendar/entity"

	"github.com/google/uuid"
)

type SyncStateRepository interface {
	Get(ctx context.Context, userID, calendarID uuid.UUID) (*entity.SyncState, error)
	Upsert(ctx context.Context, state *entity.SyncState) error
	SetSyncing(ctx context.Context, userID, calendarID uuid.UUID, syncing bool) error
	ClearTokens(ctx context.Context, userID uuid.UUID) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]entity.SyncState, error)
}

type syncStateRepository struct {
	db database.Database
}

func NewSyncStateRepository(db database.Database) SyncStateRepository {
	return &syncStateRepository{db: db}
}

const syncStateColumns = `
	id, user_id, calendar_id, backfill_before_ts, backfill_after_ts,
	last_full_sync_at, last_delta_sync_at, next_sync_token,
	is_syncing, last_error, created_at, updated_at
`

// Get returns the sync bookkeeping row for one calendar, or nil when the
// calendar has never been synced.
func (r *syncStateRepository) Get(ctx context.Context, userID, calendarID uuid.UUID) (*entity.SyncState, error) {
	query := `
		SELECT ` + syncStateColumns + `
		FROM event_sync_state
		WHERE user_id = $1 AND calendar_id = $2
	`
	var state entity.SyncState
	if err := r.db.GetContext(ctx, &state, query, userID, calendarID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &state, nil
}

// Upsert writes the full bookkeeping row keyed by (user, calendar).
func (r *syncStateRepository) Upsert(ctx context.Context, state *entity.SyncState) error {
	query := `
		INSERT INTO event_sync_state (
			user_id, calendar_id, backfill_before_ts, backfill_after_ts,
			last_full_sync_at, last_delta_sync_at, next_sync_token, is_syncing, last_error
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, calendar_id) DO UPDATE SET
			backfill_before_ts = EXCLUDED.backfill_before_ts,
			backfill_after_ts = EXCLUDED.backfill_after_ts,
			last_full_sync_at = EXCLUDED.last_full_sync_at,
			last_delta_sync_at = EXCLUDED.last_delta_sync_at,
			next_sync_token = EXCLUDED.next_sync_token,
			is_syncing = EXCLUDED.is_syncing,
			last_error = EXCLUDED.last_error,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRowContext(ctx, query,
		state.UserID, state.CalendarID, state.BackfillBeforeTS, state.BackfillAfterTS,
		state.LastFullSyncAt, state.LastDeltaSyncAt, state.NextSyncToken,
		state.IsSyncing, state.LastError,
	).Scan(&state.ID, &state.CreatedAt, &state.UpdatedAt)
}

// SetSyncing flips the in-progress flag. A no-op when the row does not exist
// yet; the first Upsert at the end of the run creates it.
func (r *syncStateRepository) SetSyncing(ctx context.Context, userID, calendarID uuid.UUID, syncing bool) error {
	query := `
		UPDATE event_sync_state
		SET is_syncing = $1, updated_at = NOW()
		WHERE user_id = $2 AND calendar_id = $3
	`
	return r.db.ExecContext(ctx, query, syncing, userID, calendarID)
}

// ClearTokens drops every continuation token for the user, forcing the next
// delta pass to run as a full windowed resync.
func (r *syncStateRepository) ClearTokens(ctx context.Context, userID uuid.UUID) error {
	query := `
		UPDATE event_sync_state
		SET next_sync_token = NULL, updated_at = NOW()
		WHERE user_id = $1
	`
	return r.db.ExecContext(ctx, query, userID)
}

func (r *syncStateRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]entity.SyncState, error) {
	query := `
		SELECT ` + syncStateColumns + `
		FROM event_sync_state
		WHERE user_id = $1
		ORDER BY created_at
	`
	states := []entity.SyncState{}
	if err := r.db.SelectContext(ctx, &states, query, userID); err != nil {
		return nil, err
	}
	return states, nil
}
