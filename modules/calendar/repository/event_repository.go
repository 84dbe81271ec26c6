package repository

import (
	"context"
	"encoding/json"
	"time"

	"chronos-server/core/constants"
	"chronos-server/core/database"
	"chronos-server/modules/calendar/entity"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// RecurringInstanceRow is one materialized occurrence joined with its owning
// series master, as served by the local read path.
type RecurringInstanceRow struct {
	EventID         uuid.UUID       `db:"event_id"`
	CalendarID      uuid.UUID       `db:"calendar_id"`
	ExternalID      string          `db:"external_id"`
	Summary         *string         `db:"summary"`
	Description     *string         `db:"description"`
	Location        *string         `db:"location"`
	HangoutLink     *string         `db:"hangout_link"`
	InstanceStartTS time.Time       `db:"instance_start_ts"`
	InstanceEndTS   time.Time       `db:"instance_end_ts"`
	Status          string          `db:"status"`
	IsAllDay        bool            `db:"is_all_day"`
	RecurrenceRule  *string         `db:"recurrence_rule"`
	OrganizerEmail  *string         `db:"organizer_email"`
	Attendees       json.RawMessage `db:"attendees"`
}

type EventRepository interface {
	Upsert(ctx context.Context, event *entity.Event) error
	SoftDeleteCancelled(ctx context.Context, userID, calendarID uuid.UUID, externalID string) ([]uuid.UUID, error)
	DeleteInstancesByEventIDs(ctx context.Context, eventIDs []uuid.UUID) error
	ReplaceInstances(ctx context.Context, eventID uuid.UUID, instances []entity.EventInstance) error
	ListInRange(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]entity.Event, error)
	ListInstancesInRange(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]RecurringInstanceRow, error)
}

type eventRepository struct {
	db database.Database
}

func NewEventRepository(db database.Database) EventRepository {
	return &eventRepository{db: db}
}

// Upsert writes an event keyed by (user, calendar, external id). A re-synced
// event overwrites every provider-owned column and revives a previously
// soft-deleted row. The generated id and timestamps are filled back in.
func (r *eventRepository) Upsert(ctx context.Context, event *entity.Event) error {
	query := `
		INSERT INTO events (
			user_id, calendar_id, external_id, etag, status,
			summary, description, location, hangout_link, conference_data,
			start_ts, end_ts, is_all_day, transparency, visibility,
			recurrence_rule, recurring_event_id, organizer_email,
			attendees, extended_props, source, last_synced_at, last_modified_at
		)
		VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15,
			$16, $17, $18,
			$19, $20, $21, $22, $23
		)
		ON CONFLICT (user_id, calendar_id, external_id) DO UPDATE SET
			etag = EXCLUDED.etag,
			status = EXCLUDED.status,
			summary = EXCLUDED.summary,
			description = EXCLUDED.description,
			location = EXCLUDED.location,
			hangout_link = EXCLUDED.hangout_link,
			conference_data = EXCLUDED.conference_data,
			start_ts = EXCLUDED.start_ts,
			end_ts = EXCLUDED.end_ts,
			is_all_day = EXCLUDED.is_all_day,
			transparency = EXCLUDED.transparency,
			visibility = EXCLUDED.visibility,
			recurrence_rule = EXCLUDED.recurrence_rule,
			recurring_event_id = EXCLUDED.recurring_event_id,
			organizer_email = EXCLUDED.organizer_email,
			attendees = EXCLUDED.attendees,
			extended_props = EXCLUDED.extended_props,
			source = EXCLUDED.source,
			last_synced_at = EXCLUDED.last_synced_at,
			last_modified_at = EXCLUDED.last_modified_at,
			deleted_at = NULL,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRowContext(ctx, query,
		event.UserID, event.CalendarID, event.ExternalID, event.Etag, event.Status,
		event.Summary, event.Description, event.Location, event.HangoutLink, event.ConferenceData,
		event.StartTS, event.EndTS, event.IsAllDay, event.Transparency, event.Visibility,
		event.RecurrenceRule, event.RecurringEventID, event.OrganizerEmail,
		event.Attendees, event.ExtendedProps, event.Source, event.LastSyncedAt, event.LastModifiedAt,
	).Scan(&event.ID, &event.CreatedAt, &event.UpdatedAt)
}

// SoftDeleteCancelled marks a cancelled event and, when it is a series
// master, every child exception pointing at it. Children are matched across
// all of the user's calendars since the provider reports them against the
// master's external id. Returns the ids of every row touched so callers can
// purge their materialized instances.
func (r *eventRepository) SoftDeleteCancelled(ctx context.Context, userID, calendarID uuid.UUID, externalID string) ([]uuid.UUID, error) {
	query := `
		UPDATE events
		SET status = $1, deleted_at = NOW(), updated_at = NOW()
		WHERE user_id = $2
		  AND ((calendar_id = $3 AND external_id = $4) OR recurring_event_id = $4)
		  AND deleted_at IS NULL
		RETURNING id
	`
	rows, err := r.db.QueryContext(ctx, query, entity.StatusCancelled, userID, calendarID, externalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *eventRepository) DeleteInstancesByEventIDs(ctx context.Context, eventIDs []uuid.UUID) error {
	if len(eventIDs) == 0 {
		return nil
	}
	return r.db.ExecContext(ctx,
		`DELETE FROM event_instances WHERE event_id = ANY($1)`, pq.Array(eventIDs))
}

// ReplaceInstances swaps the materialized occurrence set of one event in a
// single transaction so readers never observe a half-rebuilt series. Inserts
// run in fixed-size batches.
func (r *eventRepository) ReplaceInstances(ctx context.Context, eventID uuid.UUID, instances []entity.EventInstance) error {
	tx, err := r.db.BeginTxx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM event_instances WHERE event_id = $1`, eventID); err != nil {
		return err
	}

	insert := `
		INSERT INTO event_instances
			(event_id, instance_start_ts, instance_end_ts, original_start_ts, status, is_exception)
		VALUES (:event_id, :instance_start_ts, :instance_end_ts, :original_start_ts, :status, :is_exception)
	`
	for i := 0; i < len(instances); i += constants.InstanceInsertBatchSize {
		end := i + constants.InstanceInsertBatchSize
		if end > len(instances) {
			end = len(instances)
		}
		if _, err := tx.NamedExecContext(ctx, insert, instances[i:end]); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListInRange returns the user's live non-recurring events overlapping
// [from, to). Recurring series are served through their instances instead.
func (r *eventRepository) ListInRange(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]entity.Event, error) {
	query := `
		SELECT id, user_id, calendar_id, external_id, etag, status,
		       summary, description, location, hangout_link, conference_data,
		       start_ts, end_ts, is_all_day, transparency, visibility,
		       recurrence_rule, recurring_event_id, organizer_email,
		       attendees, extended_props, source, last_synced_at, last_modified_at,
		       deleted_at, created_at, updated_at
		FROM events
		WHERE user_id = $1
		  AND deleted_at IS NULL
		  AND recurrence_rule IS NULL
		  AND start_ts < $2
		  AND end_ts > $3
		ORDER BY start_ts
	`
	events := []entity.Event{}
	if err := r.db.SelectContext(ctx, &events, query, userID, to, from); err != nil {
		return nil, err
	}
	return events, nil
}

func (r *eventRepository) ListInstancesInRange(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]RecurringInstanceRow, error) {
	query := `
		SELECT e.id AS event_id, e.calendar_id, e.external_id,
		       e.summary, e.description, e.location, e.hangout_link,
		       i.instance_start_ts, i.instance_end_ts, i.status,
		       e.is_all_day, e.recurrence_rule, e.organizer_email, e.attendees
		FROM event_instances i
		JOIN events e ON e.id = i.event_id
		WHERE e.user_id = $1
		  AND e.deleted_at IS NULL
		  AND i.status <> $2
		  AND i.instance_start_ts < $3
		  AND i.instance_end_ts > $4
		ORDER BY i.instance_start_ts
	`
	rows := []RecurringInstanceRow{}
	if err := r.db.SelectContext(ctx, &rows, query, userID, entity.StatusCancelled, to, from); err != nil {
		return nil, err
	}
	return rows, nil
}
