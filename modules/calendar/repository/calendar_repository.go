package repository

import (
	"context"
	"database/sql"

	"chronos-server/core/database"
	"chronos-server/modules/calendar/entity"

	"github.com/google/uuid"
)

type CalendarRepository interface {
	GetByNaturalKey(ctx context.Context, userID uuid.UUID, externalAccountID, providerCalendarID string) (*entity.ConnectedCalendar, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.ConnectedCalendar, error)
	Insert(ctx context.Context, cal *entity.ConnectedCalendar) error
	UpdateRemoteFields(ctx context.Context, id uuid.UUID, summary, color, accessRole string, etag *string) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]entity.ConnectedCalendar, error)
}

type calendarRepository struct {
	db database.Database
}

func NewCalendarRepository(db database.Database) CalendarRepository {
	return &calendarRepository{db: db}
}

const calendarColumns = `
	id, user_id, external_account_id, provider_calendar_id,
	summary, color, access_role, etag, selected, created_at, updated_at
`

// GetByNaturalKey looks up the local row for a provider calendar, or nil when
// the calendar has never been registered.
func (r *calendarRepository) GetByNaturalKey(ctx context.Context, userID uuid.UUID, externalAccountID, providerCalendarID string) (*entity.ConnectedCalendar, error) {
	query := `
		SELECT ` + calendarColumns + `
		FROM connected_calendars
		WHERE user_id = $1 AND external_account_id = $2 AND provider_calendar_id = $3
	`
	var cal entity.ConnectedCalendar
	if err := r.db.GetContext(ctx, &cal, query, userID, externalAccountID, providerCalendarID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &cal, nil
}

func (r *calendarRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.ConnectedCalendar, error) {
	query := `SELECT ` + calendarColumns + ` FROM connected_calendars WHERE id = $1`
	var cal entity.ConnectedCalendar
	if err := r.db.GetContext(ctx, &cal, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &cal, nil
}

// Insert stores a new calendar registration and fills in the generated id and
// timestamps.
func (r *calendarRepository) Insert(ctx context.Context, cal *entity.ConnectedCalendar) error {
	query := `
		INSERT INTO connected_calendars
			(user_id, external_account_id, provider_calendar_id, summary, color, access_role, etag, selected)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRowContext(ctx, query,
		cal.UserID, cal.ExternalAccountID, cal.ProviderCalendarID,
		cal.Summary, cal.Color, cal.AccessRole, cal.Etag, cal.Selected,
	).Scan(&cal.ID, &cal.CreatedAt, &cal.UpdatedAt)
}

// UpdateRemoteFields refreshes the provider-owned metadata on an existing row.
func (r *calendarRepository) UpdateRemoteFields(ctx context.Context, id uuid.UUID, summary, color, accessRole string, etag *string) error {
	query := `
		UPDATE connected_calendars
		SET summary = $1, color = $2, access_role = $3, etag = $4, updated_at = NOW()
		WHERE id = $5
	`
	return r.db.ExecContext(ctx, query, summary, color, accessRole, etag, id)
}

func (r *calendarRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]entity.ConnectedCalendar, error) {
	query := `
		SELECT ` + calendarColumns + `
		FROM connected_calendars
		WHERE user_id = $1
		ORDER BY created_at
	`
	calendars := []entity.ConnectedCalendar{}
	if err := r.db.SelectContext(ctx, &calendars, query, userID); err != nil {
		return nil, err
	}
	return calendars, nil
}
