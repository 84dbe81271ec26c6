package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chronos-server/core/errors"
	"chronos-server/modules/calendar/dto"
	"chronos-server/modules/calendar/entity"
	"chronos-server/modules/calendar/repository"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// fakeCalendarAPI scripts provider responses per test. Unset handlers fail
// loudly so a test never silently exercises an unexpected call.
type fakeCalendarAPI struct {
	calendars      []dto.RemoteCalendar
	listEventsFunc func(calendarID string, query dto.EventsQuery) (*dto.RemoteEventList, *errors.AppError)
	getEventFunc   func(calendarID, eventID string) (*dto.RemoteEvent, *errors.AppError)
	listCalls      []dto.EventsQuery
}

func (f *fakeCalendarAPI) ListCalendars(ctx context.Context, userID uuid.UUID) ([]dto.RemoteCalendar, *errors.AppError) {
	return f.calendars, nil
}

func (f *fakeCalendarAPI) ListEvents(ctx context.Context, userID uuid.UUID, calendarID string, query dto.EventsQuery) (*dto.RemoteEventList, *errors.AppError) {
	f.listCalls = append(f.listCalls, query)
	if f.listEventsFunc == nil {
		return &dto.RemoteEventList{}, nil
	}
	return f.listEventsFunc(calendarID, query)
}

func (f *fakeCalendarAPI) GetEvent(ctx context.Context, userID uuid.UUID, calendarID, eventID string) (*dto.RemoteEvent, *errors.AppError) {
	if f.getEventFunc == nil {
		return nil, errors.NewAppError(errors.ErrNotFound, "no getEvent handler", nil)
	}
	return f.getEventFunc(calendarID, eventID)
}

func (f *fakeCalendarAPI) CreateEvent(ctx context.Context, userID uuid.UUID, calendarID string, eventData map[string]any, sendNotifications bool) (map[string]any, *errors.AppError) {
	return eventData, nil
}

func (f *fakeCalendarAPI) UpdateEvent(ctx context.Context, userID uuid.UUID, calendarID, eventID string, eventData map[string]any, sendNotifications bool) (map[string]any, *errors.AppError) {
	return eventData, nil
}

func (f *fakeCalendarAPI) PatchEvent(ctx context.Context, userID uuid.UUID, calendarID, eventID string, eventData map[string]any, sendNotifications bool) (map[string]any, *errors.AppError) {
	return eventData, nil
}

func (f *fakeCalendarAPI) DeleteEvent(ctx context.Context, userID uuid.UUID, calendarID, eventID string, sendNotifications bool) *errors.AppError {
	return nil
}

func (f *fakeCalendarAPI) RespondToEvent(ctx context.Context, userID uuid.UUID, calendarID, eventID, responseStatus string) (map[string]any, *errors.AppError) {
	return map[string]any{"responseStatus": responseStatus}, nil
}

type fakeCalendarRepo struct {
	calendars map[uuid.UUID]*entity.ConnectedCalendar
}

func newFakeCalendarRepo() *fakeCalendarRepo {
	return &fakeCalendarRepo{calendars: map[uuid.UUID]*entity.ConnectedCalendar{}}
}

func (f *fakeCalendarRepo) GetByNaturalKey(ctx context.Context, userID uuid.UUID, externalAccountID, providerCalendarID string) (*entity.ConnectedCalendar, error) {
	for _, cal := range f.calendars {
		if cal.UserID == userID && cal.ExternalAccountID == externalAccountID && cal.ProviderCalendarID == providerCalendarID {
			cp := *cal
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeCalendarRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.ConnectedCalendar, error) {
	cal, ok := f.calendars[id]
	if !ok {
		return nil, nil
	}
	cp := *cal
	return &cp, nil
}

func (f *fakeCalendarRepo) Insert(ctx context.Context, cal *entity.ConnectedCalendar) error {
	cal.ID = uuid.New()
	cal.CreatedAt = time.Now()
	cal.UpdatedAt = cal.CreatedAt
	cp := *cal
	f.calendars[cal.ID] = &cp
	return nil
}

func (f *fakeCalendarRepo) UpdateRemoteFields(ctx context.Context, id uuid.UUID, summary, color, accessRole string, etag *string) error {
	cal, ok := f.calendars[id]
	if !ok {
		return fmt.Errorf("calendar %s not found", id)
	}
	cal.Summary = summary
	cal.Color = color
	cal.AccessRole = accessRole
	cal.Etag = etag
	return nil
}

func (f *fakeCalendarRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]entity.ConnectedCalendar, error) {
	var result []entity.ConnectedCalendar
	for _, cal := range f.calendars {
		if cal.UserID == userID {
			result = append(result, *cal)
		}
	}
	return result, nil
}

type fakeEventRepo struct {
	events    map[string]*entity.Event
	instances map[uuid.UUID][]entity.EventInstance
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{
		events:    map[string]*entity.Event{},
		instances: map[uuid.UUID][]entity.EventInstance{},
	}
}

func eventKey(userID, calendarID uuid.UUID, externalID string) string {
	return strings.Join([]string{userID.String(), calendarID.String(), externalID}, "|")
}

func (f *fakeEventRepo) Upsert(ctx context.Context, event *entity.Event) error {
	key := eventKey(event.UserID, event.CalendarID, event.ExternalID)
	if existing, ok := f.events[key]; ok {
		event.ID = existing.ID
		event.CreatedAt = existing.CreatedAt
	} else {
		event.ID = uuid.New()
		event.CreatedAt = time.Now()
	}
	event.UpdatedAt = time.Now()
	event.DeletedAt = nil
	cp := *event
	f.events[key] = &cp
	return nil
}

func (f *fakeEventRepo) SoftDeleteCancelled(ctx context.Context, userID, calendarID uuid.UUID, externalID string) ([]uuid.UUID, error) {
	now := time.Now()
	var ids []uuid.UUID
	for _, event := range f.events {
		if event.UserID != userID || event.DeletedAt != nil {
			continue
		}
		master := event.CalendarID == calendarID && event.ExternalID == externalID
		child := event.RecurringEventID != nil && *event.RecurringEventID == externalID
		if master || child {
			event.Status = entity.StatusCancelled
			event.DeletedAt = &now
			ids = append(ids, event.ID)
		}
	}
	return ids, nil
}

func (f *fakeEventRepo) DeleteInstancesByEventIDs(ctx context.Context, eventIDs []uuid.UUID) error {
	for _, id := range eventIDs {
		delete(f.instances, id)
	}
	return nil
}

func (f *fakeEventRepo) ReplaceInstances(ctx context.Context, eventID uuid.UUID, instances []entity.EventInstance) error {
	f.instances[eventID] = append([]entity.EventInstance(nil), instances...)
	return nil
}

func (f *fakeEventRepo) ListInRange(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]entity.Event, error) {
	var result []entity.Event
	for _, event := range f.events {
		if event.UserID != userID || event.DeletedAt != nil || event.IsRecurring() {
			continue
		}
		if event.StartTS.Before(to) && event.EndTS.After(from) {
			result = append(result, *event)
		}
	}
	return result, nil
}

func (f *fakeEventRepo) ListInstancesInRange(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]repository.RecurringInstanceRow, error) {
	var result []repository.RecurringInstanceRow
	for _, event := range f.events {
		if event.UserID != userID || event.DeletedAt != nil {
			continue
		}
		for _, inst := range f.instances[event.ID] {
			if inst.Status == entity.StatusCancelled {
				continue
			}
			if inst.InstanceStartTS.Before(to) && inst.InstanceEndTS.After(from) {
				result = append(result, repository.RecurringInstanceRow{
					EventID:         event.ID,
					CalendarID:      event.CalendarID,
					ExternalID:      event.ExternalID,
					Summary:         event.Summary,
					InstanceStartTS: inst.InstanceStartTS,
					InstanceEndTS:   inst.InstanceEndTS,
					Status:          inst.Status,
					IsAllDay:        event.IsAllDay,
					RecurrenceRule:  event.RecurrenceRule,
				})
			}
		}
	}
	return result, nil
}

func (f *fakeEventRepo) findByExternalID(externalID string) *entity.Event {
	for _, event := range f.events {
		if event.ExternalID == externalID {
			return event
		}
	}
	return nil
}

func (f *fakeEventRepo) liveCount() int {
	count := 0
	for _, event := range f.events {
		if event.DeletedAt == nil {
			count++
		}
	}
	return count
}

type fakeSyncStateRepo struct {
	states map[string]*entity.SyncState
}

func newFakeSyncStateRepo() *fakeSyncStateRepo {
	return &fakeSyncStateRepo{states: map[string]*entity.SyncState{}}
}

func syncKey(userID, calendarID uuid.UUID) string {
	return userID.String() + "|" + calendarID.String()
}

func (f *fakeSyncStateRepo) Get(ctx context.Context, userID, calendarID uuid.UUID) (*entity.SyncState, error) {
	state, ok := f.states[syncKey(userID, calendarID)]
	if !ok {
		return nil, nil
	}
	cp := *state
	return &cp, nil
}

func (f *fakeSyncStateRepo) Upsert(ctx context.Context, state *entity.SyncState) error {
	key := syncKey(state.UserID, state.CalendarID)
	if existing, ok := f.states[key]; ok {
		state.ID = existing.ID
		state.CreatedAt = existing.CreatedAt
	} else {
		state.ID = uuid.New()
		state.CreatedAt = time.Now()
	}
	state.UpdatedAt = time.Now()
	cp := *state
	f.states[key] = &cp
	return nil
}

func (f *fakeSyncStateRepo) SetSyncing(ctx context.Context, userID, calendarID uuid.UUID, syncing bool) error {
	if state, ok := f.states[syncKey(userID, calendarID)]; ok {
		state.IsSyncing = syncing
	}
	return nil
}

func (f *fakeSyncStateRepo) ClearTokens(ctx context.Context, userID uuid.UUID) error {
	for _, state := range f.states {
		if state.UserID == userID {
			state.NextSyncToken = nil
		}
	}
	return nil
}

func (f *fakeSyncStateRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]entity.SyncState, error) {
	var result []entity.SyncState
	for _, state := range f.states {
		if state.UserID == userID {
			result = append(result, *state)
		}
	}
	return result, nil
}

type fakeCache struct {
	values map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: map[string]string{}}
}

func (f *fakeCache) Get(ctx context.Context, key string) (string, bool) {
	val, ok := f.values[key]
	return val, ok
}

func (f *fakeCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	f.values[key] = value
}

func (f *fakeCache) Delete(ctx context.Context, key string) {
	delete(f.values, key)
}

func (f *fakeCache) Client() *redis.Client {
	return nil
}
