package service

import (
	"context"
	"testing"
	"time"

	"chronos-server/core/errors"
	"chronos-server/core/params"
	"chronos-server/modules/calendar/dto"
	"chronos-server/modules/calendar/entity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCalendarService(api *fakeCalendarAPI) (*calendarService, *fakeCalendarRepo, *fakeEventRepo, *fakeSyncStateRepo) {
	calendarRepo := newFakeCalendarRepo()
	eventRepo := newFakeEventRepo()
	syncRepo := newFakeSyncStateRepo()
	svc := &calendarService{
		api:          api,
		calendarRepo: calendarRepo,
		eventRepo:    eventRepo,
		syncRepo:     syncRepo,
	}
	return svc, calendarRepo, eventRepo, syncRepo
}

func TestGetLocalEventsMergesInstancesSorted(t *testing.T) {
	userID := uuid.New()
	svc, calendarRepo, eventRepo, syncRepo := newTestCalendarService(&fakeCalendarAPI{})
	cal := seedCalendar(t, calendarRepo, userID)

	single := &entity.Event{
		UserID:     userID,
		CalendarID: cal.ID,
		ExternalID: "single",
		Status:     entity.StatusConfirmed,
		StartTS:    time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC),
		EndTS:      time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC),
		Source:     entity.SourceGoogle,
	}
	require.NoError(t, eventRepo.Upsert(context.Background(), single))

	rule := "RRULE:FREQ=DAILY;COUNT=2"
	series := &entity.Event{
		UserID:         userID,
		CalendarID:     cal.ID,
		ExternalID:     "series",
		Status:         entity.StatusConfirmed,
		StartTS:        time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
		EndTS:          time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC),
		RecurrenceRule: &rule,
		Source:         entity.SourceGoogle,
	}
	require.NoError(t, eventRepo.Upsert(context.Background(), series))
	require.NoError(t, eventRepo.ReplaceInstances(context.Background(), series.ID, []entity.EventInstance{
		{EventID: series.ID, InstanceStartTS: series.StartTS, InstanceEndTS: series.EndTS, OriginalStartTS: series.StartTS, Status: entity.StatusConfirmed},
		{EventID: series.ID, InstanceStartTS: series.StartTS.AddDate(0, 0, 1), InstanceEndTS: series.EndTS.AddDate(0, 0, 1), OriginalStartTS: series.StartTS.AddDate(0, 0, 1), Status: entity.StatusConfirmed},
	}))

	coveredFrom := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	coveredTo := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	syncedAt := time.Date(2024, 5, 3, 12, 0, 0, 0, time.UTC)
	require.NoError(t, syncRepo.Upsert(context.Background(), &entity.SyncState{
		UserID:           userID,
		CalendarID:       cal.ID,
		BackfillBeforeTS: &coveredFrom,
		BackfillAfterTS:  &coveredTo,
		LastDeltaSyncAt:  &syncedAt,
	}))

	resp, appErr := svc.GetLocalEventsInRange(context.Background(), userID,
		time.Date(2024, 4, 28, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 5, 0, 0, 0, 0, time.UTC))
	require.Nil(t, appErr)

	require.Len(t, resp.Events, 3)
	assert.Equal(t, "series", resp.Events[0].ExternalID)
	assert.True(t, resp.Events[0].IsRecurring)
	assert.Equal(t, "2024-05-01T08:00:00Z", resp.Events[0].Start)
	assert.Equal(t, "series", resp.Events[1].ExternalID)
	assert.Equal(t, "2024-05-02T08:00:00Z", resp.Events[1].Start)
	assert.Equal(t, "single", resp.Events[2].ExternalID)
	assert.False(t, resp.Events[2].IsRecurring)

	assert.True(t, resp.Coverage.HasBefore)
	assert.True(t, resp.Coverage.HasAfter)
	require.NotNil(t, resp.LastSyncedAt)
	assert.Equal(t, "2024-05-03T12:00:00Z", *resp.LastSyncedAt)
}

func TestGetLocalEventsCoverageGaps(t *testing.T) {
	userID := uuid.New()
	svc, calendarRepo, _, syncRepo := newTestCalendarService(&fakeCalendarAPI{})
	cal := seedCalendar(t, calendarRepo, userID)

	coveredFrom := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	coveredTo := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	require.NoError(t, syncRepo.Upsert(context.Background(), &entity.SyncState{
		UserID:           userID,
		CalendarID:       cal.ID,
		BackfillBeforeTS: &coveredFrom,
		BackfillAfterTS:  &coveredTo,
	}))

	// Requested range starts before the backfilled window and ends inside it.
	resp, appErr := svc.GetLocalEventsInRange(context.Background(), userID,
		time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	require.Nil(t, appErr)
	assert.False(t, resp.Coverage.HasBefore)
	assert.True(t, resp.Coverage.HasAfter)
}

func TestGetLocalEventsRejectsInvertedRange(t *testing.T) {
	svc, _, _, _ := newTestCalendarService(&fakeCalendarAPI{})

	_, appErr := svc.GetLocalEventsInRange(context.Background(), uuid.New(),
		time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrInvalidInput, appErr.Code)
}

func TestListRemoteEventsEnrichesSeriesMasters(t *testing.T) {
	userID := uuid.New()
	masterRule := []string{"RRULE:FREQ=WEEKLY"}
	masterFetches := 0

	api := &fakeCalendarAPI{
		listEventsFunc: func(calendarID string, query dto.EventsQuery) (*dto.RemoteEventList, *errors.AppError) {
			assert.True(t, query.SingleEvents)
			assert.Equal(t, "startTime", query.OrderBy)
			return &dto.RemoteEventList{Items: []dto.RemoteEvent{
				{ID: "m_1", RecurringEventID: "m"},
				{ID: "m_2", RecurringEventID: "m"},
				{ID: "solo"},
			}}, nil
		},
		getEventFunc: func(calendarID, eventID string) (*dto.RemoteEvent, *errors.AppError) {
			masterFetches++
			assert.Equal(t, "m", eventID)
			return &dto.RemoteEvent{ID: "m", Recurrence: masterRule}, nil
		},
	}

	svc, _, _, _ := newTestCalendarService(api)
	events, appErr := svc.ListRemoteEvents(context.Background(), userID, "",
		time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	require.Nil(t, appErr)

	// One master fetch serves both occurrences.
	assert.Equal(t, 1, masterFetches)
	require.Len(t, events, 3)
	assert.Equal(t, masterRule, events[0].Recurrence)
	assert.Equal(t, masterRule, events[1].Recurrence)
	assert.Empty(t, events[2].Recurrence)
}

func TestNormalizeWriteLocation(t *testing.T) {
	data := normalizeWriteLocation(map[string]any{"location": "  Room 12  "})
	assert.Equal(t, "Room 12", data["location"])

	data = normalizeWriteLocation(map[string]any{
		"location": map[string]any{"displayName": "HQ", "formattedAddress": "1 Main St"},
	})
	assert.Equal(t, "HQ", data["location"])

	data = normalizeWriteLocation(map[string]any{
		"location": map[string]any{"formattedAddress": "1 Main St"},
	})
	assert.Equal(t, "1 Main St", data["location"])

	data = normalizeWriteLocation(map[string]any{"location": 42})
	_, present := data["location"]
	assert.False(t, present)
}

func TestListRemoteCalendarsPaginates(t *testing.T) {
	api := &fakeCalendarAPI{
		calendars: []dto.RemoteCalendar{
			{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}, {ID: "e"},
		},
	}
	svc, _, _, _ := newTestCalendarService(api)

	page, appErr := svc.ListRemoteCalendars(context.Background(), uuid.New(), params.QueryParams{
		PageNumber: 2,
		PageSize:   2,
	})
	require.Nil(t, appErr)
	assert.Equal(t, 5, page.TotalItems)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "c", page.Items[0].ID)
	assert.Equal(t, "d", page.Items[1].ID)

	// Past the last page.
	page, appErr = svc.ListRemoteCalendars(context.Background(), uuid.New(), params.QueryParams{
		PageNumber: 9,
		PageSize:   2,
	})
	require.Nil(t, appErr)
	assert.Empty(t, page.Items)
}

func TestRespondToEventValidatesStatus(t *testing.T) {
	svc, _, _, _ := newTestCalendarService(&fakeCalendarAPI{})

	_, appErr := svc.RespondToEvent(context.Background(), uuid.New(), "e1", &dto.RespondRequest{
		ResponseStatus: "maybe",
	})
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrInvalidInput, appErr.Code)
}
