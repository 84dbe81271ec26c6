package service

import (
	"context"
	"testing"
	"time"

	"chronos-server/core/constants"
	"chronos-server/core/errors"
	"chronos-server/modules/calendar/dto"
	"chronos-server/modules/calendar/entity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func newTestSyncService(api *fakeCalendarAPI) (*syncService, *fakeCalendarRepo, *fakeEventRepo, *fakeSyncStateRepo, *fakeCache) {
	calendarRepo := newFakeCalendarRepo()
	eventRepo := newFakeEventRepo()
	syncRepo := newFakeSyncStateRepo()
	appCache := newFakeCache()

	expander := NewRecurrenceExpander(eventRepo)
	expander.now = func() time.Time { return testNow }

	svc := &syncService{
		api:          api,
		calendarRepo: calendarRepo,
		eventRepo:    eventRepo,
		syncRepo:     syncRepo,
		expander:     expander,
		appCache:     appCache,
		now:          func() time.Time { return testNow },
	}
	return svc, calendarRepo, eventRepo, syncRepo, appCache
}

func timedEvent(id string, start, end time.Time) dto.RemoteEvent {
	return dto.RemoteEvent{
		ID:      id,
		Status:  entity.StatusConfirmed,
		Summary: "event " + id,
		Start:   &dto.RemoteEventTime{DateTime: start.Format(time.RFC3339)},
		End:     &dto.RemoteEventTime{DateTime: end.Format(time.RFC3339)},
	}
}

func seedCalendar(t *testing.T, repo *fakeCalendarRepo, userID uuid.UUID) *entity.ConnectedCalendar {
	t.Helper()
	cal := &entity.ConnectedCalendar{
		UserID:             userID,
		ExternalAccountID:  entity.SourceGoogle,
		ProviderCalendarID: "primary",
		Summary:            "Main",
		Color:              entity.DefaultCalendarColor,
		AccessRole:         "owner",
		Selected:           true,
	}
	require.NoError(t, repo.Insert(context.Background(), cal))
	return cal
}

func TestBackfillMirrorsWindow(t *testing.T) {
	userID := uuid.New()
	e1Start := time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC)
	e2Start := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)

	e2 := timedEvent("e2", e2Start, e2Start.Add(time.Hour))
	e2.Recurrence = []string{"RRULE:FREQ=WEEKLY;COUNT=3"}

	api := &fakeCalendarAPI{
		calendars: []dto.RemoteCalendar{{ID: "primary", Summary: "Main", Primary: true}},
		listEventsFunc: func(calendarID string, query dto.EventsQuery) (*dto.RemoteEventList, *errors.AppError) {
			list := &dto.RemoteEventList{NextSyncToken: "tok-backfill"}
			for _, candidate := range []dto.RemoteEvent{timedEvent("e1", e1Start, e1Start.Add(time.Hour)), e2} {
				start, _ := time.Parse(time.RFC3339, candidate.Start.DateTime)
				if !start.Before(query.TimeMin) && start.Before(query.TimeMax) {
					list.Items = append(list.Items, candidate)
				}
			}
			return list, nil
		},
	}

	svc, calendarRepo, eventRepo, syncRepo, _ := newTestSyncService(api)

	synced, appErr := svc.Backfill(context.Background(), userID, entity.SourceGoogle, nil, nil)
	require.Nil(t, appErr)
	assert.Equal(t, 2, synced)

	calendars, err := calendarRepo.ListByUser(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, calendars, 1)
	assert.Equal(t, "primary", calendars[0].ProviderCalendarID)
	assert.Equal(t, entity.DefaultCalendarColor, calendars[0].Color)

	assert.Equal(t, 2, eventRepo.liveCount())

	master := eventRepo.findByExternalID("e2")
	require.NotNil(t, master)
	require.Len(t, eventRepo.instances[master.ID], 3)
	first := eventRepo.instances[master.ID][0]
	assert.Equal(t, e2Start, first.InstanceStartTS)
	assert.Equal(t, e2Start.Add(time.Hour), first.InstanceEndTS)

	state, err := syncRepo.Get(context.Background(), userID, calendars[0].ID)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.False(t, state.IsSyncing)
	assert.Nil(t, state.LastError)
	require.NotNil(t, state.LastFullSyncAt)
	require.NotNil(t, state.NextSyncToken)
	assert.Equal(t, "tok-backfill", *state.NextSyncToken)
	require.NotNil(t, state.BackfillBeforeTS)
	require.NotNil(t, state.BackfillAfterTS)
	assert.Equal(t, testNow.AddDate(-constants.BackfillDefaultYears, 0, 0), *state.BackfillBeforeTS)
	assert.Equal(t, testNow.AddDate(constants.BackfillDefaultYears, 0, 0), *state.BackfillAfterTS)
}

func TestBackfillToleratesFailedMonth(t *testing.T) {
	userID := uuid.New()
	badMonth := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	keptStart := time.Date(2024, 4, 10, 9, 0, 0, 0, time.UTC)

	api := &fakeCalendarAPI{
		calendars: []dto.RemoteCalendar{{ID: "primary", Summary: "Main"}},
		listEventsFunc: func(calendarID string, query dto.EventsQuery) (*dto.RemoteEventList, *errors.AppError) {
			if query.TimeMin.Year() == badMonth.Year() && query.TimeMin.Month() == badMonth.Month() {
				return nil, errors.NewAppError(errors.ErrUpstreamUnavailable, "provider hiccup", nil)
			}
			list := &dto.RemoteEventList{NextSyncToken: "tok"}
			if !keptStart.Before(query.TimeMin) && keptStart.Before(query.TimeMax) {
				list.Items = append(list.Items, timedEvent("kept", keptStart, keptStart.Add(time.Hour)))
			}
			return list, nil
		},
	}

	svc, calendarRepo, eventRepo, syncRepo, _ := newTestSyncService(api)

	synced, appErr := svc.Backfill(context.Background(), userID, entity.SourceGoogle, nil, nil)
	require.Nil(t, appErr)
	assert.Equal(t, 1, synced)

	// The month after the failed one still lands in the mirror.
	assert.Equal(t, 1, eventRepo.liveCount())
	require.NotNil(t, eventRepo.findByExternalID("kept"))

	calendars, _ := calendarRepo.ListByUser(context.Background(), userID)
	require.Len(t, calendars, 1)
	state, err := syncRepo.Get(context.Background(), userID, calendars[0].ID)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Nil(t, state.LastError)
	assert.NotNil(t, state.LastFullSyncAt)
}

func TestBackfillRecordsErrorWhenAllMonthsFail(t *testing.T) {
	userID := uuid.New()
	api := &fakeCalendarAPI{
		calendars: []dto.RemoteCalendar{{ID: "primary", Summary: "Main"}},
		listEventsFunc: func(calendarID string, query dto.EventsQuery) (*dto.RemoteEventList, *errors.AppError) {
			return nil, errors.NewAppError(errors.ErrUpstreamUnavailable, "provider down", nil)
		},
	}

	svc, calendarRepo, _, syncRepo, _ := newTestSyncService(api)

	_, appErr := svc.Backfill(context.Background(), userID, entity.SourceGoogle, nil, nil)
	require.Nil(t, appErr)

	calendars, _ := calendarRepo.ListByUser(context.Background(), userID)
	require.Len(t, calendars, 1)
	state, _ := syncRepo.Get(context.Background(), userID, calendars[0].ID)
	require.NotNil(t, state)
	require.NotNil(t, state.LastError)
	assert.Nil(t, state.LastFullSyncAt)
	assert.Nil(t, state.NextSyncToken)
}

func TestDeltaSyncIsIdempotent(t *testing.T) {
	userID := uuid.New()
	start := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

	api := &fakeCalendarAPI{
		listEventsFunc: func(calendarID string, query dto.EventsQuery) (*dto.RemoteEventList, *errors.AppError) {
			return &dto.RemoteEventList{
				Items:         []dto.RemoteEvent{timedEvent("e1", start, start.Add(time.Hour))},
				NextSyncToken: "tok-next",
			}, nil
		},
	}

	svc, calendarRepo, eventRepo, syncRepo, _ := newTestSyncService(api)
	cal := seedCalendar(t, calendarRepo, userID)

	for i := 0; i < 2; i++ {
		result := svc.DeltaSync(context.Background(), userID, cal)
		assert.Equal(t, dto.SyncStatusCompleted, result.Status)
		assert.Equal(t, 1, result.EventsSynced)
	}

	assert.Equal(t, 1, eventRepo.liveCount())

	state, _ := syncRepo.Get(context.Background(), userID, cal.ID)
	require.NotNil(t, state)
	require.NotNil(t, state.NextSyncToken)
	assert.Equal(t, "tok-next", *state.NextSyncToken)
	assert.NotNil(t, state.LastDeltaSyncAt)
}

func TestDeltaSyncCancellationTombstonesSeries(t *testing.T) {
	userID := uuid.New()
	start := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)
	rule := "RRULE:FREQ=DAILY;COUNT=5"
	masterExternalID := "series-master"

	svc, calendarRepo, eventRepo, _, _ := newTestSyncService(&fakeCalendarAPI{})
	cal := seedCalendar(t, calendarRepo, userID)

	master := &entity.Event{
		UserID:         userID,
		CalendarID:     cal.ID,
		ExternalID:     masterExternalID,
		Status:         entity.StatusConfirmed,
		StartTS:        start,
		EndTS:          start.Add(time.Hour),
		Transparency:   "opaque",
		Visibility:     "default",
		RecurrenceRule: &rule,
		Source:         entity.SourceGoogle,
	}
	require.NoError(t, eventRepo.Upsert(context.Background(), master))
	require.NoError(t, svc.expander.Rebuild(context.Background(), master))
	require.NotEmpty(t, eventRepo.instances[master.ID])

	child := &entity.Event{
		UserID:           userID,
		CalendarID:       cal.ID,
		ExternalID:       masterExternalID + "_20240403T080000Z",
		Status:           entity.StatusConfirmed,
		StartTS:          start.AddDate(0, 0, 2),
		EndTS:            start.AddDate(0, 0, 2).Add(time.Hour),
		Transparency:     "opaque",
		Visibility:       "default",
		RecurringEventID: &masterExternalID,
		Source:           entity.SourceGoogle,
	}
	require.NoError(t, eventRepo.Upsert(context.Background(), child))

	svc.api = &fakeCalendarAPI{
		listEventsFunc: func(calendarID string, query dto.EventsQuery) (*dto.RemoteEventList, *errors.AppError) {
			return &dto.RemoteEventList{
				Items:         []dto.RemoteEvent{{ID: masterExternalID, Status: entity.StatusCancelled}},
				NextSyncToken: "tok-after-cancel",
			}, nil
		},
	}

	result := svc.DeltaSync(context.Background(), userID, cal)
	assert.Equal(t, dto.SyncStatusCompleted, result.Status)

	assert.Equal(t, 0, eventRepo.liveCount())
	assert.Empty(t, eventRepo.instances[master.ID])

	deleted := eventRepo.findByExternalID(masterExternalID)
	require.NotNil(t, deleted)
	assert.Equal(t, entity.StatusCancelled, deleted.Status)
	assert.NotNil(t, deleted.DeletedAt)
}

func TestDeltaSyncExpiredTokenFallsBackOnce(t *testing.T) {
	userID := uuid.New()
	start := time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)

	api := &fakeCalendarAPI{
		listEventsFunc: func(calendarID string, query dto.EventsQuery) (*dto.RemoteEventList, *errors.AppError) {
			if query.SyncToken != "" {
				return nil, errors.NewAppError(errors.ErrSyncTokenExpired, "Sync token expired, full resync required", nil)
			}
			return &dto.RemoteEventList{
				Items:         []dto.RemoteEvent{timedEvent("e1", start, start.Add(time.Hour))},
				NextSyncToken: "tok-fresh",
			}, nil
		},
	}

	svc, calendarRepo, eventRepo, syncRepo, _ := newTestSyncService(api)
	cal := seedCalendar(t, calendarRepo, userID)

	deadToken := "tok-dead"
	require.NoError(t, syncRepo.Upsert(context.Background(), &entity.SyncState{
		UserID:        userID,
		CalendarID:    cal.ID,
		NextSyncToken: &deadToken,
	}))

	result := svc.DeltaSync(context.Background(), userID, cal)
	assert.Equal(t, dto.SyncStatusCompleted, result.Status)
	assert.Equal(t, 1, result.EventsSynced)

	require.Len(t, api.listCalls, 2)
	assert.Equal(t, "tok-dead", api.listCalls[0].SyncToken)
	assert.Empty(t, api.listCalls[1].SyncToken)
	assert.Equal(t, testNow.AddDate(0, 0, -constants.ResyncWindowDays), api.listCalls[1].TimeMin)
	assert.Equal(t, testNow.AddDate(0, 0, constants.ResyncWindowDays), api.listCalls[1].TimeMax)

	assert.Equal(t, 1, eventRepo.liveCount())
	state, _ := syncRepo.Get(context.Background(), userID, cal.ID)
	require.NotNil(t, state.NextSyncToken)
	assert.Equal(t, "tok-fresh", *state.NextSyncToken)
}

func TestDeltaSyncExpiredTokenClearedWhenFallbackFails(t *testing.T) {
	userID := uuid.New()

	api := &fakeCalendarAPI{
		listEventsFunc: func(calendarID string, query dto.EventsQuery) (*dto.RemoteEventList, *errors.AppError) {
			if query.SyncToken != "" {
				return nil, errors.NewAppError(errors.ErrSyncTokenExpired, "Sync token expired, full resync required", nil)
			}
			return nil, errors.NewAppError(errors.ErrUpstreamUnavailable, "provider down", nil)
		},
	}

	svc, calendarRepo, _, syncRepo, _ := newTestSyncService(api)
	cal := seedCalendar(t, calendarRepo, userID)

	deadToken := "tok-dead"
	require.NoError(t, syncRepo.Upsert(context.Background(), &entity.SyncState{
		UserID:        userID,
		CalendarID:    cal.ID,
		NextSyncToken: &deadToken,
	}))

	result := svc.DeltaSync(context.Background(), userID, cal)
	assert.Equal(t, dto.SyncStatusError, result.Status)
	require.Len(t, api.listCalls, 2)

	// The dead token must not survive the failed fallback; the next run has
	// to start windowed instead of re-trying a token the provider expired.
	state, err := syncRepo.Get(context.Background(), userID, cal.ID)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Nil(t, state.NextSyncToken)
	require.NotNil(t, state.LastError)
}

func TestDeltaSyncPaginates(t *testing.T) {
	userID := uuid.New()
	start := time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)

	api := &fakeCalendarAPI{
		listEventsFunc: func(calendarID string, query dto.EventsQuery) (*dto.RemoteEventList, *errors.AppError) {
			if query.PageToken == "" {
				return &dto.RemoteEventList{
					Items:         []dto.RemoteEvent{timedEvent("p1", start, start.Add(time.Hour))},
					NextPageToken: "page-2",
				}, nil
			}
			return &dto.RemoteEventList{
				Items:         []dto.RemoteEvent{timedEvent("p2", start.Add(2*time.Hour), start.Add(3*time.Hour))},
				NextSyncToken: "tok-final",
			}, nil
		},
	}

	svc, calendarRepo, eventRepo, syncRepo, _ := newTestSyncService(api)
	cal := seedCalendar(t, calendarRepo, userID)

	result := svc.DeltaSync(context.Background(), userID, cal)
	assert.Equal(t, dto.SyncStatusCompleted, result.Status)
	assert.Equal(t, 2, result.EventsSynced)
	assert.Equal(t, 2, eventRepo.liveCount())

	state, _ := syncRepo.Get(context.Background(), userID, cal.ID)
	require.NotNil(t, state.NextSyncToken)
	assert.Equal(t, "tok-final", *state.NextSyncToken)
}

func TestSyncNowForegroundForceFullClearsToken(t *testing.T) {
	userID := uuid.New()

	api := &fakeCalendarAPI{
		listEventsFunc: func(calendarID string, query dto.EventsQuery) (*dto.RemoteEventList, *errors.AppError) {
			return &dto.RemoteEventList{NextSyncToken: "tok-new"}, nil
		},
	}

	svc, calendarRepo, _, syncRepo, _ := newTestSyncService(api)
	cal := seedCalendar(t, calendarRepo, userID)

	oldToken := "tok-old"
	require.NoError(t, syncRepo.Upsert(context.Background(), &entity.SyncState{
		UserID:        userID,
		CalendarID:    cal.ID,
		NextSyncToken: &oldToken,
	}))

	resp, appErr := svc.SyncNow(context.Background(), userID, &dto.SyncNowRequest{Foreground: true, ForceFull: true})
	require.Nil(t, appErr)
	assert.Equal(t, dto.SyncStatusCompleted, resp.Status)

	require.NotEmpty(t, api.listCalls)
	assert.Empty(t, api.listCalls[0].SyncToken)
}

func TestSyncNowForegroundWithoutCalendars(t *testing.T) {
	svc, _, _, _, _ := newTestSyncService(&fakeCalendarAPI{})

	_, appErr := svc.SyncNow(context.Background(), uuid.New(), &dto.SyncNowRequest{Foreground: true})
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrNotFound, appErr.Code)
}

func TestGetSyncStatusServesFromCache(t *testing.T) {
	userID := uuid.New()
	svc, calendarRepo, _, syncRepo, appCache := newTestSyncService(&fakeCalendarAPI{})
	cal := seedCalendar(t, calendarRepo, userID)

	syncedAt := testNow.Add(-time.Hour)
	require.NoError(t, syncRepo.Upsert(context.Background(), &entity.SyncState{
		UserID:          userID,
		CalendarID:      cal.ID,
		LastDeltaSyncAt: &syncedAt,
	}))

	entries, appErr := svc.GetSyncStatus(context.Background(), userID)
	require.Nil(t, appErr)
	require.Len(t, entries, 1)
	assert.Equal(t, cal.ID.String(), entries[0].CalendarID)
	require.NotNil(t, entries[0].LastDeltaSync)
	assert.Contains(t, appCache.values, "sync_status:"+userID.String())

	// A second calendar added behind the cache is invisible until expiry.
	seedCalendar(t, calendarRepo, userID)
	cached, appErr := svc.GetSyncStatus(context.Background(), userID)
	require.Nil(t, appErr)
	assert.Len(t, cached, 1)
}
