package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chronos-server/core/cache"
	"chronos-server/core/constants"
	"chronos-server/core/errors"
	"chronos-server/core/logger"
	"chronos-server/core/tasks"
	"chronos-server/modules/calendar/dto"
	"chronos-server/modules/calendar/entity"
	"chronos-server/modules/calendar/mapper"
	"chronos-server/modules/calendar/repository"

	"github.com/google/uuid"
)

// SyncService runs the two sync passes against the provider: the windowed
// historical backfill and the token-driven delta sync. Both converge the
// local mirror toward the provider's state; running either twice is a no-op.
type SyncService interface {
	Backfill(ctx context.Context, userID uuid.UUID, externalAccountID string, before, after *time.Time) (int, *errors.AppError)
	DeltaSync(ctx context.Context, userID uuid.UUID, cal *entity.ConnectedCalendar) dto.SyncResult
	SyncNow(ctx context.Context, userID uuid.UUID, req *dto.SyncNowRequest) (*dto.SyncNowResponse, *errors.AppError)
	GetSyncStatus(ctx context.Context, userID uuid.UUID) ([]dto.SyncStatusEntry, *errors.AppError)
}

type syncService struct {
	api          GoogleCalendarAPI
	calendarRepo repository.CalendarRepository
	eventRepo    repository.EventRepository
	syncRepo     repository.SyncStateRepository
	expander     *RecurrenceExpander
	appCache     cache.Cache
	taskClient   *tasks.Client
	now          func() time.Time
}

func NewSyncService(
	api GoogleCalendarAPI,
	calendarRepo repository.CalendarRepository,
	eventRepo repository.EventRepository,
	syncRepo repository.SyncStateRepository,
	expander *RecurrenceExpander,
	appCache cache.Cache,
	taskClient *tasks.Client,
) SyncService {
	return &syncService{
		api:          api,
		calendarRepo: calendarRepo,
		eventRepo:    eventRepo,
		syncRepo:     syncRepo,
		expander:     expander,
		appCache:     appCache,
		taskClient:   taskClient,
		now:          time.Now,
	}
}

// Backfill mirrors the historical window of every calendar on the account.
// The window defaults to the configured number of years either side of now;
// before overrides the past edge and after the future edge. The provider is
// walked month by month so one poisoned month cannot sink the whole run;
// failed months are logged and skipped.
func (s *syncService) Backfill(ctx context.Context, userID uuid.UUID, externalAccountID string, before, after *time.Time) (int, *errors.AppError) {
	remoteCalendars, appErr := s.api.ListCalendars(ctx, userID)
	if appErr != nil {
		return 0, appErr
	}
	if len(remoteCalendars) == 0 {
		return 0, errors.NewAppError(errors.ErrNotFound, "No calendars found", nil)
	}

	now := s.now().UTC()
	windowStart := now.AddDate(-constants.BackfillDefaultYears, 0, 0)
	windowEnd := now.AddDate(constants.BackfillDefaultYears, 0, 0)
	if before != nil {
		windowStart = before.UTC()
	}
	if after != nil {
		windowEnd = after.UTC()
	}

	totalSynced := 0
	for _, remote := range remoteCalendars {
		cal, err := s.resolveCalendar(ctx, userID, externalAccountID, remote)
		if err != nil {
			logger.Error("SyncService:Backfill:ResolveCalendar:Error",
				"user_id", userID, "provider_calendar_id", remote.ID, "error", err)
			continue
		}

		synced, syncToken, runErr := s.backfillCalendar(ctx, userID, cal, windowStart, windowEnd)
		totalSynced += synced

		state := &entity.SyncState{
			UserID:           userID,
			CalendarID:       cal.ID,
			BackfillBeforeTS: &windowStart,
			BackfillAfterTS:  &windowEnd,
			IsSyncing:        false,
		}
		if existing, err := s.syncRepo.Get(ctx, userID, cal.ID); err == nil && existing != nil {
			state.LastDeltaSyncAt = existing.LastDeltaSyncAt
		}
		if runErr != nil {
			msg := runErr.Error()
			state.LastError = &msg
		} else {
			fullSyncedAt := s.now().UTC()
			state.LastFullSyncAt = &fullSyncedAt
			if syncToken != "" {
				state.NextSyncToken = &syncToken
			}
		}
		if err := s.syncRepo.Upsert(ctx, state); err != nil {
			logger.Error("SyncService:Backfill:SaveState:Error",
				"user_id", userID, "calendar_id", cal.ID, "error", err)
		}
	}

	logger.Info("SyncService:Backfill:Done", "user_id", userID, "events_synced", totalSynced)
	return totalSynced, nil
}

// backfillCalendar walks one calendar's window month by month. Returns the
// event count, the continuation token from the final page, and an error only
// when every month failed.
func (s *syncService) backfillCalendar(ctx context.Context, userID uuid.UUID, cal *entity.ConnectedCalendar, windowStart, windowEnd time.Time) (int, string, error) {
	if err := s.syncRepo.SetSyncing(ctx, userID, cal.ID, true); err != nil {
		logger.Warn("SyncService:backfillCalendar:SetSyncing:Error", "calendar_id", cal.ID, "error", err)
	}

	synced := 0
	months := 0
	failedMonths := 0
	syncToken := ""

	for cur := windowStart; cur.Before(windowEnd); cur = cur.AddDate(0, 1, 0) {
		monthEnd := cur.AddDate(0, 1, 0)
		if monthEnd.After(windowEnd) {
			monthEnd = windowEnd
		}
		months++

		monthSynced, monthToken, err := s.backfillMonth(ctx, userID, cal, cur, monthEnd)
		if err != nil {
			failedMonths++
			logger.Warn("SyncService:backfillCalendar:MonthFailed",
				"calendar_id", cal.ID, "month_start", cur, "error", err)
			continue
		}
		synced += monthSynced
		if monthToken != "" {
			syncToken = monthToken
		}
	}

	if failedMonths == months {
		return synced, "", fmt.Errorf("backfill failed for all %d months", months)
	}
	return synced, syncToken, nil
}

func (s *syncService) backfillMonth(ctx context.Context, userID uuid.UUID, cal *entity.ConnectedCalendar, monthStart, monthEnd time.Time) (int, string, error) {
	synced := 0
	syncToken := ""
	pageToken := ""

	for {
		page, appErr := s.api.ListEvents(ctx, userID, cal.ProviderCalendarID, dto.EventsQuery{
			TimeMin:    monthStart,
			TimeMax:    monthEnd,
			PageToken:  pageToken,
			MaxResults: constants.EventsPageSize,
		})
		if appErr != nil {
			return synced, "", appErr
		}

		for i := range page.Items {
			remote := &page.Items[i]
			// Cancelled rows only matter for delta sync; on backfill there
			// is nothing local to tombstone yet.
			if remote.Status == entity.StatusCancelled {
				continue
			}
			if err := s.saveEvent(ctx, userID, cal.ID, remote); err != nil {
				logger.Warn("SyncService:backfillMonth:SaveEvent:Error",
					"calendar_id", cal.ID, "external_id", remote.ID, "error", err)
				continue
			}
			synced++
		}

		if page.NextSyncToken != "" {
			syncToken = page.NextSyncToken
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	return synced, syncToken, nil
}

// DeltaSync applies the provider's change feed for one calendar. With a
// stored continuation token only changed events come back; without one, or
// after the provider expires the token, it falls back to a single full pass
// over a bounded window around now.
func (s *syncService) DeltaSync(ctx context.Context, userID uuid.UUID, cal *entity.ConnectedCalendar) dto.SyncResult {
	state, err := s.syncRepo.Get(ctx, userID, cal.ID)
	if err != nil {
		return s.finishDelta(ctx, userID, cal.ID, state, "", 0, err)
	}

	syncToken := ""
	if state != nil && state.HasToken() {
		syncToken = *state.NextSyncToken
	}
	if err := s.syncRepo.SetSyncing(ctx, userID, cal.ID, true); err != nil {
		logger.Warn("SyncService:DeltaSync:SetSyncing:Error", "calendar_id", cal.ID, "error", err)
	}

	synced, newToken, runErr := s.deltaPass(ctx, userID, cal, syncToken)
	if runErr != nil && errors.IsCode(runErr, errors.ErrSyncTokenExpired) {
		// The token is dead; drop it before the fallback so a failed fallback
		// cannot leave it stored for the next run, then resync a bounded
		// window once and start over.
		logger.Warn("SyncService:DeltaSync:TokenExpired", "calendar_id", cal.ID)
		if state != nil {
			state.NextSyncToken = nil
		}
		synced, newToken, runErr = s.deltaPass(ctx, userID, cal, "")
	}

	return s.finishDelta(ctx, userID, cal.ID, state, newToken, synced, runErr)
}

func (s *syncService) finishDelta(ctx context.Context, userID, calendarID uuid.UUID, state *entity.SyncState, newToken string, synced int, runErr error) dto.SyncResult {
	next := &entity.SyncState{
		UserID:     userID,
		CalendarID: calendarID,
		IsSyncing:  false,
	}
	if state != nil {
		next.BackfillBeforeTS = state.BackfillBeforeTS
		next.BackfillAfterTS = state.BackfillAfterTS
		next.LastFullSyncAt = state.LastFullSyncAt
		next.NextSyncToken = state.NextSyncToken
	}

	if runErr != nil {
		msg := runErr.Error()
		next.LastError = &msg
	} else {
		syncedAt := s.now().UTC()
		next.LastDeltaSyncAt = &syncedAt
		next.LastError = nil
		if newToken != "" {
			next.NextSyncToken = &newToken
		}
	}

	if err := s.syncRepo.Upsert(ctx, next); err != nil {
		logger.Error("SyncService:finishDelta:SaveState:Error",
			"user_id", userID, "calendar_id", calendarID, "error", err)
	}

	if runErr != nil {
		return dto.SyncResult{Status: dto.SyncStatusError, EventsSynced: synced, Error: runErr.Error()}
	}
	return dto.SyncResult{Status: dto.SyncStatusCompleted, EventsSynced: synced}
}

// deltaPass runs one paginated list pass. An empty token means a full
// windowed resync around now.
func (s *syncService) deltaPass(ctx context.Context, userID uuid.UUID, cal *entity.ConnectedCalendar, syncToken string) (int, string, error) {
	query := dto.EventsQuery{
		SyncToken:   syncToken,
		ShowDeleted: true,
		MaxResults:  constants.EventsPageSize,
	}
	if syncToken == "" {
		now := s.now().UTC()
		query.TimeMin = now.AddDate(0, 0, -constants.ResyncWindowDays)
		query.TimeMax = now.AddDate(0, 0, constants.ResyncWindowDays)
	}

	synced := 0
	newToken := ""

	for {
		page, appErr := s.api.ListEvents(ctx, userID, cal.ProviderCalendarID, query)
		if appErr != nil {
			return synced, "", appErr
		}

		for i := range page.Items {
			remote := &page.Items[i]
			if remote.Status == entity.StatusCancelled {
				if err := s.removeEvent(ctx, userID, cal.ID, remote.ID); err != nil {
					logger.Warn("SyncService:deltaPass:RemoveEvent:Error",
						"calendar_id", cal.ID, "external_id", remote.ID, "error", err)
					continue
				}
				synced++
				continue
			}
			if err := s.saveEvent(ctx, userID, cal.ID, remote); err != nil {
				logger.Warn("SyncService:deltaPass:SaveEvent:Error",
					"calendar_id", cal.ID, "external_id", remote.ID, "error", err)
				continue
			}
			synced++
		}

		if page.NextSyncToken != "" {
			newToken = page.NextSyncToken
		}
		if page.NextPageToken == "" {
			break
		}
		query.PageToken = page.NextPageToken
	}

	return synced, newToken, nil
}

// saveEvent normalizes one remote event, upserts the master row, and rebuilds
// its materialized occurrences when it carries a recurrence rule.
func (s *syncService) saveEvent(ctx context.Context, userID, calendarID uuid.UUID, remote *dto.RemoteEvent) error {
	event, appErr := mapper.NormalizeEvent(remote, calendarID, userID)
	if appErr != nil {
		return appErr
	}
	if err := s.eventRepo.Upsert(ctx, event); err != nil {
		return err
	}
	return s.expander.Rebuild(ctx, event)
}

// removeEvent tombstones a cancelled event together with any exception rows
// of the series and purges their materialized occurrences.
func (s *syncService) removeEvent(ctx context.Context, userID, calendarID uuid.UUID, externalID string) error {
	ids, err := s.eventRepo.SoftDeleteCancelled(ctx, userID, calendarID, externalID)
	if err != nil {
		return err
	}
	return s.eventRepo.DeleteInstancesByEventIDs(ctx, ids)
}

// SyncNow triggers a sync pass on demand. The default path hands the work to
// the background queue and acknowledges immediately; Foreground runs the
// delta pass inline and reports the outcome.
func (s *syncService) SyncNow(ctx context.Context, userID uuid.UUID, req *dto.SyncNowRequest) (*dto.SyncNowResponse, *errors.AppError) {
	if req.ForceFull {
		if err := s.syncRepo.ClearTokens(ctx, userID); err != nil {
			logger.Error("SyncService:SyncNow:ClearTokens:Error", "user_id", userID, "error", err)
			return nil, errors.NewAppError(errors.ErrInternalServer, "failed to reset sync state", err)
		}
	}

	if req.InitialBackfill {
		s.taskClient.EnqueueBackfill(tasks.BackfillPayload{
			UserID:            userID,
			ExternalAccountID: entity.SourceGoogle,
		})
		return &dto.SyncNowResponse{
			Status:  dto.SyncStatusStarted,
			Message: "Initial backfill queued",
		}, nil
	}

	if !req.Foreground {
		s.taskClient.EnqueueDeltaSync(tasks.DeltaSyncPayload{UserID: userID, ForceFull: req.ForceFull})
		return &dto.SyncNowResponse{
			Status:  dto.SyncStatusStarted,
			Message: "Sync queued",
		}, nil
	}

	calendars, err := s.calendarRepo.ListByUser(ctx, userID)
	if err != nil {
		logger.Error("SyncService:SyncNow:ListCalendars:Error", "user_id", userID, "error", err)
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to list calendars", err)
	}
	if len(calendars) == 0 {
		return nil, errors.NewAppError(errors.ErrNotFound, "No calendars connected. Run an initial backfill first", nil)
	}

	totalSynced := 0
	failures := 0
	for i := range calendars {
		result := s.DeltaSync(ctx, userID, &calendars[i])
		totalSynced += result.EventsSynced
		if result.Status == dto.SyncStatusError {
			failures++
		}
	}

	s.appCache.Delete(ctx, syncStatusCacheKey(userID))

	if failures == len(calendars) {
		return nil, errors.NewAppError(errors.ErrUpstreamUnavailable, "Sync failed for all calendars", nil)
	}
	return &dto.SyncNowResponse{
		Status:       dto.SyncStatusCompleted,
		Message:      fmt.Sprintf("Synced %d calendars", len(calendars)-failures),
		EventsSynced: totalSynced,
	}, nil
}

// GetSyncStatus reports per-calendar sync bookkeeping, served from a short
// cache so status polling stays off the database.
func (s *syncService) GetSyncStatus(ctx context.Context, userID uuid.UUID) ([]dto.SyncStatusEntry, *errors.AppError) {
	cacheKey := syncStatusCacheKey(userID)
	if cached, ok := s.appCache.Get(ctx, cacheKey); ok {
		var entries []dto.SyncStatusEntry
		if err := json.Unmarshal([]byte(cached), &entries); err == nil {
			return entries, nil
		}
	}

	calendars, err := s.calendarRepo.ListByUser(ctx, userID)
	if err != nil {
		logger.Error("SyncService:GetSyncStatus:ListCalendars:Error", "user_id", userID, "error", err)
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to list calendars", err)
	}

	states, err := s.syncRepo.ListByUser(ctx, userID)
	if err != nil {
		logger.Error("SyncService:GetSyncStatus:ListStates:Error", "user_id", userID, "error", err)
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to load sync state", err)
	}
	byCalendar := make(map[uuid.UUID]*entity.SyncState, len(states))
	for i := range states {
		byCalendar[states[i].CalendarID] = &states[i]
	}

	entries := make([]dto.SyncStatusEntry, 0, len(calendars))
	for i := range calendars {
		cal := &calendars[i]
		entry := dto.SyncStatusEntry{
			CalendarID: cal.ID.String(),
			Summary:    cal.Summary,
		}
		if state := byCalendar[cal.ID]; state != nil {
			entry.LastFullSync = formatTimePtr(state.LastFullSyncAt)
			entry.LastDeltaSync = formatTimePtr(state.LastDeltaSyncAt)
			entry.CoverageBefore = formatTimePtr(state.BackfillBeforeTS)
			entry.CoverageAfter = formatTimePtr(state.BackfillAfterTS)
			entry.IsSyncing = state.IsSyncing
			entry.LastError = state.LastError
		}
		entries = append(entries, entry)
	}

	if data, err := json.Marshal(entries); err == nil {
		s.appCache.Set(ctx, cacheKey, string(data), constants.SyncStatusCacheTTL)
	}
	return entries, nil
}

// resolveCalendar maps a provider calendar onto the local registration,
// creating it on first sight and refreshing provider-owned metadata after.
func (s *syncService) resolveCalendar(ctx context.Context, userID uuid.UUID, externalAccountID string, remote dto.RemoteCalendar) (*entity.ConnectedCalendar, error) {
	existing, err := s.calendarRepo.GetByNaturalKey(ctx, userID, externalAccountID, remote.ID)
	if err != nil {
		return nil, err
	}

	color := remote.BackgroundColor
	if color == "" {
		color = entity.DefaultCalendarColor
	}
	accessRole := remote.AccessRole
	if accessRole == "" {
		accessRole = "reader"
	}
	var etag *string
	if remote.Etag != "" {
		etag = &remote.Etag
	}

	if existing == nil {
		cal := &entity.ConnectedCalendar{
			UserID:             userID,
			ExternalAccountID:  externalAccountID,
			ProviderCalendarID: remote.ID,
			Summary:            remote.Summary,
			Color:              color,
			AccessRole:         accessRole,
			Etag:               etag,
			Selected:           true,
		}
		if err := s.calendarRepo.Insert(ctx, cal); err != nil {
			return nil, err
		}
		return cal, nil
	}

	if err := s.calendarRepo.UpdateRemoteFields(ctx, existing.ID, remote.Summary, color, accessRole, etag); err != nil {
		return nil, err
	}
	existing.Summary = remote.Summary
	existing.Color = color
	existing.AccessRole = accessRole
	existing.Etag = etag
	return existing, nil
}

func syncStatusCacheKey(userID uuid.UUID) string {
	return "sync_status:" + userID.String()
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := t.UTC().Format(time.RFC3339)
	return &formatted
}
