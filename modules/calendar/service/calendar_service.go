package service

import (
	"context"
	"sort"
	"strings"
	"time"

	coredto "chronos-server/core/dto"
	"chronos-server/core/errors"
	"chronos-server/core/logger"
	"chronos-server/core/params"
	"chronos-server/modules/calendar/dto"
	"chronos-server/modules/calendar/entity"
	"chronos-server/modules/calendar/repository"

	"github.com/google/uuid"
)

// CalendarService serves the two event surfaces: the local mirror read path
// and the pass-through proxy for provider reads and writes.
type CalendarService interface {
	GetLocalEventsInRange(ctx context.Context, userID uuid.UUID, from, to time.Time) (*dto.LocalEventsResponse, *errors.AppError)
	ListConnectedCalendars(ctx context.Context, userID uuid.UUID) ([]dto.ConnectedCalendarResponse, *errors.AppError)
	ListRemoteCalendars(ctx context.Context, userID uuid.UUID, queryParams params.QueryParams) (*coredto.Pagination[dto.RemoteCalendar], *errors.AppError)
	ListRemoteEvents(ctx context.Context, userID uuid.UUID, calendarID string, timeMin, timeMax time.Time) ([]dto.RemoteEvent, *errors.AppError)
	CreateEvent(ctx context.Context, userID uuid.UUID, req *dto.WriteEventRequest) (map[string]any, *errors.AppError)
	UpdateEvent(ctx context.Context, userID uuid.UUID, eventID string, req *dto.WriteEventRequest) (map[string]any, *errors.AppError)
	PatchEvent(ctx context.Context, userID uuid.UUID, eventID string, req *dto.WriteEventRequest) (map[string]any, *errors.AppError)
	DeleteEvent(ctx context.Context, userID uuid.UUID, calendarID, eventID string, sendNotifications bool) *errors.AppError
	RespondToEvent(ctx context.Context, userID uuid.UUID, eventID string, req *dto.RespondRequest) (map[string]any, *errors.AppError)
}

type calendarService struct {
	api          GoogleCalendarAPI
	calendarRepo repository.CalendarRepository
	eventRepo    repository.EventRepository
	syncRepo     repository.SyncStateRepository
}

func NewCalendarService(
	api GoogleCalendarAPI,
	calendarRepo repository.CalendarRepository,
	eventRepo repository.EventRepository,
	syncRepo repository.SyncStateRepository,
) CalendarService {
	return &calendarService{
		api:          api,
		calendarRepo: calendarRepo,
		eventRepo:    eventRepo,
		syncRepo:     syncRepo,
	}
}

// GetLocalEventsInRange reads the mirror without touching the provider:
// non-recurring events plus materialized occurrences of recurring series,
// merged and sorted by start. Coverage flags tell the caller whether the
// backfilled window reaches each edge of the requested range.
func (s *calendarService) GetLocalEventsInRange(ctx context.Context, userID uuid.UUID, from, to time.Time) (*dto.LocalEventsResponse, *errors.AppError) {
	if !from.Before(to) {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "Invalid time range: from must precede to", nil)
	}

	events, err := s.eventRepo.ListInRange(ctx, userID, from, to)
	if err != nil {
		logger.Error("CalendarService:GetLocalEventsInRange:ListEvents:Error", "user_id", userID, "error", err)
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to load events", err)
	}

	instances, err := s.eventRepo.ListInstancesInRange(ctx, userID, from, to)
	if err != nil {
		logger.Error("CalendarService:GetLocalEventsInRange:ListInstances:Error", "user_id", userID, "error", err)
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to load event instances", err)
	}

	merged := make([]dto.LocalEvent, 0, len(events)+len(instances))
	for i := range events {
		merged = append(merged, toLocalEvent(&events[i]))
	}
	for i := range instances {
		merged = append(merged, toLocalInstance(&instances[i]))
	}
	sortLocalEvents(merged)

	coverage, lastSyncedAt, appErr := s.rangeCoverage(ctx, userID, from, to)
	if appErr != nil {
		return nil, appErr
	}

	return &dto.LocalEventsResponse{
		Events:       merged,
		Coverage:     coverage,
		LastSyncedAt: lastSyncedAt,
	}, nil
}

// rangeCoverage checks the requested range against the backfilled bounds of
// every synced calendar. An edge counts as covered when at least one calendar
// has been backfilled past it.
func (s *calendarService) rangeCoverage(ctx context.Context, userID uuid.UUID, from, to time.Time) (dto.RangeCoverage, *string, *errors.AppError) {
	states, err := s.syncRepo.ListByUser(ctx, userID)
	if err != nil {
		logger.Error("CalendarService:rangeCoverage:ListStates:Error", "user_id", userID, "error", err)
		return dto.RangeCoverage{}, nil, errors.NewAppError(errors.ErrInternalServer, "failed to load sync state", err)
	}

	coverage := dto.RangeCoverage{}
	var lastSynced *time.Time
	for i := range states {
		state := &states[i]
		if state.BackfillBeforeTS != nil && !state.BackfillBeforeTS.After(from) {
			coverage.HasBefore = true
		}
		if state.BackfillAfterTS != nil && !state.BackfillAfterTS.Before(to) {
			coverage.HasAfter = true
		}
		for _, ts := range []*time.Time{state.LastFullSyncAt, state.LastDeltaSyncAt} {
			if ts != nil && (lastSynced == nil || ts.After(*lastSynced)) {
				lastSynced = ts
			}
		}
	}
	return coverage, formatTimePtr(lastSynced), nil
}

func (s *calendarService) ListConnectedCalendars(ctx context.Context, userID uuid.UUID) ([]dto.ConnectedCalendarResponse, *errors.AppError) {
	calendars, err := s.calendarRepo.ListByUser(ctx, userID)
	if err != nil {
		logger.Error("CalendarService:ListConnectedCalendars:Error", "user_id", userID, "error", err)
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to list calendars", err)
	}

	result := make([]dto.ConnectedCalendarResponse, 0, len(calendars))
	for i := range calendars {
		cal := &calendars[i]
		result = append(result, dto.ConnectedCalendarResponse{
			ID:                 cal.ID.String(),
			ProviderCalendarID: cal.ProviderCalendarID,
			Summary:            cal.Summary,
			Color:              cal.Color,
			AccessRole:         cal.AccessRole,
			Selected:           cal.Selected,
		})
	}
	return result, nil
}

// ListRemoteCalendars pages through the provider's full calendar list. The
// provider returns the whole list at once, so paging is applied locally.
func (s *calendarService) ListRemoteCalendars(ctx context.Context, userID uuid.UUID, queryParams params.QueryParams) (*coredto.Pagination[dto.RemoteCalendar], *errors.AppError) {
	if queryParams.PageNumber <= 0 {
		queryParams.PageNumber = 1
	}
	if queryParams.PageSize <= 0 {
		queryParams.PageSize = 20
	}

	calendars, appErr := s.api.ListCalendars(ctx, userID)
	if appErr != nil {
		return nil, appErr
	}

	totalItems := len(calendars)
	totalPages := (totalItems + queryParams.PageSize - 1) / queryParams.PageSize
	offset := (queryParams.PageNumber - 1) * queryParams.PageSize
	end := offset + queryParams.PageSize

	page := []dto.RemoteCalendar{}
	if offset < totalItems {
		if end > totalItems {
			end = totalItems
		}
		page = calendars[offset:end]
	}

	return &coredto.Pagination[dto.RemoteCalendar]{
		Items:      page,
		TotalItems: totalItems,
		TotalPages: totalPages,
		PageNumber: queryParams.PageNumber,
		PageSize:   queryParams.PageSize,
	}, nil
}

// ListRemoteEvents proxies an expanded event listing straight from the
// provider. Occurrences come back without their series rule, so each one is
// enriched with the master's recurrence; masters are fetched at most once per
// call.
func (s *calendarService) ListRemoteEvents(ctx context.Context, userID uuid.UUID, calendarID string, timeMin, timeMax time.Time) ([]dto.RemoteEvent, *errors.AppError) {
	if calendarID == "" {
		calendarID = "primary"
	}

	list, appErr := s.api.ListEvents(ctx, userID, calendarID, dto.EventsQuery{
		TimeMin:      timeMin,
		TimeMax:      timeMax,
		SingleEvents: true,
		OrderBy:      "startTime",
		MaxResults:   250,
	})
	if appErr != nil {
		return nil, appErr
	}

	masters := map[string][]string{}
	for i := range list.Items {
		item := &list.Items[i]
		if item.RecurringEventID == "" || len(item.Recurrence) > 0 {
			continue
		}
		rule, cached := masters[item.RecurringEventID]
		if !cached {
			master, appErr := s.api.GetEvent(ctx, userID, calendarID, item.RecurringEventID)
			if appErr != nil {
				logger.Warn("CalendarService:ListRemoteEvents:GetMaster:Error",
					"event_id", item.RecurringEventID, "error", appErr)
				masters[item.RecurringEventID] = nil
				continue
			}
			rule = master.Recurrence
			masters[item.RecurringEventID] = rule
		}
		item.Recurrence = rule
	}

	return list.Items, nil
}

func (s *calendarService) CreateEvent(ctx context.Context, userID uuid.UUID, req *dto.WriteEventRequest) (map[string]any, *errors.AppError) {
	calendarID, eventData, appErr := prepareWrite(req)
	if appErr != nil {
		return nil, appErr
	}
	return s.api.CreateEvent(ctx, userID, calendarID, eventData, req.SendNotifications)
}

func (s *calendarService) UpdateEvent(ctx context.Context, userID uuid.UUID, eventID string, req *dto.WriteEventRequest) (map[string]any, *errors.AppError) {
	calendarID, eventData, appErr := prepareWrite(req)
	if appErr != nil {
		return nil, appErr
	}
	return s.api.UpdateEvent(ctx, userID, calendarID, eventID, eventData, req.SendNotifications)
}

func (s *calendarService) PatchEvent(ctx context.Context, userID uuid.UUID, eventID string, req *dto.WriteEventRequest) (map[string]any, *errors.AppError) {
	calendarID, eventData, appErr := prepareWrite(req)
	if appErr != nil {
		return nil, appErr
	}
	return s.api.PatchEvent(ctx, userID, calendarID, eventID, eventData, req.SendNotifications)
}

func (s *calendarService) DeleteEvent(ctx context.Context, userID uuid.UUID, calendarID, eventID string, sendNotifications bool) *errors.AppError {
	if calendarID == "" {
		calendarID = "primary"
	}
	return s.api.DeleteEvent(ctx, userID, calendarID, eventID, sendNotifications)
}

func (s *calendarService) RespondToEvent(ctx context.Context, userID uuid.UUID, eventID string, req *dto.RespondRequest) (map[string]any, *errors.AppError) {
	switch req.ResponseStatus {
	case "accepted", "declined", "tentative":
	default:
		return nil, errors.NewAppError(errors.ErrInvalidInput, "response_status must be accepted, declined or tentative", nil)
	}

	calendarID := req.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}
	return s.api.RespondToEvent(ctx, userID, calendarID, eventID, req.ResponseStatus)
}

func prepareWrite(req *dto.WriteEventRequest) (string, map[string]any, *errors.AppError) {
	if len(req.EventData) == 0 {
		return "", nil, errors.NewAppError(errors.ErrInvalidInput, "event_data is required", nil)
	}
	calendarID := req.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}
	return calendarID, normalizeWriteLocation(req.EventData), nil
}

// normalizeWriteLocation flattens a structured location object into the plain
// text field the provider expects. Clients sometimes send their place-picker
// payload as-is.
func normalizeWriteLocation(eventData map[string]any) map[string]any {
	raw, ok := eventData["location"]
	if !ok {
		return eventData
	}

	switch loc := raw.(type) {
	case string:
		eventData["location"] = strings.TrimSpace(loc)
	case map[string]any:
		text := ""
		for _, key := range []string{"displayName", "formattedAddress", "name", "address"} {
			if v, ok := loc[key].(string); ok && v != "" {
				text = v
				break
			}
		}
		if text == "" {
			delete(eventData, "location")
		} else {
			eventData["location"] = text
		}
	default:
		delete(eventData, "location")
	}
	return eventData
}

func toLocalEvent(event *entity.Event) dto.LocalEvent {
	return dto.LocalEvent{
		ID:             event.ID.String(),
		CalendarID:     event.CalendarID.String(),
		ExternalID:     event.ExternalID,
		Summary:        event.Summary,
		Description:    event.Description,
		Location:       event.Location,
		HangoutLink:    event.HangoutLink,
		Start:          event.StartTS.UTC().Format(time.RFC3339),
		End:            event.EndTS.UTC().Format(time.RFC3339),
		IsAllDay:       event.IsAllDay,
		Status:         event.Status,
		IsRecurring:    false,
		OrganizerEmail: event.OrganizerEmail,
		Attendees:      event.Attendees,
	}
}

func toLocalInstance(row *repository.RecurringInstanceRow) dto.LocalEvent {
	return dto.LocalEvent{
		ID:             row.EventID.String(),
		CalendarID:     row.CalendarID.String(),
		ExternalID:     row.ExternalID,
		Summary:        row.Summary,
		Description:    row.Description,
		Location:       row.Location,
		HangoutLink:    row.HangoutLink,
		Start:          row.InstanceStartTS.UTC().Format(time.RFC3339),
		End:            row.InstanceEndTS.UTC().Format(time.RFC3339),
		IsAllDay:       row.IsAllDay,
		Status:         row.Status,
		IsRecurring:    true,
		RecurrenceRule: row.RecurrenceRule,
		OrganizerEmail: row.OrganizerEmail,
		Attendees:      row.Attendees,
	}
}

func sortLocalEvents(events []dto.LocalEvent) {
	// RFC3339 in UTC sorts lexicographically.
	sort.Slice(events, func(i, j int) bool {
		return events[i].Start < events[j].Start
	})
}
