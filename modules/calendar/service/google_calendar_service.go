package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"chronos-server/core/constants"
	"chronos-server/core/errors"
	"chronos-server/core/logger"
	authservice "chronos-server/modules/auth/service"
	"chronos-server/modules/calendar/dto"

	"github.com/google/uuid"
)

const googleCalendarBaseURL = "https://www.googleapis.com/calendar/v3"

// GoogleCalendarAPI is the outbound surface to the provider. Every call
// resolves the user's access token per attempt, so a token refreshed
// mid-retry is picked up automatically.
type GoogleCalendarAPI interface {
	ListCalendars(ctx context.Context, userID uuid.UUID) ([]dto.RemoteCalendar, *errors.AppError)
	ListEvents(ctx context.Context, userID uuid.UUID, calendarID string, query dto.EventsQuery) (*dto.RemoteEventList, *errors.AppError)
	GetEvent(ctx context.Context, userID uuid.UUID, calendarID, eventID string) (*dto.RemoteEvent, *errors.AppError)
	CreateEvent(ctx context.Context, userID uuid.UUID, calendarID string, eventData map[string]any, sendNotifications bool) (map[string]any, *errors.AppError)
	UpdateEvent(ctx context.Context, userID uuid.UUID, calendarID, eventID string, eventData map[string]any, sendNotifications bool) (map[string]any, *errors.AppError)
	PatchEvent(ctx context.Context, userID uuid.UUID, calendarID, eventID string, eventData map[string]any, sendNotifications bool) (map[string]any, *errors.AppError)
	DeleteEvent(ctx context.Context, userID uuid.UUID, calendarID, eventID string, sendNotifications bool) *errors.AppError
	RespondToEvent(ctx context.Context, userID uuid.UUID, calendarID, eventID, responseStatus string) (map[string]any, *errors.AppError)
}

type googleCalendarService struct {
	credentials authservice.CredentialsService
	baseURL     string
	backoff     time.Duration
}

func NewGoogleCalendarAPI(credentials authservice.CredentialsService) GoogleCalendarAPI {
	return &googleCalendarService{
		credentials: credentials,
		baseURL:     googleCalendarBaseURL,
		backoff:     constants.ProviderRetryBackoff,
	}
}

func (s *googleCalendarService) ListCalendars(ctx context.Context, userID uuid.UUID) ([]dto.RemoteCalendar, *errors.AppError) {
	body, status, appErr := s.do(ctx, userID, http.MethodGet, "/users/me/calendarList", nil, nil)
	if appErr != nil {
		return nil, appErr
	}
	if status != http.StatusOK {
		return nil, s.apiError("ListCalendars", status, body)
	}

	var list struct {
		Items []dto.RemoteCalendar `json:"items"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		logger.Error("GoogleCalendarService:ListCalendars:Unmarshal:Error", "error", err)
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to parse calendar list response", err)
	}
	return list.Items, nil
}

func (s *googleCalendarService) ListEvents(ctx context.Context, userID uuid.UUID, calendarID string, query dto.EventsQuery) (*dto.RemoteEventList, *errors.AppError) {
	values := url.Values{}
	values.Set("maxResults", strconv.Itoa(query.MaxResults))
	values.Set("conferenceDataVersion", "1")
	if query.SingleEvents {
		values.Set("singleEvents", "true")
	}
	if query.ShowDeleted {
		values.Set("showDeleted", "true")
	}
	if query.OrderBy != "" {
		values.Set("orderBy", query.OrderBy)
	}
	if query.PageToken != "" {
		values.Set("pageToken", query.PageToken)
	}
	if query.SyncToken != "" {
		// Incremental mode: the provider rejects window parameters here.
		values.Set("syncToken", query.SyncToken)
	} else {
		if !query.TimeMin.IsZero() {
			values.Set("timeMin", query.TimeMin.UTC().Format(time.RFC3339))
		}
		if !query.TimeMax.IsZero() {
			values.Set("timeMax", query.TimeMax.UTC().Format(time.RFC3339))
		}
	}

	path := fmt.Sprintf("/calendars/%s/events", url.PathEscape(calendarID))
	body, status, appErr := s.do(ctx, userID, http.MethodGet, path, values, nil)
	if appErr != nil {
		return nil, appErr
	}
	if status == http.StatusGone && query.SyncToken != "" {
		return nil, errors.NewAppError(errors.ErrSyncTokenExpired, "Sync token expired, full resync required", nil)
	}
	if status != http.StatusOK {
		return nil, s.apiError("ListEvents", status, body)
	}

	var list dto.RemoteEventList
	if err := json.Unmarshal(body, &list); err != nil {
		logger.Error("GoogleCalendarService:ListEvents:Unmarshal:Error", "error", err)
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to parse events response", err)
	}
	return &list, nil
}

func (s *googleCalendarService) GetEvent(ctx context.Context, userID uuid.UUID, calendarID, eventID string) (*dto.RemoteEvent, *errors.AppError) {
	path := fmt.Sprintf("/calendars/%s/events/%s", url.PathEscape(calendarID), url.PathEscape(eventID))
	values := url.Values{}
	values.Set("conferenceDataVersion", "1")

	body, status, appErr := s.do(ctx, userID, http.MethodGet, path, values, nil)
	if appErr != nil {
		return nil, appErr
	}
	if status != http.StatusOK {
		return nil, s.apiError("GetEvent", status, body)
	}

	var event dto.RemoteEvent
	if err := json.Unmarshal(body, &event); err != nil {
		logger.Error("GoogleCalendarService:GetEvent:Unmarshal:Error", "error", err)
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to parse event response", err)
	}
	return &event, nil
}

func (s *googleCalendarService) CreateEvent(ctx context.Context, userID uuid.UUID, calendarID string, eventData map[string]any, sendNotifications bool) (map[string]any, *errors.AppError) {
	path := fmt.Sprintf("/calendars/%s/events", url.PathEscape(calendarID))
	return s.writeEvent(ctx, "CreateEvent", userID, http.MethodPost, path, eventData, sendNotifications)
}

func (s *googleCalendarService) UpdateEvent(ctx context.Context, userID uuid.UUID, calendarID, eventID string, eventData map[string]any, sendNotifications bool) (map[string]any, *errors.AppError) {
	path := fmt.Sprintf("/calendars/%s/events/%s", url.PathEscape(calendarID), url.PathEscape(eventID))
	return s.writeEvent(ctx, "UpdateEvent", userID, http.MethodPut, path, eventData, sendNotifications)
}

func (s *googleCalendarService) PatchEvent(ctx context.Context, userID uuid.UUID, calendarID, eventID string, eventData map[string]any, sendNotifications bool) (map[string]any, *errors.AppError) {
	path := fmt.Sprintf("/calendars/%s/events/%s", url.PathEscape(calendarID), url.PathEscape(eventID))
	return s.writeEvent(ctx, "PatchEvent", userID, http.MethodPatch, path, eventData, sendNotifications)
}

// DeleteEvent removes an event at the provider. An event that is already gone
// counts as deleted.
func (s *googleCalendarService) DeleteEvent(ctx context.Context, userID uuid.UUID, calendarID, eventID string, sendNotifications bool) *errors.AppError {
	path := fmt.Sprintf("/calendars/%s/events/%s", url.PathEscape(calendarID), url.PathEscape(eventID))
	values := url.Values{}
	values.Set("sendUpdates", sendUpdatesValue(sendNotifications))

	body, status, appErr := s.do(ctx, userID, http.MethodDelete, path, values, nil)
	if appErr != nil {
		return appErr
	}
	switch status {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound, http.StatusGone:
		return nil
	}
	return s.apiError("DeleteEvent", status, body)
}

// RespondToEvent sets the calling user's attendance answer by patching the
// event's attendee list.
func (s *googleCalendarService) RespondToEvent(ctx context.Context, userID uuid.UUID, calendarID, eventID, responseStatus string) (map[string]any, *errors.AppError) {
	event, appErr := s.GetEvent(ctx, userID, calendarID, eventID)
	if appErr != nil {
		return nil, appErr
	}

	found := false
	attendees := make([]map[string]any, 0, len(event.Attendees))
	for _, attendee := range event.Attendees {
		entry := map[string]any{
			"email":          attendee.Email,
			"responseStatus": attendee.ResponseStatus,
		}
		if attendee.Self {
			entry["responseStatus"] = responseStatus
			found = true
		}
		attendees = append(attendees, entry)
	}
	if !found {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "User is not an attendee of this event", nil)
	}

	return s.PatchEvent(ctx, userID, calendarID, eventID, map[string]any{"attendees": attendees}, true)
}

func (s *googleCalendarService) writeEvent(ctx context.Context, op string, userID uuid.UUID, method, path string, eventData map[string]any, sendNotifications bool) (map[string]any, *errors.AppError) {
	values := url.Values{}
	values.Set("sendUpdates", sendUpdatesValue(sendNotifications))
	values.Set("conferenceDataVersion", "1")

	body, status, appErr := s.do(ctx, userID, method, path, values, eventData)
	if appErr != nil {
		return nil, appErr
	}
	if status != http.StatusOK {
		return nil, s.apiError(op, status, body)
	}

	var result map[string]any
	if err := json.Unmarshal(body, &result); err != nil {
		logger.Error("GoogleCalendarService:"+op+":Unmarshal:Error", "error", err)
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to parse event response", err)
	}
	return result, nil
}

// do issues one provider call with bounded retries. Client errors are final
// on the first response; network failures, throttling and provider 5xx are
// retried with a fresh session and token each attempt. Returns the final
// response body and status so callers can apply operation-specific handling.
func (s *googleCalendarService) do(ctx context.Context, userID uuid.UUID, method, path string, values url.Values, payload any) ([]byte, int, *errors.AppError) {
	var lastErr error

	for attempt := 1; attempt <= constants.ProviderMaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, 0, errors.NewAppError(errors.ErrUpstreamUnavailable, "Calendar provider request cancelled", ctx.Err())
			case <-time.After(s.backoff):
			}
		}

		token, appErr := s.credentials.AccessToken(ctx, userID)
		if appErr != nil {
			return nil, 0, appErr
		}

		body, status, err := s.attempt(ctx, token, method, path, values, payload)
		if err != nil {
			lastErr = err
			logger.Warn("GoogleCalendarService:do:AttemptError",
				"method", method, "path", path, "attempt", attempt, "error", err)
			continue
		}

		if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
			lastErr = fmt.Errorf("calendar provider returned %d", status)
			logger.Warn("GoogleCalendarService:do:TransientStatus",
				"method", method, "path", path, "attempt", attempt, "status", status)
			continue
		}

		return body, status, nil
	}

	logger.Error("GoogleCalendarService:do:Exhausted",
		"method", method, "path", path, "attempts", constants.ProviderMaxAttempts, "error", lastErr)
	return nil, 0, errors.NewAppError(errors.ErrUpstreamUnavailable, "Calendar provider unavailable", lastErr)
}

func (s *googleCalendarService) attempt(ctx context.Context, token, method, path string, values url.Values, payload any) ([]byte, int, error) {
	apiURL := s.baseURL + path
	if len(values) > 0 {
		apiURL += "?" + values.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reqBody)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: constants.ProviderCallTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

func (s *googleCalendarService) apiError(op string, status int, body []byte) *errors.AppError {
	logger.Error("GoogleCalendarService:"+op+":APIError", "status", status, "body", string(body))

	switch status {
	case http.StatusBadRequest:
		return errors.NewAppError(errors.ErrInvalidInput, "Calendar provider rejected the request", nil)
	case http.StatusUnauthorized:
		return errors.NewAppError(errors.ErrUnauthorized, "Calendar provider rejected the credentials", nil)
	case http.StatusForbidden:
		return errors.NewAppError(errors.ErrForbidden, "Calendar provider denied access", nil)
	case http.StatusNotFound, http.StatusGone:
		return errors.NewAppError(errors.ErrNotFound, "Calendar resource not found", nil)
	}
	return errors.NewAppError(errors.ErrUpstreamUnavailable,
		fmt.Sprintf("Calendar provider error: %d", status), nil)
}

func sendUpdatesValue(sendNotifications bool) string {
	if sendNotifications {
		return "all"
	}
	return "none"
}
