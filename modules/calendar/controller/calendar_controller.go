package controller

import (
	"context"
	"time"

	"chronos-server/core/controller"
	"chronos-server/core/errors"
	"chronos-server/core/middleware"
	"chronos-server/core/params"
	authdto "chronos-server/modules/auth/dto"
	authservice "chronos-server/modules/auth/service"
	"chronos-server/modules/calendar/dto"
	"chronos-server/modules/calendar/service"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type CalendarController struct {
	controller.BaseController
	calendarService service.CalendarService
	syncService     service.SyncService
	credsService    authservice.CredentialsService
}

func NewCalendarController(
	calendarService service.CalendarService,
	syncService service.SyncService,
	credsService authservice.CredentialsService,
) *CalendarController {
	return &CalendarController{
		BaseController:  controller.NewBaseController(),
		calendarService: calendarService,
		syncService:     syncService,
		credsService:    credsService,
	}
}

func (c *CalendarController) userID(ctx echo.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Get(middleware.ContextUserID).(uuid.UUID)
	return userID, ok
}

// SaveCredentials links a Google account and queues the initial backfill.
// POST /api/v1/calendar/credentials
func (c *CalendarController) SaveCredentials(ctx echo.Context) error {
	userID, ok := c.userID(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Invalid session")
	}

	var req authdto.SaveCredentialsRequest
	if err := ctx.Bind(&req); err != nil {
		return c.BadRequest(errors.ErrInvalidRequestData, "Invalid request body")
	}

	if appErr := c.credsService.Save(ctx.Request().Context(), userID, &req); appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}

	resp, appErr := c.syncService.SyncNow(ctx.Request().Context(), userID, &dto.SyncNowRequest{InitialBackfill: true})
	if appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}
	return c.SuccessResponse(ctx, resp, "Credentials saved")
}

// ListCalendars returns the user's connected calendars.
// GET /api/v1/calendar/calendars
func (c *CalendarController) ListCalendars(ctx echo.Context) error {
	userID, ok := c.userID(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Invalid session")
	}

	calendars, appErr := c.calendarService.ListConnectedCalendars(ctx.Request().Context(), userID)
	if appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}
	return c.SuccessResponse(ctx, calendars, "")
}

// ListRemoteCalendars pages through the provider's calendar list.
// GET /api/v1/calendar/calendars/remote?page=&page_size=
func (c *CalendarController) ListRemoteCalendars(ctx echo.Context) error {
	userID, ok := c.userID(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Invalid session")
	}

	page, appErr := c.calendarService.ListRemoteCalendars(ctx.Request().Context(), userID, params.FromContext(ctx))
	if appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}
	return c.SuccessResponse(ctx, page, "")
}

// ListEvents proxies an expanded event listing from the provider.
// GET /api/v1/calendar/events?calendar_id=&time_min=&time_max=
func (c *CalendarController) ListEvents(ctx echo.Context) error {
	userID, ok := c.userID(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Invalid session")
	}

	timeMin, err := parseTimeParam(ctx.QueryParam("time_min"), time.Now().UTC())
	if err != nil {
		return c.BadRequest(errors.ErrInvalidInput, "time_min must be RFC3339")
	}
	timeMax, err := parseTimeParam(ctx.QueryParam("time_max"), timeMin.AddDate(0, 1, 0))
	if err != nil {
		return c.BadRequest(errors.ErrInvalidInput, "time_max must be RFC3339")
	}

	events, appErr := c.calendarService.ListRemoteEvents(ctx.Request().Context(), userID, ctx.QueryParam("calendar_id"), timeMin, timeMax)
	if appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}
	return c.SuccessResponse(ctx, events, "")
}

// CreateEvent creates an event at the provider.
// POST /api/v1/calendar/events
func (c *CalendarController) CreateEvent(ctx echo.Context) error {
	userID, ok := c.userID(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Invalid session")
	}

	var req dto.WriteEventRequest
	if err := ctx.Bind(&req); err != nil {
		return c.BadRequest(errors.ErrInvalidRequestData, "Invalid request body")
	}

	created, appErr := c.calendarService.CreateEvent(ctx.Request().Context(), userID, &req)
	if appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}
	return c.SuccessResponse(ctx, created, "Event created")
}

// UpdateEvent replaces an event at the provider.
// PUT /api/v1/calendar/events/:id
func (c *CalendarController) UpdateEvent(ctx echo.Context) error {
	return c.writeEvent(ctx, c.calendarService.UpdateEvent, "Event updated")
}

// PatchEvent partially updates an event at the provider.
// PATCH /api/v1/calendar/events/:id
func (c *CalendarController) PatchEvent(ctx echo.Context) error {
	return c.writeEvent(ctx, c.calendarService.PatchEvent, "Event updated")
}

func (c *CalendarController) writeEvent(
	ctx echo.Context,
	write func(reqCtx context.Context, userID uuid.UUID, eventID string, req *dto.WriteEventRequest) (map[string]any, *errors.AppError),
	message string,
) error {
	userID, ok := c.userID(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Invalid session")
	}

	eventID := ctx.Param("id")
	if eventID == "" {
		return c.BadRequest(errors.ErrInvalidInput, "event id is required")
	}

	var req dto.WriteEventRequest
	if err := ctx.Bind(&req); err != nil {
		return c.BadRequest(errors.ErrInvalidRequestData, "Invalid request body")
	}

	updated, appErr := write(ctx.Request().Context(), userID, eventID, &req)
	if appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}
	return c.SuccessResponse(ctx, updated, message)
}

// DeleteEvent removes an event at the provider.
// DELETE /api/v1/calendar/events/:id?calendar_id=&send_notifications=
func (c *CalendarController) DeleteEvent(ctx echo.Context) error {
	userID, ok := c.userID(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Invalid session")
	}

	eventID := ctx.Param("id")
	if eventID == "" {
		return c.BadRequest(errors.ErrInvalidInput, "event id is required")
	}

	sendNotifications := ctx.QueryParam("send_notifications") == "true"
	appErr := c.calendarService.DeleteEvent(ctx.Request().Context(), userID, ctx.QueryParam("calendar_id"), eventID, sendNotifications)
	if appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}
	return c.SuccessResponse(ctx, nil, "Event deleted")
}

// RespondToEvent answers an invitation.
// POST /api/v1/calendar/events/:id/respond
func (c *CalendarController) RespondToEvent(ctx echo.Context) error {
	userID, ok := c.userID(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Invalid session")
	}

	eventID := ctx.Param("id")
	if eventID == "" {
		return c.BadRequest(errors.ErrInvalidInput, "event id is required")
	}

	var req dto.RespondRequest
	if err := ctx.Bind(&req); err != nil {
		return c.BadRequest(errors.ErrInvalidRequestData, "Invalid request body")
	}

	updated, appErr := c.calendarService.RespondToEvent(ctx.Request().Context(), userID, eventID, &req)
	if appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}
	return c.SuccessResponse(ctx, updated, "Response recorded")
}

// SyncNow triggers a sync pass.
// POST /api/v1/calendar/sync
func (c *CalendarController) SyncNow(ctx echo.Context) error {
	userID, ok := c.userID(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Invalid session")
	}

	var req dto.SyncNowRequest
	if err := ctx.Bind(&req); err != nil {
		return c.BadRequest(errors.ErrInvalidRequestData, "Invalid request body")
	}

	resp, appErr := c.syncService.SyncNow(ctx.Request().Context(), userID, &req)
	if appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}
	return c.SuccessResponse(ctx, resp, "")
}

// GetSyncStatus reports per-calendar sync bookkeeping.
// GET /api/v1/calendar/sync/status
func (c *CalendarController) GetSyncStatus(ctx echo.Context) error {
	userID, ok := c.userID(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Invalid session")
	}

	entries, appErr := c.syncService.GetSyncStatus(ctx.Request().Context(), userID)
	if appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}
	return c.SuccessResponse(ctx, entries, "")
}

// GetLocalEvents serves the mirrored read path.
// GET /api/v1/calendar/local/events?from=&to=
func (c *CalendarController) GetLocalEvents(ctx echo.Context) error {
	userID, ok := c.userID(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Invalid session")
	}

	from, err := time.Parse(time.RFC3339, ctx.QueryParam("from"))
	if err != nil {
		return c.BadRequest(errors.ErrInvalidInput, "from must be RFC3339")
	}
	to, err := time.Parse(time.RFC3339, ctx.QueryParam("to"))
	if err != nil {
		return c.BadRequest(errors.ErrInvalidInput, "to must be RFC3339")
	}

	resp, appErr := c.calendarService.GetLocalEventsInRange(ctx.Request().Context(), userID, from, to)
	if appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}
	return c.SuccessResponse(ctx, resp, "")
}

func parseTimeParam(value string, fallback time.Time) (time.Time, error) {
	if value == "" {
		return fallback, nil
	}
	return time.Parse(time.RFC3339, value)
}
