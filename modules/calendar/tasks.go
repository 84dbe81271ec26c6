package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chronos-server/core/logger"
	"chronos-server/core/tasks"
	"chronos-server/modules/calendar/dto"
	"chronos-server/modules/calendar/repository"
	"chronos-server/modules/calendar/service"

	"github.com/hibiken/asynq"
)

// taskHandler runs the queued sync work. Tasks are enqueued without retries;
// a failed pass is recorded in the calendar's sync state and surfaces through
// the status endpoint rather than the queue.
type taskHandler struct {
	syncService  service.SyncService
	calendarRepo repository.CalendarRepository
}

func registerTasks(mux *asynq.ServeMux, syncService service.SyncService, calendarRepo repository.CalendarRepository) {
	h := &taskHandler{syncService: syncService, calendarRepo: calendarRepo}
	mux.HandleFunc(tasks.TypeCalendarBackfill, h.handleBackfill)
	mux.HandleFunc(tasks.TypeCalendarDeltaSync, h.handleDeltaSync)
}

func (h *taskHandler) handleBackfill(ctx context.Context, task *asynq.Task) error {
	var payload tasks.BackfillPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid backfill payload: %w", err)
	}

	var before, after *time.Time
	if payload.BackfillBeforeTS != "" {
		if ts, err := time.Parse(time.RFC3339, payload.BackfillBeforeTS); err == nil {
			before = &ts
		}
	}
	if payload.BackfillAfterTS != "" {
		if ts, err := time.Parse(time.RFC3339, payload.BackfillAfterTS); err == nil {
			after = &ts
		}
	}

	synced, appErr := h.syncService.Backfill(ctx, payload.UserID, payload.ExternalAccountID, before, after)
	if appErr != nil {
		logger.Error("CalendarTasks:Backfill:Error", "user_id", payload.UserID, "error", appErr)
		return appErr
	}
	logger.Info("CalendarTasks:Backfill:Done", "user_id", payload.UserID, "events_synced", synced)
	return nil
}

func (h *taskHandler) handleDeltaSync(ctx context.Context, task *asynq.Task) error {
	var payload tasks.DeltaSyncPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid delta sync payload: %w", err)
	}

	calendars, err := h.calendarRepo.ListByUser(ctx, payload.UserID)
	if err != nil {
		logger.Error("CalendarTasks:DeltaSync:ListCalendars:Error", "user_id", payload.UserID, "error", err)
		return err
	}

	synced := 0
	for i := range calendars {
		result := h.syncService.DeltaSync(ctx, payload.UserID, &calendars[i])
		synced += result.EventsSynced
		if result.Status == dto.SyncStatusError {
			logger.Warn("CalendarTasks:DeltaSync:CalendarFailed",
				"user_id", payload.UserID, "calendar_id", calendars[i].ID, "error", result.Error)
		}
	}
	logger.Info("CalendarTasks:DeltaSync:Done", "user_id", payload.UserID, "events_synced", synced)
	return nil
}
