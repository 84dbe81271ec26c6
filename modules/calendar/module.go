package calendar

import (
	"chronos-server/core/cache"
	"chronos-server/core/database"
	"chronos-server/core/middleware"
	"chronos-server/core/tasks"
	"chronos-server/modules/auth"
	"chronos-server/modules/calendar/controller"
	"chronos-server/modules/calendar/repository"
	"chronos-server/modules/calendar/router"
	"chronos-server/modules/calendar/service"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
)

func Init(e *echo.Echo, db database.Database, appCache cache.Cache, taskClient *tasks.Client, mux *asynq.ServeMux) {
	calendarRepo := repository.NewCalendarRepository(db)
	eventRepo := repository.NewEventRepository(db)
	syncRepo := repository.NewSyncStateRepository(db)

	credsService := auth.GetCredentialsService(db)
	api := service.NewGoogleCalendarAPI(credsService)
	expander := service.NewRecurrenceExpander(eventRepo)

	syncService := service.NewSyncService(api, calendarRepo, eventRepo, syncRepo, expander, appCache, taskClient)
	calendarService := service.NewCalendarService(api, calendarRepo, eventRepo, syncRepo)

	calendarController := controller.NewCalendarController(calendarService, syncService, credsService)

	mw := middleware.NewMiddleware()
	router.NewCalendarRouter(calendarController).Setup(e, mw)

	registerTasks(mux, syncService, calendarRepo)
}
