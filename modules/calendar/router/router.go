package router

import (
	"chronos-server/core/middleware"
	"chronos-server/modules/calendar/controller"

	"github.com/labstack/echo/v4"
)

type CalendarRouter struct {
	controller *controller.CalendarController
}

func NewCalendarRouter(controller *controller.CalendarController) *CalendarRouter {
	return &CalendarRouter{controller: controller}
}

func (r *CalendarRouter) Setup(e *echo.Echo, mw *middleware.Middleware) {
	v1 := e.Group("/api/v1")

	calendarRoutes := v1.Group("/calendar")
	calendarRoutes.Use(mw.AuthMiddleware())

	calendarRoutes.POST("/credentials", r.controller.SaveCredentials)
	calendarRoutes.GET("/calendars", r.controller.ListCalendars)
	calendarRoutes.GET("/calendars/remote", r.controller.ListRemoteCalendars)

	calendarRoutes.GET("/events", r.controller.ListEvents)
	calendarRoutes.POST("/events", r.controller.CreateEvent)
	calendarRoutes.PUT("/events/:id", r.controller.UpdateEvent)
	calendarRoutes.PATCH("/events/:id", r.controller.PatchEvent)
	calendarRoutes.DELETE("/events/:id", r.controller.DeleteEvent)
	calendarRoutes.POST("/events/:id/respond", r.controller.RespondToEvent)

	calendarRoutes.POST("/sync", r.controller.SyncNow)
	calendarRoutes.GET("/sync/status", r.controller.GetSyncStatus)

	calendarRoutes.GET("/local/events", r.controller.GetLocalEvents)
}
