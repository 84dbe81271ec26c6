package router

import (
	"chronos-server/core/middleware"
	"chronos-server/modules/auth/controller"

	"github.com/labstack/echo/v4"
)

type AuthRouter struct {
	controller *controller.AuthController
}

func NewAuthRouter(controller *controller.AuthController) *AuthRouter {
	return &AuthRouter{controller: controller}
}

func (r *AuthRouter) Setup(e *echo.Echo, mw *middleware.Middleware) {
	v1 := e.Group("/api/v1")

	authRoutes := v1.Group("/auth")
	authRoutes.POST("/session", r.controller.CreateSession)

	privateAuth := v1.Group("/auth")
	privateAuth.Use(mw.AuthMiddleware())
	privateAuth.GET("/me", r.controller.Me)
	privateAuth.POST("/refresh", r.controller.RefreshSession)
	privateAuth.POST("/logout", r.controller.Logout)
	privateAuth.DELETE("/google", r.controller.Disconnect)
}
