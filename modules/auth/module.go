package auth

import (
	"chronos-server/core/database"
	"chronos-server/core/middleware"
	"chronos-server/modules/auth/controller"
	"chronos-server/modules/auth/repository"
	"chronos-server/modules/auth/router"
	"chronos-server/modules/auth/service"

	"github.com/labstack/echo/v4"
)

func Init(e *echo.Echo, db database.Database) {
	repo := repository.NewCredentialsRepository(db)
	credsService := service.NewCredentialsService(repo)
	verifier := service.NewIdentityVerifier()
	authController := controller.NewAuthController(credsService, verifier)

	mw := middleware.NewMiddleware()

	router.NewAuthRouter(authController).Setup(e, mw)
}

// GetCredentialsService builds the credentials capability for other modules.
func GetCredentialsService(db database.Database) service.CredentialsService {
	repo := repository.NewCredentialsRepository(db)
	return service.NewCredentialsService(repo)
}
