package middleware

import (
	"net/http"
	"strings"

	"chronos-server/core/controller"
	"chronos-server/core/errors"
	"chronos-server/core/utils"

	"github.com/labstack/echo/v4"
)

const (
	// ContextUserID is the echo context key the auth middleware sets.
	ContextUserID = "user_id"
	// ContextUserEmail is the echo context key for the session email.
	ContextUserEmail = "user_email"
)

type Middleware struct{}

func NewMiddleware() *Middleware {
	return &Middleware{}
}

// AuthMiddleware validates the Bearer session token and stores the user
// identity in the request context.
func (m *Middleware) AuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return controller.NewErrorResponse(http.StatusUnauthorized,
					errors.ErrMissingAuthorizationHeader, "missing authorization header")
			}

			token := strings.TrimPrefix(header, "Bearer ")
			if token == header {
				return controller.NewErrorResponse(http.StatusUnauthorized,
					errors.ErrInvalidTokenFormat, "authorization header must be a Bearer token")
			}

			tokenData, err := utils.ValidateAndParseToken(token)
			if err != nil {
				return controller.NewErrorResponse(http.StatusUnauthorized,
					errors.ErrTokenExpired, "invalid or expired session")
			}

			c.Set(ContextUserID, tokenData.UserID)
			c.Set(ContextUserEmail, tokenData.Email)
			return next(c)
		}
	}
}
