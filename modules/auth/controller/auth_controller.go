package controller

import (
	"time"

	"chronos-server/core/controller"
	"chronos-server/core/errors"
	"chronos-server/core/middleware"
	"chronos-server/core/utils"
	"chronos-server/modules/auth/dto"
	"chronos-server/modules/auth/service"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type AuthController struct {
	controller.BaseController
	credsService service.CredentialsService
	verifier     service.IdentityVerifier
}

func NewAuthController(credsService service.CredentialsService, verifier service.IdentityVerifier) *AuthController {
	return &AuthController{
		BaseController: controller.NewBaseController(),
		credsService:   credsService,
		verifier:       verifier,
	}
}

// CreateSession exchanges a Google access token for an API session token.
// The identity is resolved by verifying the token upstream, so a caller can
// only open sessions for the account the token actually belongs to.
// POST /api/v1/auth/session
func (c *AuthController) CreateSession(ctx echo.Context) error {
	var req dto.CreateSessionRequest
	if err := ctx.Bind(&req); err != nil {
		return c.BadRequest(errors.ErrInvalidRequestData, "Invalid request body")
	}
	if req.AccessToken == "" {
		return c.BadRequest(errors.ErrInvalidInput, "access_token is required")
	}

	identity, appErr := c.verifier.Verify(ctx.Request().Context(), req.AccessToken)
	if appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}

	userID := service.UserIDFromSubject(identity.Subject)
	token, expiresAt, err := utils.GenerateSessionToken(userID, identity.Email)
	if err != nil {
		return c.ErrorResponse(ctx, errors.NewAppError(errors.ErrInternalServer, "Failed to create session", err))
	}

	return c.SuccessResponse(ctx, dto.SessionResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
		UserID:      userID.String(),
		Email:       identity.Email,
	}, "Session created")
}

// RefreshSession reissues a session token for the authenticated user.
// POST /api/v1/auth/refresh
func (c *AuthController) RefreshSession(ctx echo.Context) error {
	userID, ok := ctx.Get(middleware.ContextUserID).(uuid.UUID)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Invalid session")
	}
	email, _ := ctx.Get(middleware.ContextUserEmail).(string)

	token, expiresAt, err := utils.GenerateSessionToken(userID, email)
	if err != nil {
		return c.ErrorResponse(ctx, errors.NewAppError(errors.ErrInternalServer, "Failed to refresh session", err))
	}

	return c.SuccessResponse(ctx, dto.SessionResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, "Session refreshed")
}

// Logout acknowledges session termination. Sessions are stateless tokens, so
// the server keeps no state to clear; clients drop the token.
// POST /api/v1/auth/logout
func (c *AuthController) Logout(ctx echo.Context) error {
	if _, ok := ctx.Get(middleware.ContextUserID).(uuid.UUID); !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Invalid session")
	}
	return c.SuccessResponse(ctx, nil, "Logged out")
}

// Disconnect unlinks the user's Google account and drops the stored tokens.
// DELETE /api/v1/auth/google
func (c *AuthController) Disconnect(ctx echo.Context) error {
	userID, ok := ctx.Get(middleware.ContextUserID).(uuid.UUID)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Invalid session")
	}

	if appErr := c.credsService.Disconnect(ctx.Request().Context(), userID); appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}
	return c.SuccessResponse(ctx, nil, "Google account disconnected")
}

// Me returns the authenticated user and whether a Google account is linked.
// GET /api/v1/auth/me
func (c *AuthController) Me(ctx echo.Context) error {
	userID, ok := ctx.Get(middleware.ContextUserID).(uuid.UUID)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Invalid session")
	}
	email, _ := ctx.Get(middleware.ContextUserEmail).(string)

	return c.SuccessResponse(ctx, dto.MeResponse{
		UserID:               userID.String(),
		Email:                email,
		HasGoogleCredentials: c.credsService.HasCredentials(ctx.Request().Context(), userID),
	}, "")
}
