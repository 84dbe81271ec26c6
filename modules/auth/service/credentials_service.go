package service

import (
	"context"
	"time"

	"chronos-server/core/config"
	"chronos-server/core/constants"
	"chronos-server/core/errors"
	"chronos-server/core/logger"
	"chronos-server/modules/auth/dto"
	"chronos-server/modules/auth/entity"
	"chronos-server/modules/auth/repository"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// CredentialsService owns the stored Google OAuth tokens for linked
// accounts: saving them, answering whether a user has any, and handing out a
// currently-valid access token, refreshing and persisting it when needed.
type CredentialsService interface {
	Save(ctx context.Context, userID uuid.UUID, req *dto.SaveCredentialsRequest) *errors.AppError
	HasCredentials(ctx context.Context, userID uuid.UUID) bool
	AccessToken(ctx context.Context, userID uuid.UUID) (string, *errors.AppError)
	Disconnect(ctx context.Context, userID uuid.UUID) *errors.AppError
}

type credentialsService struct {
	repo repository.CredentialsRepository
}

func NewCredentialsService(repo repository.CredentialsRepository) CredentialsService {
	return &credentialsService{repo: repo}
}

func (s *credentialsService) Save(ctx context.Context, userID uuid.UUID, req *dto.SaveCredentialsRequest) *errors.AppError {
	if req.AccessToken == "" || req.RefreshToken == "" || req.ExpiresAt == "" {
		return errors.NewAppError(errors.ErrInvalidInput, "Missing tokens", nil)
	}

	expiresAt, err := time.Parse(time.RFC3339, req.ExpiresAt)
	if err != nil {
		return errors.NewAppError(errors.ErrInvalidInput, "Invalid expires_at format", err)
	}

	cred := &entity.GoogleCredential{
		UserID:       userID,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		ExpiresAt:    expiresAt,
	}
	if req.Scopes != "" {
		cred.Scopes = &req.Scopes
	}

	if err := s.repo.Upsert(ctx, cred); err != nil {
		logger.Error("CredentialsService:Save:Upsert:Error", "user_id", userID, "error", err)
		return errors.NewAppError(errors.ErrInternalServer, "Failed to save credentials", err)
	}

	logger.Info("CredentialsService:Save:Success", "user_id", userID)
	return nil
}

func (s *credentialsService) HasCredentials(ctx context.Context, userID uuid.UUID) bool {
	exists, err := s.repo.Exists(ctx, userID)
	if err != nil {
		logger.Warn("CredentialsService:HasCredentials:Error", "user_id", userID, "error", err)
		return false
	}
	return exists
}

// AccessToken returns a valid access token for the user, refreshing it when
// it expires within the safety margin. Refreshed tokens are persisted before
// returning so concurrent callers see them on their next credential read.
func (s *credentialsService) AccessToken(ctx context.Context, userID uuid.UUID) (string, *errors.AppError) {
	cred, err := s.repo.Get(ctx, userID)
	if err != nil {
		logger.Error("CredentialsService:AccessToken:Get:Error", "user_id", userID, "error", err)
		return "", errors.NewAppError(errors.ErrInternalServer, "Failed to load credentials", err)
	}
	if cred == nil {
		return "", errors.NewAppError(errors.ErrNotFound, "Google credentials not found", nil)
	}

	if time.Now().Before(cred.ExpiresAt.Add(-constants.TokenRefreshMargin)) {
		return cred.AccessToken, nil
	}

	logger.Info("CredentialsService:AccessToken:Refreshing", "user_id", userID)

	newToken, err := s.refreshToken(ctx, cred.RefreshToken)
	if err != nil {
		logger.Error("CredentialsService:AccessToken:Refresh:Error", "user_id", userID, "error", err)
		return "", errors.NewAppError(errors.ErrUnauthorized, "Failed to refresh Google token. Please reconnect your account", err)
	}

	if err := s.repo.UpdateAccessToken(ctx, userID, newToken.AccessToken, newToken.Expiry); err != nil {
		logger.Error("CredentialsService:AccessToken:Persist:Error", "user_id", userID, "error", err)
		return "", errors.NewAppError(errors.ErrInternalServer, "Failed to persist refreshed token", err)
	}

	return newToken.AccessToken, nil
}

func (s *credentialsService) Disconnect(ctx context.Context, userID uuid.UUID) *errors.AppError {
	if err := s.repo.Delete(ctx, userID); err != nil {
		return errors.NewAppError(errors.ErrInternalServer, "Failed to disconnect account", err)
	}
	return nil
}

func (s *credentialsService) refreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	cfg, ok := config.GetSafe()
	if !ok {
		return nil, errors.NewAppError(errors.ErrInternalServer, "config not initialized", nil)
	}

	oauthConfig := &oauth2.Config{
		ClientID:     cfg.GoogleAPI.ClientID,
		ClientSecret: cfg.GoogleAPI.ClientSecret,
		Endpoint:     google.Endpoint,
	}

	tokenSource := oauthConfig.TokenSource(ctx, &oauth2.Token{
		RefreshToken: refreshToken,
	})
	return tokenSource.Token()
}
