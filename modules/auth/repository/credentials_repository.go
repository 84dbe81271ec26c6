package repository

import (
	"context"
	"database/sql"
	"time"

	"chronos-server/core/database"
	"chronos-server/modules/auth/entity"

	"github.com/google/uuid"
)

type CredentialsRepository interface {
	Get(ctx context.Context, userID uuid.UUID) (*entity.GoogleCredential, error)
	Upsert(ctx context.Context, cred *entity.GoogleCredential) error
	UpdateAccessToken(ctx context.Context, userID uuid.UUID, accessToken string, expiresAt time.Time) error
	Exists(ctx context.Context, userID uuid.UUID) (bool, error)
	Delete(ctx context.Context, userID uuid.UUID) error
}

type credentialsRepository struct {
	db database.Database
}

func NewCredentialsRepository(db database.Database) CredentialsRepository {
	return &credentialsRepository{db: db}
}

// Get returns the stored credential for a user, or nil when none is linked.
func (r *credentialsRepository) Get(ctx context.Context, userID uuid.UUID) (*entity.GoogleCredential, error) {
	query := `
		SELECT user_id, access_token, refresh_token, expires_at, scopes, created_at, updated_at
		FROM google_credentials
		WHERE user_id = $1
	`
	var cred entity.GoogleCredential
	if err := r.db.GetContext(ctx, &cred, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &cred, nil
}

// Upsert saves tokens for a user, replacing any previous credential.
func (r *credentialsRepository) Upsert(ctx context.Context, cred *entity.GoogleCredential) error {
	query := `
		INSERT INTO google_credentials (user_id, access_token, refresh_token, expires_at, scopes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			scopes = EXCLUDED.scopes,
			updated_at = NOW()
	`
	return r.db.ExecContext(ctx, query,
		cred.UserID, cred.AccessToken, cred.RefreshToken, cred.ExpiresAt, cred.Scopes)
}

// UpdateAccessToken persists a refreshed access token without touching the
// refresh token.
func (r *credentialsRepository) UpdateAccessToken(ctx context.Context, userID uuid.UUID, accessToken string, expiresAt time.Time) error {
	query := `
		UPDATE google_credentials
		SET access_token = $1, expires_at = $2, updated_at = NOW()
		WHERE user_id = $3
	`
	return r.db.ExecContext(ctx, query, accessToken, expiresAt, userID)
}

func (r *credentialsRepository) Exists(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM google_credentials WHERE user_id = $1)`
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *credentialsRepository) Delete(ctx context.Context, userID uuid.UUID) error {
	return r.db.ExecContext(ctx, `DELETE FROM google_credentials WHERE user_id = $1`, userID)
}
