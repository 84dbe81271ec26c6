package entity

import (
	"time"

	"github.com/google/uuid"
)

// GoogleCredential stores the OAuth tokens for one linked Google account.
// Refreshes are persisted immediately so concurrent callers pick up the new
// access token on their next read.
type GoogleCredential struct {
	UserID       uuid.UUID `db:"user_id" json:"user_id"`
	AccessToken  string    `db:"access_token" json:"-"`
	RefreshToken string    `db:"refresh_token" json:"-"`
	ExpiresAt    time.Time `db:"expires_at" json:"expires_at"`
	Scopes       *string   `db:"scopes" json:"scopes,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

func (GoogleCredential) TableName() string {
	return "google_credentials"
}
