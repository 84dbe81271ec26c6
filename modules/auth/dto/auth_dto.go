package dto

// SaveCredentialsRequest carries the OAuth tokens the frontend obtained for
// the user's Google account.
type SaveCredentialsRequest struct {
	AccessToken  string `json:"access_token" validate:"required"`
	RefreshToken string `json:"refresh_token" validate:"required"`
	ExpiresAt    string `json:"expires_at" validate:"required"` // RFC3339
	Scopes       string `json:"scopes,omitempty"`
}

// CreateSessionRequest exchanges a Google access token for an API session.
// The token is verified upstream; the session identity comes from that
// verification, never from the request body.
type CreateSessionRequest struct {
	AccessToken string `json:"access_token" validate:"required"`
}

// UpstreamIdentity is the identity Google's userinfo endpoint vouches for.
type UpstreamIdentity struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name,omitempty"`
}

// SessionResponse returns the issued session token and the identity it
// was minted for.
type SessionResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"` // RFC3339
	UserID      string `json:"user_id,omitempty"`
	Email       string `json:"email,omitempty"`
}

// MeResponse describes the authenticated user.
type MeResponse struct {
	UserID               string `json:"user_id"`
	Email                string `json:"email"`
	HasGoogleCredentials bool   `json:"has_google_credentials"`
}
