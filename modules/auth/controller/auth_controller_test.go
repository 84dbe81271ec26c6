package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chronos-server/core/config"
	"chronos-server/core/errors"
	"chronos-server/core/utils"
	"chronos-server/modules/auth/dto"
	"chronos-server/modules/auth/service"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVerifier struct {
	identity *dto.UpstreamIdentity
	err      *errors.AppError
	calls    int
}

func (f *fakeVerifier) Verify(ctx context.Context, accessToken string) (*dto.UpstreamIdentity, *errors.AppError) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.identity, nil
}

func setTestConfig(t *testing.T) {
	t.Helper()
	config.Set(&config.Config{
		JWT: config.JWTConfig{Secret: "test-secret", ExpiryMinutes: 60},
	})
	t.Cleanup(func() { config.Set(nil) })
}

func postSession(t *testing.T, ctrl *AuthController, body string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/session", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return rec, ctrl.CreateSession(e.NewContext(req, rec))
}

func TestCreateSessionDerivesIdentityFromVerification(t *testing.T) {
	setTestConfig(t)
	verifier := &fakeVerifier{identity: &dto.UpstreamIdentity{
		Subject: "google-sub-1",
		Email:   "owner@example.com",
	}}
	ctrl := NewAuthController(nil, verifier)

	// Caller-supplied identity fields must have no effect on the session.
	rec, err := postSession(t, ctrl, `{
		"access_token": "good-token",
		"user_id": "11111111-2222-3333-4444-555555555555",
		"email": "victim@example.com"
	}`)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, verifier.calls)

	var resp struct {
		Data dto.SessionResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	wantID := service.UserIDFromSubject("google-sub-1")
	assert.Equal(t, wantID.String(), resp.Data.UserID)
	assert.Equal(t, "owner@example.com", resp.Data.Email)

	data, parseErr := utils.ValidateAndParseToken(resp.Data.AccessToken)
	require.NoError(t, parseErr)
	assert.Equal(t, wantID, data.UserID)
	assert.Equal(t, "owner@example.com", data.Email)
}

func TestCreateSessionRejectsUnverifiedToken(t *testing.T) {
	setTestConfig(t)
	verifier := &fakeVerifier{err: errors.NewAppError(errors.ErrUnauthorized, "Google rejected the access token", nil)}
	ctrl := NewAuthController(nil, verifier)

	rec, err := postSession(t, ctrl, `{
		"access_token": "stolen-or-expired",
		"user_id": "11111111-2222-3333-4444-555555555555",
		"email": "victim@example.com"
	}`)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"access_token"`)
}

func TestCreateSessionRequiresAccessToken(t *testing.T) {
	setTestConfig(t)
	verifier := &fakeVerifier{identity: &dto.UpstreamIdentity{Subject: "google-sub-1"}}
	ctrl := NewAuthController(nil, verifier)

	_, err := postSession(t, ctrl, `{
		"user_id": "11111111-2222-3333-4444-555555555555",
		"email": "victim@example.com"
	}`)
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.Code)
	assert.Equal(t, 0, verifier.calls)
}
