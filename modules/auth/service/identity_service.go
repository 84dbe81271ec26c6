package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"chronos-server/core/constants"
	"chronos-server/core/errors"
	"chronos-server/core/logger"
	"chronos-server/modules/auth/dto"

	"github.com/google/uuid"
)

const googleUserinfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

// IdentityVerifier resolves an upstream access token to the identity the
// provider vouches for. Sessions are only ever minted from this identity,
// never from caller-supplied fields.
type IdentityVerifier interface {
	Verify(ctx context.Context, accessToken string) (*dto.UpstreamIdentity, *errors.AppError)
}

type googleIdentityVerifier struct {
	userinfoURL string
}

func NewIdentityVerifier() IdentityVerifier {
	return &googleIdentityVerifier{userinfoURL: googleUserinfoURL}
}

// Verify asks Google's userinfo endpoint who the access token belongs to.
// A token Google rejects, or one with no stable subject, yields no identity.
func (v *googleIdentityVerifier) Verify(ctx context.Context, accessToken string) (*dto.UpstreamIdentity, *errors.AppError) {
	if accessToken == "" {
		return nil, errors.NewAppError(errors.ErrUnauthorized, "Missing Google access token", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.userinfoURL, nil)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to build userinfo request", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	client := &http.Client{Timeout: constants.ProviderCallTimeout}
	resp, err := client.Do(req)
	if err != nil {
		logger.Error("IdentityVerifier:Verify:Request:Error", "error", err)
		return nil, errors.NewAppError(errors.ErrUpstreamUnavailable, "Google userinfo unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to read userinfo response", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, errors.NewAppError(errors.ErrUnauthorized, "Google rejected the access token", nil)
	default:
		logger.Error("IdentityVerifier:Verify:Status:Error", "status", resp.StatusCode)
		return nil, errors.NewAppError(errors.ErrUpstreamUnavailable, "Google userinfo request failed", nil)
	}

	var identity dto.UpstreamIdentity
	if err := json.Unmarshal(body, &identity); err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to parse userinfo response", err)
	}
	if identity.Subject == "" {
		return nil, errors.NewAppError(errors.ErrUnauthorized, "Google userinfo returned no subject", nil)
	}
	return &identity, nil
}

// UserIDFromSubject maps the provider's stable subject id onto the local
// user id. Deterministic, so repeat sessions for the same Google account
// always resolve to the same user.
func UserIDFromSubject(subject string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("google:"+subject))
}
