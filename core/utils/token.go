package utils

import (
	"fmt"
	"time"

	"chronos-server/core/config"
	"chronos-server/core/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenData is the validated session payload controllers work with.
type TokenData struct {
	UserID uuid.UUID
	Email  string
}

type sessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// GenerateSessionToken issues a signed session JWT for the given user.
func GenerateSessionToken(userID uuid.UUID, email string) (string, time.Time, error) {
	cfg, ok := config.GetSafe()
	if !ok {
		return "", time.Time{}, fmt.Errorf("config not initialized")
	}

	expiresAt := time.Now().Add(time.Duration(cfg.JWT.ExpiryMinutes) * time.Minute)
	claims := sessionClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        GenerateID(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(cfg.JWT.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateAndParseToken verifies a session JWT and extracts its payload.
func ValidateAndParseToken(tokenString string) (*TokenData, error) {
	cfg, ok := config.GetSafe()
	if !ok {
		return nil, errors.NewAppError(errors.ErrInternalServer, "config not initialized", nil)
	}

	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(cfg.JWT.Secret), nil
	})
	if err != nil {
		if errors.IsCode(err, errors.ErrTokenExpired) {
			return nil, err
		}
		return nil, errors.NewAppError(errors.ErrTokenExpired, "invalid or expired token", err)
	}
	if !token.Valid {
		return nil, errors.NewAppError(errors.ErrInvalidTokenFormat, "invalid token", nil)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInvalidTokenFormat, "invalid token subject", err)
	}

	return &TokenData{UserID: userID, Email: claims.Email}, nil
}
