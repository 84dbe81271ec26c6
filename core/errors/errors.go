package errors

import "fmt"

type ErrorCode string

const (
	ErrInvalidInput               ErrorCode = "INVALID_INPUT"
	ErrInvalidRequestData         ErrorCode = "INVALID_REQUEST_DATA"
	ErrUnauthorized               ErrorCode = "UNAUTHORIZED"
	ErrTokenExpired               ErrorCode = "TOKEN_EXPIRED"
	ErrInvalidTokenFormat         ErrorCode = "INVALID_TOKEN_FORMAT"
	ErrMissingAuthorizationHeader ErrorCode = "MISSING_AUTHORIZATION_HEADER"
	ErrForbidden                  ErrorCode = "FORBIDDEN"
	ErrNotFound                   ErrorCode = "NOT_FOUND"
	ErrAlreadyExists              ErrorCode = "ALREADY_EXISTS"
	ErrUpstreamUnavailable        ErrorCode = "UPSTREAM_UNAVAILABLE"
	ErrSyncTokenExpired           ErrorCode = "SYNC_TOKEN_EXPIRED"
	ErrInternalServer             ErrorCode = "INTERNAL_SERVER_ERROR"
)

// AppError is the application-level error carried between services and
// controllers. Code drives the HTTP status mapping in the base controller.
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// IsCode reports whether err is an *AppError with the given code.
func IsCode(err error, code ErrorCode) bool {
	ae, ok := err.(*AppError)
	return ok && ae.Code == code
}
