package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind is the taxonomy every failure is folded into before it reaches a client.
type ErrorKind string

const (
	KindUnauthenticated     ErrorKind = "Unauthenticated"
	KindInvalidToken        ErrorKind = "InvalidToken"
	KindExpired             ErrorKind = "Expired"
	KindSessionExpired      ErrorKind = "SessionExpired"
	KindAccountRestricted   ErrorKind = "AccountRestricted"
	KindTrustViolation      ErrorKind = "TrustViolation"
	KindUpstreamUnavailable ErrorKind = "UpstreamUnavailable"
	KindInternal            ErrorKind = "Internal"

	KindInvalidCredentials ErrorKind = "InvalidCredentials"
	KindForbidden          ErrorKind = "Forbidden"
	KindNotFound           ErrorKind = "NotFound"
	KindConflict           ErrorKind = "Conflict"
	KindBadRequest         ErrorKind = "BadRequest"
)

// Application-wide standard errors
var (
	// Authentication
	ErrUnauthenticated    = errors.New("authentication required")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrSessionExpired     = errors.New("session expired, please log in again")
	ErrAccountRestricted  = errors.New("account is temporarily restricted")
	ErrForbidden          = errors.New("insufficient permissions")

	// Token Errors
	ErrTokenInvalid   = errors.New("token is invalid")
	ErrTokenMalformed = errors.New("token is malformed")
	ErrTokenExpired   = errors.New("token has expired")
	ErrTokenNotFound  = errors.New("token not found in storage")

	// Trust boundary
	ErrTrustViolation         = errors.New("trust violation")
	ErrDirectAccessNotAllowed = fmt.Errorf("%w: direct access not allowed", ErrTrustViolation)
	ErrIdentityRequired       = fmt.Errorf("%w: user id required", ErrTrustViolation)

	// Upstream
	ErrUpstreamUnavailable = errors.New("upstream service unavailable")
	ErrUnknownService      = errors.New("unknown service")

	// Subjects
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user with this username already exists")
	ErrEmailAlreadyExists = errors.New("user with this email already exists")

	// General Request/Server Errors
	ErrInvalidInput   = errors.New("invalid input data")
	ErrInternalServer = errors.New("internal server error")
)

// RestrictedError carries the instant until which a subject is blocked.
type RestrictedError struct {
	Until time.Time
}

func (e *RestrictedError) Error() string {
	return fmt.Sprintf("%s until %s", ErrAccountRestricted.Error(), e.Until.UTC().Format(time.RFC3339))
}

func (e *RestrictedError) Unwrap() error { return ErrAccountRestricted }

// NewRestrictedError wraps ErrAccountRestricted with its expiry.
func NewRestrictedError(until time.Time) error {
	return &RestrictedError{Until: until}
}

// KindOf folds any error into the taxonomy. Unknown errors are Internal.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthenticated
	case errors.Is(err, ErrTokenExpired):
		return KindExpired
	case errors.Is(err, ErrTokenInvalid), errors.Is(err, ErrTokenMalformed), errors.Is(err, ErrTokenNotFound):
		return KindInvalidToken
	case errors.Is(err, ErrSessionExpired):
		return KindSessionExpired
	case errors.Is(err, ErrAccountRestricted):
		return KindAccountRestricted
	case errors.Is(err, ErrTrustViolation):
		return KindTrustViolation
	case errors.Is(err, ErrUpstreamUnavailable):
		return KindUpstreamUnavailable
	case errors.Is(err, ErrInvalidCredentials):
		return KindInvalidCredentials
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrUserNotFound):
		return KindNotFound
	case errors.Is(err, ErrUserAlreadyExists), errors.Is(err, ErrEmailAlreadyExists):
		return KindConflict
	case errors.Is(err, ErrInvalidInput):
		return KindBadRequest
	default:
		return KindInternal
	}
}
