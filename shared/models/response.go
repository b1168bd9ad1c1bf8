package models

import "time"

// ErrorResponse - стандартная структура для ответа об ошибке в формате JSON.
type ErrorResponse struct {
	Success    bool       `json:"success"`
	Code       string     `json:"code"`
	Message    string     `json:"message"`
	RetryAfter *time.Time `json:"retryAfter,omitempty"`
	Stack      string     `json:"stack,omitempty"`
}

// Stable error codes returned in ErrorResponse.Code.
const (
	ErrCodeUnauthenticated     = "Unauthenticated"
	ErrCodeInvalidToken        = "InvalidToken"
	ErrCodeExpired             = "Expired"
	ErrCodeSessionExpired      = "SessionExpired"
	ErrCodeAccountRestricted   = "AccountRestricted"
	ErrCodeTrustViolation      = "TrustViolation"
	ErrCodeUpstreamUnavailable = "UpstreamUnavailable"
	ErrCodeInternal            = "Internal"
	ErrCodeInvalidCredentials  = "InvalidCredentials"
	ErrCodeForbidden           = "Forbidden"
	ErrCodeNotFound            = "NotFound"
	ErrCodeDuplicateUser       = "DuplicateUser"
	ErrCodeDuplicateEmail      = "DuplicateEmail"
	ErrCodeBadRequest          = "BadRequest"
	ErrCodeRateLimited         = "RateLimited"
)

// SessionResponse is the body returned by login, register and refresh.
// Tokens are omitted for browser clients, which receive them only as cookies.
type SessionResponse struct {
	Message string       `json:"message"`
	User    *SubjectView `json:"user,omitempty"`
	Tokens  *TokenPair   `json:"tokens,omitempty"`
}

// SubjectView is the public projection of a Subject.
type SubjectView struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// ToView projects a subject for API responses.
func (s *Subject) ToView() *SubjectView {
	return &SubjectView{ID: s.ID.String(), Email: s.Email, Username: s.Username, Role: s.Role}
}
