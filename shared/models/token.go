package models

import (
	"time"

	"github.com/google/uuid"
)

// TokenPair is what SessionIssuer hands back after login, registration or renewal.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// RefreshRecord is a persisted refresh credential joined with the subject state
// that decides whether it may still be honored.
type RefreshRecord struct {
	TokenHash       string     `db:"token_hash" json:"-"`
	SubjectID       uuid.UUID  `db:"user_id" json:"subjectId"`
	IssuedAt        time.Time  `db:"issued_at" json:"issuedAt"`
	ExpiresAt       time.Time  `db:"expires_at" json:"expiresAt"`
	RestrictedUntil *time.Time `db:"restricted_until" json:"restrictedUntil,omitempty"`
}

// Restricted reports whether the owning subject is blocked at the given instant.
func (r *RefreshRecord) Restricted(now time.Time) bool {
	return r.RestrictedUntil != nil && r.RestrictedUntil.After(now)
}
