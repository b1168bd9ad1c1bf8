package models

import (
	"time"

	"github.com/google/uuid"
)

// Subject represents an authenticated principal as stored by auth-service.
type Subject struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	Username         string     `db:"username" json:"username"`
	Email            string     `db:"email" json:"email"`
	PasswordHash     string     `db:"password_hash" json:"-"` // Не отдаем хеш пароля
	Role             string     `db:"role" json:"role"`
	ReliabilityScore float64    `db:"reliability_score" json:"reliabilityScore"`
	RestrictedUntil  *time.Time `db:"restricted_until" json:"restrictedUntil,omitempty"`
	LastLoginAt      *time.Time `db:"last_login_at" json:"lastLoginAt,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updatedAt"`
}

// Restricted reports whether the subject is temporarily blocked at the given instant.
func (s *Subject) Restricted(now time.Time) bool {
	return s.RestrictedUntil != nil && s.RestrictedUntil.After(now)
}

// Profile is the user-service view of a subject.
type Profile struct {
	UserID           uuid.UUID `db:"user_id" json:"userId"`
	Username         string    `db:"username" json:"username"`
	Email            string    `db:"email" json:"email"`
	DisplayName      string    `db:"display_name" json:"displayName"`
	ReliabilityScore float64   `db:"reliability_score" json:"reliabilityScore"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time `db:"updated_at" json:"updatedAt"`
}
