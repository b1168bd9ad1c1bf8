package models

import "time"

// RenewRequest is the body of POST /internal/auth/session/renew and /session/revoke.
type RenewRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// SubjectStatus is returned by GET /internal/auth/subjects/:id.
type SubjectStatus struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	Role             string     `json:"role"`
	ReliabilityScore float64    `json:"reliabilityScore"`
	RestrictedUntil  *time.Time `json:"restrictedUntil,omitempty"`
}

// RestrictRequest is the body of POST /internal/auth/subjects/:id/restrict.
// A nil Until lifts the restriction.
type RestrictRequest struct {
	Until *time.Time `json:"until"`
}
