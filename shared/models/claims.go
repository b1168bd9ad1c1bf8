package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultReliabilityScore is assigned to subjects that have no score yet.
const DefaultReliabilityScore = 100.0

// IdentityClaims is the claim set carried by access credentials.
// Refresh credentials carry only SubjectID and the registered claims (jti, exp, iat).
type IdentityClaims struct {
	SubjectID        uuid.UUID `json:"sub_id"`
	Email            string    `json:"email,omitempty"`
	Role             string    `json:"role,omitempty"`
	ReliabilityScore float64   `json:"reliability_score,omitempty"`
	jwt.RegisteredClaims
}

// NewIdentityClaims builds the access claim set for a subject.
func NewIdentityClaims(s *Subject) *IdentityClaims {
	score := s.ReliabilityScore
	if score == 0 {
		score = DefaultReliabilityScore
	}
	return &IdentityClaims{
		SubjectID:        s.ID,
		Email:            s.Email,
		Role:             s.Role,
		ReliabilityScore: score,
	}
}

// IssuedAtTime returns iat or the zero time.
func (c *IdentityClaims) IssuedAtTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

// ExpiresAtTime returns exp or the zero time.
func (c *IdentityClaims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Equal reports whether both claim sets describe the same identity and lifetime.
func (c *IdentityClaims) Equal(other *IdentityClaims) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.SubjectID == other.SubjectID &&
		c.Email == other.Email &&
		c.Role == other.Role &&
		c.ReliabilityScore == other.ReliabilityScore &&
		c.IssuedAtTime().Equal(other.IssuedAtTime()) &&
		c.ExpiresAtTime().Equal(other.ExpiresAtTime())
}
