package authutils

import (
	"fmt"
	"time"
	"venue-server/shared/models"
)

// AccessVerifier checks access credentials only. Services that never mint tokens
// (gateway, downstream guards) hold the access secret and nothing else.
type AccessVerifier struct {
	secret []byte
	now    func() time.Time
}

// NewAccessVerifier rejects secrets shorter than minLen (DefaultMinSecretLength when <= 0).
// now may be nil.
func NewAccessVerifier(secret string, minLen int, now func() time.Time) (*AccessVerifier, error) {
	if minLen <= 0 {
		minLen = DefaultMinSecretLength
	}
	if len(secret) < minLen {
		return nil, fmt.Errorf("jwt access secret must be at least %d bytes", minLen)
	}
	if now == nil {
		now = time.Now
	}
	return &AccessVerifier{secret: []byte(secret), now: now}, nil
}

// VerifyAccess treats expiry within buffer as expired.
func (v *AccessVerifier) VerifyAccess(token string, buffer time.Duration) (*models.IdentityClaims, error) {
	return Verify(token, v.secret, buffer, v.now())
}
