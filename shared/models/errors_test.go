package models

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ""},
		{"unauthenticated", ErrUnauthenticated, KindUnauthenticated},
		{"expired wrapped", fmt.Errorf("verify: %w", ErrTokenExpired), KindExpired},
		{"malformed", ErrTokenMalformed, KindInvalidToken},
		{"revoked refresh", ErrTokenNotFound, KindInvalidToken},
		{"session expired", ErrSessionExpired, KindSessionExpired},
		{"restricted", NewRestrictedError(time.Now().Add(time.Hour)), KindAccountRestricted},
		{"direct access", ErrDirectAccessNotAllowed, KindTrustViolation},
		{"identity required", ErrIdentityRequired, KindTrustViolation},
		{"upstream", ErrUpstreamUnavailable, KindUpstreamUnavailable},
		{"duplicate email", ErrEmailAlreadyExists, KindConflict},
		{"unknown", errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestRestrictedErrorUnwraps(t *testing.T) {
	until := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	err := fmt.Errorf("login: %w", NewRestrictedError(until))

	var restricted *RestrictedError
	assert.True(t, errors.As(err, &restricted))
	assert.Equal(t, until, restricted.Until)
	assert.ErrorIs(t, err, ErrAccountRestricted)
	assert.Contains(t, err.Error(), "2030-01-02T03:04:05Z")
}
