package interfaces

import (
	"context"
	"time"
	"venue-server/shared/models"

	"github.com/google/uuid"
)

// CredentialStore persists issued refresh credentials keyed by their opaque value.
// Implementations never keep the raw token; they index by its hash.
type CredentialStore interface {
	// Save persists a refresh credential for the subject with the given lifetime.
	Save(ctx context.Context, subjectID uuid.UUID, token string, ttl time.Duration) error

	// FindByToken returns the record joined with the subject's restriction state.
	// Returns models.ErrTokenNotFound if the token is unknown or expired.
	FindByToken(ctx context.Context, token string) (*models.RefreshRecord, error)

	// DeleteByToken removes one credential. Deleting an absent token is not an error.
	DeleteByToken(ctx context.Context, token string) error

	// DeleteAllForSubject removes every credential of the subject, all or nothing.
	// Returns the number of credentials removed.
	DeleteAllForSubject(ctx context.Context, subjectID uuid.UUID) (int64, error)

	// Rotate replaces oldToken with newToken as one step.
	// Returns models.ErrTokenNotFound if oldToken was already consumed.
	Rotate(ctx context.Context, oldToken string, subjectID uuid.UUID, newToken string, ttl time.Duration) error
}
