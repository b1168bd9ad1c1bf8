package service

import (
	"context"
	"time"
	"venue-server/shared/models"

	"github.com/google/uuid"
)

// SessionIssuer owns the credential lifecycle: issuance, renewal, revocation.
type SessionIssuer interface {
	Register(ctx context.Context, username, email, password string) (*models.Subject, *models.TokenPair, error)
	Login(ctx context.Context, email, password string) (*models.Subject, *models.TokenPair, error)
	// Issue mints a pair for subject. freshLogin revokes every prior refresh credential first.
	Issue(ctx context.Context, subject *models.Subject, freshLogin bool) (*models.TokenPair, error)
	// Renew rotates the refresh credential. A consumed credential yields models.ErrTokenNotFound.
	Renew(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	// Logout never fails; unknown or already revoked credentials are ignored.
	Logout(ctx context.Context, refreshToken string)
	UpdatePassword(ctx context.Context, subjectID uuid.UUID, oldPassword, newPassword string) error
	ValidateSubject(ctx context.Context, subjectID uuid.UUID) (*models.Subject, error)
	// Restrict blocks the subject until the given instant and revokes its sessions; nil lifts it.
	Restrict(ctx context.Context, subjectID uuid.UUID, until *time.Time) error
}

// ProfileCreator creates the downstream profile of a freshly registered subject.
type ProfileCreator interface {
	CreateProfile(ctx context.Context, subject *models.Subject) error
}

// EventPublisher publishes session events. Failures are logged by the caller.
type EventPublisher interface {
	PublishSessionEvent(ctx context.Context, event models.SessionEvent) error
}
