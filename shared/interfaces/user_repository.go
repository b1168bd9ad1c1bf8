package interfaces

import (
	"context"
	"time"
	"venue-server/shared/models"

	"github.com/google/uuid"
)

// UserRepository defines the interface for subject persistence (PostgreSQL).
type UserRepository interface {
	// CreateUser inserts a new subject and fills its ID and timestamps.
	// Returns models.ErrUserAlreadyExists or models.ErrEmailAlreadyExists on conflicts.
	CreateUser(ctx context.Context, user *models.Subject) error

	// GetUserByID returns models.ErrUserNotFound if the subject does not exist.
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.Subject, error)

	// GetUserByEmail returns models.ErrUserNotFound if the subject does not exist.
	GetUserByEmail(ctx context.Context, email string) (*models.Subject, error)

	// GetUserByUsername returns models.ErrUserNotFound if the subject does not exist.
	GetUserByUsername(ctx context.Context, username string) (*models.Subject, error)

	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error

	// SetRestriction blocks the subject until the given instant; nil lifts it.
	SetRestriction(ctx context.Context, id uuid.UUID, until *time.Time) error

	// DeleteUser removes a subject. Used to roll back a failed registration.
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

// ProfileRepository is the user-service store for profile data.
type ProfileRepository interface {
	Create(ctx context.Context, p *models.Profile) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	UpdateDisplayName(ctx context.Context, userID uuid.UUID, displayName string) (*models.Profile, error)
}
