package database

import (
	"context"
	"errors"
	"fmt"
	"venue-server/shared/interfaces"
	"venue-server/shared/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

var _ interfaces.ProfileRepository = (*pgProfileRepository)(nil)

const profileColumns = `user_id, username, email, display_name, reliability_score, created_at, updated_at`

type pgProfileRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

// NewPgProfileRepository creates the user-service profile store.
func NewPgProfileRepository(db interfaces.DBTX, logger *zap.Logger) interfaces.ProfileRepository {
	return &pgProfileRepository{
		db:     db,
		logger: logger.Named("PgProfileRepo"),
	}
}

// Create inserts a profile. An existing profile for the user yields models.ErrUserAlreadyExists.
func (r *pgProfileRepository) Create(ctx context.Context, p *models.Profile) error {
	query := `INSERT INTO profiles (user_id, username, email, display_name, reliability_score)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`
	if p.ReliabilityScore == 0 {
		p.ReliabilityScore = models.DefaultReliabilityScore
	}
	if p.DisplayName == "" {
		p.DisplayName = p.Username
	}
	err := r.db.QueryRow(ctx, query, p.UserID, p.Username, p.Email, p.DisplayName, p.ReliabilityScore).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			r.logger.Info("Profile already exists", zap.String("userID", p.UserID.String()))
			return models.ErrUserAlreadyExists
		}
		r.logger.Error("Failed to create profile", zap.String("userID", p.UserID.String()), zap.Error(err))
		return fmt.Errorf("failed to create profile: %w", err)
	}
	r.logger.Info("Profile created", zap.String("userID", p.UserID.String()))
	return nil
}

func (r *pgProfileRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	p := &models.Profile{}
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1`
	if err := pgxscan.Get(ctx, r.db, p, query, userID); err != nil {
		if pgxscan.NotFound(err) {
			return nil, models.ErrUserNotFound
		}
		r.logger.Error("Failed to get profile", zap.String("userID", userID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

func (r *pgProfileRepository) UpdateDisplayName(ctx context.Context, userID uuid.UUID, displayName string) (*models.Profile, error) {
	p := &models.Profile{}
	query := `UPDATE profiles SET display_name = $2, updated_at = NOW() WHERE user_id = $1 RETURNING ` + profileColumns
	if err := pgxscan.Get(ctx, r.db, p, query, userID, displayName); err != nil {
		if pgxscan.NotFound(err) {
			return nil, models.ErrUserNotFound
		}
		r.logger.Error("Failed to update profile", zap.String("userID", userID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return p, nil
}
