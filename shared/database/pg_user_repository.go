package database

import (
	"context"
	"errors"
	"fmt"
	"time"
	"venue-server/shared/interfaces"
	"venue-server/shared/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Compile-time check to ensure pgUserRepository implements UserRepository
var _ interfaces.UserRepository = (*pgUserRepository)(nil)

const userColumns = `id, username, email, password_hash, role, reliability_score, restricted_until, last_login_at, created_at, updated_at`

type pgUserRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

// NewPgUserRepository creates a new PostgreSQL-backed UserRepository.
func NewPgUserRepository(db interfaces.DBTX, logger *zap.Logger) interfaces.UserRepository {
	return &pgUserRepository{
		db:     db,
		logger: logger.Named("PgUserRepo"),
	}
}

// CreateUser inserts a new user into the database.
func (r *pgUserRepository) CreateUser(ctx context.Context, user *models.Subject) error {
	query := `INSERT INTO users (username, email, password_hash, role, reliability_score)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	if user.ReliabilityScore == 0 {
		user.ReliabilityScore = models.DefaultReliabilityScore
	}
	logFields := []zap.Field{zap.String("username", user.Username), zap.String("email", user.Email)}
	r.logger.Debug("Creating user", logFields...)

	err := r.db.QueryRow(ctx, query, user.Username, user.Email, user.PasswordHash, user.Role, user.ReliabilityScore).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // 23505 is unique_violation
			switch pgErr.ConstraintName {
			case "users_email_key":
				r.logger.Warn("Attempted to create duplicate user by email", logFields...)
				return models.ErrEmailAlreadyExists
			default:
				r.logger.Warn("Attempted to create duplicate user", append(logFields, zap.String("constraint", pgErr.ConstraintName))...)
				return models.ErrUserAlreadyExists
			}
		}
		r.logger.Error("Failed to create user in postgres", append(logFields, zap.Error(err))...)
		return fmt.Errorf("failed to create user in postgres: %w", err)
	}
	r.logger.Info("User created successfully", zap.String("userID", user.ID.String()), zap.String("username", user.Username))
	return nil
}

func (r *pgUserRepository) getOne(ctx context.Context, field string, query string, arg any) (*models.Subject, error) {
	user := &models.Subject{}
	if err := pgxscan.Get(ctx, r.db, user, query, arg); err != nil {
		if pgxscan.NotFound(err) {
			r.logger.Debug("User not found", zap.String("by", field), zap.Any("value", arg))
			return nil, models.ErrUserNotFound
		}
		r.logger.Error("Failed to get user from postgres", zap.String("by", field), zap.Error(err))
		return nil, fmt.Errorf("failed to get user by %s from postgres: %w", field, err)
	}
	return user, nil
}

// GetUserByID retrieves a user by their ID.
func (r *pgUserRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*models.Subject, error) {
	return r.getOne(ctx, "id", `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetUserByEmail retrieves a user by their email.
func (r *pgUserRepository) GetUserByEmail(ctx context.Context, email string) (*models.Subject, error) {
	return r.getOne(ctx, "email", `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// GetUserByUsername retrieves a user by their username.
func (r *pgUserRepository) GetUserByUsername(ctx context.Context, username string) (*models.Subject, error) {
	return r.getOne(ctx, "username", `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (r *pgUserRepository) execOne(ctx context.Context, op string, id uuid.UUID, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update user", zap.String("op", op), zap.String("userID", id.String()), zap.Error(err))
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

// UpdatePasswordHash обновляет хеш пароля пользователя.
func (r *pgUserRepository) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	return r.execOne(ctx, "update password hash", id,
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
}

// UpdateLastLogin records a successful login.
func (r *pgUserRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.execOne(ctx, "update last login", id,
		`UPDATE users SET last_login_at = $2 WHERE id = $1`, id, at)
}

// SetRestriction blocks the subject until the given instant; nil lifts the restriction.
func (r *pgUserRepository) SetRestriction(ctx context.Context, id uuid.UUID, until *time.Time) error {
	return r.execOne(ctx, "set restriction", id,
		`UPDATE users SET restricted_until = $2, updated_at = NOW() WHERE id = $1`, id, until)
}

// DeleteUser removes a subject together with its refresh credentials (ON DELETE CASCADE).
func (r *pgUserRepository) DeleteUser(ctx context.Context, id uuid.UUID) error {
	return r.execOne(ctx, "delete user", id, `DELETE FROM users WHERE id = $1`, id)
}
