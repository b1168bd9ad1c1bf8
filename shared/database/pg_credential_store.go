package database

import (
	"context"
	"errors"
	"fmt"
	"time"
	"venue-server/shared/authutils"
	"venue-server/shared/interfaces"
	"venue-server/shared/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

var _ interfaces.CredentialStore = (*pgCredentialStore)(nil)

const (
	insertRefreshTokenQuery = `INSERT INTO refresh_tokens (token_hash, user_id, issued_at, expires_at) VALUES ($1, $2, $3, $4)`
	findRefreshTokenQuery   = `
		SELECT rt.token_hash, rt.user_id, rt.issued_at, rt.expires_at, u.restricted_until
		FROM refresh_tokens rt
		JOIN users u ON u.id = rt.user_id
		WHERE rt.token_hash = $1 AND rt.expires_at > $2`
	deleteRefreshTokenQuery      = `DELETE FROM refresh_tokens WHERE token_hash = $1`
	deleteOwnedRefreshTokenQuery = `DELETE FROM refresh_tokens WHERE token_hash = $1 AND user_id = $2`
	deleteSubjectTokensQuery     = `DELETE FROM refresh_tokens WHERE user_id = $1`
	purgeExpiredTokensQuery      = `DELETE FROM refresh_tokens WHERE expires_at <= $1`
)

type pgCredentialStore struct {
	db     interfaces.TxBeginner
	now    func() time.Time
	logger *zap.Logger
}

// PgCredentialStore extends CredentialStore with housekeeping used by auth-service.
type PgCredentialStore interface {
	interfaces.CredentialStore
	// PurgeExpired deletes rows whose expiry has passed. Returns the number removed.
	PurgeExpired(ctx context.Context) (int64, error)
}

// NewPgCredentialStore creates a Postgres-backed CredentialStore over a pool.
func NewPgCredentialStore(db interfaces.TxBeginner, logger *zap.Logger) PgCredentialStore {
	return &pgCredentialStore{
		db:     db,
		now:    time.Now,
		logger: logger.Named("PgCredentialStore"),
	}
}

func (s *pgCredentialStore) insert(ctx context.Context, q interfaces.DBTX, subjectID uuid.UUID, token string, ttl time.Duration) error {
	now := s.now().UTC()
	_, err := q.Exec(ctx, insertRefreshTokenQuery, authutils.HashToken(token), subjectID, now, now.Add(ttl))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" { // foreign_key_violation
			s.logger.Warn("Refresh token saved for unknown subject", zap.String("userID", subjectID.String()))
			return models.ErrUserNotFound
		}
		return fmt.Errorf("failed to insert refresh token: %w", err)
	}
	return nil
}

// Save persists a refresh credential.
func (s *pgCredentialStore) Save(ctx context.Context, subjectID uuid.UUID, token string, ttl time.Duration) error {
	if err := s.insert(ctx, s.db, subjectID, token, ttl); err != nil {
		if !errors.Is(err, models.ErrUserNotFound) {
			s.logger.Error("Failed to save refresh token", zap.String("userID", subjectID.String()), zap.Error(err))
		}
		return err
	}
	s.logger.Debug("Refresh token saved", zap.String("userID", subjectID.String()), zap.Duration("ttl", ttl))
	return nil
}

// FindByToken looks the credential up together with the owner's restriction state.
func (s *pgCredentialStore) FindByToken(ctx context.Context, token string) (*models.RefreshRecord, error) {
	rec := &models.RefreshRecord{}
	if err := pgxscan.Get(ctx, s.db, rec, findRefreshTokenQuery, authutils.HashToken(token), s.now().UTC()); err != nil {
		if pgxscan.NotFound(err) {
			return nil, models.ErrTokenNotFound
		}
		s.logger.Error("Failed to find refresh token", zap.Error(err))
		return nil, fmt.Errorf("failed to find refresh token: %w", err)
	}
	return rec, nil
}

// DeleteByToken removes one credential; absent tokens are ignored.
func (s *pgCredentialStore) DeleteByToken(ctx context.Context, token string) error {
	tag, err := s.db.Exec(ctx, deleteRefreshTokenQuery, authutils.HashToken(token))
	if err != nil {
		s.logger.Error("Failed to delete refresh token", zap.Error(err))
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		s.logger.Debug("Refresh token already absent")
	}
	return nil
}

// DeleteAllForSubject removes every credential of the subject in one statement.
func (s *pgCredentialStore) DeleteAllForSubject(ctx context.Context, subjectID uuid.UUID) (int64, error) {
	tag, err := s.db.Exec(ctx, deleteSubjectTokensQuery, subjectID)
	if err != nil {
		s.logger.Error("Failed to delete subject refresh tokens", zap.String("userID", subjectID.String()), zap.Error(err))
		return 0, fmt.Errorf("failed to delete refresh tokens for subject %s: %w", subjectID, err)
	}
	s.logger.Info("Deleted refresh tokens for subject", zap.String("userID", subjectID.String()), zap.Int64("deletedCount", tag.RowsAffected()))
	return tag.RowsAffected(), nil
}

// Rotate consumes oldToken and stores newToken inside one transaction.
func (s *pgCredentialStore) Rotate(ctx context.Context, oldToken string, subjectID uuid.UUID, newToken string, ttl time.Duration) (err error) {
	log := s.logger.With(zap.String("userID", subjectID.String()))
	tx, err := s.db.Begin(ctx)
	if err != nil {
		log.Error("Failed to begin rotation transaction", zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				log.Error("Failed to rollback rotation transaction", zap.Error(rbErr))
			}
		}
	}()

	tag, err := tx.Exec(ctx, deleteOwnedRefreshTokenQuery, authutils.HashToken(oldToken), subjectID)
	if err != nil {
		log.Error("Failed to delete consumed refresh token", zap.Error(err))
		return fmt.Errorf("failed to delete consumed refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Уже использован или отозван параллельным запросом
		log.Warn("Refresh token already consumed during rotation")
		return models.ErrTokenNotFound
	}
	if err = s.insert(ctx, tx, subjectID, newToken, ttl); err != nil {
		log.Error("Failed to insert rotated refresh token", zap.Error(err))
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		log.Error("Failed to commit rotation transaction", zap.Error(err))
		return fmt.Errorf("failed to commit rotation: %w", err)
	}
	log.Debug("Refresh token rotated")
	return nil
}

// PurgeExpired deletes expired refresh credentials.
func (s *pgCredentialStore) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, purgeExpiredTokensQuery, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
