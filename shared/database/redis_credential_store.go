package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"venue-server/shared/authutils"
	"venue-server/shared/interfaces"
	"venue-server/shared/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Compile-time check to ensure redisCredentialStore implements CredentialStore
var _ interfaces.CredentialStore = (*redisCredentialStore)(nil)

const maxWatchRetries = 3

type redisCredentialStore struct {
	client redis.UniversalClient
	users  interfaces.UserRepository
	now    func() time.Time
	logger *zap.Logger
}

// storedCredential is the JSON value kept under refresh_token:{hash}.
type storedCredential struct {
	SubjectID uuid.UUID `json:"subjectId"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// NewRedisCredentialStore creates a Redis-backed CredentialStore.
// Restriction state is not kept in Redis, it is read from users on lookup.
// Keys:
//
//	refresh_token:{sha256(token)} -> storedCredential (TTL = credential lifetime)
//	user_tokens:{subjectID}       -> set of token hashes
func NewRedisCredentialStore(client redis.UniversalClient, users interfaces.UserRepository, logger *zap.Logger) interfaces.CredentialStore {
	return &redisCredentialStore{
		client: client,
		users:  users,
		now:    time.Now,
		logger: logger.Named("RedisCredentialStore"),
	}
}

func credentialKey(hash string) string { return "refresh_token:" + hash }

func subjectSetKey(subjectID uuid.UUID) string { return "user_tokens:" + subjectID.String() }

func (s *redisCredentialStore) encode(subjectID uuid.UUID, ttl time.Duration) ([]byte, error) {
	now := s.now().UTC()
	return json.Marshal(storedCredential{SubjectID: subjectID, IssuedAt: now, ExpiresAt: now.Add(ttl)})
}

// Save stores the credential and indexes it under the subject's set.
func (s *redisCredentialStore) Save(ctx context.Context, subjectID uuid.UUID, token string, ttl time.Duration) error {
	hash := authutils.HashToken(token)
	value, err := s.encode(subjectID, ttl)
	if err != nil {
		return fmt.Errorf("failed to encode refresh credential: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, credentialKey(hash), value, ttl)
	pipe.SAdd(ctx, subjectSetKey(subjectID), hash)
	pipe.Expire(ctx, subjectSetKey(subjectID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("Failed to save refresh credential in redis", zap.String("userID", subjectID.String()), zap.Error(err))
		return fmt.Errorf("failed to save refresh credential in redis: %w", err)
	}
	s.logger.Debug("Refresh credential saved", zap.String("userID", subjectID.String()), zap.Duration("ttl", ttl))
	return nil
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *redisCredentialStore) load(ctx context.Context, c stringGetter, hash string) (*storedCredential, error) {
	raw, err := c.Get(ctx, credentialKey(hash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get refresh credential from redis: %w", err)
	}
	var stored storedCredential
	if err := json.Unmarshal(raw, &stored); err != nil {
		// Данные в Redis повреждены
		s.logger.Error("Corrupted refresh credential in redis", zap.Error(err))
		return nil, fmt.Errorf("corrupted refresh credential in redis: %w", err)
	}
	if !stored.ExpiresAt.After(s.now()) {
		return nil, models.ErrTokenNotFound
	}
	return &stored, nil
}

// FindByToken returns the record together with the owner's current restriction.
func (s *redisCredentialStore) FindByToken(ctx context.Context, token string) (*models.RefreshRecord, error) {
	hash := authutils.HashToken(token)
	stored, err := s.load(ctx, s.client, hash)
	if err != nil {
		if !errors.Is(err, models.ErrTokenNotFound) {
			s.logger.Error("Failed to find refresh credential", zap.Error(err))
		}
		return nil, err
	}

	rec := &models.RefreshRecord{
		TokenHash: hash,
		SubjectID: stored.SubjectID,
		IssuedAt:  stored.IssuedAt,
		ExpiresAt: stored.ExpiresAt,
	}
	if s.users != nil {
		subject, err := s.users.GetUserByID(ctx, stored.SubjectID)
		if err != nil {
			if errors.Is(err, models.ErrUserNotFound) {
				// Владелец удалён: запись бесполезна
				return nil, models.ErrTokenNotFound
			}
			return nil, fmt.Errorf("failed to load credential owner: %w", err)
		}
		rec.RestrictedUntil = subject.RestrictedUntil
	}
	return rec, nil
}

// DeleteByToken removes one credential. Missing credentials are not an error.
func (s *redisCredentialStore) DeleteByToken(ctx context.Context, token string) error {
	hash := authutils.HashToken(token)
	stored, err := s.load(ctx, s.client, hash)
	if err != nil {
		if errors.Is(err, models.ErrTokenNotFound) {
			s.logger.Debug("Refresh credential already absent")
			return nil
		}
		// Повреждённую запись всё равно удаляем
		s.logger.Warn("Deleting unreadable refresh credential", zap.Error(err))
		stored = nil
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, credentialKey(hash))
	if stored != nil {
		pipe.SRem(ctx, subjectSetKey(stored.SubjectID), hash)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("Failed to delete refresh credential", zap.Error(err))
		return fmt.Errorf("failed to delete refresh credential: %w", err)
	}
	return nil
}

// DeleteAllForSubject removes every credential of the subject in one MULTI block,
// retrying when the subject's set changes concurrently.
func (s *redisCredentialStore) DeleteAllForSubject(ctx context.Context, subjectID uuid.UUID) (int64, error) {
	setKey := subjectSetKey(subjectID)
	var deleted int64

	txf := func(tx *redis.Tx) error {
		hashes, err := tx.SMembers(ctx, setKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		keys := make([]string, 0, len(hashes)+1)
		for _, h := range hashes {
			keys = append(keys, credentialKey(h))
		}
		var delCmd *redis.IntCmd
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(keys) > 0 {
				delCmd = pipe.Del(ctx, keys...)
			}
			pipe.Del(ctx, setKey)
			return nil
		})
		if err == nil && delCmd != nil {
			deleted = delCmd.Val()
		}
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := s.client.Watch(ctx, txf, setKey)
		if err == nil {
			s.logger.Info("Deleted refresh credentials for subject", zap.String("userID", subjectID.String()), zap.Int64("deletedCount", deleted))
			return deleted, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		s.logger.Error("Failed to delete subject refresh credentials", zap.String("userID", subjectID.String()), zap.Error(err))
		return 0, fmt.Errorf("failed to delete refresh credentials for subject %s: %w", subjectID, err)
	}
	return 0, fmt.Errorf("failed to delete refresh credentials for subject %s: too much contention", subjectID)
}

// Rotate consumes oldToken and stores newToken atomically. Of several concurrent
// rotations of the same credential exactly one succeeds.
func (s *redisCredentialStore) Rotate(ctx context.Context, oldToken string, subjectID uuid.UUID, newToken string, ttl time.Duration) error {
	oldHash := authutils.HashToken(oldToken)
	newHash := authutils.HashToken(newToken)
	oldKey := credentialKey(oldHash)
	setKey := subjectSetKey(subjectID)
	log := s.logger.With(zap.String("userID", subjectID.String()))

	value, err := s.encode(subjectID, ttl)
	if err != nil {
		return fmt.Errorf("failed to encode refresh credential: %w", err)
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		stored, err := s.load(ctx, tx, oldHash)
		if err != nil {
			return err
		}
		if stored.SubjectID != subjectID {
			return models.ErrTokenNotFound
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, oldKey)
			pipe.SRem(ctx, setKey, oldHash)
			pipe.Set(ctx, credentialKey(newHash), value, ttl)
			pipe.SAdd(ctx, setKey, newHash)
			pipe.Expire(ctx, setKey, ttl)
			return nil
		})
		return err
	}, oldKey)

	switch {
	case err == nil:
		log.Debug("Refresh credential rotated")
		return nil
	case errors.Is(err, redis.TxFailedErr):
		log.Warn("Concurrent rotation lost the race")
		return models.ErrTokenNotFound
	case errors.Is(err, models.ErrTokenNotFound):
		log.Warn("Refresh credential already consumed during rotation")
		return err
	default:
		log.Error("Failed to rotate refresh credential", zap.Error(err))
		return fmt.Errorf("failed to rotate refresh credential: %w", err)
	}
}
