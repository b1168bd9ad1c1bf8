package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"venue-server/auth/internal/config"
	"venue-server/shared/authutils"
	"venue-server/shared/interfaces"
	"venue-server/shared/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Compile-time check to ensure sessionIssuerImpl implements SessionIssuer
var _ SessionIssuer = (*sessionIssuerImpl)(nil)

type sessionIssuerImpl struct {
	users    interfaces.UserRepository
	store    interfaces.CredentialStore
	codec    *authutils.Codec
	profiles ProfileCreator
	events   EventPublisher
	cfg      *config.Config
	logger   *zap.Logger
}

// NewSessionIssuer creates the SessionIssuer. profiles and events may be nil.
func NewSessionIssuer(
	users interfaces.UserRepository,
	store interfaces.CredentialStore,
	codec *authutils.Codec,
	profiles ProfileCreator,
	events EventPublisher,
	cfg *config.Config,
	logger *zap.Logger,
) SessionIssuer {
	return &sessionIssuerImpl{
		users:    users,
		store:    store,
		codec:    codec,
		profiles: profiles,
		events:   events,
		cfg:      cfg,
		logger:   logger.Named("SessionIssuer"),
	}
}

// Register creates a subject, its downstream profile and a first session.
func (s *sessionIssuerImpl) Register(ctx context.Context, username, email, password string) (*models.Subject, *models.TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.TrimSpace(username)
	logFields := []zap.Field{zap.String("username", username), zap.String("email", email)}
	s.logger.Info("Registering new user", logFields...)

	if _, err := mail.ParseAddress(email); err != nil {
		s.logger.Warn("Registration attempt with invalid email format", append(logFields, zap.Error(err))...)
		return nil, nil, fmt.Errorf("%w: invalid email format", models.ErrInvalidInput)
	}
	if username == "" || password == "" {
		return nil, nil, fmt.Errorf("%w: username and password are required", models.ErrInvalidInput)
	}

	// Проверка существования пользователя по email и username
	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		s.logger.Warn("Registration attempt for existing email", logFields...)
		return nil, nil, models.ErrEmailAlreadyExists
	} else if !errors.Is(err, models.ErrUserNotFound) {
		return nil, nil, fmt.Errorf("error checking existing email: %w", err)
	}
	if _, err := s.users.GetUserByUsername(ctx, username); err == nil {
		s.logger.Warn("Registration attempt for existing username", logFields...)
		return nil, nil, models.ErrUserAlreadyExists
	} else if !errors.Is(err, models.ErrUserNotFound) {
		return nil, nil, fmt.Errorf("error checking existing username: %w", err)
	}

	hash, err := hashPassword(password, s.cfg.PasswordPepper, s.cfg.BcryptCost)
	if err != nil {
		s.logger.Error("Failed to hash password during registration", append(logFields, zap.Error(err))...)
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	subject := &models.Subject{
		Username:         username,
		Email:            email,
		PasswordHash:     hash,
		Role:             models.RoleUser,
		ReliabilityScore: models.DefaultReliabilityScore,
	}
	// Конфликты уникальности уже преобразованы репозиторием
	if err := s.users.CreateUser(ctx, subject); err != nil {
		return nil, nil, err
	}

	if s.profiles != nil {
		if err := s.profiles.CreateProfile(ctx, subject); err != nil {
			s.logger.Error("Profile creation failed, rolling back user", append(logFields, zap.Error(err))...)
			if delErr := s.users.DeleteUser(ctx, subject.ID); delErr != nil {
				s.logger.Error("Failed to roll back user after profile failure", append(logFields, zap.Error(delErr))...)
			}
			return nil, nil, fmt.Errorf("failed to create profile: %w", err)
		}
	}

	pair, err := s.Issue(ctx, subject, true)
	if err != nil {
		return nil, nil, err
	}
	s.publish(ctx, models.SessionEvent{Type: models.EventUserRegistered, SubjectID: subject.ID})
	s.logger.Info("User registered successfully", zap.String("userID", subject.ID.String()))
	return subject, pair, nil
}

// Login authenticates by email and password and starts a fresh session.
func (s *sessionIssuerImpl) Login(ctx context.Context, email, password string) (*models.Subject, *models.TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.logger.Info("Login attempt", zap.String("email", email))

	subject, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			s.logger.Warn("Login failed: user not found", zap.String("email", email))
			return nil, nil, models.ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !checkPasswordHash(password, subject.PasswordHash, s.cfg.PasswordPepper) {
		s.logger.Warn("Login failed: invalid password", zap.String("userID", subject.ID.String()))
		return nil, nil, models.ErrInvalidCredentials
	}
	now := s.codec.Now()
	if subject.Restricted(now) {
		s.logger.Warn("Login failed: user is restricted", zap.String("userID", subject.ID.String()), zap.Time("until", *subject.RestrictedUntil))
		return nil, nil, models.NewRestrictedError(*subject.RestrictedUntil)
	}

	pair, err := s.Issue(ctx, subject, true)
	if err != nil {
		return nil, nil, err
	}
	if err := s.users.UpdateLastLogin(ctx, subject.ID, now); err != nil {
		s.logger.Warn("Failed to record last login", zap.String("userID", subject.ID.String()), zap.Error(err))
	}
	s.logger.Info("User logged in successfully", zap.String("userID", subject.ID.String()))
	return subject, pair, nil
}

// Issue signs a new pair and persists the refresh credential.
func (s *sessionIssuerImpl) Issue(ctx context.Context, subject *models.Subject, freshLogin bool) (*models.TokenPair, error) {
	log := s.logger.With(zap.String("userID", subject.ID.String()))
	if freshLogin {
		// Новая сессия отзывает все предыдущие refresh токены
		revoked, err := s.store.DeleteAllForSubject(ctx, subject.ID)
		if err != nil {
			log.Error("Failed to revoke prior sessions", zap.Error(err))
			return nil, fmt.Errorf("failed to revoke prior sessions: %w", err)
		}
		if revoked > 0 {
			s.publish(ctx, models.SessionEvent{
				Type: models.EventSessionRevoked, SubjectID: subject.ID,
				Reason: models.RevokeReasonLogin, Revoked: revoked,
			})
		}
	}

	pair, refresh, err := s.sign(subject)
	if err != nil {
		log.Error("Failed to sign token pair", zap.Error(err))
		return nil, err
	}
	if err := s.store.Save(ctx, subject.ID, refresh, s.codec.RefreshTTL()); err != nil {
		log.Error("Failed to save refresh credential", zap.Error(err))
		return nil, fmt.Errorf("failed to save refresh credential: %w", err)
	}
	log.Debug("Token pair issued", zap.Bool("freshLogin", freshLogin))
	return pair, nil
}

func (s *sessionIssuerImpl) sign(subject *models.Subject) (*models.TokenPair, string, error) {
	access, accessExp, err := s.codec.SignAccess(models.NewIdentityClaims(subject))
	if err != nil {
		return nil, "", fmt.Errorf("failed to sign access token: %w", err)
	}
	refresh, refreshExp, err := s.codec.SignRefresh(subject.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return &models.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, refresh, nil
}

// Renew exchanges a refresh credential for a new pair. The old credential is
// consumed atomically, so only one of several concurrent renewals succeeds.
func (s *sessionIssuerImpl) Renew(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	claims, err := s.codec.VerifyRefresh(refreshToken)
	if err != nil {
		s.logger.Warn("Renewal with unverifiable refresh token", zap.String("tokenSnippet", authutils.TokenSnippet(refreshToken)), zap.Error(err))
		return nil, err
	}
	log := s.logger.With(zap.String("userID", claims.SubjectID.String()))

	rec, err := s.store.FindByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, models.ErrTokenNotFound) {
			log.Warn("Renewal with revoked or consumed refresh token")
		}
		return nil, err
	}
	if rec.SubjectID != claims.SubjectID {
		log.Error("Refresh token subject mismatch", zap.String("storedUserID", rec.SubjectID.String()))
		return nil, models.ErrTokenInvalid
	}
	now := s.codec.Now()
	if rec.Restricted(now) {
		log.Warn("Renewal refused: user is restricted")
		return nil, models.NewRestrictedError(*rec.RestrictedUntil)
	}

	subject, err := s.users.GetUserByID(ctx, rec.SubjectID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			log.Warn("Renewal for a subject that no longer exists")
			return nil, models.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load subject: %w", err)
	}
	if subject.Restricted(now) {
		return nil, models.NewRestrictedError(*subject.RestrictedUntil)
	}

	pair, newRefresh, err := s.sign(subject)
	if err != nil {
		return nil, err
	}
	if err := s.store.Rotate(ctx, refreshToken, subject.ID, newRefresh, s.codec.RefreshTTL()); err != nil {
		if errors.Is(err, models.ErrTokenNotFound) {
			log.Warn("Refresh token consumed concurrently")
			return nil, err
		}
		log.Error("Failed to rotate refresh credential", zap.Error(err))
		return nil, fmt.Errorf("failed to rotate refresh credential: %w", err)
	}
	log.Info("Session renewed")
	return pair, nil
}

func (s *sessionIssuerImpl) Logout(ctx context.Context, refreshToken string) {
	if refreshToken == "" {
		return
	}
	if err := s.store.DeleteByToken(ctx, refreshToken); err != nil {
		s.logger.Error("Failed to delete refresh credential during logout", zap.Error(err))
		return
	}
	// Событие публикуем только если токен удалось разобрать
	if claims, err := s.codec.VerifyRefresh(refreshToken); err == nil {
		s.publish(ctx, models.SessionEvent{
			Type: models.EventSessionRevoked, SubjectID: claims.SubjectID,
			Reason: models.RevokeReasonLogout, Revoked: 1,
		})
	}
	s.logger.Info("Logout processed")
}

func (s *sessionIssuerImpl) UpdatePassword(ctx context.Context, subjectID uuid.UUID, oldPassword, newPassword string) error {
	log := s.logger.With(zap.String("userID", subjectID.String()))
	subject, err := s.users.GetUserByID(ctx, subjectID)
	if err != nil {
		return err
	}
	if !checkPasswordHash(oldPassword, subject.PasswordHash, s.cfg.PasswordPepper) {
		log.Warn("Password change refused: old password mismatch")
		return models.ErrInvalidCredentials
	}
	hash, err := hashPassword(newPassword, s.cfg.PasswordPepper, s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.UpdatePasswordHash(ctx, subjectID, hash); err != nil {
		return err
	}
	revoked, err := s.store.DeleteAllForSubject(ctx, subjectID)
	if err != nil {
		log.Error("Password updated but sessions were not revoked", zap.Error(err))
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}
	s.publish(ctx, models.SessionEvent{
		Type: models.EventSessionRevoked, SubjectID: subjectID,
		Reason: models.RevokeReasonPasswordChange, Revoked: revoked,
	})
	log.Info("Password updated, sessions revoked", zap.Int64("revoked", revoked))
	return nil
}

func (s *sessionIssuerImpl) ValidateSubject(ctx context.Context, subjectID uuid.UUID) (*models.Subject, error) {
	subject, err := s.users.GetUserByID(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if subject.Restricted(s.codec.Now()) {
		return nil, models.NewRestrictedError(*subject.RestrictedUntil)
	}
	return subject, nil
}

func (s *sessionIssuerImpl) Restrict(ctx context.Context, subjectID uuid.UUID, until *time.Time) error {
	log := s.logger.With(zap.String("userID", subjectID.String()))
	if err := s.users.SetRestriction(ctx, subjectID, until); err != nil {
		return err
	}
	if until == nil || !until.After(s.codec.Now()) {
		log.Info("Restriction lifted")
		return nil
	}
	revoked, err := s.store.DeleteAllForSubject(ctx, subjectID)
	if err != nil {
		log.Error("Failed to revoke sessions of restricted user", zap.Error(err))
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}
	s.publish(ctx, models.SessionEvent{
		Type: models.EventSessionRevoked, SubjectID: subjectID,
		Reason: models.RevokeReasonRestricted, Revoked: revoked,
	})
	log.Info("User restricted", zap.Time("until", *until), zap.Int64("revoked", revoked))
	return nil
}

func (s *sessionIssuerImpl) publish(ctx context.Context, event models.SessionEvent) {
	if s.events == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.codec.Now().UTC()
	}
	if err := s.events.PublishSessionEvent(ctx, event); err != nil {
		s.logger.Warn("Failed to publish session event", zap.String("type", string(event.Type)), zap.Error(err))
	}
}
