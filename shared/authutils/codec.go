package authutils

import (
	"errors"
	"fmt"
	"time"
	"venue-server/shared/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultMinSecretLength is the shortest HMAC secret NewCodec accepts by default.
const DefaultMinSecretLength = 32

const issuer = "venue-server-auth"

// Sign encodes claims into an HS256 token that expires ttl after now.
// IssuedAt, ExpiresAt and ID (jti) are set here; a fresh jti makes every token unique.
func Sign(claims *models.IdentityClaims, secret []byte, ttl time.Duration, now time.Time) (string, error) {
	if claims == nil {
		return "", errors.New("claims are required")
	}
	c := *claims
	c.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   claims.SubjectID.String(),
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &c)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry. A token whose expiry falls within buffer of now
// is reported as expired. Returned errors are models.ErrTokenExpired,
// models.ErrTokenMalformed or models.ErrTokenInvalid.
func Verify(tokenString string, secret []byte, buffer time.Duration, now time.Time) (*models.IdentityClaims, error) {
	claims := &models.IdentityClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, models.ErrTokenMalformed
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, models.ErrTokenInvalid
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, models.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", models.ErrTokenInvalid, err)
	}
	if !token.Valid || claims.SubjectID == uuid.Nil {
		return nil, models.ErrTokenInvalid
	}
	if !now.Before(claims.ExpiresAtTime().Add(-buffer)) {
		return nil, models.ErrTokenExpired
	}
	return claims, nil
}

// Codec signs and verifies the two credential classes with independent secrets.
type Codec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
	logger        *zap.Logger
}

// CodecConfig configures NewCodec.
type CodecConfig struct {
	AccessSecret    string
	RefreshSecret   string
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	MinSecretLength int
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// NewCodec создает Codec. Секреты должны быть разными и не короче MinSecretLength.
func NewCodec(cfg CodecConfig, logger *zap.Logger) (*Codec, error) {
	minLen := cfg.MinSecretLength
	if minLen <= 0 {
		minLen = DefaultMinSecretLength
	}
	if len(cfg.AccessSecret) < minLen || len(cfg.RefreshSecret) < minLen {
		return nil, fmt.Errorf("jwt secrets must be at least %d bytes", minLen)
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token TTLs must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Codec{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           now,
		logger:        logger.Named("CredentialCodec"),
	}, nil
}

// Now returns the codec's clock reading.
func (c *Codec) Now() time.Time { return c.now() }

// AccessTTL returns the configured access credential lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the configured refresh credential lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

// SignAccess mints an access credential for the claims.
func (c *Codec) SignAccess(claims *models.IdentityClaims) (string, time.Time, error) {
	now := c.now()
	token, err := Sign(claims, c.accessSecret, c.accessTTL, now)
	if err != nil {
		c.logger.Error("Failed to sign access token", zap.Error(err), zap.String("subjectID", claims.SubjectID.String()))
		return "", time.Time{}, err
	}
	return token, now.Add(c.accessTTL), nil
}

// SignRefresh mints a refresh credential. Only the subject id is embedded.
func (c *Codec) SignRefresh(subjectID uuid.UUID) (string, time.Time, error) {
	now := c.now()
	token, err := Sign(&models.IdentityClaims{SubjectID: subjectID}, c.refreshSecret, c.refreshTTL, now)
	if err != nil {
		c.logger.Error("Failed to sign refresh token", zap.Error(err), zap.String("subjectID", subjectID.String()))
		return "", time.Time{}, err
	}
	return token, now.Add(c.refreshTTL), nil
}

// VerifyAccess verifies an access credential, treating expiry within buffer as expired.
func (c *Codec) VerifyAccess(token string, buffer time.Duration) (*models.IdentityClaims, error) {
	claims, err := Verify(token, c.accessSecret, buffer, c.now())
	if err != nil {
		c.logger.Debug("Access token verification failed", zap.Error(err), zap.String("tokenSnippet", TokenSnippet(token)))
		return nil, err
	}
	return claims, nil
}

// VerifyRefresh verifies a refresh credential.
func (c *Codec) VerifyRefresh(token string) (*models.IdentityClaims, error) {
	claims, err := Verify(token, c.refreshSecret, 0, c.now())
	if err != nil {
		c.logger.Debug("Refresh token verification failed", zap.Error(err), zap.String("tokenSnippet", TokenSnippet(token)))
		return nil, err
	}
	return claims, nil
}

// TokenSnippet возвращает безопасную для логгирования часть токена.
func TokenSnippet(tokenString string) string {
	limit := 15
	if len(tokenString) > limit {
		return tokenString[:limit] + "..."
	}
	return tokenString
}
