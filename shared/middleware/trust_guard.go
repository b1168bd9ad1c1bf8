package middleware

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"venue-server/shared/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TrustMode selects how a downstream service establishes that a request came
// through the gateway. Exactly one mode is active per deployment.
type TrustMode string

const (
	// TrustModeHeader: gateway secret plus asserted identity headers.
	TrustModeHeader TrustMode = "header"
	// TrustModeCredential: gateway secret plus a re-verified forwarded access credential.
	TrustModeCredential TrustMode = "credential"
)

// ErrUnknownTrustMode is returned at startup for an unsupported TRUST_MODE.
var ErrUnknownTrustMode = errors.New("unknown trust mode")

// ParseTrustMode validates a configured trust mode.
func ParseTrustMode(s string) (TrustMode, error) {
	switch m := TrustMode(strings.ToLower(strings.TrimSpace(s))); m {
	case TrustModeHeader, TrustModeCredential:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTrustMode, s)
	}
}

// TrustBoundaryGuard protects downstream routes from requests that bypassed the gateway.
type TrustBoundaryGuard interface {
	Mode() TrustMode
	Guard() gin.HandlerFunc
}

// AccessVerifier re-verifies a forwarded access credential. *authutils.Codec satisfies it.
type AccessVerifier interface {
	VerifyAccess(token string, buffer time.Duration) (*models.IdentityClaims, error)
}

// GuardOptions configures NewTrustBoundaryGuard.
type GuardOptions struct {
	GatewaySecret string
	// Verifier is required for TrustModeCredential.
	Verifier    AccessVerifier
	ExposeStack bool
	Logger      *zap.Logger
}

// NewTrustBoundaryGuard builds the guard for mode. There is no fallback between modes.
func NewTrustBoundaryGuard(mode TrustMode, opts GuardOptions) (TrustBoundaryGuard, error) {
	if opts.GatewaySecret == "" {
		return nil, errors.New("gateway secret is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	base := secretCheck{secret: []byte(opts.GatewaySecret), exposeStack: opts.ExposeStack}

	switch mode {
	case TrustModeHeader:
		return &HeaderIdentityGuard{secretCheck: base, logger: opts.Logger.Named("HeaderIdentityGuard")}, nil
	case TrustModeCredential:
		if opts.Verifier == nil {
			return nil, errors.New("credential trust mode requires an access verifier")
		}
		return &ForwardedCredentialGuard{
			secretCheck: base,
			verifier:    opts.Verifier,
			logger:      opts.Logger.Named("ForwardedCredentialGuard"),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTrustMode, mode)
	}
}

type secretCheck struct {
	secret      []byte
	exposeStack bool
}

func (s secretCheck) valid(c *gin.Context) bool {
	return SecretsEqual(c.GetHeader(HeaderGatewaySecret), s.secret)
}

func (s secretCheck) reject(c *gin.Context, log *zap.Logger, err error) {
	log.Warn("Trust boundary rejected request",
		zap.String("path", c.Request.URL.Path),
		zap.String("ip", c.ClientIP()),
		zap.Error(err),
	)
	RespondError(c, err, s.exposeStack)
}

// SecretsEqual compares in constant time. An empty presented value never matches.
func SecretsEqual(presented string, expected []byte) bool {
	if presented == "" || len(expected) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), expected) == 1
}

// HeaderIdentityGuard trusts identity headers once the gateway secret matches.
type HeaderIdentityGuard struct {
	secretCheck
	logger *zap.Logger
}

var _ TrustBoundaryGuard = (*HeaderIdentityGuard)(nil)

func (g *HeaderIdentityGuard) Mode() TrustMode { return TrustModeHeader }

func (g *HeaderIdentityGuard) Guard() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !g.valid(c) {
			g.reject(c, g.logger, models.ErrDirectAccessNotAllowed)
			return
		}
		claims, err := identityFromHeaders(c)
		if err != nil {
			g.reject(c, g.logger, err)
			return
		}
		SetIdentity(c, claims)
		c.Next()
	}
}

func identityFromHeaders(c *gin.Context) (*models.IdentityClaims, error) {
	rawID := strings.TrimSpace(c.GetHeader(HeaderUserID))
	if rawID == "" {
		return nil, models.ErrIdentityRequired
	}
	id, err := uuid.Parse(rawID)
	if err != nil || id == uuid.Nil {
		return nil, fmt.Errorf("%w: malformed user id", models.ErrIdentityRequired)
	}
	score := models.DefaultReliabilityScore
	if raw := c.GetHeader(HeaderUserReliability); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			score = v
		}
	}
	role := c.GetHeader(HeaderUserRole)
	if role == "" {
		role = models.RoleUser
	}
	return &models.IdentityClaims{
		SubjectID:        id,
		Email:            c.GetHeader(HeaderUserEmail),
		Role:             role,
		ReliabilityScore: score,
	}, nil
}

// ForwardedCredentialGuard re-verifies the forwarded access credential.
type ForwardedCredentialGuard struct {
	secretCheck
	verifier AccessVerifier
	logger   *zap.Logger
}

var _ TrustBoundaryGuard = (*ForwardedCredentialGuard)(nil)

func (g *ForwardedCredentialGuard) Mode() TrustMode { return TrustModeCredential }

func (g *ForwardedCredentialGuard) Guard() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !g.valid(c) {
			g.reject(c, g.logger, models.ErrDirectAccessNotAllowed)
			return
		}
		token := c.GetHeader(HeaderForwardedAccessToken)
		if token == "" {
			g.reject(c, g.logger, models.ErrIdentityRequired)
			return
		}
		// Шлюз уже проверил буфер истечения, здесь достаточно точной проверки
		claims, err := g.verifier.VerifyAccess(token, 0)
		if err != nil {
			g.reject(c, g.logger, err)
			return
		}
		SetIdentity(c, claims)
		c.Next()
	}
}
