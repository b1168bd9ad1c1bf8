// Package authn authenticates gateway requests from access and refresh credentials.
package authn

import (
	"context"
	"errors"
	"fmt"
	"time"
	"venue-server/shared/authutils"
	"venue-server/shared/middleware"
	"venue-server/shared/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Renewer exchanges a refresh credential for a new pair.
type Renewer interface {
	Renew(ctx context.Context, refreshToken string) (*models.TokenPair, error)
}

// SubjectChecker confirms the subject still exists and is not restricted.
type SubjectChecker interface {
	CheckSubject(ctx context.Context, subjectID uuid.UUID) (*models.SubjectStatus, error)
}

// DefaultExpiryBuffer: access tokens expiring sooner than this are renewed.
const DefaultExpiryBuffer = 30 * time.Second

const ginAccessTokenKey = "gatewayAccessToken"

// Options configures NewAuthenticator.
type Options struct {
	// ExpiryBuffer <= 0 means DefaultExpiryBuffer.
	ExpiryBuffer time.Duration
	Cookies      authutils.CookiePolicy
	ExposeStack  bool
	// Now must match the verifier's clock; nil means time.Now.
	Now func() time.Time
}

// Authenticator is the per-request state machine:
// extract, verify with buffer, renew at most once, check subject.
type Authenticator struct {
	verifier middleware.AccessVerifier
	renewer  Renewer
	checker  SubjectChecker
	opts     Options
	logger   *zap.Logger
}

func NewAuthenticator(verifier middleware.AccessVerifier, renewer Renewer, checker SubjectChecker, opts Options, logger *zap.Logger) *Authenticator {
	if opts.ExpiryBuffer <= 0 {
		opts.ExpiryBuffer = DefaultExpiryBuffer
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Authenticator{
		verifier: verifier,
		renewer:  renewer,
		checker:  checker,
		opts:     opts,
		logger:   logger.Named("RequestAuthenticator"),
	}
}

// Result is a successful authentication.
type Result struct {
	Claims      *models.IdentityClaims
	AccessToken string
	// Renewed is set when the request was authenticated through a renewal.
	Renewed *models.TokenPair
}

// Authenticate runs the state machine for one request.
func (a *Authenticator) Authenticate(ctx context.Context, creds Credentials) (*Result, error) {
	if creds.Empty() {
		return nil, models.ErrUnauthenticated
	}

	var (
		claims  *models.IdentityClaims
		renewed *models.TokenPair
		access  = creds.Access
		err     error
	)
	if access != "" {
		claims, err = a.verifier.VerifyAccess(access, a.opts.ExpiryBuffer)
		switch {
		case err == nil:
		case errors.Is(err, models.ErrTokenExpired) && creds.Refresh != "":
			claims = nil
		default:
			// Невалидная подпись или формат: без обновления
			return nil, err
		}
	}

	if claims == nil {
		renewed, err = a.renew(ctx, creds.Refresh)
		if err != nil {
			return nil, err
		}
		access = renewed.AccessToken
		claims, err = a.verifier.VerifyAccess(access, a.opts.ExpiryBuffer)
		if err != nil {
			// Обновленный токен не прошел проверку: терминальное состояние
			a.logger.Error("Renewed access token failed verification", zap.Error(err))
			return nil, fmt.Errorf("%w: renewed credential rejected: %v", models.ErrSessionExpired, err)
		}
		// Renew сам проверяет субъект; новая пара всегда отдается клиенту
		return &Result{Claims: claims, AccessToken: access, Renewed: renewed}, nil
	}

	status, err := a.checker.CheckSubject(ctx, claims.SubjectID)
	if err != nil {
		return nil, err
	}
	if status.RestrictedUntil != nil && status.RestrictedUntil.After(a.opts.Now()) {
		return nil, models.NewRestrictedError(*status.RestrictedUntil)
	}
	if status.Role != "" {
		claims.Role = status.Role
	}
	if status.ReliabilityScore != 0 {
		claims.ReliabilityScore = status.ReliabilityScore
	}
	return &Result{Claims: claims, AccessToken: access}, nil
}

// renew performs the single renewal allowed per request.
func (a *Authenticator) renew(ctx context.Context, refresh string) (*models.TokenPair, error) {
	pair, err := a.renewer.Renew(ctx, refresh)
	if err == nil {
		renewalsTotal.WithLabelValues("success").Inc()
		return pair, nil
	}
	switch kind := models.KindOf(err); kind {
	case models.KindUpstreamUnavailable, models.KindAccountRestricted, models.KindSessionExpired:
		renewalsTotal.WithLabelValues(string(kind)).Inc()
		a.logger.Info("Session renewal refused", zap.String("kind", string(kind)), zap.String("tokenSnippet", authutils.TokenSnippet(refresh)))
		return nil, err
	default:
		renewalsTotal.WithLabelValues(string(models.KindSessionExpired)).Inc()
		return nil, fmt.Errorf("%w: %v", models.ErrSessionExpired, err)
	}
}

// Middleware authenticates the request or aborts it. Every rejection clears
// both session cookies, except UpstreamUnavailable: the client retries with the
// credentials it still holds.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		creds := ExtractCredentials(c.Request)
		result, err := a.Authenticate(c.Request.Context(), creds)
		if err != nil {
			authenticationsTotal.WithLabelValues(string(models.KindOf(err))).Inc()
			a.logger.Debug("Request rejected",
				zap.String("path", c.Request.URL.Path),
				zap.String("correlation_id", middleware.CorrelationIDFrom(c)),
				zap.Error(err),
			)
			if !KeepsCredentials(err) {
				a.opts.Cookies.ClearSessionCookies(c.Writer)
			}
			middleware.RespondError(c, err, a.opts.ExposeStack)
			return
		}

		if result.Renewed != nil {
			authenticationsTotal.WithLabelValues("renewed").Inc()
			a.opts.Cookies.SetSessionCookies(c.Writer, result.Renewed.AccessToken, result.Renewed.RefreshToken)
			if !creds.FromCookies {
				c.Header(authutils.AccessHeader, result.Renewed.AccessToken)
				c.Header(authutils.RefreshHeader, result.Renewed.RefreshToken)
			}
		} else {
			authenticationsTotal.WithLabelValues("accepted").Inc()
		}

		middleware.SetIdentity(c, result.Claims)
		SetAccessToken(c, result.AccessToken)
		c.Next()
	}
}

// SetAccessToken records the credential forwarded downstream in credential trust mode.
func SetAccessToken(c *gin.Context, token string) {
	c.Set(ginAccessTokenKey, token)
}

// AccessTokenFrom returns the access credential the request was authenticated with
// (the renewed one after a renewal).
func AccessTokenFrom(c *gin.Context) string {
	return c.GetString(ginAccessTokenKey)
}

// KeepsCredentials reports whether a rejection leaves the presented credentials
// usable. Only a transient auth-service failure does.
func KeepsCredentials(err error) bool {
	return models.KindOf(err) == models.KindUpstreamUnavailable
}
