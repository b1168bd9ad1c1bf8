// Package proxy forwards authenticated gateway requests to downstream services.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"venue-server/api-gateway/internal/authn"
	"venue-server/api-gateway/internal/registry"
	"venue-server/shared/middleware"
	"venue-server/shared/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// DefaultTimeout bounds every downstream call.
const DefaultTimeout = 5 * time.Second

// allowedHeaders are the only inbound headers copied downstream.
var allowedHeaders = []string{"Authorization", "Content-Type", "User-Agent", "X-Request-Id", "Accept"}

// Config configures NewForwarder.
type Config struct {
	Timeout       time.Duration
	GatewaySecret string
	TrustMode     middleware.TrustMode
	ExposeStack   bool
	// Breaker opens after MaxFailures consecutive transport failures and
	// half-opens after OpenTimeout.
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
}

// Forwarder relays requests to services resolved from the registry.
type Forwarder struct {
	registry *registry.Registry
	client   *http.Client
	breakers map[string]*gobreaker.CircuitBreaker
	cfg      Config
	logger   *zap.Logger
}

// NewForwarder creates one circuit breaker per registered service. transport may be nil.
func NewForwarder(reg *registry.Registry, cfg Config, transport http.RoundTripper, logger *zap.Logger) (*Forwarder, error) {
	if cfg.GatewaySecret == "" {
		return nil, errors.New("gateway secret is required")
	}
	if cfg.TrustMode != middleware.TrustModeHeader && cfg.TrustMode != middleware.TrustModeCredential {
		return nil, fmt.Errorf("%w: %q", middleware.ErrUnknownTrustMode, cfg.TrustMode)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.BreakerMaxFailures == 0 {
		cfg.BreakerMaxFailures = 5
	}
	if cfg.BreakerOpenTimeout <= 0 {
		cfg.BreakerOpenTimeout = 30 * time.Second
	}
	if transport == nil {
		transport = http.DefaultTransport
	}
	log := logger.Named("ProxyForwarder")

	breakers := make(map[string]*gobreaker.CircuitBreaker)
	for _, name := range reg.Names() {
		breakers[name] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     cfg.BreakerOpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
			},
			// Отмена клиентом не считается отказом сервиса
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				breakerStateChanges.WithLabelValues(name, to.String()).Inc()
				log.Warn("Circuit breaker state changed",
					zap.String("service", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		})
	}

	return &Forwarder{
		registry: reg,
		// Редиректы отдаем клиенту как есть
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		breakers: breakers,
		cfg:      cfg,
		logger:   log,
	}, nil
}

// Handler forwards to service, mapping the request through rewrite
// (nil keeps the inbound path).
func (f *Forwarder) Handler(service string, rewrite func(c *gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if rewrite != nil {
			path = rewrite(c)
		}
		f.Forward(c, service, path)
	}
}

// Forward relays the request to service at path and writes the downstream
// response. Transport failures, timeouts and an open breaker answer 503;
// local faults answer 500. There are no retries.
func (f *Forwarder) Forward(c *gin.Context, service, path string) {
	log := f.logger.With(zap.String("service", service), zap.String("path", path))

	base, err := f.registry.Resolve(service)
	if err != nil {
		log.Error("Route points at unregistered service", zap.Error(err))
		proxyRequestsTotal.WithLabelValues(service, "unknown_service").Inc()
		middleware.RespondError(c, err, f.cfg.ExposeStack)
		return
	}
	target := *base
	target.Path = strings.TrimRight(base.Path, "/") + "/" + strings.TrimLeft(path, "/")
	target.RawQuery = c.Request.URL.RawQuery

	ctx, cancel := context.WithTimeout(c.Request.Context(), f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, c.Request.Method, target.String(), c.Request.Body)
	if err != nil {
		proxyRequestsTotal.WithLabelValues(service, "local_error").Inc()
		middleware.RespondError(c, fmt.Errorf("failed to build downstream request: %w", err), f.cfg.ExposeStack)
		return
	}
	req.ContentLength = c.Request.ContentLength
	if err := f.prepareHeaders(c, req); err != nil {
		proxyRequestsTotal.WithLabelValues(service, "local_error").Inc()
		middleware.RespondError(c, err, f.cfg.ExposeStack)
		return
	}

	breaker := f.breakers[service]
	result, err := breaker.Execute(func() (interface{}, error) {
		return f.client.Do(req)
	})
	if err != nil {
		proxyRequestsTotal.WithLabelValues(service, "unavailable").Inc()
		log.Warn("Downstream unavailable", zap.Error(err), zap.String("correlation_id", req.Header.Get(middleware.CorrelationIDHeader)))
		middleware.RespondError(c, fmt.Errorf("%w: %s: %v", models.ErrUpstreamUnavailable, service, err), f.cfg.ExposeStack)
		return
	}
	resp := result.(*http.Response)
	defer resp.Body.Close()

	relayHeaders(c.Writer.Header(), resp.Header)
	c.Status(resp.StatusCode)
	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		// Заголовки уже отправлены, остается только залогировать
		log.Warn("Failed to relay downstream body", zap.Error(err))
	}
	proxyRequestsTotal.WithLabelValues(service, "relayed").Inc()
}

// prepareHeaders copies the allow-list and adds correlation, identity and trust headers.
func (f *Forwarder) prepareHeaders(c *gin.Context, req *http.Request) error {
	for _, name := range allowedHeaders {
		for _, v := range c.Request.Header.Values(name) {
			req.Header.Add(name, v)
		}
	}

	correlationID := middleware.CorrelationIDFrom(c)
	if correlationID == "" {
		correlationID = c.GetHeader(middleware.CorrelationIDHeader)
	}
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	req.Header.Set(middleware.CorrelationIDHeader, correlationID)
	c.Header(middleware.CorrelationIDHeader, correlationID)

	req.Header.Set(middleware.HeaderGatewaySecret, f.cfg.GatewaySecret)

	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		// Публичный маршрут
		return nil
	}
	switch f.cfg.TrustMode {
	case middleware.TrustModeCredential:
		token := authn.AccessTokenFrom(c)
		if token == "" {
			return errors.New("authenticated request without access credential")
		}
		req.Header.Set(middleware.HeaderForwardedAccessToken, token)
	default:
		req.Header.Set(middleware.HeaderUserID, identity.SubjectID.String())
		req.Header.Set(middleware.HeaderUserEmail, identity.Email)
		req.Header.Set(middleware.HeaderUserRole, identity.Role)
		req.Header.Set(middleware.HeaderUserReliability, fmt.Sprintf("%g", identity.ReliabilityScore))
	}
	return nil
}

// relayHeaders copies Content-Type and every Set-Cookie verbatim.
func relayHeaders(dst, src http.Header) {
	if ct := src.Get("Content-Type"); ct != "" {
		dst.Set("Content-Type", ct)
	}
	for _, cookie := range src.Values("Set-Cookie") {
		dst.Add("Set-Cookie", cookie)
	}
	if loc := src.Get("Location"); loc != "" {
		dst.Set("Location", loc)
	}
}
