package handler

import (
	"venue-server/auth/internal/config"
	"venue-server/auth/internal/service"
	"venue-server/shared/authutils"
	"venue-server/shared/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthHandler struct {
	sessions service.SessionIssuer
	guard    middleware.TrustBoundaryGuard
	cookies  authutils.CookiePolicy
	cfg      *config.Config
	logger   *zap.Logger
}

// NewAuthHandler wires the session endpoints. guard protects routes that are
// reached only through the gateway.
func NewAuthHandler(sessions service.SessionIssuer, guard middleware.TrustBoundaryGuard, cfg *config.Config, logger *zap.Logger) *AuthHandler {
	registerValidators()
	return &AuthHandler{
		sessions: sessions,
		guard:    guard,
		cookies: authutils.CookiePolicy{
			Production: cfg.IsProduction(),
			Domain:     cfg.CookieDomain,
			AccessTTL:  cfg.AccessTokenTTL,
			RefreshTTL: cfg.RefreshTokenTTL,
		},
		cfg:    cfg,
		logger: logger.Named("AuthHandler"),
	}
}

// RegisterRoutes mounts public, gateway-guarded and internal routes.
// rateLimit may be nil.
func (h *AuthHandler) RegisterRoutes(router *gin.Engine, rateLimit gin.HandlerFunc) {
	limited := []gin.HandlerFunc{}
	if rateLimit != nil {
		limited = append(limited, rateLimit)
	}

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", append(limited, h.register)...)
		authGroup.POST("/login", append(limited, h.login)...)
		authGroup.POST("/refresh", append(limited, h.refresh)...)
		authGroup.POST("/logout", h.logout)
	}

	protected := router.Group("/auth")
	protected.Use(h.guard.Guard())
	{
		protected.GET("/me", h.getMe)
		protected.POST("/update-password", h.updatePassword)
	}

	internal := router.Group("/internal/auth")
	internal.Use(middleware.InternalSecretGuard(h.cfg.InternalSecret, !h.cfg.IsProduction(), h.logger))
	{
		internal.POST("/session/renew", h.internalRenew)
		internal.POST("/session/revoke", h.internalRevoke)
		internal.GET("/subjects/:id", h.subjectStatus)
		internal.POST("/subjects/:id/restrict", h.restrictSubject)
	}
}
