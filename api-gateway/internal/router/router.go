// Package router holds the gateway route table.
package router

import (
	"venue-server/api-gateway/internal/authn"
	"venue-server/api-gateway/internal/proxy"
	"venue-server/api-gateway/internal/registry"
	"venue-server/shared/authutils"
	"venue-server/shared/middleware"
	"venue-server/shared/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Deps are the collaborators of the route table.
type Deps struct {
	Authenticator *authn.Authenticator
	Forwarder     *proxy.Forwarder
	Sessions      SessionClient
	Cookies       authutils.CookiePolicy
	// RateLimit guards the public auth routes; nil disables it.
	RateLimit   gin.HandlerFunc
	ExposeStack bool
	Logger      *zap.Logger
}

// RequiredServices are the registry entries the route table points at.
var RequiredServices = []string{registry.ServiceAuth, registry.ServiceUser, registry.ServiceVenue}

// Register mounts every gateway route on r.
func Register(r *gin.Engine, d Deps) {
	limited := func(h gin.HandlerFunc) []gin.HandlerFunc {
		if d.RateLimit == nil {
			return []gin.HandlerFunc{h}
		}
		return []gin.HandlerFunc{d.RateLimit, h}
	}
	to := func(service, path string) gin.HandlerFunc {
		return d.Forwarder.Handler(service, func(*gin.Context) string { return path })
	}
	tail := func(service, prefix string) gin.HandlerFunc {
		return d.Forwarder.Handler(service, func(c *gin.Context) string { return prefix + c.Param("path") })
	}

	sessions := &sessionEndpoints{
		sessions:    d.Sessions,
		cookies:     d.Cookies,
		exposeStack: d.ExposeStack,
		logger:      d.Logger.Named("GatewaySessions"),
	}

	authPublic := r.Group("/api/auth")
	{
		authPublic.POST("/register", limited(to(registry.ServiceAuth, "/auth/register"))...)
		authPublic.POST("/login", limited(to(registry.ServiceAuth, "/auth/login"))...)
		authPublic.POST("/refresh", limited(sessions.refresh)...)
		authPublic.POST("/logout", sessions.logout)
	}

	authenticate := d.Authenticator.Middleware()

	authProtected := r.Group("/api/auth", authenticate)
	{
		authProtected.GET("/me", to(registry.ServiceAuth, "/auth/me"))
		// auth-service очищает cookies сам, Set-Cookie передается клиенту
		authProtected.POST("/update-password", to(registry.ServiceAuth, "/auth/update-password"))
	}

	users := r.Group("/api/users", authenticate)
	users.Any("/*path", tail(registry.ServiceUser, ""))

	venues := r.Group("/api/venues", authenticate)
	{
		venues.GET("/*path", tail(registry.ServiceVenue, "/venues"))
		admin := venues.Group("", middleware.RequireRole(d.ExposeStack, models.RoleAdmin))
		admin.POST("/*path", tail(registry.ServiceVenue, "/venues"))
		admin.PUT("/*path", tail(registry.ServiceVenue, "/venues"))
		admin.PATCH("/*path", tail(registry.ServiceVenue, "/venues"))
		admin.DELETE("/*path", tail(registry.ServiceVenue, "/venues"))
	}
}
