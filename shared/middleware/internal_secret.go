package middleware

import (
	"venue-server/shared/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// InternalSecretGuard protects service-to-service routes that bypass the gateway.
// It shares nothing with the gateway secret.
func InternalSecretGuard(secret string, exposeStack bool, logger *zap.Logger) gin.HandlerFunc {
	expected := []byte(secret)
	log := logger.Named("InternalSecretGuard")
	return func(c *gin.Context) {
		if !SecretsEqual(c.GetHeader(HeaderInternalSecret), expected) {
			log.Warn("Rejected internal call without valid secret",
				zap.String("path", c.Request.URL.Path),
				zap.String("ip", c.ClientIP()),
			)
			RespondError(c, models.ErrDirectAccessNotAllowed, exposeStack)
			return
		}
		c.Next()
	}
}

// RequireRole rejects identities whose role is not among allowed with Forbidden.
// It must run after an authenticating middleware.
func RequireRole(exposeStack bool, allowed ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := IdentityFrom(c)
		if !ok {
			RespondError(c, models.ErrUnauthenticated, exposeStack)
			return
		}
		if !models.HasAnyRole(identity.Role, allowed...) {
			RespondError(c, models.ErrForbidden, exposeStack)
			return
		}
		c.Next()
	}
}
