package middleware

import (
	"venue-server/shared/models"

	"github.com/gin-gonic/gin"
)

// Headers crossing the gateway/downstream boundary.
const (
	HeaderGatewaySecret        = "X-Gateway-Secret"
	HeaderInternalSecret       = "X-Internal-Secret"
	HeaderUserID               = "X-User-Id"
	HeaderUserEmail            = "X-User-Email"
	HeaderUserRole             = "X-User-Role"
	HeaderUserReliability      = "X-User-Reliability"
	HeaderForwardedAccessToken = "X-Forwarded-Access-Token"
)

// SetIdentity stores the authenticated identity in the gin context and in the
// request context.
func SetIdentity(c *gin.Context, claims *models.IdentityClaims) {
	c.Set(models.GinIdentityKey, claims)
	c.Request = c.Request.WithContext(models.WithIdentity(c.Request.Context(), claims))
}

// IdentityFrom returns the identity stored by an authenticating middleware.
func IdentityFrom(c *gin.Context) (*models.IdentityClaims, bool) {
	v, ok := c.Get(models.GinIdentityKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*models.IdentityClaims)
	return claims, ok && claims != nil
}
