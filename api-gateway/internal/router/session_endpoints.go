package router

import (
	"context"
	"net/http"
	"venue-server/api-gateway/internal/authn"
	"venue-server/shared/authutils"
	"venue-server/shared/middleware"
	"venue-server/shared/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionClient is the part of auth-service the gateway calls directly.
type SessionClient interface {
	authn.Renewer
	Revoke(ctx context.Context, refreshToken string) error
}

type refreshBody struct {
	RefreshToken string `json:"refreshToken"`
}

// refreshTokenFrom: cookie, заголовок, затем тело.
func refreshTokenFrom(c *gin.Context) string {
	if creds := authn.ExtractCredentials(c.Request); creds.Refresh != "" {
		return creds.Refresh
	}
	var body refreshBody
	if c.Request.ContentLength != 0 {
		_ = c.ShouldBindJSON(&body)
	}
	return body.RefreshToken
}

type sessionEndpoints struct {
	sessions    SessionClient
	cookies     authutils.CookiePolicy
	exposeStack bool
	logger      *zap.Logger
}

// refresh renews the session at the gateway so cookies never need to travel downstream.
func (h *sessionEndpoints) refresh(c *gin.Context) {
	token := refreshTokenFrom(c)
	if token == "" {
		h.cookies.ClearSessionCookies(c.Writer)
		middleware.RespondError(c, models.ErrUnauthenticated, h.exposeStack)
		return
	}

	pair, err := h.sessions.Renew(c.Request.Context(), token)
	if err != nil {
		if !authn.KeepsCredentials(err) {
			h.cookies.ClearSessionCookies(c.Writer)
		}
		middleware.RespondError(c, err, h.exposeStack)
		return
	}

	h.cookies.SetSessionCookies(c.Writer, pair.AccessToken, pair.RefreshToken)
	resp := models.SessionResponse{Message: "session renewed"}
	if !authutils.IsBrowserClient(c.GetHeader("User-Agent")) {
		resp.Tokens = pair
	}
	c.JSON(http.StatusOK, resp)
}

// logout always answers 200 and clears both cookies.
func (h *sessionEndpoints) logout(c *gin.Context) {
	if token := refreshTokenFrom(c); token != "" {
		if err := h.sessions.Revoke(c.Request.Context(), token); err != nil {
			h.logger.Warn("Failed to revoke refresh token on logout", zap.Error(err), zap.String("correlation_id", middleware.CorrelationIDFrom(c)))
		}
	}
	h.cookies.ClearSessionCookies(c.Writer)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}
