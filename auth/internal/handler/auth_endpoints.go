package handler

import (
	"net/http"
	"venue-server/shared/authutils"
	"venue-server/shared/middleware"
	"venue-server/shared/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondSession sets the cookies and writes the session body. Browser clients
// never see tokens in the body.
func (h *AuthHandler) respondSession(c *gin.Context, status int, message string, subject *models.Subject, pair *models.TokenPair) {
	h.cookies.SetSessionCookies(c.Writer, pair.AccessToken, pair.RefreshToken)
	resp := models.SessionResponse{Message: message}
	if subject != nil {
		resp.User = subject.ToView()
	}
	if !authutils.IsBrowserClient(c.GetHeader("User-Agent")) {
		resp.Tokens = pair
	}
	c.JSON(status, resp)
}

// refreshTokenFrom: cookie, затем заголовок, затем тело запроса.
func refreshTokenFrom(c *gin.Context) string {
	if token, err := c.Cookie(authutils.RefreshCookieName); err == nil && token != "" {
		return token
	}
	if token := c.GetHeader(authutils.RefreshHeader); token != "" {
		return token
	}
	var req refreshRequest
	if c.Request.ContentLength != 0 {
		_ = c.ShouldBindJSON(&req)
	}
	return req.RefreshToken
}

func (h *AuthHandler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleBindError(c, err)
		return
	}

	subject, pair, err := h.sessions.Register(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	registrationsTotal.Inc()
	h.respondSession(c, http.StatusCreated, "registered", subject, pair)
}

func (h *AuthHandler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleBindError(c, err)
		return
	}

	subject, pair, err := h.sessions.Login(c.Request.Context(), req.Email, req.Password)
	loginsTotal.WithLabelValues(statusLabel(err)).Inc()
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.respondSession(c, http.StatusOK, "logged in", subject, pair)
}

func (h *AuthHandler) refresh(c *gin.Context) {
	token := refreshTokenFrom(c)
	if token == "" {
		h.handleServiceError(c, models.ErrUnauthenticated)
		return
	}

	pair, err := h.sessions.Renew(c.Request.Context(), token)
	refreshesTotal.WithLabelValues("public", statusLabel(err)).Inc()
	if err != nil {
		// Отклонённый refresh больше не пригоден, cookies очищаем.
		if middleware.StatusForKind(models.KindOf(err)) == http.StatusUnauthorized {
			h.cookies.ClearSessionCookies(c.Writer)
		}
		h.handleServiceError(c, err)
		return
	}

	h.respondSession(c, http.StatusOK, "session renewed", nil, pair)
}

// logout всегда отвечает 200 и очищает cookies.
func (h *AuthHandler) logout(c *gin.Context) {
	if token := refreshTokenFrom(c); token != "" {
		h.sessions.Logout(c.Request.Context(), token)
	}
	h.cookies.ClearSessionCookies(c.Writer)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (h *AuthHandler) getMe(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		h.handleServiceError(c, models.ErrUnauthenticated)
		return
	}

	subject, err := h.sessions.ValidateSubject(c.Request.Context(), identity.SubjectID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, subject.ToView())
}

func (h *AuthHandler) updatePassword(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		h.handleServiceError(c, models.ErrUnauthenticated)
		return
	}

	var req updatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleBindError(c, err)
		return
	}

	if err := h.sessions.UpdatePassword(c.Request.Context(), identity.SubjectID, req.OldPassword, req.NewPassword); err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.logger.Info("Password updated, sessions revoked", zap.String("userID", identity.SubjectID.String()))
	h.cookies.ClearSessionCookies(c.Writer)
	c.JSON(http.StatusOK, gin.H{"message": "password updated, please log in again"})
}
