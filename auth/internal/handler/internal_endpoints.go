package handler

import (
	"fmt"
	"net/http"
	"venue-server/shared/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func subjectIDParam(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid subject id", models.ErrInvalidInput)
	}
	return id, nil
}

// internalRenew is called by the gateway once per request whose access credential
// is missing or about to expire.
func (h *AuthHandler) internalRenew(c *gin.Context) {
	var req models.RenewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleBindError(c, err)
		return
	}

	pair, err := h.sessions.Renew(c.Request.Context(), req.RefreshToken)
	refreshesTotal.WithLabelValues("internal", statusLabel(err)).Inc()
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

// internalRevoke is the gateway's logout. Always 204.
func (h *AuthHandler) internalRevoke(c *gin.Context) {
	var req models.RenewRequest
	if err := c.ShouldBindJSON(&req); err == nil {
		h.sessions.Logout(c.Request.Context(), req.RefreshToken)
	}
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) subjectStatus(c *gin.Context) {
	id, err := subjectIDParam(c)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	subject, err := h.sessions.ValidateSubject(c.Request.Context(), id)
	subjectChecksTotal.WithLabelValues(statusLabel(err)).Inc()
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SubjectStatus{
		ID:               subject.ID.String(),
		Email:            subject.Email,
		Role:             subject.Role,
		ReliabilityScore: subject.ReliabilityScore,
		RestrictedUntil:  subject.RestrictedUntil,
	})
}

func (h *AuthHandler) restrictSubject(c *gin.Context) {
	id, err := subjectIDParam(c)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	var req models.RestrictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleBindError(c, err)
		return
	}

	if err := h.sessions.Restrict(c.Request.Context(), id, req.Until); err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.logger.Info("Subject restriction updated", zap.String("userID", id.String()), zap.Timep("until", req.Until))
	c.JSON(http.StatusOK, gin.H{"message": "restriction updated"})
}
