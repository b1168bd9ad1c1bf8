package handler

import (
	"errors"
	"fmt"
	"net/http"
	"venue-server/shared/interfaces"
	"venue-server/shared/middleware"
	"venue-server/shared/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type createProfileRequest struct {
	UserID   string `json:"userId" binding:"required,uuid"`
	Username string `json:"username" binding:"required,min=3,max=64"`
	Email    string `json:"email" binding:"required,email"`
}

type updateProfileRequest struct {
	DisplayName string `json:"displayName" binding:"required,min=1,max=64"`
}

// ProfileHandler serves profile routes behind the trust boundary.
type ProfileHandler struct {
	profiles       interfaces.ProfileRepository
	guard          middleware.TrustBoundaryGuard
	internalSecret string
	exposeStack    bool
	logger         *zap.Logger
}

func NewProfileHandler(profiles interfaces.ProfileRepository, guard middleware.TrustBoundaryGuard, internalSecret string, exposeStack bool, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{
		profiles:       profiles,
		guard:          guard,
		internalSecret: internalSecret,
		exposeStack:    exposeStack,
		logger:         logger.Named("ProfileHandler"),
	}
}

func (h *ProfileHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/profile", middleware.InternalSecretGuard(h.internalSecret, h.exposeStack, h.logger), h.createProfile)

	protected := router.Group("", h.guard.Guard())
	{
		protected.GET("/profile", h.getProfile)
		protected.PUT("/profile", h.updateProfile)
		protected.GET("/reliability-score", h.reliabilityScore)
	}
}

func (h *ProfileHandler) fail(c *gin.Context, err error) {
	if models.KindOf(err) == models.KindInternal {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	middleware.RespondError(c, err, h.exposeStack)
}

func (h *ProfileHandler) createProfile(c *gin.Context) {
	var req createProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", models.ErrInvalidInput, err))
		return
	}
	profile := &models.Profile{
		UserID:   uuid.MustParse(req.UserID),
		Username: req.Username,
		Email:    req.Email,
	}
	if err := h.profiles.Create(c.Request.Context(), profile); err != nil {
		profilesCreatedTotal.WithLabelValues(string(models.KindOf(err))).Inc()
		h.fail(c, err)
		return
	}
	profilesCreatedTotal.WithLabelValues("success").Inc()
	c.JSON(http.StatusCreated, profile)
}

func (h *ProfileHandler) getProfile(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)
	profile, err := h.profiles.GetByUserID(c.Request.Context(), identity.SubjectID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *ProfileHandler) updateProfile(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", models.ErrInvalidInput, err))
		return
	}
	profile, err := h.profiles.UpdateDisplayName(c.Request.Context(), identity.SubjectID, req.DisplayName)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// reliabilityScore prefers the stored score; the forwarded identity is the fallback.
func (h *ProfileHandler) reliabilityScore(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)
	score := identity.ReliabilityScore
	profile, err := h.profiles.GetByUserID(c.Request.Context(), identity.SubjectID)
	switch {
	case err == nil:
		score = profile.ReliabilityScore
	case errors.Is(err, models.ErrUserNotFound):
	default:
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": identity.SubjectID.String(), "reliabilityScore": score})
}
