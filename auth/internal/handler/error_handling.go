package handler

import (
	"fmt"
	"venue-server/shared/middleware"
	"venue-server/shared/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *AuthHandler) handleServiceError(c *gin.Context, err error) {
	if models.KindOf(err) == models.KindInternal {
		h.logger.Error("Unhandled internal error in handleServiceError", zap.String("path", c.FullPath()), zap.Error(err))
	}
	middleware.RespondError(c, err, !h.cfg.IsProduction())
}

func (h *AuthHandler) handleBindError(c *gin.Context, err error) {
	h.handleServiceError(c, fmt.Errorf("%w: %v", models.ErrInvalidInput, err))
}
