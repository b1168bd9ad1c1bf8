package middleware

import (
	"errors"
	"net/http"
	"venue-server/shared/models"

	"github.com/gin-gonic/gin"
)

// StatusForKind maps the error taxonomy onto the HTTP status contract.
func StatusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.KindUnauthenticated,
		models.KindInvalidToken,
		models.KindExpired,
		models.KindSessionExpired,
		models.KindAccountRestricted,
		models.KindTrustViolation,
		models.KindInvalidCredentials:
		return http.StatusUnauthorized
	case models.KindForbidden:
		return http.StatusForbidden
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindConflict:
		return http.StatusConflict
	case models.KindBadRequest:
		return http.StatusBadRequest
	case models.KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// codeFor returns the stable response code. Conflicts keep their specific codes.
func codeFor(kind models.ErrorKind, err error) string {
	if kind == models.KindConflict {
		if errors.Is(err, models.ErrEmailAlreadyExists) {
			return models.ErrCodeDuplicateEmail
		}
		return models.ErrCodeDuplicateUser
	}
	return string(kind)
}

// publicMessage never leaks details of Internal failures.
func publicMessage(kind models.ErrorKind, err error) string {
	switch kind {
	case models.KindInternal:
		return models.ErrInternalServer.Error()
	case models.KindUpstreamUnavailable:
		return models.ErrUpstreamUnavailable.Error()
	default:
		return err.Error()
	}
}

// NewErrorResponse builds the error body for err. exposeStack adds the full
// error chain, which is only done outside production.
func NewErrorResponse(err error, exposeStack bool) (int, models.ErrorResponse) {
	kind := models.KindOf(err)
	if kind == "" {
		kind = models.KindInternal
		err = models.ErrInternalServer
	}
	resp := models.ErrorResponse{
		Success: false,
		Code:    codeFor(kind, err),
		Message: publicMessage(kind, err),
	}
	var restricted *models.RestrictedError
	if errors.As(err, &restricted) {
		until := restricted.Until.UTC()
		resp.RetryAfter = &until
	}
	if exposeStack {
		resp.Stack = err.Error()
	}
	return StatusForKind(kind), resp
}

// RespondError aborts the request with the taxonomy status and body for err.
func RespondError(c *gin.Context, err error, exposeStack bool) {
	status, body := NewErrorResponse(err, exposeStack)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, body)
}
