package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	"venue-server/shared/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewErrorResponseStatusContract(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{models.ErrUnauthenticated, http.StatusUnauthorized, models.ErrCodeUnauthenticated},
		{models.ErrTokenMalformed, http.StatusUnauthorized, models.ErrCodeInvalidToken},
		{models.ErrTokenExpired, http.StatusUnauthorized, models.ErrCodeExpired},
		{models.ErrSessionExpired, http.StatusUnauthorized, models.ErrCodeSessionExpired},
		{models.ErrIdentityRequired, http.StatusUnauthorized, models.ErrCodeTrustViolation},
		{models.ErrInvalidCredentials, http.StatusUnauthorized, models.ErrCodeInvalidCredentials},
		{models.ErrForbidden, http.StatusForbidden, models.ErrCodeForbidden},
		{models.ErrUserNotFound, http.StatusNotFound, models.ErrCodeNotFound},
		{models.ErrEmailAlreadyExists, http.StatusConflict, models.ErrCodeDuplicateEmail},
		{models.ErrUserAlreadyExists, http.StatusConflict, models.ErrCodeDuplicateUser},
		{fmt.Errorf("bind: %w", models.ErrInvalidInput), http.StatusBadRequest, models.ErrCodeBadRequest},
		{fmt.Errorf("dial: %w", models.ErrUpstreamUnavailable), http.StatusServiceUnavailable, models.ErrCodeUpstreamUnavailable},
		{errors.New("pool exhausted"), http.StatusInternalServerError, models.ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			status, body := NewErrorResponse(tt.err, false)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.False(t, body.Success)
			assert.Empty(t, body.Stack)
		})
	}
}

func TestNewErrorResponseHidesInternalDetails(t *testing.T) {
	err := fmt.Errorf("query users: %w", errors.New("password authentication failed for user app"))

	_, body := NewErrorResponse(err, false)
	assert.Equal(t, models.ErrInternalServer.Error(), body.Message)
	assert.Empty(t, body.Stack)

	_, body = NewErrorResponse(err, true)
	assert.Equal(t, models.ErrInternalServer.Error(), body.Message)
	assert.Contains(t, body.Stack, "password authentication failed")
}

func TestNewErrorResponseRetryAfter(t *testing.T) {
	until := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	status, body := NewErrorResponse(models.NewRestrictedError(until), false)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, models.ErrCodeAccountRestricted, body.Code)
	require.NotNil(t, body.RetryAfter)
	assert.True(t, until.Equal(*body.RetryAfter))
}

func TestCorrelationID(t *testing.T) {
	r := gin.New()
	r.Use(CorrelationID())
	var seen string
	r.GET("/", func(c *gin.Context) { seen = CorrelationIDFrom(c) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(CorrelationIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationIDHeader, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", w.Header().Get(CorrelationIDHeader))
}
