package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ginprometheus "github.com/zsais/go-gin-prometheus"
)

// Middleware is attached before Register so the gateway routes are counted.
func TestRequestMetricsCoverGatewayRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	clock := &fakeClock{t: time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)}
	_, authSrv := newFakeAuthService(t, clock)

	r := gin.New()
	p := ginprometheus.NewPrometheus("gateway_router_test")
	p.Use(r)
	newGateway(t, clock, gatewayOpts{authURL: authSrv.URL, userURL: newUserService(t).URL, engine: r})

	w := serve(r, call{method: http.MethodPost, path: "/api/auth/refresh"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `url="/api/auth/refresh"`)
}
