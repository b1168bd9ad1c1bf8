package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"venue-server/auth/internal/config"
	"venue-server/auth/internal/service"
	"venue-server/shared/authutils"
	"venue-server/shared/middleware"
	"venue-server/shared/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testGatewaySecret  = "gateway-secret"
	testInternalSecret = "internal-secret"
	browserUA          = "Mozilla/5.0 (X11; Linux x86_64)"
)

// stubSessions is a scripted SessionIssuer.
type stubSessions struct {
	subject *models.Subject
	pair    *models.TokenPair
	err     error

	renewedWith   []string
	loggedOut     []string
	passwordFor   uuid.UUID
	restrictUntil *time.Time
}

var _ service.SessionIssuer = (*stubSessions)(nil)

func (s *stubSessions) Register(_ context.Context, username, email, _ string) (*models.Subject, *models.TokenPair, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	s.subject.Username, s.subject.Email = username, email
	return s.subject, s.pair, nil
}

func (s *stubSessions) Login(context.Context, string, string) (*models.Subject, *models.TokenPair, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	return s.subject, s.pair, nil
}

func (s *stubSessions) Issue(context.Context, *models.Subject, bool) (*models.TokenPair, error) {
	return s.pair, s.err
}

func (s *stubSessions) Renew(_ context.Context, refresh string) (*models.TokenPair, error) {
	s.renewedWith = append(s.renewedWith, refresh)
	if s.err != nil {
		return nil, s.err
	}
	return s.pair, nil
}

func (s *stubSessions) Logout(_ context.Context, refresh string) {
	s.loggedOut = append(s.loggedOut, refresh)
}

func (s *stubSessions) UpdatePassword(_ context.Context, id uuid.UUID, _, _ string) error {
	s.passwordFor = id
	return s.err
}

func (s *stubSessions) ValidateSubject(context.Context, uuid.UUID) (*models.Subject, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.subject, nil
}

func (s *stubSessions) Restrict(_ context.Context, _ uuid.UUID, until *time.Time) error {
	s.restrictUntil = until
	return s.err
}

func newTestRouter(t *testing.T, sessions *stubSessions) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Env:             "development",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: time.Hour,
		InternalSecret:  testInternalSecret,
	}
	guard, err := middleware.NewTrustBoundaryGuard(middleware.TrustModeHeader, middleware.GuardOptions{
		GatewaySecret: testGatewaySecret,
		Logger:        zap.NewNop(),
	})
	require.NoError(t, err)

	router := gin.New()
	NewAuthHandler(sessions, guard, cfg, zap.NewNop()).RegisterRoutes(router, nil)
	return router
}

func newStub() *stubSessions {
	return &stubSessions{
		subject: &models.Subject{ID: uuid.New(), Username: "alice", Email: "alice@example.com", Role: models.RoleUser},
		pair:    &models.TokenPair{AccessToken: "access.jwt", RefreshToken: "refresh.jwt"},
	}
}

func doJSON(router http.Handler, method, path string, body any, headers map[string]string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func cookieByName(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decodeSession(t *testing.T, w *httptest.ResponseRecorder) models.SessionResponse {
	t.Helper()
	var resp models.SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestRegisterValidation(t *testing.T) {
	router := newTestRouter(t, newStub())

	tests := []struct {
		name string
		body map[string]string
	}{
		{"short username", map[string]string{"username": "ab", "email": "a@example.com", "password": "passw0rdX"}},
		{"bad username chars", map[string]string{"username": "al ice!", "email": "a@example.com", "password": "passw0rdX"}},
		{"bad email", map[string]string{"username": "alice", "email": "nope", "password": "passw0rdX"}},
		{"password without digit", map[string]string{"username": "alice", "email": "a@example.com", "password": "password"}},
		{"short password", map[string]string{"username": "alice", "email": "a@example.com", "password": "a1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(router, http.MethodPost, "/auth/register", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), models.ErrCodeBadRequest)
		})
	}
}

func TestRegisterNonBrowserGetsTokensInBody(t *testing.T) {
	router := newTestRouter(t, newStub())

	body := map[string]string{"username": "alice", "email": "alice@example.com", "password": "passw0rdX"}
	w := doJSON(router, http.MethodPost, "/auth/register", body, map[string]string{"User-Agent": "curl/8.0"})

	require.Equal(t, http.StatusCreated, w.Code)
	resp := decodeSession(t, w)
	require.NotNil(t, resp.Tokens)
	assert.Equal(t, "access.jwt", resp.Tokens.AccessToken)
	assert.Equal(t, "alice", resp.User.Username)
	require.NotNil(t, cookieByName(w, authutils.AccessCookieName))
	assert.True(t, cookieByName(w, authutils.RefreshCookieName).HttpOnly)
}

func TestLoginBrowserGetsCookiesOnly(t *testing.T) {
	router := newTestRouter(t, newStub())

	body := map[string]string{"email": "alice@example.com", "password": "passw0rdX"}
	w := doJSON(router, http.MethodPost, "/auth/login", body, map[string]string{"User-Agent": browserUA})

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeSession(t, w)
	assert.Nil(t, resp.Tokens)
	assert.Equal(t, "refresh.jwt", cookieByName(w, authutils.RefreshCookieName).Value)
	assert.NotContains(t, w.Body.String(), "refresh.jwt")
}

func TestLoginErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"wrong password", models.ErrInvalidCredentials, http.StatusUnauthorized, models.ErrCodeInvalidCredentials},
		{"restricted", models.NewRestrictedError(time.Now().Add(time.Hour)), http.StatusUnauthorized, models.ErrCodeAccountRestricted},
		{"store down", errors.New("pool closed"), http.StatusInternalServerError, models.ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := newStub()
			stub.err = tt.err
			router := newTestRouter(t, stub)

			w := doJSON(router, http.MethodPost, "/auth/login", map[string]string{"email": "alice@example.com", "password": "x"}, nil)
			assert.Equal(t, tt.status, w.Code)
			var resp models.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Code)
			assert.NotContains(t, resp.Message, "pool closed")
		})
	}
}

func TestRefreshTokenSources(t *testing.T) {
	tests := []struct {
		name    string
		cookie  *http.Cookie
		headers map[string]string
		body    any
		want    string
	}{
		{name: "cookie", cookie: &http.Cookie{Name: authutils.RefreshCookieName, Value: "from-cookie"}, headers: map[string]string{authutils.RefreshHeader: "from-header"}, want: "from-cookie"},
		{name: "header", headers: map[string]string{authutils.RefreshHeader: "from-header"}, body: map[string]string{"refreshToken": "from-body"}, want: "from-header"},
		{name: "body", body: map[string]string{"refreshToken": "from-body"}, want: "from-body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := newStub()
			router := newTestRouter(t, stub)
			var cookies []*http.Cookie
			if tt.cookie != nil {
				cookies = append(cookies, tt.cookie)
			}
			w := doJSON(router, http.MethodPost, "/auth/refresh", tt.body, tt.headers, cookies...)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, []string{tt.want}, stub.renewedWith)
		})
	}
}

func TestRefreshMissingTokenAndRejected(t *testing.T) {
	stub := newStub()
	router := newTestRouter(t, stub)

	w := doJSON(router, http.MethodPost, "/auth/refresh", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, stub.renewedWith)

	stub.err = models.ErrTokenNotFound
	w = doJSON(router, http.MethodPost, "/auth/refresh", nil, map[string]string{authutils.RefreshHeader: "consumed"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	cleared := cookieByName(w, authutils.RefreshCookieName)
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)
}

func TestLogoutAlwaysSucceeds(t *testing.T) {
	stub := newStub()
	router := newTestRouter(t, stub)

	w := doJSON(router, http.MethodPost, "/auth/logout", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, stub.loggedOut)

	w = doJSON(router, http.MethodPost, "/auth/logout", nil, nil, &http.Cookie{Name: authutils.RefreshCookieName, Value: "r1"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"r1"}, stub.loggedOut)
	assert.Less(t, cookieByName(w, authutils.AccessCookieName).MaxAge, 0)
}

func TestProtectedRoutesRequireGateway(t *testing.T) {
	stub := newStub()
	router := newTestRouter(t, stub)

	w := doJSON(router, http.MethodGet, "/auth/me", nil, map[string]string{middleware.HeaderUserID: stub.subject.ID.String()})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), models.ErrCodeTrustViolation)

	w = doJSON(router, http.MethodGet, "/auth/me", nil, map[string]string{
		middleware.HeaderGatewaySecret: testGatewaySecret,
		middleware.HeaderUserID:        stub.subject.ID.String(),
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alice@example.com")
}

func TestUpdatePassword(t *testing.T) {
	stub := newStub()
	router := newTestRouter(t, stub)
	headers := map[string]string{
		middleware.HeaderGatewaySecret: testGatewaySecret,
		middleware.HeaderUserID:        stub.subject.ID.String(),
	}

	w := doJSON(router, http.MethodPost, "/auth/update-password", map[string]string{"oldPassword": "passw0rdX", "newPassword": "passw0rdX"}, headers)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodPost, "/auth/update-password", map[string]string{"oldPassword": "passw0rdX", "newPassword": "n3wPassword"}, headers)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, stub.subject.ID, stub.passwordFor)
	assert.Less(t, cookieByName(w, authutils.RefreshCookieName).MaxAge, 0)
}

func TestInternalRoutes(t *testing.T) {
	stub := newStub()
	router := newTestRouter(t, stub)
	internal := map[string]string{middleware.HeaderInternalSecret: testInternalSecret}

	w := doJSON(router, http.MethodPost, "/internal/auth/session/renew", models.RenewRequest{RefreshToken: "r1"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, stub.renewedWith)

	w = doJSON(router, http.MethodPost, "/internal/auth/session/renew", models.RenewRequest{RefreshToken: "r1"}, internal)
	require.Equal(t, http.StatusOK, w.Code)
	var pair models.TokenPair
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pair))
	assert.Equal(t, "refresh.jwt", pair.RefreshToken)

	w = doJSON(router, http.MethodPost, "/internal/auth/session/revoke", models.RenewRequest{RefreshToken: "r2"}, internal)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"r2"}, stub.loggedOut)

	w = doJSON(router, http.MethodGet, "/internal/auth/subjects/"+stub.subject.ID.String(), nil, internal)
	require.Equal(t, http.StatusOK, w.Code)
	var status models.SubjectStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, stub.subject.Email, status.Email)

	w = doJSON(router, http.MethodGet, "/internal/auth/subjects/not-a-uuid", nil, internal)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	until := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	w = doJSON(router, http.MethodPost, "/internal/auth/subjects/"+stub.subject.ID.String()+"/restrict", models.RestrictRequest{Until: &until}, internal)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, stub.restrictUntil)
	assert.True(t, until.Equal(*stub.restrictUntil))
}

func TestSubjectStatusRestricted(t *testing.T) {
	stub := newStub()
	stub.err = models.NewRestrictedError(time.Now().Add(time.Hour))
	router := newTestRouter(t, stub)

	w := doJSON(router, http.MethodGet, "/internal/auth/subjects/"+stub.subject.ID.String(), nil,
		map[string]string{middleware.HeaderInternalSecret: testInternalSecret})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "retryAfter"))
}
