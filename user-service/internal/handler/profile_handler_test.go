package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
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
)

type memProfiles struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*models.Profile
}

func (m *memProfiles) Create(_ context.Context, p *models.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[p.UserID]; ok {
		return models.ErrUserAlreadyExists
	}
	if p.DisplayName == "" {
		p.DisplayName = p.Username
	}
	if p.ReliabilityScore == 0 {
		p.ReliabilityScore = models.DefaultReliabilityScore
	}
	cp := *p
	m.byID[p.UserID] = &cp
	return nil
}

func (m *memProfiles) GetByUserID(_ context.Context, id uuid.UUID) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memProfiles) UpdateDisplayName(_ context.Context, id uuid.UUID, name string) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	p.DisplayName = name
	cp := *p
	return &cp, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *memProfiles) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	guard, err := middleware.NewTrustBoundaryGuard(middleware.TrustModeHeader, middleware.GuardOptions{
		GatewaySecret: testGatewaySecret,
	})
	require.NoError(t, err)

	store := &memProfiles{byID: make(map[uuid.UUID]*models.Profile)}
	router := gin.New()
	NewProfileHandler(store, guard, testInternalSecret, false, zap.NewNop()).RegisterRoutes(router)
	return router, store
}

func do(router *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func gatewayHeaders(id uuid.UUID) map[string]string {
	return map[string]string{
		middleware.HeaderGatewaySecret: testGatewaySecret,
		middleware.HeaderUserID:        id.String(),
	}
}

func TestCreateProfile(t *testing.T) {
	router, store := newTestRouter(t)
	id := uuid.New()
	body := map[string]string{"userId": id.String(), "username": "alice", "email": "alice@example.com"}
	internal := map[string]string{middleware.HeaderInternalSecret: testInternalSecret}

	w := do(router, http.MethodPost, "/profile", body, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "internal secret is required")

	w = do(router, http.MethodPost, "/profile", body, internal)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	stored, err := store.GetByUserID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.DisplayName)

	w = do(router, http.MethodPost, "/profile", body, internal)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(router, http.MethodPost, "/profile", map[string]string{"userId": "nope", "username": "bob", "email": "bob@example.com"}, internal)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProfileRequiresGateway(t *testing.T) {
	router, _ := newTestRouter(t)
	id := uuid.New()

	w := do(router, http.MethodGet, "/profile", nil, map[string]string{middleware.HeaderUserID: id.String()})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(router, http.MethodGet, "/profile", nil, map[string]string{middleware.HeaderGatewaySecret: testGatewaySecret})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "identity header is required")
}

func TestGetAndUpdateProfile(t *testing.T) {
	router, store := newTestRouter(t)
	id := uuid.New()
	require.NoError(t, store.Create(context.Background(), &models.Profile{UserID: id, Username: "alice", Email: "alice@example.com"}))

	w := do(router, http.MethodGet, "/profile", nil, gatewayHeaders(id))
	require.Equal(t, http.StatusOK, w.Code)
	var got models.Profile
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, id, got.UserID)

	w = do(router, http.MethodPut, "/profile", map[string]string{"displayName": "Alice A."}, gatewayHeaders(id))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "Alice A.", got.DisplayName)

	w = do(router, http.MethodPut, "/profile", map[string]string{"displayName": ""}, gatewayHeaders(id))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, http.MethodGet, "/profile", nil, gatewayHeaders(uuid.New()))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReliabilityScore(t *testing.T) {
	router, store := newTestRouter(t)
	id := uuid.New()
	require.NoError(t, store.Create(context.Background(), &models.Profile{UserID: id, Username: "alice", Email: "a@example.com", ReliabilityScore: 72.5}))

	w := do(router, http.MethodGet, "/reliability-score", nil, gatewayHeaders(id))
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		UserID           string  `json:"userId"`
		ReliabilityScore float64 `json:"reliabilityScore"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 72.5, resp.ReliabilityScore)

	// профиля нет, берём значение из заголовка
	headers := gatewayHeaders(uuid.New())
	headers[middleware.HeaderUserReliability] = "40"
	w = do(router, http.MethodGet, "/reliability-score", nil, headers)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 40.0, resp.ReliabilityScore)
}
