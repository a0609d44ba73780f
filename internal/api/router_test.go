package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/kiranshivaraju/mindalert/internal/api"
	mw "github.com/kiranshivaraju/mindalert/internal/api/middleware"
	"github.com/kiranshivaraju/mindalert/internal/cache"
	"github.com/kiranshivaraju/mindalert/internal/store"
	"github.com/kiranshivaraju/mindalert/pkg/models"
)

const testSecret = "router-test-secret"

// --- stub key store ---

type stubKeys struct {
	keys []*models.APIKey
}

func (s *stubKeys) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.KeyPrefix == prefix {
			out = append(out, k)
		}
	}
	return out, nil
}
func (s *stubKeys) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }
func (s *stubKeys) CreateAPIKey(_ context.Context, _ *models.APIKey) error    { return nil }
func (s *stubKeys) ListAPIKeys(_ context.Context) ([]*models.APIKey, error)   { return nil, nil }
func (s *stubKeys) RevokeAPIKey(_ context.Context, _ uuid.UUID) error         { return nil }

// --- stub cache ---

type stubCache struct{}

func (c *stubCache) Ping(_ context.Context) error { return nil }
func (c *stubCache) SetSubmissionState(_ context.Context, _ uuid.UUID, _ string, _ time.Duration) error {
	return nil
}
func (c *stubCache) GetSubmissionState(_ context.Context, _ uuid.UUID) (string, bool, error) {
	return "", false, nil
}
func (c *stubCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

// --- router tests ---

func echoUser(w http.ResponseWriter, r *http.Request) {
	id, _ := mw.GetUserID(r)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(id.String()))
}

func newTestRouter(t *testing.T, keys ...*models.APIKey) http.Handler {
	t.Helper()
	ok := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }
	return api.NewRouter(api.Dependencies{
		UserAuth:     mw.NewUserAuth(testSecret, ""),
		OperatorAuth: mw.NewAuth(&stubKeys{keys: keys}),
		RateLimit:    mw.NewRateLimit(&stubCache{}, 60),
		HealthHandler: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		},
		MetricsHandler: http.HandlerFunc(ok),
		ListAlerts:     echoUser,
		AlertStats:     echoUser,
		DeadAlerts:     ok,
	})
}

func userToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	tok, err := mw.IssueToken(testSecret, "", userID, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	require.NoError(t, err)
	return tok
}

func operatorKey(t *testing.T, raw string, scopes ...string) *models.APIKey {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.APIKey{ID: uuid.New(), KeyHash: string(h), KeyPrefix: raw[:mw.KeyPrefixLen], Scopes: scopes}
}

func TestRouter_PublicEndpoints(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/api/v1/health", "/metrics"} {
		req := httptest.NewRequest("GET", path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestRouter_ProtectedEndpoints_RequireAuth(t *testing.T) {
	router := newTestRouter(t)

	endpoints := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/audio"},
		{"GET", "/api/v1/submissions/" + uuid.NewString()},
		{"POST", "/api/v1/onboarding/analyze"},
		{"GET", "/api/v1/alerts"},
		{"GET", "/api/v1/alerts/stats"},
		{"GET", "/api/v1/alerts/types"},
		{"POST", "/api/v1/alerts/retry-failed"},
		{"GET", "/api/v1/alerts/" + uuid.NewString()},
		{"DELETE", "/api/v1/alerts/" + uuid.NewString()},
		{"GET", "/api/v1/admin/alerts/dead"},
		{"POST", "/api/v1/admin/alerts/" + uuid.NewString() + "/retry"},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			req := httptest.NewRequest(ep.method, ep.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			errObj := body["error"].(map[string]any)
			assert.Equal(t, "INVALID_TOKEN", errObj["code"])
		})
	}
}

func TestRouter_UserTokenReachesHandler(t *testing.T) {
	router := newTestRouter(t)
	userID := uuid.New()

	req := httptest.NewRequest("GET", "/api/v1/alerts/stats", nil)
	req.Header.Set("Authorization", "Bearer "+userToken(t, userID))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, userID.String(), w.Body.String())
	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
}

func TestRouter_UserTokenCannotReachAdmin(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest("GET", "/api/v1/admin/alerts/dead", nil)
	req.Header.Set("Authorization", "Bearer "+userToken(t, uuid.New()))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_OperatorKeyScopes(t *testing.T) {
	admin := "ma_admin_0123456789abcdef"
	reader := "ma_read__0123456789abcdef"
	router := newTestRouter(t, operatorKey(t, admin, "admin"), operatorKey(t, reader, "read"))

	tests := []struct {
		key    string
		status int
	}{
		{admin, http.StatusOK},
		{reader, http.StatusForbidden},
	}
	for _, tc := range tests {
		req := httptest.NewRequest("GET", "/api/v1/admin/alerts/dead", nil)
		req.Header.Set("Authorization", "Bearer "+tc.key)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, tc.status, w.Code, tc.key)
	}
}

func TestRouter_UnwiredHandlerIsNotImplemented(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest("POST", "/api/v1/onboarding/analyze", nil)
	req.Header.Set("Authorization", "Bearer "+userToken(t, uuid.New()))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestRouter_NotFound(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest("GET", "/api/v1/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

var _ store.APIKeyStore = (*stubKeys)(nil)
var _ cache.Cache = (*stubCache)(nil)
