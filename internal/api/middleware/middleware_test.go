package middleware_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	mw "github.com/kiranshivaraju/mindalert/internal/api/middleware"
	"github.com/kiranshivaraju/mindalert/internal/metrics"
	"github.com/kiranshivaraju/mindalert/pkg/models"
)

// --- Mock key store ---

type mockKeys struct {
	keys    []*models.APIKey
	err     error
	touched chan uuid.UUID
}

func (m *mockKeys) GetAPIKeyByPrefix(_ context.Context, _ string) ([]*models.APIKey, error) {
	return m.keys, m.err
}
func (m *mockKeys) UpdateAPIKeyLastUsed(_ context.Context, id uuid.UUID) error {
	if m.touched != nil {
		m.touched <- id
	}
	return nil
}
func (m *mockKeys) CreateAPIKey(_ context.Context, _ *models.APIKey) error  { return nil }
func (m *mockKeys) ListAPIKeys(_ context.Context) ([]*models.APIKey, error) { return nil, nil }
func (m *mockKeys) RevokeAPIKey(_ context.Context, _ uuid.UUID) error       { return nil }

// --- Mock Cache ---

type mockCache struct {
	counter int64
	keys    []string
	err     error
}

func (m *mockCache) Ping(_ context.Context) error { return nil }
func (m *mockCache) SetSubmissionState(_ context.Context, _ uuid.UUID, _ string, _ time.Duration) error {
	return nil
}
func (m *mockCache) GetSubmissionState(_ context.Context, _ uuid.UUID) (string, bool, error) {
	return "", false, nil
}
func (m *mockCache) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.counter++
	m.keys = append(m.keys, key)
	return m.counter, m.err
}

// --- helpers ---

const secret = "test-signing-secret"

func okHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

func hashKey(t *testing.T, rawKey string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func errBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"].(map[string]any)
}

func bearer(token string) *http.Request {
	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return tok
}

// ========================================
// Operator Auth Tests
// ========================================

func TestAuth_MissingAuthHeader(t *testing.T) {
	handler := mw.NewAuth(&mockKeys{}).Authenticate(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_TOKEN", errBody(t, w)["code"])
}

func TestAuth_InvalidBearerFormat(t *testing.T) {
	handler := mw.NewAuth(&mockKeys{}).Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Basic abc123")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_KeyTooShort(t *testing.T) {
	handler := mw.NewAuth(&mockKeys{}).Authenticate(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, bearer("short"))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_LookupError(t *testing.T) {
	handler := mw.NewAuth(&mockKeys{err: errors.New("db down")}).Authenticate(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, bearer("ma_test1234567890"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAuth_WrongKey(t *testing.T) {
	rawKey := "ma_test1234567890abcdef"
	ms := &mockKeys{keys: []*models.APIKey{{
		ID:        uuid.New(),
		KeyHash:   hashKey(t, "different_key_entirely"),
		KeyPrefix: rawKey[:mw.KeyPrefixLen],
		Scopes:    []string{"admin"},
	}}}
	handler := mw.NewAuth(ms).Authenticate(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, bearer(rawKey))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_ValidKey(t *testing.T) {
	rawKey := "ma_test1234567890abcdef"
	keyID := uuid.New()
	ms := &mockKeys{
		keys: []*models.APIKey{{
			ID:        keyID,
			KeyHash:   hashKey(t, rawKey),
			KeyPrefix: rawKey[:mw.KeyPrefixLen],
			Scopes:    []string{"admin"},
		}},
		touched: make(chan uuid.UUID, 1),
	}

	var gotPrefix string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPrefix, _ = mw.GetKeyPrefix(r)
		w.WriteHeader(http.StatusOK)
	})
	handler := mw.NewAuth(ms).Authenticate(inner)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, bearer(rawKey))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ma_test1", gotPrefix)

	select {
	case id := <-ms.touched:
		assert.Equal(t, keyID, id)
	case <-time.After(2 * time.Second):
		t.Fatal("last_used_at was not updated")
	}
}

func TestAuth_RequireScope(t *testing.T) {
	tests := []struct {
		name   string
		scopes []string
		status int
	}{
		{"allowed", []string{"read", "admin"}, http.StatusOK},
		{"denied", []string{"read"}, http.StatusForbidden},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rawKey := "ma_scope_1234567890abcdef"
			auth := mw.NewAuth(&mockKeys{keys: []*models.APIKey{{
				ID:        uuid.New(),
				KeyHash:   hashKey(t, rawKey),
				KeyPrefix: rawKey[:mw.KeyPrefixLen],
				Scopes:    tc.scopes,
			}}})
			handler := auth.Authenticate(auth.RequireScope("admin")(okHandler()))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, bearer(rawKey))

			assert.Equal(t, tc.status, w.Code)
		})
	}
}

// ========================================
// User Auth Tests
// ========================================

func TestUserAuth_ValidToken(t *testing.T) {
	userID := uuid.New()
	tok, err := mw.IssueToken(secret, "accounts", userID, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	require.NoError(t, err)

	var got uuid.UUID
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = mw.GetUserID(r)
		w.WriteHeader(http.StatusOK)
	})

	w := httptest.NewRecorder()
	mw.NewUserAuth(secret, "accounts").Authenticate(inner).ServeHTTP(w, bearer(tok))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, userID, got)
}

func TestUserAuth_Rejections(t *testing.T) {
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))
	past := jwt.NewNumericDate(time.Now().Add(-time.Hour))
	userID := uuid.NewString()

	tests := []struct {
		name  string
		token string
		code  string
	}{
		{"missing", "", "INVALID_TOKEN"},
		{"garbage", "not.a.jwt", "INVALID_TOKEN"},
		{"wrong secret", sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.RegisteredClaims{Subject: userID, ExpiresAt: future}), "INVALID_TOKEN"},
		{"expired", sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.RegisteredClaims{Subject: userID, ExpiresAt: past}), "TOKEN_EXPIRED"},
		{"no expiry", sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.RegisteredClaims{Subject: userID}), "INVALID_TOKEN"},
		{"wrong alg", sign(t, jwt.SigningMethodHS512, []byte(secret), jwt.RegisteredClaims{Subject: userID, ExpiresAt: future}), "INVALID_TOKEN"},
		{"subject not uuid", sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.RegisteredClaims{Subject: "alice", ExpiresAt: future}), "INVALID_TOKEN"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			w := httptest.NewRecorder()
			mw.NewUserAuth(secret, "").Authenticate(okHandler()).ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, tc.code, errBody(t, w)["code"])
		})
	}
}

func TestUserAuth_WrongIssuer(t *testing.T) {
	tok, err := mw.IssueToken(secret, "someone-else", uuid.New(), jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	mw.NewUserAuth(secret, "accounts").Authenticate(okHandler()).ServeHTTP(w, bearer(tok))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// ========================================
// Rate Limit Middleware Tests
// ========================================

func userRequest(id uuid.UUID) *http.Request {
	req := httptest.NewRequest("GET", "/test", nil)
	return req.WithContext(mw.SetUserID(req.Context(), id))
}

func TestRateLimit_AllowsUnderLimit(t *testing.T) {
	mc := &mockCache{}
	handler := mw.NewRateLimit(mc, 60).Limit(okHandler())

	userID := uuid.New()
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, userRequest(userID))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "59", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	assert.Equal(t, []string{"ratelimit:user:" + userID.String()}, mc.keys)
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	mc := &mockCache{counter: 60}
	handler := mw.NewRateLimit(mc, 60).Limit(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, userRequest(uuid.New()))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errBody(t, w)["code"])
}

func TestRateLimit_FailsOpen(t *testing.T) {
	mc := &mockCache{err: errors.New("redis down")}
	handler := mw.NewRateLimit(mc, 1).Limit(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, userRequest(uuid.New()))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit_NoPrincipal_PassThrough(t *testing.T) {
	mc := &mockCache{}
	handler := mw.NewRateLimit(mc, 60).Limit(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, mc.keys)
}

func TestRateLimit_OperatorKeyedByPrefix(t *testing.T) {
	rawKey := "ma_limit1234567890abcdef"
	keys := &mockKeys{keys: []*models.APIKey{{
		ID: uuid.New(), KeyHash: hashKey(t, rawKey), KeyPrefix: rawKey[:mw.KeyPrefixLen], Scopes: []string{"admin"},
	}}}
	mc := &mockCache{}
	handler := mw.NewAuth(keys).Authenticate(mw.NewRateLimit(mc, 60).Limit(okHandler()))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, bearer(rawKey))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"ratelimit:key:ma_limit"}, mc.keys)
}

// ========================================
// Recovery Middleware Tests
// ========================================

func TestRecovery_CatchesPanic(t *testing.T) {
	panicking := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("something went wrong")
	})

	w := httptest.NewRecorder()
	mw.Recovery(panicking).ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", errBody(t, w)["code"])
}

func TestRecovery_CountsPanicsPerRoute(t *testing.T) {
	r := chi.NewRouter()
	r.Use(mw.Recovery)
	r.Get("/boom/{id}", func(_ http.ResponseWriter, _ *http.Request) {
		panic("nil map write")
	})

	before := testutil.ToFloat64(metrics.HTTPPanics.WithLabelValues("/boom/{id}"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/boom/42", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.HTTPPanics.WithLabelValues("/boom/{id}")))
}

func TestRecovery_LogsPrincipalInsideAuthenticatedRoutes(t *testing.T) {
	userID := uuid.New()
	panicking := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("boom")
	})

	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	req := httptest.NewRequest("GET", "/test", nil)
	req = req.WithContext(mw.SetUserID(req.Context(), userID))
	w := httptest.NewRecorder()
	mw.Recovery(panicking).ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, buf.String(), `"principal":"user:`+userID.String()+`"`)
	assert.Contains(t, buf.String(), `"route":"unmatched"`)
}

func TestRecovery_NoPanic(t *testing.T) {
	w := httptest.NewRecorder()
	mw.Recovery(okHandler()).ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

// ========================================
// Logging Middleware Tests
// ========================================

func TestLogger_PassesStatusThrough(t *testing.T) {
	created := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	w := httptest.NewRecorder()
	mw.Logger(created).ServeHTTP(w, httptest.NewRequest("POST", "/test", nil))

	assert.Equal(t, http.StatusCreated, w.Code)
}
