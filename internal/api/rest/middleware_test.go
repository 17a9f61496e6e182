package rest

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/behavior"
	"github.com/davidleathers/clinic-security-monitor/internal/infrastructure/cache"
)

var testSecret = []byte("test-signing-secret-with-32-bytes!")

func authConfig(cfg *Config) {
	cfg.Auth = AuthConfig{Enabled: true, Secret: testSecret, Issuer: "clinic-security"}
}

func TestAuthMiddleware(t *testing.T) {
	valid, err := issueToken(testSecret, "clinic-security", "u-17", "privacy@clinic.test", time.Hour)
	require.NoError(t, err)
	expired, err := issueToken(testSecret, "clinic-security", "u-17", "", -time.Hour)
	require.NoError(t, err)
	wrongIssuer, err := issueToken(testSecret, "someone-else", "u-17", "", time.Hour)
	require.NoError(t, err)
	wrongKey, err := issueToken([]byte("another-secret-another-secret-xx"), "clinic-security", "u-17", "", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{name: "valid token", header: "Bearer " + valid, wantStatus: http.StatusOK},
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz", wantStatus: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + expired, wantStatus: http.StatusUnauthorized},
		{name: "wrong issuer", header: "Bearer " + wrongIssuer, wantStatus: http.StatusUnauthorized},
		{name: "wrong key", header: "Bearer " + wrongKey, wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, svc := newTestRouter(t, authConfig)
			svc.anomalies.On("Statistics", mock.Anything).Return(behavior.NewAnomalyStatistics(), nil).Maybe()

			var headers []string
			if tt.header != "" {
				headers = []string{"Authorization", tt.header}
			}
			rec, env := doRequest(t, h, http.MethodGet, "/behavioral-analytics/statistics", nil, headers...)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				require.NotNil(t, env.Error)
				assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
				assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestAuthMiddleware_OperatorFromClaims(t *testing.T) {
	var seen string
	mw := NewAuthMiddleware(&AuthConfig{Enabled: true, Secret: testSecret}).Middleware()
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = OperatorFromContext(r.Context())
	}))

	withEmail, err := issueToken(testSecret, "", "u-1", "privacy@clinic.test", time.Hour)
	require.NoError(t, err)
	subjectOnly, err := issueToken(testSecret, "", "u-2", "", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/breach-incidents", nil)
	req.Header.Set("Authorization", "Bearer "+withEmail)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "privacy@clinic.test", seen)

	req = httptest.NewRequest(http.MethodGet, "/breach-incidents", nil)
	req.Header.Set("Authorization", "bearer "+subjectOnly)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "u-2", seen)
}

func TestPublicPathsSkipAuth(t *testing.T) {
	h, _ := newTestRouter(t, authConfig)

	for _, path := range []string{"/health", "/ready", "/openapi.yaml", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestNewRouter_AuthWithoutSecret(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Enabled = true
	_, err := NewRouter(cfg, Services{})
	require.Error(t, err)
}

func TestRateLimiter(t *testing.T) {
	h, svc := newTestRouter(t, func(cfg *Config) {
		cfg.RequestsPerSecond = 1
		cfg.Burst = 2
	})
	svc.anomalies.On("Statistics", mock.Anything).Return(behavior.NewAnomalyStatistics(), nil)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec, _ := doRequest(t, h, http.MethodGet, "/behavioral-analytics/statistics", nil)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestDistributedRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter := cache.NewRedisRateLimiter(client, zaptest.NewLogger(t))

	h, svc := newTestRouter(t, func(cfg *Config) {
		cfg.DistributedLimiter = limiter
		cfg.DistributedLimit = 2
		cfg.DistributedWindow = time.Minute
	})
	svc.anomalies.On("Statistics", mock.Anything).Return(behavior.NewAnomalyStatistics(), nil)

	rec, _ := doRequest(t, h, http.MethodGet, "/behavioral-analytics/statistics", nil, OperatorHeader, "dr.a")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))

	rec, _ = doRequest(t, h, http.MethodGet, "/behavioral-analytics/statistics", nil, OperatorHeader, "dr.a")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env := doRequest(t, h, http.MethodGet, "/behavioral-analytics/statistics", nil, OperatorHeader, "dr.a")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", env.Error.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// a different operator has its own window
	rec, _ = doRequest(t, h, http.MethodGet, "/behavioral-analytics/statistics", nil, OperatorHeader, "dr.b")
	assert.Equal(t, http.StatusOK, rec.Code)

	// redis outage lets requests through
	mr.Close()
	rec, _ = doRequest(t, h, http.MethodGet, "/behavioral-analytics/statistics", nil, OperatorHeader, "dr.a")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewMiddlewareChain(
		RequestIDMiddleware(),
		RecoveryMiddleware(logger, NewErrorHandler(false)),
	).Then(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil map write")
	}))

	rec, env := doRequest(t, h, http.MethodGet, "/anything", nil, RequestIDHeader, "req-123")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INTERNAL_ERROR", env.Error.Code)
	assert.NotContains(t, env.Error.Message, "nil map")
	assert.Equal(t, "req-123", env.Meta.RequestID)
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	h, _ := newTestRouter(t)

	rec, env := doRequest(t, h, http.MethodGet, "/breach-incidents/bad", nil)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	id := rec.Header().Get(RequestIDHeader)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, env.Meta.RequestID)

	rec, _ = doRequest(t, h, http.MethodGet, "/breach-incidents/bad", nil, RequestIDHeader, "caller-supplied")
	assert.Equal(t, "caller-supplied", rec.Header().Get(RequestIDHeader))
}

func TestMetricsMiddleware_RecordsRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	h, svc := newTestRouter(t, func(cfg *Config) {
		cfg.Registerer = reg
		cfg.Gatherer = reg
	})
	svc.anomalies.On("Statistics", mock.Anything).Return(behavior.NewAnomalyStatistics(), nil)

	doRequest(t, h, http.MethodGet, "/behavioral-analytics/statistics", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `http_requests_total{method="GET",route="GET /behavioral-analytics/statistics",status="200"} 1`), body)
}

func TestBodyLimit(t *testing.T) {
	h, _ := newTestRouter(t, func(cfg *Config) { cfg.MaxBodyBytes = 64 })

	body := `{"actionTaken":"` + strings.Repeat("x", 200) + `"}`
	rec, env := doRequest(t, h, http.MethodPost,
		"/breach-incidents/5f0c3c1e-8a7e-4c55-9a6b-0f1e2d3c4b5a/remediations", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "BODY_TOO_LARGE", env.Error.Code)
}
