package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/jntims/jntims/internal/observability"
	"github.com/jntims/jntims/jobs"
)

func testConfig() *Config {
	return &Config{
		AppEnv:             "test",
		AppRequestTimeout:  5 * time.Second,
		RateLimitPerMinute: 1000,
		StoreBackend:       BackendMemory,
		StoreMaxRetries:    16,
		AnalyticsCacheTTL:  time.Minute,
		DisplayLocale:      "en",
		CurrencySymbol:     "₹",
	}
}

func newTestAPI(t *testing.T, cfg *Config) (http.Handler, *Backends) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backends, err := OpenBackends(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(backends.Close)
	svc := NewServices(cfg, backends, logger)
	handler := NewAPI(cfg, logger, svc, jobs.NewHandler(nil, nil, logger), observability.NewMetrics(), backends.Ping)
	return handler, backends
}

func call(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func exerciseLedger(t *testing.T, h http.Handler) {
	t.Helper()
	rr := call(t, h, http.MethodPost, "/api/companies", `{"name":"Acme"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	companyID := decode(t, rr)["id"].(string)

	rr = call(t, h, http.MethodPost, "/api/companies/"+companyID+"/batches", `{"date":"2024-03-01","amount":"5900"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = call(t, h, http.MethodPost, "/api/companies/"+companyID+"/payments", `{"checkNumber":"CHK-1","amount":"4000"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = call(t, h, http.MethodPost, "/api/companies/"+companyID+"/payments", `{"checkNumber":"CHK-2","amount":"2000"}`)
	require.Equal(t, http.StatusConflict, rr.Code, rr.Body.String())

	rr = call(t, h, http.MethodGet, "/api/companies/"+companyID+"/balance", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "1900.00", decode(t, rr)["remaining"])

	rr = call(t, h, http.MethodGet, "/api/reports/monthly", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestRouterServesLedgerOnMemoryStore(t *testing.T) {
	h, _ := newTestAPI(t, testConfig())
	exerciseLedger(t, h)

	rr := call(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `jntims_http_requests_total{code="409",route="/api/companies/{companyID}/payments"} 1`)
}

func TestRouterServesLedgerOnRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.StoreBackend = BackendRedis
	cfg.RedisAddr = mr.Addr()
	h, backends := newTestAPI(t, cfg)
	require.NotNil(t, backends.Redis)
	exerciseLedger(t, h)

	// The monthly report went through the versioned cache.
	require.True(t, mr.Exists("analytics:version"))
}

func TestRouterHealthAndHeaders(t *testing.T) {
	h, _ := newTestAPI(t, testConfig())

	rr := call(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.NotEmpty(t, rr.Header().Get("Content-Security-Policy"))

	require.Equal(t, http.StatusOK, call(t, h, http.MethodGet, "/readyz", "").Code)
	require.Equal(t, http.StatusOK, call(t, h, http.MethodGet, "/jobs/health", "").Code)

	rr = call(t, h, http.MethodGet, "/nope", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestRouterReadinessFailure(t *testing.T) {
	h := NewRouter(RouterParams{
		Config: testConfig(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Ready:  func(context.Context) error { return errors.New("redis: connection refused") },
	})
	rr := call(t, h, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.NotContains(t, rr.Body.String(), "connection refused")
}

func TestRouterRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitPerMinute = 2
	h := NewRouter(RouterParams{Config: cfg})
	require.Equal(t, http.StatusOK, call(t, h, http.MethodGet, "/healthz", "").Code)
	require.Equal(t, http.StatusOK, call(t, h, http.MethodGet, "/healthz", "").Code)
	rr := call(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestOpenBackendsRedisRequired(t *testing.T) {
	cfg := testConfig()
	cfg.StoreBackend = BackendRedis
	cfg.RedisAddr = "127.0.0.1:1"
	_, err := OpenBackends(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)

	cfg.StoreBackend = BackendMemory
	b, err := OpenBackends(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	require.Nil(t, b.Redis)
	require.NoError(t, b.Ping(context.Background()))
}
