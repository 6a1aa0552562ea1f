package app

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, BackendMemory, cfg.StoreBackend)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 16, cfg.StoreMaxRetries)
	require.Equal(t, 10*time.Minute, cfg.AnalyticsCacheTTL)
	require.Equal(t, "₹", cfg.CurrencySymbol)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("PG_DSN", "postgres://u:p@db:5432/ledger")
	t.Setenv("VERIFY_CRON", "*/30 * * * *")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.Equal(t, BackendPostgres, cfg.StoreBackend)
	require.Equal(t, "*/30 * * * *", cfg.VerifyCron)
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{StoreBackend: "mongo", StoreMaxRetries: 0, AnalyticsCacheTTL: time.Minute, RateLimitPerMinute: 1}
	err := cfg.Validate()
	require.ErrorContains(t, err, `unknown STORE_BACKEND "mongo"`)
	require.ErrorContains(t, err, "STORE_MAX_RETRIES")

	cfg = Config{StoreBackend: BackendRedis, StoreMaxRetries: 1, AnalyticsCacheTTL: time.Minute, RateLimitPerMinute: 1}
	require.ErrorContains(t, cfg.Validate(), "REDIS_ADDR")
	require.False(t, cfg.CacheEnabled())

	cfg.RedisAddr = "127.0.0.1:6379"
	require.NoError(t, cfg.Validate())
	require.True(t, cfg.CacheEnabled())
}

func TestNewLoggerHonoursFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", LogLevel: "warn"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "company_id", "c1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "shown", line["msg"])
	require.Equal(t, "c1", line["company_id"])
}

func TestRefreshTestMode(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	require.True(t, InTestMode())
	t.Setenv(testModeEnv, "0")
	RefreshTestMode()
	require.False(t, InTestMode())
}
