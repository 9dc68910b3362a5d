package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseEnv() map[string]string {
	return map[string]string{
		"APP_ENV":                  "",
		"PORT":                     "",
		"DATABASE_URL":             "postgres://localhost/backoffice",
		"REDIS_URL":                "redis://localhost:6379/0",
		"CORS_ALLOWED_ORIGINS":     "",
		"PRICING_TAX_RATE_PERCENT": "",
		"CURRENCY_CODE":            "",
		"CATALOG_CACHE_TTL":        "",
		"ORDER_LOCK_TTL":           "",
		"RATE_LIMIT":               "",
		"BODY_LIMIT_BYTES":         "",
		"WORKER_CONCURRENCY":       "",
		"MIGRATE_ON_START":         "",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(baseEnv())
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, ":8080", cfg.HTTPAddr())
	assert.Equal(t, "USD", cfg.CurrencyCode)
	assert.True(t, cfg.DefaultTaxRate.IsZero())
	assert.Equal(t, 5*time.Minute, cfg.CatalogCacheTTL)
	assert.Equal(t, 10*time.Second, cfg.OrderLockTTL)
	assert.Equal(t, 50*time.Millisecond, cfg.LockRetryBackoff)
	assert.Equal(t, "120-M", cfg.RateLimit)
	assert.Equal(t, int64(1<<20), cfg.BodyLimitBytes)
	assert.Equal(t, 10, cfg.WorkerConcurrency)
	assert.False(t, cfg.MigrateOnStart)
	assert.Nil(t, cfg.CORSAllowedOrigins)
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["APP_ENV"] = "production"
	env["PORT"] = ":9090"
	env["CORS_ALLOWED_ORIGINS"] = "https://admin.example.com, https://ops.example.com,"
	env["PRICING_TAX_RATE_PERCENT"] = "7.5"
	env["CURRENCY_CODE"] = "idr"
	env["ORDER_LOCK_TTL"] = "3s"
	env["WORKER_CONCURRENCY"] = "4"
	env["BODY_LIMIT_BYTES"] = "2048"
	env["MIGRATE_ON_START"] = "true"

	cfg, err := LoadForTests(env)
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, ":9090", cfg.HTTPAddr())
	assert.Equal(t, []string{"https://admin.example.com", "https://ops.example.com"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, "7.5", cfg.DefaultTaxRate.String())
	assert.Equal(t, "IDR", cfg.CurrencyCode)
	assert.Equal(t, 3*time.Second, cfg.OrderLockTTL)
	assert.Equal(t, 4, cfg.WorkerConcurrency)
	assert.Equal(t, int64(2048), cfg.BodyLimitBytes)
	assert.True(t, cfg.MigrateOnStart)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]struct {
		key, value, want string
	}{
		"missing database":  {"DATABASE_URL", "", "DATABASE_URL"},
		"tax not a number":  {"PRICING_TAX_RATE_PERCENT", "abc", "decode config"},
		"tax out of range":  {"PRICING_TAX_RATE_PERCENT", "120", "between 0 and 100"},
		"bad duration":      {"CATALOG_CACHE_TTL", "not-a-duration", "decode config"},
		"negative duration": {"ORDER_LOCK_TTL", "-1s", "ORDER_LOCK_TTL must be positive"},
		"bad currency":      {"CURRENCY_CODE", "dollars", "CURRENCY_CODE"},
		"zero workers":      {"WORKER_CONCURRENCY", "0", "WORKER_CONCURRENCY"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			env := baseEnv()
			env[tc.key] = tc.value
			_, err := LoadForTests(env)
			require.ErrorContains(t, err, tc.want)
		})
	}
}

func TestLoadForTestsRestoresEnv(t *testing.T) {
	t.Setenv("RATE_LIMIT", "10-S")
	env := baseEnv()
	env["RATE_LIMIT"] = "5-M"
	cfg, err := LoadForTests(env)
	require.NoError(t, err)
	assert.Equal(t, "5-M", cfg.RateLimit)

	assert.Equal(t, "10-S", os.Getenv("RATE_LIMIT"))
}
