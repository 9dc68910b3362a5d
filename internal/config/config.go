// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// Config holds application configuration loaded from the environment. Field
// tags name the environment variable.
type Config struct {
	AppEnv             string   `koanf:"APP_ENV"`
	Port               string   `koanf:"PORT"`
	DatabaseURL        string   `koanf:"DATABASE_URL"`
	RedisURL           string   `koanf:"REDIS_URL"`
	CORSAllowedOrigins []string `koanf:"CORS_ALLOWED_ORIGINS"`

	// DefaultTaxRate is a percentage applied when a draft carries none.
	DefaultTaxRate decimal.Decimal `koanf:"PRICING_TAX_RATE_PERCENT"`
	CurrencyCode   string          `koanf:"CURRENCY_CODE"`

	CatalogCacheTTL  time.Duration `koanf:"CATALOG_CACHE_TTL"`
	LoyaltyCacheTTL  time.Duration `koanf:"LOYALTY_CACHE_TTL"`
	IdempotencyTTL   time.Duration `koanf:"IDEMPOTENCY_TTL"`
	OrderLockTTL     time.Duration `koanf:"ORDER_LOCK_TTL"`
	LockRetryBackoff time.Duration `koanf:"LOCK_RETRY_BACKOFF"`

	// RateLimit uses the ulule/limiter format, e.g. "120-M".
	RateLimit         string `koanf:"RATE_LIMIT"`
	BodyLimitBytes    int64  `koanf:"BODY_LIMIT_BYTES"`
	WorkerConcurrency int    `koanf:"WORKER_CONCURRENCY"`
	MigrateOnStart    bool   `koanf:"MIGRATE_ON_START"`
}

var defaults = map[string]any{
	"APP_ENV":                  "development",
	"PORT":                     "8080",
	"CURRENCY_CODE":            "USD",
	"PRICING_TAX_RATE_PERCENT": "0",
	"CATALOG_CACHE_TTL":        "5m",
	"LOYALTY_CACHE_TTL":        "1m",
	"IDEMPOTENCY_TTL":          "24h",
	"ORDER_LOCK_TTL":           "10s",
	"LOCK_RETRY_BACKOFF":       "50ms",
	"RATE_LIMIT":               "120-M",
	"BODY_LIMIT_BYTES":         1 << 20,
	"WORKER_CONCURRENCY":       10,
	"MIGRATE_ON_START":         false,
}

// Load reads configuration from environment variables and an optional .env
// file. Empty variables count as unset.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("default %s: %w", key, err)
		}
	}
	provider := env.ProviderWithValue("", ".", func(key, value string) (string, any) {
		value = strings.TrimSpace(value)
		if value == "" {
			return "", nil
		}
		return key, value
	})
	if err := k.Load(provider, nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.CurrencyCode = strings.ToUpper(cfg.CurrencyCode)
	cfg.CORSAllowedOrigins = compact(cfg.CORSAllowedOrigins)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL is required"))
	}
	if c.DefaultTaxRate.IsNegative() || c.DefaultTaxRate.GreaterThan(decimal.NewFromInt(100)) {
		errs = append(errs, errors.New("PRICING_TAX_RATE_PERCENT must be between 0 and 100"))
	}
	if len(c.CurrencyCode) != 3 {
		errs = append(errs, fmt.Errorf("CURRENCY_CODE %q is not an ISO 4217 code", c.CurrencyCode))
	}
	for name, d := range map[string]time.Duration{
		"CATALOG_CACHE_TTL":  c.CatalogCacheTTL,
		"LOYALTY_CACHE_TTL":  c.LoyaltyCacheTTL,
		"IDEMPOTENCY_TTL":    c.IdempotencyTTL,
		"ORDER_LOCK_TTL":     c.OrderLockTTL,
		"LOCK_RETRY_BACKOFF": c.LockRetryBackoff,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.BodyLimitBytes <= 0 {
		errs = append(errs, errors.New("BODY_LIMIT_BYTES must be positive"))
	}
	if c.WorkerConcurrency <= 0 {
		errs = append(errs, errors.New("WORKER_CONCURRENCY must be positive"))
	}
	return errors.Join(errs...)
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// IsProduction reports whether the app runs with APP_ENV=production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

func compact(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// LoadForTests applies env on top of the process environment, loads, then
// restores the previous values. An empty value unsets the variable.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]*string, len(env))
	for key, val := range env {
		if prev, ok := os.LookupEnv(key); ok {
			original[key] = &prev
		} else {
			original[key] = nil
		}
		if err := setEnv(key, val); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	for key, prev := range original {
		if prev == nil {
			_ = os.Unsetenv(key)
		} else {
			_ = os.Setenv(key, *prev)
		}
	}
	return cfg, err
}

func setEnv(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}
