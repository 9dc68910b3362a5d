package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backoffice-toko/internal/audit"
	"github.com/noah-isme/backoffice-toko/internal/cache"
	"github.com/noah-isme/backoffice-toko/internal/catalog"
	"github.com/noah-isme/backoffice-toko/internal/common"
	"github.com/noah-isme/backoffice-toko/internal/config"
	"github.com/noah-isme/backoffice-toko/internal/coupon"
	"github.com/noah-isme/backoffice-toko/internal/db"
	"github.com/noah-isme/backoffice-toko/internal/events"
	"github.com/noah-isme/backoffice-toko/internal/health"
	"github.com/noah-isme/backoffice-toko/internal/lock"
	"github.com/noah-isme/backoffice-toko/internal/loyalty"
	"github.com/noah-isme/backoffice-toko/internal/obs"
	"github.com/noah-isme/backoffice-toko/internal/order"
	"github.com/noah-isme/backoffice-toko/internal/ratelimit"
	"github.com/noah-isme/backoffice-toko/internal/resilience"
	"github.com/noah-isme/backoffice-toko/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Str("service", "backoffice-api").Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "backoffice")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)
	if metricsEnabled {
		shutdownMeter, err := obs.InitMeter(metricsNamespace, nil)
		if err != nil {
			logger.Error().Err(err).Msg("initialise otel meter")
		} else {
			defer func() { _ = shutdownMeter(context.Background()) }()
		}
	}

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "backoffice-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	if cfg.MigrateOnStart {
		if err := db.MigrateUp(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("apply migrations")
		}
		logger.Info().Msg("migrations applied")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()

	redisClient := mustInitRedis(ctx, cfg, logger, metricsEnabled)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse asynq redis url")
	}
	taskClient := asynq.NewClient(redisOpt)
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	catalogLogger := logger.With().Str("component", "catalog").Logger()
	catalogService := catalog.NewService(
		catalog.NewRepository(pool),
		cache.NewJSON(redisClient, "catalog", cfg.CatalogCacheTTL),
		&catalogLogger,
	)

	loyaltyLogger := logger.With().Str("component", "loyalty").Logger()
	loyaltyStore := loyalty.NewStore(pool, cache.NewJSON(redisClient, "loyalty", cfg.LoyaltyCacheTTL), &loyaltyLogger)

	couponRepo := coupon.NewRepository(pool)

	orderLogger := logger.With().Str("component", "order").Logger()
	orderService := &order.Service{
		Store:        order.NewRepository(pool),
		Catalog:      catalogService,
		Coupons:      &coupon.Service{Store: couponRepo},
		CouponLedger: couponRepo,
		Loyalty:      loyaltyStore,
		Events: &events.Bus{
			Client: taskClient,
			Queue:  events.DefaultQueue,
			Logger: &orderLogger,
			Breaker: resilience.NewBreaker(resilience.BreakerConfig{
				Target:       "events",
				MinRequests:  envInt("EVENTS_BREAKER_MIN_REQUESTS", 5),
				FailureRatio: envFloat("EVENTS_BREAKER_FAILURE_RATIO", 0.5),
				OpenFor:      envDurationMillis("EVENTS_BREAKER_OPEN_MS", 30000),
				Logger:       &orderLogger,
				Metrics:      resilience.NewBreakerMetrics(metricsNamespace, nil),
			}),
		},
		Locker: lock.Locker{
			R:            redisClient,
			Prefix:       "backoffice:lock",
			RetryBackoff: cfg.LockRetryBackoff,
			MaxWait:      cfg.OrderLockTTL,
		},
		LockTTL:        cfg.OrderLockTTL,
		DefaultTaxRate: cfg.DefaultTaxRate,
		Currency:       cfg.CurrencyCode,
		Logger:         &orderLogger,
	}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	auditStore := audit.NewRepository(pool)
	auditRecorder := audit.HTTPRecorder{
		Service: &audit.Service{Store: auditStore, Enabled: envBool("AUDIT_ENABLED", true), SamplingRate: envFloat("AUDIT_SAMPLING_RATE", 1)},
		OnError: func(err error) { logger.Error().Err(err).Msg("record audit log") },
	}

	var rateLimit func(http.Handler) http.Handler
	limiterStore, err := ratelimit.NewRedisStore(redisClient, "backoffice:ratelimit")
	if err != nil {
		logger.Error().Err(err).Msg("initialise rate limit store")
	} else if l, err := ratelimit.New(limiterStore, cfg.RateLimit); err != nil {
		logger.Error().Err(err).Msg("initialise rate limiter")
	} else {
		rateLimit = ratelimit.Handler{
			Limiter: l,
			Key:     ratelimit.ByClientIP,
			OnError: func(err error) { logger.Warn().Err(err).Msg("rate limit store unavailable") },
		}.Middleware
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{
		Logger:    logger,
		SkipPaths: []string{"/health/live", "/health/ready", "/metrics"},
		Headers:   []string{audit.ActorHeader},
	}.Middleware)
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.IsProduction()}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", common.IdempotencyHeader, audit.ActorHeader, "X-Request-ID"},
		ExposedHeaders:   []string{"Location", "X-Total-Count", "X-RateLimit-Remaining"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", !cfg.IsProduction()) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	health.Handler{Checks: []health.Check{
		{Name: "db", Timeout: envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500), Probe: pool.Ping},
		{Name: "redis", Timeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300), Probe: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}},
	}}.Routes(r)

	r.Route("/api/v1/admin", func(admin chi.Router) {
		if rateLimit != nil {
			admin.Use(rateLimit)
		}
		admin.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)
		admin.Use(idem.Middleware)
		admin.Use(auditRecorder.Writes)
		catalog.NewHandler(catalogService).Routes(admin)
		coupon.NewHandler(couponRepo).Routes(admin)
		loyalty.NewHandler(loyaltyStore).Routes(admin)
		order.NewHandler(orderService).Routes(admin)
		audit.Handler{Store: auditStore}.Routes(admin)
	})

	var handler http.Handler = r
	if tracingEnabled {
		handler = otelhttp.NewHandler(r, "backoffice-api", otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
			return req.Method
		}))
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	<-sigCtx.Done()
	health.SetReady(false)
	logger.Info().Msg("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), envDurationMillis("SHUTDOWN_TIMEOUT_MS", 10000))
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.NewPGXTracer(nil, nil)
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "backoffice-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger, metricsEnabled bool) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
