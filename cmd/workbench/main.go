package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/workbench/pkg/api"
	"github.com/platinummonkey/workbench/pkg/async"
	"github.com/platinummonkey/workbench/pkg/assets"
	"github.com/platinummonkey/workbench/pkg/audit"
	"github.com/platinummonkey/workbench/pkg/auth"
	"github.com/platinummonkey/workbench/pkg/config"
	"github.com/platinummonkey/workbench/pkg/httputil"
	"github.com/platinummonkey/workbench/pkg/middleware"
	"github.com/platinummonkey/workbench/pkg/observability"
	"github.com/platinummonkey/workbench/pkg/projects"
	"github.com/platinummonkey/workbench/pkg/storage"
	"github.com/platinummonkey/workbench/pkg/users"
	"github.com/platinummonkey/workbench/pkg/web"
)

var configFile = flag.String("config", os.Getenv(config.ConfigFileEnv), "Path to a YAML configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout).
		WithField("service", cfg.Observability.OTelServiceName)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("workbench exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otelProviders, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		// Tracing is optional; keep serving without it
		logger.WithError(err).Warn("Failed to initialize OpenTelemetry")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	db, err := storage.OpenDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	logger.Info("Connected to PostgreSQL")

	if cfg.Database.Migrate {
		if err := storage.Migrate(ctx, db); err != nil {
			return err
		}
		logger.Info("Database schema is up to date")
	}
	async.Go(ctx, logger, 0, "pool stats", func(ctx context.Context) error {
		storage.WatchPoolStats(ctx, db, metrics, 15*time.Second)
		return nil
	})

	redisClient, err := storage.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		// Redis only backs shared caches and limits; fall back to local state
		logger.WithError(err).Warn("Redis unavailable, using in-process cache and rate limits")
		redisClient = nil
	}
	if redisClient != nil {
		logger.Info("Connected to Redis")
	}

	blobs, err := storage.NewBlobStore(ctx, cfg.Storage, metrics)
	if err != nil {
		return err
	}
	logger.WithField("type", cfg.Storage.Type).Info("Blob storage initialized")

	auditLogger, err := newAuditLogger(cfg, logger)
	if err != nil {
		return err
	}

	keys, err := cfg.Auth.KeySource()
	if err != nil {
		return err
	}
	issuer := auth.NewIssuer(keys,
		auth.WithIssuerName(cfg.Auth.Issuer),
		auth.WithLogger(logger),
		auth.WithMetrics(metrics))

	userStore := users.NewPostgresStore(db)
	verifier := auth.NewVerifier(keys, userStore,
		auth.WithIssuerName(cfg.Auth.Issuer),
		auth.WithLogger(logger),
		auth.WithMetrics(metrics))

	projectService := projects.NewPostgresService(db)
	membership := projects.NewMembershipCache(projectService, redisClient, projects.CacheConfig{
		Size: cfg.Cache.MembershipSize,
		TTL:  cfg.Cache.MembershipTTL,
	}, metrics, logger)
	checker := auth.NewAccessChecker(projectService, membership, metrics)

	limiter := newLoginLimiter(ctx, cfg.Auth, redisClient)

	server := api.NewServer(api.Config{
		AccessTokenTTL: cfg.Auth.AccessTokenTTL,
		RememberMeTTL:  cfg.Auth.RememberMeTTL,
		CookieSecure:   cfg.Auth.CookieSecure,
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
	}, api.Dependencies{
		Issuer:   issuer,
		Verifier: verifier,
		Checker:  checker,
		Users:    userStore,
		Projects: projectService,
		Assets:   assets.NewService(db, blobs, logger),
		Cache:    membership,
		Limiter:  limiter,
		Metrics:  metrics,
		Audit:    auditLogger,
		Logger:   logger,
	})

	router := server.Router()
	if cfg.Web.Enabled {
		renderer, err := web.NewTemplateRenderer(cfg.Web.TemplateDir)
		if err != nil {
			return err
		}
		web.NewHandlers(web.Config{
			AccessTokenTTL: cfg.Auth.AccessTokenTTL,
			RememberMeTTL:  cfg.Auth.RememberMeTTL,
			CookieSecure:   cfg.Auth.CookieSecure,
		}, web.Dependencies{
			Issuer:   issuer,
			Verifier: verifier,
			Checker:  checker,
			Accounts: userStore,
			Projects: projectService,
			Renderer: renderer,
			Limiter:  limiter,
			Metrics:  metrics,
			Audit:    auditLogger,
		}).Register(router)
		logger.Info("Web pages enabled")
	}
	if metrics != nil {
		router.Use(observability.HTTPMetricsMiddleware(metrics))
	}

	handler := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware,
	)(router)
	if otelProviders != nil {
		handler = otelhttp.NewHandler(handler, "workbench")
	}

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	health := observability.NewHealthChecker(db, redisClient).WithVersion(cfg.Observability.OTelServiceVersion)
	health.AddProbe("blob_storage", true, blobs.HealthCheck)
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, health)
	if metrics != nil {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:      healthMux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Servers drain first, then the registered cleanup runs in reverse
	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, httpServer, healthServer)
	shutdown.Register("otel", otelProviders.Shutdown)
	shutdown.Register("database", func(context.Context) error { return db.Close() })
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}
	shutdown.Register("audit", func(context.Context) error { return auditLogger.Close() })
	shutdown.Register("background", func(context.Context) error { cancel(); return nil })

	errCh := make(chan error, 2)
	go serve(httpServer, "API", logger, errCh)
	go serve(healthServer, "health", logger, errCh)

	select {
	case err := <-errCh:
		_ = shutdown.Shutdown(context.Background())
		return err
	case <-waitForSignal(ctx, shutdown):
		logger.Info("Workbench stopped")
		return nil
	}
}

func serve(server *http.Server, name string, logger *observability.Logger, errCh chan<- error) {
	logger.WithField("addr", server.Addr).Infof("Starting %s server", name)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("%s server failed: %w", name, err)
	}
}

func waitForSignal(ctx context.Context, shutdown *observability.ShutdownManager) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = shutdown.WaitForSignal(ctx)
	}()
	return done
}

// newAuditLogger writes audit events to the service log, and also to rotated
// JSON files when an audit directory is configured
func newAuditLogger(cfg *config.Config, logger *observability.Logger) (audit.Logger, error) {
	structured := audit.NewStructuredLogger(logger)
	if cfg.Observability.AuditDir == "" {
		return structured, nil
	}

	fileCfg := audit.DefaultFileLoggerConfig()
	fileCfg.BasePath = filepath.Clean(cfg.Observability.AuditDir)
	fileLogger, err := audit.NewFileLogger(fileCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return audit.NewMultiLogger(structured, fileLogger), nil
}

// newLoginLimiter shares login limits through Redis when it is available
func newLoginLimiter(ctx context.Context, cfg config.AuthConfig, redisClient *redis.Client) middleware.Limiter {
	limits := middleware.RateLimitConfig{
		RequestsPerMinute: cfg.LoginRatePerMinute,
		Burst:             cfg.LoginBurst,
	}
	if redisClient != nil {
		return middleware.NewDistributedLoginLimiter(redisClient, limits, "workbench:login")
	}
	local := middleware.NewLoginLimiter(limits)
	local.StartCleanup(ctx, 5*time.Minute)
	return local
}
