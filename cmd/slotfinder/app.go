package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/smartsched/slotfinder/internal/config"
	"github.com/smartsched/slotfinder/internal/domain/directory"
	"github.com/smartsched/slotfinder/internal/domain/enrichment"
	"github.com/smartsched/slotfinder/internal/domain/publisher"
	"github.com/smartsched/slotfinder/internal/domain/republish"
	"github.com/smartsched/slotfinder/internal/domain/search"
	"github.com/smartsched/slotfinder/internal/platform/db"
	"github.com/smartsched/slotfinder/internal/platform/fetch"
	"github.com/smartsched/slotfinder/internal/platform/lock"
	"github.com/smartsched/slotfinder/internal/platform/middleware"
	"github.com/smartsched/slotfinder/internal/platform/sandbox"
	"github.com/smartsched/slotfinder/internal/platform/telemetry"
	"github.com/smartsched/slotfinder/internal/platform/validation"
	"github.com/smartsched/slotfinder/migrations"
)

var version = "dev"

const (
	syncLockKey    = "slotfinder:sync"
	requestTimeout = 30 * time.Second
)

// app holds the wired components of one process.
type app struct {
	cfg       *config.Config
	logger    zerolog.Logger
	echo      *echo.Echo
	store     *directory.Store
	engine    *publisher.Engine
	telemetry *telemetry.Telemetry

	closers []func()
}

func newLogger(cfg *config.Config) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	return logger.Level(cfg.ZerologLevel())
}

// newApp builds every component from cfg. The returned app owns its
// connections; call close when done.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	a.telemetry, err = telemetry.New(ctx, telemetry.Config{
		ServiceName:      "slotfinder",
		ServiceVersion:   version,
		Environment:      cfg.Env,
		ExporterEndpoint: cfg.OTelExporterEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	var pool db.Pinger
	switch cfg.Storage {
	case config.StoragePostgres:
		p, err := db.NewPool(ctx, db.PoolConfig{
			URL:            cfg.DatabaseURL,
			MaxConns:       cfg.DBMaxConns,
			MinConns:       cfg.DBMinConns,
			ConnectTimeout: 10 * time.Second,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, p.Close)
		applied, err := db.NewMigrator(p, migrations.FS).Up(ctx)
		if err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info().Int("applied", applied).Msg("database ready")
		a.store = directory.NewPostgresStore(p)
		pool = p
	default:
		a.store = directory.NewMemoryStore()
	}

	var guard lock.Guard = lock.NewLocalGuard()
	if cfg.RedisURL != "" {
		client, err := lock.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		guard = lock.NewRedisGuard(client, syncLockKey, cfg.SyncTimeout)
	}

	httpClient := fetch.NewClient(cfg.FetchTimeout, "slotfinder/"+version)

	var dir enrichment.Directory
	enrichmentURL := cfg.ResolvedEnrichmentURL()
	if enrichmentURL != "" {
		dir = enrichment.NewDirectoryClient(httpClient, enrichmentURL)
	}
	enricher := enrichment.NewService(a.store.PractitionerRoles, dir, enrichment.NewTokenMatcher(), enrichment.Config{
		PageSize: cfg.EnrichmentPageSize,
		Source:   sourceName(enrichmentURL),
		DemoMode: cfg.DemoMode,
	}, logger)

	opts := []publisher.Option{
		publisher.WithTelemetry(a.telemetry.Meter("slotfinder/publisher"), a.telemetry.Tracer("slotfinder/publisher")),
	}
	if dir != nil || cfg.DemoMode {
		opts = append(opts, publisher.WithHook(enricher))
	}
	a.engine, err = publisher.NewEngine(a.store, publisher.NewHTTPFetcher(httpClient), guard, publisher.Config{
		Publishers:   cfg.ResolvedPublishers(),
		Concurrency:  cfg.SyncConcurrency,
		CycleTimeout: cfg.SyncTimeout,
	}, logger, opts...)
	if err != nil {
		return nil, err
	}

	if err := a.buildServer(ctx, pool); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) buildServer(ctx context.Context, pool db.Pinger) error {
	cfg := a.cfg
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{
		HSTS:              cfg.IsProduction(),
		CacheablePrefixes: []string{"/fhir/"},
	}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{echo.HeaderContentType, middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader, "Retry-After"},
	}))
	e.Use(middleware.RequestTimeout(requestTimeout, "/fhir/data/", "/sandbox/data/", "/api/sync"))
	e.Use(middleware.BodyLimit("1M"))

	e.GET("/health", func(c echo.Context) error {
		body := map[string]interface{}{"status": "ok", "version": version}
		if last := a.engine.LastResult(); last != nil {
			body["lastSync"] = last.FinishedAt
		}
		return c.JSON(http.StatusOK, body)
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool, 5*time.Second))
	}

	api := e.Group("/api")
	api.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           10 * time.Minute,
	}))
	directory.NewHandler(a.store).RegisterRoutes(api)
	search.NewHandler(search.NewEngine(a.store), validation.New()).RegisterRoutes(api)
	publisher.NewHandler(a.engine).RegisterRoutes(api)

	republish.NewHandler(republish.NewBuilder(a.store, republish.DefaultDataPath), a.logger).
		RegisterRoutes(e.Group("/fhir"))

	if cfg.SandboxEnabled() {
		sb, err := sandbox.NewSeedHandler(ctx, "/sandbox", sandbox.DefaultSeedConfig(), a.logger)
		if err != nil {
			return fmt.Errorf("init sandbox: %w", err)
		}
		sb.RegisterRoutes(e.Group("/sandbox"))
		a.logger.Info().Str("url", cfg.SandboxURL()).Msg("sandbox publisher mounted")
	}

	a.echo = e
	return nil
}

// serve runs the HTTP server on ln and the sync scheduler until ctx is done.
func (a *app) serve(ctx context.Context, ln net.Listener) error {
	a.echo.Listener = ln
	errCh := make(chan error, 1)
	go func() {
		if err := a.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// The listener is bound before the first cycle so the sandbox is reachable.
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		publisher.NewScheduler(a.engine, a.cfg.SyncInterval, a.logger).Run(ctx)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.echo.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("server shutdown")
	}
	<-schedDone
	return serveErr
}

func (a *app) close(ctx context.Context) {
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("telemetry shutdown")
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func sourceName(rawURL string) string {
	if rawURL == "" {
		return "demo"
	}
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		return u.Host
	}
	return "directory"
}
