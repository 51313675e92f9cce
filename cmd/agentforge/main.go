package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	afhttp "github.com/Strob0t/AgentForge/internal/adapter/http"
	afnats "github.com/Strob0t/AgentForge/internal/adapter/nats"
	"github.com/Strob0t/AgentForge/internal/adapter/otel"
	"github.com/Strob0t/AgentForge/internal/adapter/postgres"
	"github.com/Strob0t/AgentForge/internal/adapter/proc"
	"github.com/Strob0t/AgentForge/internal/adapter/ristretto"
	"github.com/Strob0t/AgentForge/internal/adapter/ws"
	"github.com/Strob0t/AgentForge/internal/config"
	"github.com/Strob0t/AgentForge/internal/logger"
	"github.com/Strob0t/AgentForge/internal/middleware"
	"github.com/Strob0t/AgentForge/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"max_agents", cfg.Lifecycle.MaxAgents,
	)

	ctx := context.Background()

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("postgres ready")

	bus, err := afnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = bus.Drain() }()

	cacheAdapter, err := ristretto.New(cfg.Cache.MaxSizeMB * 1024 * 1024)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	otelShutdown, err := otel.Init(ctx, cfg.Otel, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(shutdownCtx)
	}()

	var otelMetrics *otel.Metrics
	if cfg.Otel.Enabled {
		otelMetrics, err = otel.NewMetrics()
		if err != nil {
			return fmt.Errorf("otel metrics: %w", err)
		}
	}

	// --- Services ---

	hub := ws.NewHub()
	store := postgres.NewStore(pool)

	registry := service.NewRegistry()
	catalog := service.NewTemplateCatalog(store)
	if err := catalog.Load(ctx); err != nil {
		return fmt.Errorf("load templates: %w", err)
	}

	health := service.NewHealthMonitor(registry, catalog, hub, cfg.Lifecycle)
	perf := service.NewPerformanceTracker(registry, cacheAdapter, cfg.Cache)
	scaler := service.NewScalingEngine(registry, catalog, cfg.Lifecycle)
	recovery := service.NewRecoveryEngine(registry, bus, hub, cfg.Recovery)
	metrics := service.NewMetricsAggregator(registry, recovery, store, cacheAdapter, cfg.Cache)

	orch := service.NewOrchestrator(service.Deps{
		Registry: registry,
		Catalog:  catalog,
		Health:   health,
		Perf:     perf,
		Scaler:   scaler,
		Recovery: recovery,
		Metrics:  metrics,
		Launcher: proc.New(),
		Bus:      bus,
		Hub:      hub,
		Otel:     otelMetrics,
	}, cfg.Lifecycle)

	cancels, err := orch.SubscribeAll(ctx)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer func() {
		for _, cancel := range cancels {
			cancel()
		}
	}()

	orch.Start(ctx)

	// --- HTTP ---

	ratelimit := middleware.NewRateLimiter(50, 100)
	defer ratelimit.StartCleanup(time.Minute, 10*time.Minute)()

	r := chi.NewRouter()
	r.Use(afhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(middleware.RequestID)
	r.Use(afhttp.Logger)
	r.Use(afhttp.SecurityHeaders)
	r.Use(ratelimit.Handler)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if cfg.Otel.Enabled {
		r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	}

	afhttp.MountRoutes(r, afhttp.NewHandlers(orch, metrics, hub, bus))

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "error", err)
	}

	// Terminate all agents gracefully before the process exits.
	orch.Shutdown(shutdownCtx)
	return nil
}
