// Package main is the entry point for the breaker daemon. It loads
// configuration, builds the breaker registry, assembles the middleware
// stack, starts the HTTP server, and handles graceful shutdown on
// SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dskow/breaker-core/internal/admin"
	"github.com/dskow/breaker-core/internal/auth"
	"github.com/dskow/breaker-core/internal/breaker"
	"github.com/dskow/breaker-core/internal/config"
	"github.com/dskow/breaker-core/internal/health"
	"github.com/dskow/breaker-core/internal/logging"
	"github.com/dskow/breaker-core/internal/metrics"
	"github.com/dskow/breaker-core/internal/middleware"
	"github.com/dskow/breaker-core/internal/proxy"
	"github.com/dskow/breaker-core/internal/ratelimit"
)

func main() {
	configPath := flag.String("config", "configs/breakerd.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser, err := logging.Setup(cfg.Logging.Output, cfg.Logging.Level,
		cfg.Logging.MaxSizeMB, cfg.Logging.MaxBackups, cfg.Logging.MaxAgeDays)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	for _, w := range cfg.Warnings {
		logger.Warn("config warning", "message", w)
	}

	logger.Info("configuration loaded",
		"port", cfg.Server.Port,
		"breakers", len(cfg.Breakers),
		"auth_enabled", cfg.Auth.Enabled,
		"admin_enabled", cfg.Admin.Enabled,
		"metrics_enabled", cfg.Metrics.IsEnabled(),
		"metrics_path", cfg.Metrics.Path,
	)

	// Initialize Prometheus metrics
	if cfg.Metrics.IsEnabled() {
		metrics.Init()
	}

	// Build the breaker registry from config
	registry := breaker.NewRegistry(logger)
	if err := registry.Apply(cfg.BreakerConfigs()); err != nil {
		logger.Error("failed to create breakers", "error", err)
		os.Exit(1)
	}
	defer registry.ShutdownAll()

	// Build the forwarder
	forwarder := proxy.New(registry, cfg.Breakers, logger)

	callMux := http.NewServeMux()
	forwarder.RegisterRoutes(callMux)

	// Forwarding stack: Recovery → RequestID → Logging → RateLimit → Forwarder
	var handler http.Handler = callMux
	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(cfg.RateLimit, logger)
		defer limiter.Stop()
		handler = limiter.Middleware()(handler)
	}
	handler = middleware.Logging(logger)(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Recovery(logger)(handler)

	// Health check and metrics routes bypass the middleware stack
	mux := http.NewServeMux()
	healthHandler := health.New(registry, logger)
	healthHandler.RegisterRoutes(mux)

	metricsPath := cfg.Metrics.Path
	if cfg.Metrics.IsEnabled() {
		mux.Handle(metricsPath, metrics.Handler())
		logger.Info("metrics endpoint registered", "path", metricsPath)
	}

	// Initialize config reloader
	reloader := config.NewReloader(*configPath, cfg, logger)
	reloader.Start()
	defer reloader.Stop()

	reloader.OnReload(func(newCfg *config.Config) {
		if err := registry.Apply(newCfg.BreakerConfigs()); err != nil {
			logger.Error("failed to apply reloaded breaker config", "error", err)
			return
		}
		forwarder.UpdateConfig(newCfg.Breakers)
		if limiter != nil {
			limiter.UpdateConfig(newCfg.RateLimit)
		}
	})

	// Admin API: IP allowlist always applies; JWT auth is layered on top
	// when enabled.
	var adminHandler http.Handler
	if cfg.Admin.Enabled {
		adminMux := http.NewServeMux()
		admin.New(reloader, registry, cfg.Admin.IPAllowlist, logger).RegisterRoutes(adminMux)
		adminHandler = auth.Middleware(cfg.Auth, logger)(adminMux)
		logger.Info("admin API registered", "allowlist", cfg.Admin.IPAllowlist)
	}

	combined := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/health") || strings.HasPrefix(r.URL.Path, "/ready"):
			mux.ServeHTTP(w, r)
		case cfg.Metrics.IsEnabled() && r.URL.Path == metricsPath:
			mux.ServeHTTP(w, r)
		case adminHandler != nil && strings.HasPrefix(r.URL.Path, "/admin/"):
			adminHandler.ServeHTTP(w, r)
		default:
			handler.ServeHTTP(w, r)
		}
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      combined,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("starting breaker daemon", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutdown signal received", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	logger.Info("draining in-flight requests", "timeout", cfg.Server.ShutdownTimeout)
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("breaker daemon stopped gracefully")
}
