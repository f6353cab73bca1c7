package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/davidleathers/telemetry-analytics-backend/internal/infrastructure/cache"
	"github.com/davidleathers/telemetry-analytics-backend/internal/infrastructure/config"
	"github.com/davidleathers/telemetry-analytics-backend/internal/infrastructure/olap"
	"github.com/davidleathers/telemetry-analytics-backend/internal/infrastructure/telemetry"
	"github.com/davidleathers/telemetry-analytics-backend/internal/service/analytics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, err := telemetry.SetupLogger(cfg.LogLevel)
	if err != nil {
		slog.Error("failed to setup logger", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(logger)

	if err := run(ctx, cfg); err != nil {
		slog.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting telemetry analytics backend",
		"version", cfg.Version,
		"environment", cfg.Environment,
		"metrics_port", cfg.Server.MetricsPort)

	zlog, err := buildZapLogger(cfg)
	if err != nil {
		return fmt.Errorf("building infrastructure logger: %w", err)
	}
	defer zlog.Sync()

	executor, err := olap.NewExecutor(ctx, &cfg.Olap, zlog)
	if err != nil {
		return fmt.Errorf("connecting to olap store: %w", err)
	}
	defer executor.Close()

	svc, cleanup, err := buildService(cfg, zlog, executor)
	if err != nil {
		return fmt.Errorf("building analytics pipeline: %w", err)
	}
	defer cleanup()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: buildMux(svc),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("metrics server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildService wires the pipeline, falling back to the degraded variant
// when the cache backend is unreachable or unconfigured
func buildService(cfg *config.Config, logger *zap.Logger, executor olap.QueryExecutor) (analytics.Service, func(), error) {
	if cfg.Redis.URL == "" {
		svc, err := analytics.NewDegraded(cfg, logger, executor)
		return svc, func() {}, err
	}

	kv, err := cache.NewRedisCache(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("cache backend unavailable, running degraded", zap.Error(err))
		svc, err := analytics.NewDegraded(cfg, logger, executor)
		return svc, func() {}, err
	}

	svc, err := analytics.New(cfg, logger, executor, kv)
	if err != nil {
		kv.Close()
		return nil, nil, err
	}
	return svc, func() { kv.Close() }, nil
}

func buildMux(svc analytics.Service) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := svc.Health()
		code := http.StatusOK
		if status != analytics.HealthHealthy {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{
			"status": string(status),
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})
	return mux
}

func buildZapLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Environment == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
