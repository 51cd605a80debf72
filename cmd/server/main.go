/*
main.go - Application entry point

PURPOSE:
  Starts the society dues engine: loads configuration, wires the store,
  dashboard, metrics and scan scheduler, and serves the HTTP API.

STARTUP SEQUENCE:
  1. Load config (-config flag or CONFIG_PATH, then environment)
  2. Build slog logger (debug level in local env)
  3. Initialize SQLite store
  4. Create API handler, attach calculator settings and metrics
  5. Start scan scheduler if enabled
  6. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scan scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (15s timeout)
  4. Close database connection

EXAMPLES:
  # Run with config file
  ./server -config=config/local.yaml

  # Run from environment only, in-memory database
  STORAGE_PATH=":memory:" DUES_TIMEZONE="Asia/Kolkata" ./server

SEE ALSO:
  - config/config.go: Configuration
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/society/dues-engine/api"
	"github.com/society/dues-engine/config"
	"github.com/society/dues-engine/lib/sl"
	"github.com/society/dues-engine/metrics"
	"github.com/society/dues-engine/store/sqlite"
)

func main() {
	cfg := config.MustLoad()

	logger := setupLogger(cfg.Env)
	logger.Info("starting dues engine",
		slog.String("env", cfg.Env),
		slog.String("timezone", cfg.Timezone),
		slog.Int64("category_id", cfg.CategoryID),
	)
	logger.Debug("debug messages are enabled")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.Error("server failed", sl.Err(err))
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// run serves until ctx is done or the listener fails. The store is closed
// on every return path.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, err := sqlite.New(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	m := metrics.New()

	handler := api.NewHandler(store, logger)
	handler.Dashboard.CategoryID = cfg.CategoryID
	handler.Dashboard.Calculator.Location = cfg.Location()
	handler.Dashboard.Calculator.Workers = cfg.Workers
	handler.Dashboard.Recorder = m
	handler.Payments.Location = cfg.Location()
	handler.Scheduler.Interval = cfg.ScanInterval
	handler.Scheduler.Enabled = cfg.ScanEnabled
	handler.Scheduler.Observer = m

	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.AllowedOrigins,
		Metrics:        m.Handler(),
	})

	srv := &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	handler.Scheduler.Start()
	defer handler.Scheduler.Stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server starting", slog.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutting down")
		handler.Scheduler.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server forced to shutdown", sl.Err(err))
		}
		return nil
	}
}

func setupLogger(env string) *slog.Logger {
	switch env {
	case config.EnvLocal:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case config.EnvDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	default:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
}
