package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/shiptrack/internal/application"
	"github.com/JonMunkholm/shiptrack/internal/config"
	"github.com/JonMunkholm/shiptrack/internal/logging"
	"github.com/JonMunkholm/shiptrack/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"tracking_endpoint", cfg.Tracking.Endpoint(),
		"max_concurrent_runs", cfg.Tracking.MaxConcurrentRuns,
		"match_mode", cfg.Ingest.MatchMode,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)
	slog.Debug("configuration", "config", cfg.String())

	ctx := context.Background()
	app, err := application.New(ctx, cfg, slog.Default())
	if err != nil {
		slog.Error("failed to start application", "error", err)
		os.Exit(1)
	}

	server := web.NewServer(app.Service, cfg)

	// Background jobs stop when jobCtx is cancelled.
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go app.Service.StartJanitor(jobCtx)

	done := make(chan struct{})
	go func() {
		defer close(done)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		// Cancel active runs and wait for their history to be saved.
		status := app.Service.Limiter().Status()
		if status.Active > 0 {
			slog.Info("waiting for tracking runs to stop", "active", status.Active)
		}
		if err := app.Close(shutdownCtx); err != nil {
			slog.Warn("application did not close cleanly", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		cancelJobs()
		app.Close(context.Background())
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}
