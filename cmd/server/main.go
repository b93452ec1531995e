// Package main runs the allocation service: HTTP API, prediction stream and
// scheduled retraining over the configured table source.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"rwa-portfolio-lab/internal/app"
	"rwa-portfolio-lab/internal/config"
	"rwa-portfolio-lab/internal/httpapi"
	"rwa-portfolio-lab/internal/observability"
	"rwa-portfolio-lab/internal/scheduler"
	"rwa-portfolio-lab/internal/stream"
	"rwa-portfolio-lab/internal/tracing"
)

func main() {
	configPath := flag.String("config", envOr("RWA_CONFIG", "config.yaml"), "Path to YAML config file")
	addr := flag.String("addr", "", "HTTP listen address (overrides server.addr)")
	trainOnStart := flag.Bool("train-on-start", true, "Train the models before accepting requests")
	flag.Parse()

	cfg, err := app.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	logger, err := app.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}

	// Exit only after run's deferred cleanups have released the source.
	if err := run(cfg, *trainOnStart, logger); err != nil {
		app.Fatal(logger, err, "server stopped")
	}
}

func run(cfg *config.Config, trainOnStart bool, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing.Endpoint, cfg.Tracing.ServiceName)
	if err != nil {
		return fmt.Errorf("tracing setup: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error().Err(err).Msg("tracing shutdown incomplete")
		}
	}()

	src, cleanup, err := app.OpenSource(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer cleanup()

	hub := stream.NewHub(stream.DefaultConfig(), logger)
	orch := app.NewOrchestrator(cfg, src, hub, logger)

	if trainOnStart {
		if _, err := orch.Train(ctx); err != nil {
			// Requests train lazily, so a cold start is not fatal.
			logger.Warn().Err(err).Msg("initial training failed")
		}
	}

	if cfg.Schedule.RetrainCron != "" {
		sched, err := scheduler.New(ctx, cfg.Schedule.RetrainCron, cfg.Schedule.TrainTimeout, func(ctx context.Context) error {
			_, err := orch.Train(ctx)
			return err
		}, logger)
		if err != nil {
			return fmt.Errorf("retrain schedule: %w", err)
		}
		sched.Start()
		defer sched.Stop()
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           httpapi.New(orch, hub, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go trackUptime(ctx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Str("source", cfg.Source.Kind).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case serveErr = <-errCh:
		logger.Error().Err(serveErr).Msg("HTTP server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP shutdown incomplete")
	}
	logger.Info().Msg("shutdown complete")
	return serveErr
}

// trackUptime advances the uptime counter until ctx is done.
func trackUptime(ctx context.Context) {
	const tick = 10 * time.Second
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			observability.AddUptime(tick.Seconds())
		}
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
