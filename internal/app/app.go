// Package app wires configuration into the runtime components shared by the
// binaries: logger, table source and orchestrator.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"rwa-portfolio-lab/internal/config"
	"rwa-portfolio-lab/internal/model"
	"rwa-portfolio-lab/internal/optimizer"
	"rwa-portfolio-lab/internal/orchestrator"
	"rwa-portfolio-lab/internal/storage"
	chstore "rwa-portfolio-lab/internal/storage/clickhouse"
	"rwa-portfolio-lab/internal/storage/csvfile"
	"rwa-portfolio-lab/internal/storage/memory"
	pgstore "rwa-portfolio-lab/internal/storage/postgres"
	"rwa-portfolio-lab/internal/storage/sqlite"
)

// NewLogger builds the process logger. Format "console" writes human
// readable lines, anything else JSON.
func NewLogger(level, format string, w io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("parse log level: %w", err)
	}
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// OpenSource opens the table source selected by cfg. The returned cleanup
// releases connections and must be called once the source is no longer used.
//
// The memory source reads the CSV directory once at startup and serves the
// copy from in-memory stores.
func OpenSource(ctx context.Context, cfg *config.Config) (storage.Source, func(), error) {
	noop := func() {}

	switch cfg.Source.Kind {
	case config.SourceCSV:
		return csvSource(cfg), noop, nil

	case config.SourceMemory:
		tables, err := csvSource(cfg).LoadTables(ctx)
		if err != nil {
			return nil, noop, fmt.Errorf("seed memory source: %w", err)
		}
		src, err := memory.NewSource(ctx, tables)
		if err != nil {
			return nil, noop, fmt.Errorf("seed memory source: %w", err)
		}
		return src, noop, nil

	case config.SourceSQLite:
		db, err := sqlite.Open(ctx, cfg.Source.SQLitePath)
		if err != nil {
			return nil, noop, fmt.Errorf("open sqlite: %w", err)
		}
		return db.Source(), func() { _ = db.Close() }, nil

	case config.SourcePostgres:
		pool, err := pgstore.NewPool(ctx, cfg.Source.PostgresDSN)
		if err != nil {
			return nil, noop, fmt.Errorf("connect to postgres: %w", err)
		}
		conn, err := chstore.NewConn(ctx, cfg.Source.ClickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, noop, fmt.Errorf("connect to clickhouse: %w", err)
		}
		src := &storage.StoreSource{
			Name:      "postgres",
			Prices:    chstore.NewPriceStore(conn),
			History:   chstore.NewHistoryStore(conn),
			APY:       pgstore.NewAPYStore(pool),
			Supply:    pgstore.NewSupplyStore(pool),
			Transfers: pgstore.NewTransferStore(pool),
		}
		cleanup := func() {
			_ = conn.Close()
			pool.Close()
		}
		return src, cleanup, nil
	}
	return nil, noop, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
}

func csvSource(cfg *config.Config) *csvfile.Source {
	return &csvfile.Source{Dir: cfg.Source.CSVDir, Files: cfg.Source.CSVFiles}
}

// NewOrchestrator builds the training and optimization service over src.
func NewOrchestrator(cfg *config.Config, src storage.Source, pub orchestrator.Publisher, logger zerolog.Logger) *orchestrator.Orchestrator {
	return orchestrator.New(orchestrator.Options{
		Source:            src,
		Bank:              model.NewBank(cfg.Model, logger),
		Optimizer:         optimizer.New(logger),
		Publisher:         pub,
		MaxIterations:     cfg.Optimizer.MaxIterations,
		Timeout:           cfg.Optimizer.Timeout,
		RetrainPerRequest: cfg.Schedule.RetrainPerRequest,
		TrainTimeout:      cfg.Schedule.TrainTimeout,
		Logger:            logger,
	})
}

// LoadConfig loads and validates the configuration at path.
func LoadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Fatal logs err and exits with status 1.
func Fatal(logger zerolog.Logger, err error, msg string) {
	logger.Error().Err(err).Msg(msg)
	os.Exit(1)
}
