// Command migrate applies the embedded schema migrations and optionally
// imports a CSV data directory into the configured stores.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"rwa-portfolio-lab/internal/app"
	"rwa-portfolio-lab/internal/storage"
	chstore "rwa-portfolio-lab/internal/storage/clickhouse"
	"rwa-portfolio-lab/internal/storage/csvfile"
	"rwa-portfolio-lab/internal/storage/migrations"
	pgstore "rwa-portfolio-lab/internal/storage/postgres"
	"rwa-portfolio-lab/internal/storage/sqlite"
)

func main() {
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	sqlitePath := flag.String("sqlite", "", "SQLite database file (replaces Postgres/ClickHouse)")
	importDir := flag.String("import-dir", "", "CSV directory to import after migrating")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	logger, err := app.NewLogger(*logLevel, "console", os.Stderr)
	if err != nil {
		app.Fatal(zerolog.New(os.Stderr), err, "invalid log level")
	}
	logger = logger.With().Str("cmd", "migrate").Logger()

	if err := run(*postgresDSN, *clickhouseDSN, *sqlitePath, *importDir, logger); err != nil {
		app.Fatal(logger, err, "migrate failed")
	}
}

func run(postgresDSN, clickhouseDSN, sqlitePath, importDir string, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var dst *storage.StoreSource
	if sqlitePath != "" {
		db, err := sqlite.Open(ctx, sqlitePath)
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		defer db.Close()
		logger.Info().Str("path", sqlitePath).Msg("sqlite schema ready")
		dst = db.Source()
	} else {
		if postgresDSN == "" || clickhouseDSN == "" {
			return fmt.Errorf("--postgres-dsn and --clickhouse-dsn are required unless --sqlite is set")
		}

		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			return fmt.Errorf("postgres migrations: %w", err)
		}
		logger.Info().Strs("files", applied).Msg("postgres migrations applied")

		conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			return fmt.Errorf("clickhouse migrations: %w", err)
		}
		defer conn.Close()
		logger.Info().Msg("clickhouse migrations applied")

		dst = &storage.StoreSource{
			Name:      "postgres",
			Prices:    chstore.NewPriceStore(conn),
			History:   chstore.NewHistoryStore(conn),
			APY:       pgstore.NewAPYStore(pool),
			Supply:    pgstore.NewSupplyStore(pool),
			Transfers: pgstore.NewTransferStore(pool),
		}
	}

	if importDir == "" {
		return nil
	}

	tables, err := csvfile.New(importDir).LoadTables(ctx)
	if err != nil {
		return fmt.Errorf("load csv tables: %w", err)
	}
	if err := storage.Import(ctx, dst, tables); err != nil {
		return err
	}
	logger.Info().
		Str("dir", importDir).
		Int("prices", len(tables.Prices)).
		Int("history", len(tables.History)).
		Int("apy", len(tables.APY)).
		Int("supply", len(tables.Supply)).
		Int("transfers", len(tables.Transfers)).
		Msg("import complete")
	return nil
}
