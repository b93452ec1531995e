// Package sqlite implements the table stores in one embedded SQLite file.
// Numeric value columns are nullable; NULL round-trips as NaN, the value the
// CSV loader uses for an empty cell.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"rwa-portfolio-lab/internal/storage"
)

// DB is a SQLite database holding the asset tables.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a private in-memory database.
func Open(ctx context.Context, path string) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		// Each connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	d := &DB{db: db}
	if err := d.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

// Close closes the database handle.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS asset_prices (
			symbol       TEXT    NOT NULL,
			timestamp_ms INTEGER NOT NULL,
			price_usd    REAL,
			PRIMARY KEY (symbol, timestamp_ms)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_prices_ts ON asset_prices(timestamp_ms)`,

		`CREATE TABLE IF NOT EXISTS asset_price_history (
			symbol       TEXT    NOT NULL,
			timestamp_ms INTEGER NOT NULL,
			price_usd    REAL,
			PRIMARY KEY (symbol, timestamp_ms)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_price_history_ts ON asset_price_history(timestamp_ms)`,

		`CREATE TABLE IF NOT EXISTS asset_apy (
			symbol       TEXT    NOT NULL,
			timestamp_ms INTEGER NOT NULL,
			apy          REAL,
			PRIMARY KEY (symbol, timestamp_ms)
		)`,

		`CREATE TABLE IF NOT EXISTS asset_supply (
			symbol       TEXT    NOT NULL,
			timestamp_ms INTEGER NOT NULL,
			total_supply REAL,
			PRIMARY KEY (symbol, timestamp_ms)
		)`,

		`CREATE TABLE IF NOT EXISTS asset_transfers (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol       TEXT    NOT NULL,
			from_address TEXT    NOT NULL DEFAULT '',
			to_address   TEXT    NOT NULL DEFAULT '',
			value        REAL,
			timestamp_ms INTEGER NOT NULL DEFAULT 0,
			tx_hash      TEXT    NOT NULL DEFAULT ''
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_transfers_hash
			ON asset_transfers(symbol, tx_hash, from_address, to_address)
			WHERE tx_hash <> ''`,
		`CREATE INDEX IF NOT EXISTS idx_transfers_symbol_ts ON asset_transfers(symbol, timestamp_ms)`,
	}

	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// insertTx runs insert per row inside one transaction, mapping constraint
// violations to storage.ErrDuplicateKey.
func (d *DB) insertTx(ctx context.Context, what, query string, n int, args func(i int) []any) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare %s insert: %w", what, err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			if isConstraintError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert %s: %w", what, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isConstraintError(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}

// Source returns a storage.StoreSource over all tables.
func (d *DB) Source() *storage.StoreSource {
	return &storage.StoreSource{
		Name:      "sqlite",
		Prices:    d.Prices(),
		History:   d.History(),
		APY:       &APYStore{db: d},
		Supply:    &SupplyStore{db: d},
		Transfers: &TransferStore{db: d},
	}
}
