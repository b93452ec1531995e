package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"rwa-portfolio-lab/internal/domain"
	"rwa-portfolio-lab/internal/storage"
)

// PriceStore implements storage.PriceStore on one SQLite price table.
type PriceStore struct {
	db    *DB
	table string
}

// APYStore implements storage.APYStore on SQLite.
type APYStore struct{ db *DB }

// SupplyStore implements storage.SupplyStore on SQLite.
type SupplyStore struct{ db *DB }

// TransferStore implements storage.TransferStore on SQLite.
type TransferStore struct{ db *DB }

// Compile-time interface checks.
var (
	_ storage.PriceStore    = (*PriceStore)(nil)
	_ storage.APYStore      = (*APYStore)(nil)
	_ storage.SupplyStore   = (*SupplyStore)(nil)
	_ storage.TransferStore = (*TransferStore)(nil)
)

// Prices returns the spot price store.
func (d *DB) Prices() *PriceStore { return &PriceStore{db: d, table: "asset_prices"} }

// History returns the price history store.
func (d *DB) History() *PriceStore { return &PriceStore{db: d, table: "asset_price_history"} }

// APY returns the APY store.
func (d *DB) APY() *APYStore { return &APYStore{db: d} }

// Supply returns the supply store.
func (d *DB) Supply() *SupplyStore { return &SupplyStore{db: d} }

// Transfers returns the transfer store.
func (d *DB) Transfers() *TransferStore { return &TransferStore{db: d} }

// InsertBulk adds multiple points atomically. Fails entire batch on any duplicate.
func (s *PriceStore) InsertBulk(ctx context.Context, points []*domain.PricePoint) error {
	if len(points) == 0 {
		return nil
	}
	for _, p := range points {
		if p == nil || p.Symbol == "" {
			return storage.ErrInvalidInput
		}
	}
	return s.db.insertTx(ctx, "price",
		`INSERT INTO `+s.table+` (symbol, timestamp_ms, price_usd) VALUES (?, ?, ?)`,
		len(points), func(i int) []any {
			return []any{points[i].Symbol, points[i].TimestampMs, nullFloat(points[i].PriceUSD)}
		})
}

// GetAll retrieves every point, ordered by timestamp ASC then symbol ASC.
func (s *PriceStore) GetAll(ctx context.Context) ([]*domain.PricePoint, error) {
	return s.query(ctx, `SELECT symbol, timestamp_ms, price_usd FROM `+s.table+`
		ORDER BY timestamp_ms ASC, symbol ASC`)
}

// GetBySymbol retrieves all points for a symbol, ordered by timestamp ASC.
func (s *PriceStore) GetBySymbol(ctx context.Context, symbol string) ([]*domain.PricePoint, error) {
	return s.query(ctx, `SELECT symbol, timestamp_ms, price_usd FROM `+s.table+`
		WHERE symbol = ? ORDER BY timestamp_ms ASC`, symbol)
}

// GetByTimeRange retrieves all points within [start, end] (inclusive).
func (s *PriceStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.PricePoint, error) {
	return s.query(ctx, `SELECT symbol, timestamp_ms, price_usd FROM `+s.table+`
		WHERE timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC, symbol ASC`, start, end)
}

func (s *PriceStore) query(ctx context.Context, query string, args ...any) ([]*domain.PricePoint, error) {
	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query prices: %w", err)
	}
	defer rows.Close()

	var points []*domain.PricePoint
	for rows.Next() {
		var p domain.PricePoint
		var price sql.NullFloat64
		if err := rows.Scan(&p.Symbol, &p.TimestampMs, &price); err != nil {
			return nil, fmt.Errorf("scan price row: %w", err)
		}
		p.PriceUSD = floatOrNaN(price)
		points = append(points, &p)
	}
	return points, rowsErr(rows, "price")
}

// InsertBulk adds multiple points atomically. Fails entire batch on any duplicate.
func (s *APYStore) InsertBulk(ctx context.Context, points []*domain.APYPoint) error {
	if len(points) == 0 {
		return nil
	}
	for _, p := range points {
		if p == nil || p.Symbol == "" {
			return storage.ErrInvalidInput
		}
	}
	return s.db.insertTx(ctx, "apy",
		`INSERT INTO asset_apy (symbol, timestamp_ms, apy) VALUES (?, ?, ?)`,
		len(points), func(i int) []any {
			return []any{points[i].Symbol, points[i].TimestampMs, nullFloat(points[i].APY)}
		})
}

// GetAll retrieves every point, ordered by symbol ASC then timestamp ASC.
func (s *APYStore) GetAll(ctx context.Context) ([]*domain.APYPoint, error) {
	rows, err := s.db.db.QueryContext(ctx, `SELECT symbol, timestamp_ms, apy FROM asset_apy
		ORDER BY symbol ASC, timestamp_ms ASC`)
	if err != nil {
		return nil, fmt.Errorf("query apy: %w", err)
	}
	defer rows.Close()

	var points []*domain.APYPoint
	for rows.Next() {
		var p domain.APYPoint
		var apy sql.NullFloat64
		if err := rows.Scan(&p.Symbol, &p.TimestampMs, &apy); err != nil {
			return nil, fmt.Errorf("scan apy row: %w", err)
		}
		p.APY = floatOrNaN(apy)
		points = append(points, &p)
	}
	return points, rowsErr(rows, "apy")
}

// InsertBulk adds multiple points atomically. Fails entire batch on any duplicate.
func (s *SupplyStore) InsertBulk(ctx context.Context, points []*domain.SupplyPoint) error {
	if len(points) == 0 {
		return nil
	}
	for _, p := range points {
		if p == nil || p.Symbol == "" {
			return storage.ErrInvalidInput
		}
	}
	return s.db.insertTx(ctx, "supply",
		`INSERT INTO asset_supply (symbol, timestamp_ms, total_supply) VALUES (?, ?, ?)`,
		len(points), func(i int) []any {
			return []any{points[i].Symbol, points[i].TimestampMs, nullFloat(points[i].TotalSupply)}
		})
}

// GetAll retrieves every point, ordered by symbol ASC then timestamp ASC.
func (s *SupplyStore) GetAll(ctx context.Context) ([]*domain.SupplyPoint, error) {
	rows, err := s.db.db.QueryContext(ctx, `SELECT symbol, timestamp_ms, total_supply FROM asset_supply
		ORDER BY symbol ASC, timestamp_ms ASC`)
	if err != nil {
		return nil, fmt.Errorf("query supply: %w", err)
	}
	defer rows.Close()

	var points []*domain.SupplyPoint
	for rows.Next() {
		var p domain.SupplyPoint
		var supply sql.NullFloat64
		if err := rows.Scan(&p.Symbol, &p.TimestampMs, &supply); err != nil {
			return nil, fmt.Errorf("scan supply row: %w", err)
		}
		p.TotalSupply = floatOrNaN(supply)
		points = append(points, &p)
	}
	return points, rowsErr(rows, "supply")
}

// InsertBulk adds multiple transfers atomically. Fails entire batch when a
// hashed transfer repeats (symbol, tx_hash, from_address, to_address).
func (s *TransferStore) InsertBulk(ctx context.Context, transfers []*domain.Transfer) error {
	if len(transfers) == 0 {
		return nil
	}
	for _, t := range transfers {
		if t == nil || t.Symbol == "" {
			return storage.ErrInvalidInput
		}
	}
	return s.db.insertTx(ctx, "transfer",
		`INSERT INTO asset_transfers (symbol, from_address, to_address, value, timestamp_ms, tx_hash)
		VALUES (?, ?, ?, ?, ?, ?)`,
		len(transfers), func(i int) []any {
			t := transfers[i]
			return []any{t.Symbol, t.From, t.To, nullFloat(t.Value), t.TimestampMs, t.TxHash}
		})
}

// GetAll retrieves every transfer, ordered by timestamp ASC.
func (s *TransferStore) GetAll(ctx context.Context) ([]*domain.Transfer, error) {
	return s.query(ctx, `SELECT symbol, from_address, to_address, value, timestamp_ms, tx_hash
		FROM asset_transfers ORDER BY timestamp_ms ASC, id ASC`)
}

// GetBySymbol retrieves all transfers of a symbol, ordered by timestamp ASC.
func (s *TransferStore) GetBySymbol(ctx context.Context, symbol string) ([]*domain.Transfer, error) {
	return s.query(ctx, `SELECT symbol, from_address, to_address, value, timestamp_ms, tx_hash
		FROM asset_transfers WHERE symbol = ? ORDER BY timestamp_ms ASC, id ASC`, symbol)
}

func (s *TransferStore) query(ctx context.Context, query string, args ...any) ([]*domain.Transfer, error) {
	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transfers: %w", err)
	}
	defer rows.Close()

	var transfers []*domain.Transfer
	for rows.Next() {
		var t domain.Transfer
		var value sql.NullFloat64
		if err := rows.Scan(&t.Symbol, &t.From, &t.To, &value, &t.TimestampMs, &t.TxHash); err != nil {
			return nil, fmt.Errorf("scan transfer row: %w", err)
		}
		t.Value = floatOrNaN(value)
		transfers = append(transfers, &t)
	}
	return transfers, rowsErr(rows, "transfer")
}

func rowsErr(rows *sql.Rows, what string) error {
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s rows: %w", what, err)
	}
	return nil
}

// nullFloat stores NaN as NULL.
func nullFloat(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v)}
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
