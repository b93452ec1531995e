package clickhouse

import (
	"context"
	"fmt"
	"math"

	"rwa-portfolio-lab/internal/domain"
	"rwa-portfolio-lab/internal/storage"
)

// PriceStore implements storage.PriceStore on one ClickHouse price table.
type PriceStore struct {
	conn  *Conn
	table string
}

// NewPriceStore creates the spot price store.
func NewPriceStore(conn *Conn) *PriceStore {
	return &PriceStore{conn: conn, table: "asset_prices"}
}

// NewHistoryStore creates the price history store.
func NewHistoryStore(conn *Conn) *PriceStore {
	return &PriceStore{conn: conn, table: "asset_price_history"}
}

// Compile-time interface check.
var _ storage.PriceStore = (*PriceStore)(nil)

// InsertBulk adds multiple points. Fails entire batch on duplicate (symbol, timestamp_ms).
// MergeTree does not enforce keys, so duplicates are checked before the batch is sent.
func (s *PriceStore) InsertBulk(ctx context.Context, points []*domain.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	type key struct {
		symbol      string
		timestampMs int64
	}
	seen := make(map[key]struct{}, len(points))
	for _, p := range points {
		if p == nil || p.Symbol == "" {
			return storage.ErrInvalidInput
		}
		k := key{p.Symbol, p.TimestampMs}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	for _, p := range points {
		exists, err := s.exists(ctx, p.Symbol, p.TimestampMs)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO `+s.table+` (symbol, timestamp_ms, price_usd)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		if err := batch.Append(p.Symbol, p.TimestampMs, p.PriceUSD); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetAll retrieves every point, ordered by timestamp ASC then symbol ASC.
func (s *PriceStore) GetAll(ctx context.Context) ([]*domain.PricePoint, error) {
	return s.GetByTimeRange(ctx, math.MinInt64, math.MaxInt64)
}

// GetBySymbol retrieves all points for a symbol, ordered by timestamp ASC.
func (s *PriceStore) GetBySymbol(ctx context.Context, symbol string) ([]*domain.PricePoint, error) {
	query := `
		SELECT symbol, timestamp_ms, price_usd
		FROM `+s.table+`
		WHERE symbol = ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("query by symbol: %w", err)
	}
	defer rows.Close()

	return scanPrices(rows)
}

// GetByTimeRange retrieves all points within [start, end] (inclusive).
func (s *PriceStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.PricePoint, error) {
	query := `
		SELECT symbol, timestamp_ms, price_usd
		FROM `+s.table+`
		WHERE timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC, symbol ASC
	`

	rows, err := s.conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanPrices(rows)
}

func (s *PriceStore) exists(ctx context.Context, symbol string, timestampMs int64) (bool, error) {
	query := `
		SELECT count(*) FROM `+s.table+`
		WHERE symbol = ? AND timestamp_ms = ?
	`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, symbol, timestampMs).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanPrices(rows chRows) ([]*domain.PricePoint, error) {
	var points []*domain.PricePoint

	for rows.Next() {
		var p domain.PricePoint
		if err := rows.Scan(&p.Symbol, &p.TimestampMs, &p.PriceUSD); err != nil {
			return nil, fmt.Errorf("scan price row: %w", err)
		}
		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price rows: %w", err)
	}
	return points, nil
}
