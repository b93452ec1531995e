package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"rwa-portfolio-lab/internal/domain"
	"rwa-portfolio-lab/internal/storage"
)

// APYStore implements storage.APYStore using PostgreSQL.
type APYStore struct {
	pool *Pool
}

// NewAPYStore creates a new APYStore.
func NewAPYStore(pool *Pool) *APYStore {
	return &APYStore{pool: pool}
}

// Compile-time interface check.
var _ storage.APYStore = (*APYStore)(nil)

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

	query := `
		INSERT INTO asset_apy (symbol, timestamp_ms, apy)
		VALUES ($1, $2, $3)
	`
	return s.pool.insertTx(ctx, "apy point", len(points), func(tx pgx.Tx, i int) error {
		_, err := tx.Exec(ctx, query, points[i].Symbol, points[i].TimestampMs, points[i].APY)
		return err
	})
}

// GetAll retrieves every point, ordered by symbol ASC then timestamp ASC.
func (s *APYStore) GetAll(ctx context.Context) ([]*domain.APYPoint, error) {
	query := `
		SELECT symbol, timestamp_ms, apy
		FROM asset_apy
		ORDER BY symbol ASC, timestamp_ms ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get apy points: %w", err)
	}
	defer rows.Close()

	var points []*domain.APYPoint
	for rows.Next() {
		var p domain.APYPoint
		if err := rows.Scan(&p.Symbol, &p.TimestampMs, &p.APY); err != nil {
			return nil, fmt.Errorf("scan apy row: %w", err)
		}
		points = append(points, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate apy rows: %w", err)
	}
	return points, nil
}
