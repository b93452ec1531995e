package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"rwa-portfolio-lab/internal/domain"
	"rwa-portfolio-lab/internal/storage"
)

// SupplyStore implements storage.SupplyStore using PostgreSQL.
type SupplyStore struct {
	pool *Pool
}

// NewSupplyStore creates a new SupplyStore.
func NewSupplyStore(pool *Pool) *SupplyStore {
	return &SupplyStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SupplyStore = (*SupplyStore)(nil)

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

	query := `
		INSERT INTO asset_supply (symbol, timestamp_ms, total_supply)
		VALUES ($1, $2, $3)
	`
	return s.pool.insertTx(ctx, "supply point", len(points), func(tx pgx.Tx, i int) error {
		_, err := tx.Exec(ctx, query, points[i].Symbol, points[i].TimestampMs, points[i].TotalSupply)
		return err
	})
}

// GetAll retrieves every point, ordered by symbol ASC then timestamp ASC.
func (s *SupplyStore) GetAll(ctx context.Context) ([]*domain.SupplyPoint, error) {
	query := `
		SELECT symbol, timestamp_ms, total_supply
		FROM asset_supply
		ORDER BY symbol ASC, timestamp_ms ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get supply points: %w", err)
	}
	defer rows.Close()

	var points []*domain.SupplyPoint
	for rows.Next() {
		var p domain.SupplyPoint
		if err := rows.Scan(&p.Symbol, &p.TimestampMs, &p.TotalSupply); err != nil {
			return nil, fmt.Errorf("scan supply row: %w", err)
		}
		points = append(points, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate supply rows: %w", err)
	}
	return points, nil
}
