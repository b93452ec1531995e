package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"rwa-portfolio-lab/internal/domain"
	"rwa-portfolio-lab/internal/storage"
)

// TransferStore implements storage.TransferStore using PostgreSQL.
type TransferStore struct {
	pool *Pool
}

// NewTransferStore creates a new TransferStore.
func NewTransferStore(pool *Pool) *TransferStore {
	return &TransferStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TransferStore = (*TransferStore)(nil)

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

	query := `
		INSERT INTO asset_transfers (
			symbol, from_address, to_address, value, timestamp_ms, tx_hash
		) VALUES ($1, $2, $3, $4, $5, $6)
	`
	return s.pool.insertTx(ctx, "transfer", len(transfers), func(tx pgx.Tx, i int) error {
		t := transfers[i]
		_, err := tx.Exec(ctx, query, t.Symbol, t.From, t.To, t.Value, t.TimestampMs, t.TxHash)
		return err
	})
}

// GetAll retrieves every transfer, ordered by timestamp ASC.
func (s *TransferStore) GetAll(ctx context.Context) ([]*domain.Transfer, error) {
	query := `
		SELECT symbol, from_address, to_address, value, timestamp_ms, tx_hash
		FROM asset_transfers
		ORDER BY timestamp_ms ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get transfers: %w", err)
	}
	defer rows.Close()

	return scanTransfers(rows)
}

// GetBySymbol retrieves all transfers of a symbol, ordered by timestamp ASC.
func (s *TransferStore) GetBySymbol(ctx context.Context, symbol string) ([]*domain.Transfer, error) {
	query := `
		SELECT symbol, from_address, to_address, value, timestamp_ms, tx_hash
		FROM asset_transfers
		WHERE symbol = $1
		ORDER BY timestamp_ms ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("get transfers by symbol: %w", err)
	}
	defer rows.Close()

	return scanTransfers(rows)
}

// scanTransfers scans multiple rows into a slice of Transfer.
func scanTransfers(rows pgx.Rows) ([]*domain.Transfer, error) {
	var transfers []*domain.Transfer

	for rows.Next() {
		var t domain.Transfer
		err := rows.Scan(&t.Symbol, &t.From, &t.To, &t.Value, &t.TimestampMs, &t.TxHash)
		if err != nil {
			return nil, fmt.Errorf("scan transfer row: %w", err)
		}
		transfers = append(transfers, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfer rows: %w", err)
	}
	return transfers, nil
}
