package storage

import (
	"context"

	"rwa-portfolio-lab/internal/domain"
)

// PriceStore provides access to one price series table (spot or history).
type PriceStore interface {
	// InsertBulk adds multiple points. Fails entire batch on duplicate (symbol, timestamp_ms).
	InsertBulk(ctx context.Context, points []*domain.PricePoint) error

	// GetAll retrieves every point, ordered by timestamp ASC then symbol ASC.
	GetAll(ctx context.Context) ([]*domain.PricePoint, error)

	// GetBySymbol retrieves all points for a symbol, ordered by timestamp ASC.
	GetBySymbol(ctx context.Context, symbol string) ([]*domain.PricePoint, error)

	// GetByTimeRange retrieves all points within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.PricePoint, error)
}

// APYStore provides access to the APY table.
type APYStore interface {
	// InsertBulk adds multiple points. Fails entire batch on duplicate (symbol, timestamp_ms).
	InsertBulk(ctx context.Context, points []*domain.APYPoint) error

	// GetAll retrieves every point, ordered by symbol ASC then timestamp ASC.
	GetAll(ctx context.Context) ([]*domain.APYPoint, error)
}

// SupplyStore provides access to the token supply table.
type SupplyStore interface {
	// InsertBulk adds multiple points. Fails entire batch on duplicate (symbol, timestamp_ms).
	InsertBulk(ctx context.Context, points []*domain.SupplyPoint) error

	// GetAll retrieves every point, ordered by symbol ASC then timestamp ASC.
	GetAll(ctx context.Context) ([]*domain.SupplyPoint, error)
}

// TransferStore provides access to the transfer ledger.
type TransferStore interface {
	// InsertBulk adds multiple transfers. Transfers carrying a txhash are keyed
	// by (symbol, txhash, from, to); a repeated key fails the entire batch.
	InsertBulk(ctx context.Context, transfers []*domain.Transfer) error

	// GetAll retrieves every transfer, ordered by timestamp ASC.
	GetAll(ctx context.Context) ([]*domain.Transfer, error)

	// GetBySymbol retrieves all transfers of a symbol, ordered by timestamp ASC.
	GetBySymbol(ctx context.Context, symbol string) ([]*domain.Transfer, error)
}

// Source loads the input tables of one training run.
type Source interface {
	LoadTables(ctx context.Context) (*domain.Tables, error)
}
