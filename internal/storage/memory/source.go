package memory

import (
	"context"
	"fmt"

	"rwa-portfolio-lab/internal/domain"
	"rwa-portfolio-lab/internal/storage"
)

// NewSource returns a storage.StoreSource over fresh in-memory stores
// seeded with t.
func NewSource(ctx context.Context, t *domain.Tables) (*storage.StoreSource, error) {
	src := &storage.StoreSource{
		Name:      "memory",
		Prices:    NewPriceStore(),
		History:   NewPriceStore(),
		APY:       NewAPYStore(),
		Supply:    NewSupplyStore(),
		Transfers: NewTransferStore(),
	}
	if t == nil {
		return src, nil
	}
	if err := storage.Import(ctx, src, t); err != nil {
		return nil, fmt.Errorf("seed memory source: %w", err)
	}
	return src, nil
}
