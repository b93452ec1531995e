package storage

import (
	"context"
	"fmt"

	"rwa-portfolio-lab/internal/domain"
)

// Import writes loaded tables into the stores of dst, one table per store.
// History rows require dst.History. A nil dst.Transfers skips the ledger.
func Import(ctx context.Context, dst *StoreSource, t *domain.Tables) error {
	if dst.Prices == nil || dst.APY == nil || dst.Supply == nil {
		return fmt.Errorf("import: %w: price, apy and supply stores are required", ErrInvalidInput)
	}
	if len(t.History) > 0 && dst.History == nil {
		return fmt.Errorf("import: %w: %d history rows but no history store", ErrInvalidInput, len(t.History))
	}

	if err := dst.Prices.InsertBulk(ctx, t.Prices); err != nil {
		return fmt.Errorf("import prices: %w", err)
	}
	if dst.History != nil {
		if err := dst.History.InsertBulk(ctx, t.History); err != nil {
			return fmt.Errorf("import history: %w", err)
		}
	}
	if err := dst.APY.InsertBulk(ctx, t.APY); err != nil {
		return fmt.Errorf("import apy: %w", err)
	}
	if err := dst.Supply.InsertBulk(ctx, t.Supply); err != nil {
		return fmt.Errorf("import supply: %w", err)
	}
	if dst.Transfers != nil {
		if err := dst.Transfers.InsertBulk(ctx, t.Transfers); err != nil {
			return fmt.Errorf("import transfers: %w", err)
		}
	}
	return nil
}
