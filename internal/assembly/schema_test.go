package assembly

import (
	"errors"
	"testing"

	"rwa-portfolio-lab/internal/domain"
)

func TestSchemaResolve_CanonicalHeader(t *testing.T) {
	cols, err := PriceSchema.Resolve([]string{"timestamp", "symbol", "price_usd"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if cols["symbol"] != 1 || cols["timestamp"] != 0 || cols["price_usd"] != 2 {
		t.Errorf("unexpected column mapping: %v", cols)
	}
}

func TestSchemaResolve_HistoricalAliases(t *testing.T) {
	// Header layout of historical_rwa_prices.csv.
	cols, err := PriceSchema.Resolve([]string{"\ufeffDate", "Symbol", "Price_USD"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if cols["timestamp"] != 0 || cols["symbol"] != 1 || cols["price_usd"] != 2 {
		t.Errorf("unexpected column mapping: %v", cols)
	}
}

func TestSchemaResolve_MissingSymbol(t *testing.T) {
	_, err := PriceSchema.Resolve([]string{"timestamp", "price_usd"})
	if !errors.Is(err, domain.ErrData) {
		t.Errorf("expected ErrData, got %v", err)
	}
}

func TestSchemaResolve_OptionalColumnsDefaultToAbsent(t *testing.T) {
	cols, err := TransferSchema.Resolve([]string{"symbol", "value"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	for _, name := range []string{"from", "to", "timestamp", "txhash"} {
		if cols.Has(name) {
			t.Errorf("expected optional column %s to be absent", name)
		}
	}
}

func TestSchemaResolve_DuplicateColumn(t *testing.T) {
	_, err := APYSchema.Resolve([]string{"symbol", "apy", "APY"})
	if !errors.Is(err, domain.ErrData) {
		t.Errorf("expected ErrData for duplicate column, got %v", err)
	}
}
