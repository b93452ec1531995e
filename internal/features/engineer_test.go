package features

import (
	"errors"
	"math"
	"testing"

	"rwa-portfolio-lab/internal/domain"
)

func f(v float64) *float64 { return &v }

func priceMatrix(t *testing.T) *domain.PriceMatrix {
	t.Helper()
	m, err := PivotPrices([]*domain.PricePoint{
		{Symbol: "A", TimestampMs: 1, PriceUSD: 100},
		{Symbol: "A", TimestampMs: 2, PriceUSD: 110},
		{Symbol: "A", TimestampMs: 3, PriceUSD: 99},
		{Symbol: "B", TimestampMs: 1, PriceUSD: 1},
	})
	if err != nil {
		t.Fatalf("PivotPrices: %v", err)
	}
	return m
}

func TestEngineer_ExpectedReturnPriority(t *testing.T) {
	assets := []*domain.AssembledAsset{
		{Symbol: "A", PriceUSD: 99, ExpectedReturn: f(0.045)},
		{Symbol: "A2", PriceUSD: 99},
		{Symbol: "B", PriceUSD: 1},
	}
	m := priceMatrix(t)
	// Reuse A's history for A2 by giving it the same column name.
	m.Symbols = append(m.Symbols, "A2")
	for i := range m.Prices {
		m.Prices[i] = append(m.Prices[i], m.Prices[i][m.Column("A")])
	}

	records, err := Engineer(assets, m, nil)
	if err != nil {
		t.Fatalf("Engineer: %v", err)
	}

	if records[0].ExpectedReturn != 0.045 {
		t.Errorf("A: expected table value 0.045, got %v", records[0].ExpectedReturn)
	}

	// returns of A: +0.1, -0.1
	if math.Abs(records[1].ExpectedReturn-records[1].HistReturn) > eps {
		t.Errorf("A2: expected fallback to hist_return %v, got %v", records[1].HistReturn, records[1].ExpectedReturn)
	}
	if math.Abs(records[1].HistReturn-0) > eps {
		t.Errorf("A2: expected hist_return 0, got %v", records[1].HistReturn)
	}
	if records[1].HistVolatility <= 0 {
		t.Errorf("A2: expected positive volatility, got %v", records[1].HistVolatility)
	}

	// B has a single price: no returns, no history
	if records[2].ExpectedReturn != 0 || records[2].HistReturn != 0 || records[2].HistVolatility != 0 {
		t.Errorf("B: expected zeros, got %+v", records[2])
	}
}

func TestEngineer_LedgerOverridesAssembled(t *testing.T) {
	assets := []*domain.AssembledAsset{
		{Symbol: "A", PriceUSD: 1, TotalVolume: f(1), TxCount: f(1)},
		{Symbol: "B", PriceUSD: 1, TotalVolume: f(7), TxCount: f(3)},
	}
	transfers := []*domain.Transfer{
		{Symbol: "A", Value: 10, TxHash: "0x1"},
		{Symbol: "A", Value: 5, TxHash: "0x2"},
	}

	records, err := Engineer(assets, nil, transfers)
	if err != nil {
		t.Fatalf("Engineer: %v", err)
	}

	if records[0].TotalVolume != 15 || records[0].TxCount != 2 {
		t.Errorf("A: expected ledger (15, 2), got (%v, %v)", records[0].TotalVolume, records[0].TxCount)
	}
	if records[1].TotalVolume != 7 || records[1].TxCount != 3 {
		t.Errorf("B: expected assembled (7, 3), got (%v, %v)", records[1].TotalVolume, records[1].TxCount)
	}
}

func TestEngineer_NoGapsRemain(t *testing.T) {
	assets := []*domain.AssembledAsset{
		{Symbol: "A", PriceUSD: math.NaN(), ExpectedReturn: f(math.NaN()), TotalSupply: f(math.NaN())},
		{Symbol: "Z", PriceUSD: 2},
	}

	records, err := Engineer(assets, priceMatrix(t), nil)
	if err != nil {
		t.Fatalf("Engineer: %v", err)
	}

	if err := CheckFinite(records); err != nil {
		t.Fatalf("Expected no gaps, got %v", err)
	}
	if records[0].PriceUSD != 0 || records[0].TotalSupply != 0 {
		t.Errorf("Expected gaps filled with 0, got %+v", records[0])
	}
	// NaN table value falls back to history
	if math.Abs(records[0].ExpectedReturn-records[0].HistReturn) > eps {
		t.Errorf("Expected hist_return fallback, got %v", records[0].ExpectedReturn)
	}
}

func TestEngineer_InfiniteValue(t *testing.T) {
	assets := []*domain.AssembledAsset{
		{Symbol: "A", PriceUSD: 1, TotalSupply: f(math.Inf(1))},
	}

	_, err := Engineer(assets, nil, nil)
	if !errors.Is(err, domain.ErrData) {
		t.Fatalf("Expected ErrData, got %v", err)
	}
}

func TestEngineer_PreservesOrder(t *testing.T) {
	assets := []*domain.AssembledAsset{
		{Symbol: "C", PriceUSD: 1},
		{Symbol: "A", PriceUSD: 1},
	}

	records, err := Engineer(assets, nil, nil)
	if err != nil {
		t.Fatalf("Engineer: %v", err)
	}
	if records[0].Symbol != "C" || records[1].Symbol != "A" {
		t.Errorf("Expected input order, got %s, %s", records[0].Symbol, records[1].Symbol)
	}
}
