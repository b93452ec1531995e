package features

import (
	"errors"
	"math"
	"testing"

	"rwa-portfolio-lab/internal/domain"
)

func TestPivotPrices_SortedWithGaps(t *testing.T) {
	points := []*domain.PricePoint{
		{Symbol: "OUSG", TimestampMs: 2000, PriceUSD: 101},
		{Symbol: "BUIDL", TimestampMs: 1000, PriceUSD: 1},
		{Symbol: "OUSG", TimestampMs: 1000, PriceUSD: 100},
		{Symbol: "BUIDL", TimestampMs: 3000, PriceUSD: 1.01},
	}

	m, err := PivotPrices(points)
	if err != nil {
		t.Fatalf("PivotPrices: %v", err)
	}

	if len(m.Timestamps) != 3 || m.Timestamps[0] != 1000 || m.Timestamps[2] != 3000 {
		t.Fatalf("Expected timestamps [1000 2000 3000], got %v", m.Timestamps)
	}
	if len(m.Symbols) != 2 || m.Symbols[0] != "BUIDL" || m.Symbols[1] != "OUSG" {
		t.Fatalf("Expected symbols [BUIDL OUSG], got %v", m.Symbols)
	}

	buidl := m.Column("BUIDL")
	if !math.IsNaN(m.Prices[1][buidl]) {
		t.Errorf("Expected gap for BUIDL at 2000, got %v", m.Prices[1][buidl])
	}
	if !math.IsNaN(m.Prices[2][m.Column("OUSG")]) {
		t.Errorf("Expected gap for OUSG at 3000")
	}
	if m.Prices[0][m.Column("OUSG")] != 100 {
		t.Errorf("Expected OUSG 100 at 1000, got %v", m.Prices[0][m.Column("OUSG")])
	}
}

func TestPivotPrices_DuplicateCell(t *testing.T) {
	points := []*domain.PricePoint{
		{Symbol: "OUSG", TimestampMs: 1000, PriceUSD: 100},
		{Symbol: "OUSG", TimestampMs: 1000, PriceUSD: 100.5},
	}

	_, err := PivotPrices(points)
	if !errors.Is(err, domain.ErrData) {
		t.Fatalf("Expected ErrData for duplicate cell, got %v", err)
	}
}

func TestPivotPrices_Empty(t *testing.T) {
	m, err := PivotPrices(nil)
	if err != nil {
		t.Fatalf("PivotPrices: %v", err)
	}
	if len(m.Timestamps) != 0 || len(m.Symbols) != 0 {
		t.Errorf("Expected empty matrix, got %d x %d", len(m.Timestamps), len(m.Symbols))
	}
}
