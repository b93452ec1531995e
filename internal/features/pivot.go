// Package features derives per-asset statistical features from price
// history and the transfer ledger.
package features

import (
	"math"
	"sort"

	"rwa-portfolio-lab/internal/domain"
)

// PivotPrices turns long-format price points into a PriceMatrix.
// Timestamps and symbols are sorted ascending. A repeated
// (timestamp, symbol) pair is a DataError since the cell would be ambiguous.
func PivotPrices(points []*domain.PricePoint) (*domain.PriceMatrix, error) {
	type cellKey struct {
		ts     int64
		symbol string
	}

	cells := make(map[cellKey]float64, len(points))
	tsSet := make(map[int64]struct{})
	symSet := make(map[string]struct{})

	for _, p := range points {
		if p == nil {
			continue
		}
		if p.Symbol == "" {
			return nil, domain.DataErrorf("pivot", "price point at %d has no symbol", p.TimestampMs)
		}
		k := cellKey{p.TimestampMs, p.Symbol}
		if _, dup := cells[k]; dup {
			return nil, domain.DataErrorf("pivot", "duplicate price for %s at %d", p.Symbol, p.TimestampMs)
		}
		cells[k] = p.PriceUSD
		tsSet[p.TimestampMs] = struct{}{}
		symSet[p.Symbol] = struct{}{}
	}

	m := &domain.PriceMatrix{
		Timestamps: make([]int64, 0, len(tsSet)),
		Symbols:    make([]string, 0, len(symSet)),
	}
	for ts := range tsSet {
		m.Timestamps = append(m.Timestamps, ts)
	}
	sort.Slice(m.Timestamps, func(i, j int) bool { return m.Timestamps[i] < m.Timestamps[j] })
	for s := range symSet {
		m.Symbols = append(m.Symbols, s)
	}
	sort.Strings(m.Symbols)

	m.Prices = make([][]float64, len(m.Timestamps))
	for r, ts := range m.Timestamps {
		row := make([]float64, len(m.Symbols))
		for c, sym := range m.Symbols {
			if v, ok := cells[cellKey{ts, sym}]; ok {
				row[c] = v
			} else {
				row[c] = math.NaN()
			}
		}
		m.Prices[r] = row
	}

	return m, nil
}
