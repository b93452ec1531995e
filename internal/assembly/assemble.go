// Package assembly merges the independently sourced per-asset tables
// (spot price, APY, supply, transfer ledger) into one record set keyed by symbol.
package assembly

import (
	"math"
	"sort"

	"rwa-portfolio-lab/internal/domain"
)

// ValidateTables checks the row-level schema of all input tables.
// Every row must carry a symbol; ledger addresses, when present, must be
// recognizable EVM, Hedera or Solana addresses.
func ValidateTables(t domain.Tables) error {
	for i, p := range t.Prices {
		if p == nil || p.Symbol == "" {
			return domain.DataErrorf("validate", "prices row %d has no symbol", i)
		}
		if math.IsInf(p.PriceUSD, 0) {
			return domain.DataErrorf("validate", "prices row %d (%s) has infinite price", i, p.Symbol)
		}
	}
	for i, p := range t.History {
		if p == nil || p.Symbol == "" {
			return domain.DataErrorf("validate", "history row %d has no symbol", i)
		}
		if math.IsInf(p.PriceUSD, 0) {
			return domain.DataErrorf("validate", "history row %d (%s) has infinite price", i, p.Symbol)
		}
	}
	for i, a := range t.APY {
		if a == nil || a.Symbol == "" {
			return domain.DataErrorf("validate", "apy row %d has no symbol", i)
		}
	}
	for i, s := range t.Supply {
		if s == nil || s.Symbol == "" {
			return domain.DataErrorf("validate", "supply row %d has no symbol", i)
		}
	}
	for i, tr := range t.Transfers {
		if tr == nil || tr.Symbol == "" {
			return domain.DataErrorf("validate", "transfers row %d has no symbol", i)
		}
		for _, addr := range []string{tr.From, tr.To} {
			if addr == "" {
				continue
			}
			if _, ok := ClassifyAddress(addr); !ok {
				return domain.DataErrorf("validate", "transfers row %d (%s) has malformed address %q", i, tr.Symbol, addr)
			}
		}
	}
	return nil
}

// Assemble validates the tables and left-joins them on symbol.
//
// The base set is every distinct symbol of the price table; rows are never
// dropped because a partner lacks the symbol. Partner values are taken from
// the latest observation per symbol:
//   - expected_return = apy / 100
//   - total_supply    = total_supply
//   - total_volume    = sum(value), tx_count = count(txhash)
//
// Missing partner values stay nil. Output is sorted by symbol.
func Assemble(t domain.Tables) ([]*domain.AssembledAsset, error) {
	if err := ValidateTables(t); err != nil {
		return nil, err
	}

	latestPrice := latestBySymbol(len(t.Prices), func(i int) (string, int64) {
		return t.Prices[i].Symbol, t.Prices[i].TimestampMs
	})
	latestAPY := latestBySymbol(len(t.APY), func(i int) (string, int64) {
		return t.APY[i].Symbol, t.APY[i].TimestampMs
	})
	latestSupply := latestBySymbol(len(t.Supply), func(i int) (string, int64) {
		return t.Supply[i].Symbol, t.Supply[i].TimestampMs
	})

	var ledger map[string]domain.LedgerStats
	if len(t.Transfers) > 0 {
		ledger = AggregateLedger(t.Transfers)
	}

	symbols := make([]string, 0, len(latestPrice))
	for sym := range latestPrice {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	assets := make([]*domain.AssembledAsset, 0, len(symbols))
	for _, sym := range symbols {
		asset := &domain.AssembledAsset{
			Symbol:   sym,
			PriceUSD: t.Prices[latestPrice[sym]].PriceUSD,
		}
		if idx, ok := latestAPY[sym]; ok {
			expected := t.APY[idx].APY / 100
			asset.ExpectedReturn = &expected
		}
		if idx, ok := latestSupply[sym]; ok {
			supply := t.Supply[idx].TotalSupply
			asset.TotalSupply = &supply
		}
		if stats, ok := ledger[sym]; ok {
			volume, count := stats.TotalVolume, stats.TxCount
			asset.TotalVolume = &volume
			asset.TxCount = &count
		}
		assets = append(assets, asset)
	}

	return assets, nil
}

// latestBySymbol returns, per symbol, the index of the row with the greatest
// timestamp. Ties go to the later row.
func latestBySymbol(n int, row func(i int) (string, int64)) map[string]int {
	latest := make(map[string]int)
	best := make(map[string]int64)
	for i := 0; i < n; i++ {
		sym, ts := row(i)
		if prev, ok := best[sym]; ok && ts < prev {
			continue
		}
		best[sym] = ts
		latest[sym] = i
	}
	return latest
}
