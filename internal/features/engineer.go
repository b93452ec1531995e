package features

import (
	"math"

	"rwa-portfolio-lab/internal/assembly"
	"rwa-portfolio-lab/internal/domain"
)

// Engineer resolves assembled assets into model-ready records.
//
// Steps:
//  1. hist_return / hist_volatility from the daily return series of the
//     symbol; symbols absent from the matrix get 0.
//  2. total_volume / tx_count from the ledger; when the ledger has no rows
//     for a symbol the assembler's values are kept, otherwise 0.
//  3. expected_return = table value if present, else hist_return, else 0.
//  4. remaining gaps become 0.
//
// matrix and transfers may be nil. An infinite value anywhere is a DataError.
func Engineer(assets []*domain.AssembledAsset, matrix *domain.PriceMatrix, transfers []*domain.Transfer) ([]*domain.AssetRecord, error) {
	type histStats struct{ mean, std float64 }
	hist := make(map[string]histStats)
	if matrix != nil {
		for sym, series := range DailyReturns(matrix) {
			if len(series) == 0 {
				continue
			}
			mean, std := ReturnStats(series)
			hist[sym] = histStats{mean, std}
		}
	}

	var ledger map[string]domain.LedgerStats
	if len(transfers) > 0 {
		ledger = assembly.AggregateLedger(transfers)
	}

	records := make([]*domain.AssetRecord, 0, len(assets))
	for _, a := range assets {
		rec := &domain.AssetRecord{
			Symbol:      a.Symbol,
			PriceUSD:    a.PriceUSD,
			TotalSupply: valueOr(a.TotalSupply, 0),
		}

		h, hasHist := hist[a.Symbol]
		rec.HistReturn = h.mean
		rec.HistVolatility = h.std

		if stats, ok := ledger[a.Symbol]; ok {
			rec.TotalVolume = stats.TotalVolume
			rec.TxCount = stats.TxCount
		} else {
			rec.TotalVolume = valueOr(a.TotalVolume, 0)
			rec.TxCount = valueOr(a.TxCount, 0)
		}

		switch {
		case a.ExpectedReturn != nil && !math.IsNaN(*a.ExpectedReturn):
			rec.ExpectedReturn = *a.ExpectedReturn
		case hasHist:
			rec.ExpectedReturn = h.mean
		default:
			rec.ExpectedReturn = 0
		}

		fillGaps(rec)
		records = append(records, rec)
	}

	if err := CheckFinite(records); err != nil {
		return nil, err
	}
	return records, nil
}

var recordFields = []string{
	"price_usd", "expected_return", "hist_return", "hist_volatility",
	"total_supply", "total_volume", "tx_count",
}

// CheckFinite returns a DataError if any numeric field of any record is NaN or infinite.
func CheckFinite(records []*domain.AssetRecord) error {
	for _, r := range records {
		for i, v := range []float64{
			r.PriceUSD, r.ExpectedReturn, r.HistReturn, r.HistVolatility,
			r.TotalSupply, r.TotalVolume, r.TxCount,
		} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return domain.DataErrorf("features", "%s of %s is not finite (%v)", recordFields[i], r.Symbol, v)
			}
		}
	}
	return nil
}

func valueOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

// fillGaps replaces NaN with 0. Infinite values are left for CheckFinite.
func fillGaps(r *domain.AssetRecord) {
	for _, f := range []*float64{
		&r.PriceUSD, &r.ExpectedReturn, &r.HistReturn, &r.HistVolatility,
		&r.TotalSupply, &r.TotalVolume, &r.TxCount,
	} {
		if math.IsNaN(*f) {
			*f = 0
		}
	}
}
