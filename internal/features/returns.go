package features

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"rwa-portfolio-lab/internal/domain"
)

// DailyReturns computes the percentage-change series of every symbol.
//
// Changes are taken between consecutive observed prices in time order, so a
// missing cell neither produces a return nor breaks the series. The first
// change of each series is undefined and dropped. A change from a zero price
// is undefined and skipped.
//
// This differs from pivoting onto the union timeline and dropping every row
// where any symbol is missing: a gap in one symbol never removes another
// symbol's returns, and a gapped symbol's return spans the gap.
func DailyReturns(m *domain.PriceMatrix) map[string][]float64 {
	returns := make(map[string][]float64, len(m.Symbols))
	for c, sym := range m.Symbols {
		var series []float64
		prev, havePrev := 0.0, false
		for r := range m.Timestamps {
			price := m.Prices[r][c]
			if math.IsNaN(price) || math.IsInf(price, 0) {
				continue
			}
			if havePrev && prev != 0 {
				series = append(series, (price-prev)/prev)
			}
			prev, havePrev = price, true
		}
		returns[sym] = series
	}
	return returns
}

// ReturnStats returns the mean and sample standard deviation (n-1) of a
// return series. Undefined statistics are 0: an empty series has neither,
// a single return has a mean but no deviation.
func ReturnStats(returns []float64) (mean, std float64) {
	switch len(returns) {
	case 0:
		return 0, 0
	case 1:
		return returns[0], 0
	}
	mean, std = stat.MeanStdDev(returns, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return mean, std
}
