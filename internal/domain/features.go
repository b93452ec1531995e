package domain

// PriceMatrix is a time-indexed price table.
// Rows are timestamps in ascending order, columns are symbols in ascending
// order. Cells without an observation hold NaN.
type PriceMatrix struct {
	Timestamps []int64
	Symbols    []string
	Prices     [][]float64 // Prices[row][col]
}

// Column returns the index of symbol in Symbols, or -1.
func (m *PriceMatrix) Column(symbol string) int {
	for i, s := range m.Symbols {
		if s == symbol {
			return i
		}
	}
	return -1
}
