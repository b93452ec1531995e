package domain

// PricePoint is one spot price observation for an asset.
// Corresponds to asset_prices table (ClickHouse) and prices.csv.
type PricePoint struct {
	Symbol      string  // asset symbol, e.g. PAXG
	TimestampMs int64   // Unix timestamp in milliseconds
	PriceUSD    float64 // spot price in USD
}

// APYPoint is one yield observation for an asset.
// Corresponds to asset_apy table (PostgreSQL) and apy.csv.
type APYPoint struct {
	Symbol      string  // asset symbol
	TimestampMs int64   // Unix timestamp in milliseconds
	APY         float64 // annualized percentage yield, in percent (4.5 = 4.5%)
}

// SupplyPoint is one total supply observation for an asset.
// Corresponds to asset_supply table (PostgreSQL) and total_supply.csv.
type SupplyPoint struct {
	Symbol      string  // asset symbol
	TimestampMs int64   // Unix timestamp in milliseconds
	TotalSupply float64 // circulating token supply
}

// Tables groups the already-loaded input tables of one training run.
type Tables struct {
	Prices    []*PricePoint  // primary table, anchors every join
	History   []*PricePoint  // optional price history for return statistics
	APY       []*APYPoint    // optional partner
	Supply    []*SupplyPoint // optional partner
	Transfers []*Transfer    // optional ledger
}

// PriceHistory returns the series used for return statistics: History when
// present, otherwise Prices.
func (t *Tables) PriceHistory() []*PricePoint {
	if len(t.History) > 0 {
		return t.History
	}
	return t.Prices
}
