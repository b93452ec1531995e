package domain

// AssembledAsset is one per-symbol row after joining the input tables.
// Join-partner fields stay nil when the partner has no row for the symbol,
// so absence remains observable until features are resolved.
type AssembledAsset struct {
	Symbol         string
	PriceUSD       float64  // latest spot price from the primary table
	ExpectedReturn *float64 // latest APY / 100, nil without APY data
	TotalSupply    *float64 // latest supply, nil without supply data
	TotalVolume    *float64 // ledger sum(value), nil without transfers
	TxCount        *float64 // ledger count(txhash), nil without transfers
}

// AssetRecord is the fully resolved per-symbol row fed to the models.
// Every numeric field is finite; gaps are 0.
type AssetRecord struct {
	Symbol         string
	PriceUSD       float64
	ExpectedReturn float64
	HistReturn     float64
	HistVolatility float64
	TotalSupply    float64
	TotalVolume    float64
	TxCount        float64

	// Populated by model training.
	PredReturn    float64
	PredLiquidity float64
	PredRisk      float64
}

// FeatureNames lists the model inputs in the order of FeatureVector.
var FeatureNames = []string{"hist_return", "hist_volatility", "total_supply", "total_volume", "tx_count"}

// FeatureVector returns the model inputs of the record in FeatureNames order.
func (r *AssetRecord) FeatureVector() []float64 {
	return []float64{r.HistReturn, r.HistVolatility, r.TotalSupply, r.TotalVolume, r.TxCount}
}

// Prediction is the model output for one symbol.
type Prediction struct {
	Symbol        string  `json:"symbol"`
	PredReturn    float64 `json:"pred_return"`
	PredLiquidity float64 `json:"pred_liquidity"`
	PredRisk      float64 `json:"pred_risk"`
}

// Prediction returns the model outputs stored on the record.
func (r *AssetRecord) Prediction() Prediction {
	return Prediction{
		Symbol:        r.Symbol,
		PredReturn:    r.PredReturn,
		PredLiquidity: r.PredLiquidity,
		PredRisk:      r.PredRisk,
	}
}
