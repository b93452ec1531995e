package optimizer

import "rwa-portfolio-lab/internal/domain"

// AssetsFromRecords maps trained records to optimizer inputs
// (mu = pred_return, liquidity = pred_liquidity, risk = pred_risk).
func AssetsFromRecords(records []*domain.AssetRecord) []Asset {
	out := make([]Asset, len(records))
	for i, r := range records {
		out[i] = Asset{
			Symbol:    r.Symbol,
			Return:    r.PredReturn,
			Liquidity: r.PredLiquidity,
			Risk:      r.PredRisk,
		}
	}
	return out
}
