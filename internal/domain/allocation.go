package domain

import "github.com/shopspring/decimal"

// Default request parameters.
const (
	DefaultLiquidityWeight = 0.2
	DefaultMinAllocation   = 0.05
)

// OptimizeRequest is one allocation request.
// Nil pointer fields take the defaults above.
type OptimizeRequest struct {
	Symbols         []string `json:"symbols"`
	AmountToInvest  float64  `json:"amount_to_invest"`
	RiskTolerance   float64  `json:"risk_tolerance"`
	LiquidityWeight *float64 `json:"liquidity_weight,omitempty"`
	MinAllocation   *float64 `json:"min_allocation,omitempty"`
}

// LiquidityWeightOrDefault returns the liquidity weight to use.
func (r *OptimizeRequest) LiquidityWeightOrDefault() float64 {
	if r.LiquidityWeight == nil {
		return DefaultLiquidityWeight
	}
	return *r.LiquidityWeight
}

// MinAllocationOrDefault returns the allocation floor to use.
func (r *OptimizeRequest) MinAllocationOrDefault() float64 {
	if r.MinAllocation == nil {
		return DefaultMinAllocation
	}
	return *r.MinAllocation
}

// Allocation is the successful result of one request.
// Portfolio values are percentages summing to 100.
type Allocation struct {
	RequestedSymbols []string                   `json:"requested_symbols"`
	AllowedSymbols   []string                   `json:"allowed_symbols"`
	Portfolio        map[string]float64         `json:"portfolio"`
	Amounts          map[string]decimal.Decimal `json:"amounts"`
	SnapshotID       string                     `json:"snapshot_id"`
}
