package optimizer

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// objective evaluates the allocation utility in softmax coordinates.
type objective struct {
	mu       []float64
	liq      []float64
	variance []float64 // risk_i²
	rt       float64
	lw       float64
	floor    float64 // min allocation
	span     float64 // 1 - n·floor
}

func newObjective(assets []Asset, p Params) *objective {
	n := len(assets)
	o := &objective{
		mu:       make([]float64, n),
		liq:      make([]float64, n),
		variance: make([]float64, n),
		rt:       p.RiskTolerance,
		lw:       p.LiquidityWeight,
		floor:    p.MinAllocation,
		span:     1 - float64(n)*p.MinAllocation,
	}
	if o.span < 0 {
		o.span = 0
	}
	for i, a := range assets {
		o.mu[i] = a.Return
		o.liq[i] = a.Liquidity
		o.variance[i] = a.Risk * a.Risk
	}
	return o
}

// softmax writes the numerically stable softmax of z into dst.
func softmax(dst, z []float64) []float64 {
	m := floats.Max(z)
	for i, v := range z {
		dst[i] = math.Exp(v - m)
	}
	floats.Scale(1/floats.Sum(dst), dst)
	return dst
}

// weights maps z onto the feasible set: w = floor + span·softmax(z).
func (o *objective) weights(z, dst []float64) []float64 {
	softmax(dst, z)
	for i := range dst {
		dst[i] = o.floor + o.span*dst[i]
	}
	return dst
}

// portfolioRisk returns sqrt(wᵀΣw) for diagonal Σ.
func (o *objective) portfolioRisk(w []float64) float64 {
	var v float64
	for i, wi := range w {
		v += wi * wi * o.variance[i]
	}
	return math.Sqrt(v)
}

// utility is U(w), the quantity being maximized.
func (o *objective) utility(w []float64) float64 {
	return floats.Dot(w, o.mu) + o.lw*floats.Dot(w, o.liq) - o.rt*o.portfolioRisk(w)
}

func (o *objective) negUtility(z []float64) float64 {
	w := o.weights(z, make([]float64, len(z)))
	return -o.utility(w)
}

// negGradient is d(-U)/dz through the softmax Jacobian:
// dw_i/dz_j = span·s_i·(δ_ij - s_j).
func (o *objective) negGradient(grad, z []float64) {
	n := len(z)
	s := softmax(make([]float64, n), z)
	w := make([]float64, n)
	for i := range w {
		w[i] = o.floor + o.span*s[i]
	}

	sigma := o.portfolioRisk(w)
	gw := make([]float64, n) // d(-U)/dw
	for i := range gw {
		g := o.mu[i] + o.lw*o.liq[i]
		if sigma > 0 {
			g -= o.rt * w[i] * o.variance[i] / sigma
		}
		gw[i] = -g
	}

	avg := floats.Dot(gw, s)
	for j := range grad {
		grad[j] = o.span * s[j] * (gw[j] - avg)
	}
}
