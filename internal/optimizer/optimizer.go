// Package optimizer solves the long-only allocation problem
//
//	maximize   w·mu + lw·(w·liq) - rt·sqrt(wᵀΣw)
//	subject to sum(w) = 1, min ≤ w_i ≤ 1
//
// with Σ diagonal (Σ_ii = risk_i²). The constraints are removed by the
// substitution w = min + (1 - n·min)·softmax(z), which maps every z onto
// the feasible set, and the resulting smooth problem is minimized with gonum
// (BFGS, Nelder-Mead fallback).
package optimizer

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/optimize"

	"rwa-portfolio-lab/internal/domain"
	"rwa-portfolio-lab/internal/observability"
)

// Solver defaults.
const (
	DefaultMaxIterations = 1000
	DefaultTimeout       = 5 * time.Second
)

// Asset is one optimizer input row.
type Asset struct {
	Symbol    string
	Return    float64 // mu
	Liquidity float64
	Risk      float64 // standard deviation
}

// Params configures one solve.
type Params struct {
	AmountToInvest  float64
	RiskTolerance   float64
	LiquidityWeight float64
	MinAllocation   float64
	MaxIterations   int           // 0 means DefaultMaxIterations
	Timeout         time.Duration // 0 means DefaultTimeout
}

// Solution is a successful allocation. Slices are in input asset order.
type Solution struct {
	Symbols     []string
	Weights     []float64
	Percentages []float64
	Amounts     []decimal.Decimal // AmountToInvest·w, rounded to cents
	Objective   float64           // U(w) at the solution
	Status      string
	Iterations  int
}

// Portfolio returns symbol -> percentage.
func (s *Solution) Portfolio() map[string]float64 {
	out := make(map[string]float64, len(s.Symbols))
	for i, sym := range s.Symbols {
		out[sym] = s.Percentages[i]
	}
	return out
}

// AmountMap returns symbol -> invested amount.
func (s *Solution) AmountMap() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(s.Symbols))
	for i, sym := range s.Symbols {
		out[sym] = s.Amounts[i]
	}
	return out
}

// Optimizer runs single-shot solves. It holds no per-request state.
type Optimizer struct {
	logger zerolog.Logger
}

// New creates an Optimizer.
func New(logger zerolog.Logger) *Optimizer {
	return &Optimizer{logger: logger.With().Str("component", "optimizer").Logger()}
}

// Optimize solves for the weights of assets.
//
// Errors: InputError (no assets, invalid or infeasible parameters; no solve is
// attempted) or ConvergenceError (solver stopped without success). A failed
// call never returns a partial allocation.
func (o *Optimizer) Optimize(ctx context.Context, assets []Asset, p Params) (*Solution, error) {
	start := time.Now()
	sol, err := o.solve(ctx, assets, p)
	elapsed := time.Since(start)

	if err != nil {
		iters := 0
		var ce *domain.ConvergenceError
		if errors.As(err, &ce) {
			iters = ce.Iterations
		}
		observability.RecordOptimization(statusLabel(err), elapsed.Seconds(), iters)
		o.logger.Warn().Err(err).Int("assets", len(assets)).Msg("optimization failed")
		return nil, err
	}

	observability.RecordOptimization("success", elapsed.Seconds(), sol.Iterations)
	o.logger.Debug().
		Int("assets", len(assets)).
		Str("status", sol.Status).
		Int("iterations", sol.Iterations).
		Float64("objective", sol.Objective).
		Dur("elapsed", elapsed).
		Msg("optimization solved")
	return sol, nil
}

func (o *Optimizer) solve(ctx context.Context, assets []Asset, p Params) (*Solution, error) {
	if err := validate(assets, p); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	obj := newObjective(assets, p)
	n := len(assets)

	// n·min == 1 leaves a single feasible point.
	if obj.span <= 1e-12 {
		w := obj.weights(make([]float64, n), make([]float64, n))
		return buildSolution(assets, p, w, obj.utility(w), optimize.Success.String(), 0), nil
	}

	settings := &optimize.Settings{
		GradientThreshold: 1e-9,
		MajorIterations:   p.MaxIterations,
		Runtime:           p.Timeout,
	}
	if settings.MajorIterations <= 0 {
		settings.MajorIterations = DefaultMaxIterations
	}
	if settings.Runtime <= 0 {
		settings.Runtime = DefaultTimeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < settings.Runtime {
			settings.Runtime = remaining
		}
	}

	problem := optimize.Problem{Func: obj.negUtility, Grad: obj.negGradient}
	initial := make([]float64, n) // z = 0 is the uniform allocation

	result, err := optimize.Minimize(problem, initial, settings, &optimize.BFGS{})
	if err != nil || !converged(result) {
		o.logger.Debug().Err(err).Str("status", status(result)).Msg("BFGS did not converge, falling back to Nelder-Mead")
		start := initial
		if result != nil && finite(result.X) {
			start = result.X
		}
		result, err = optimize.Minimize(optimize.Problem{Func: obj.negUtility}, start, settings, &optimize.NelderMead{})
	}

	if err != nil || !converged(result) {
		ce := &domain.ConvergenceError{Status: status(result)}
		if err != nil {
			ce.Message = err.Error()
		}
		if result != nil {
			ce.Iterations = result.Stats.MajorIterations
		}
		return nil, ce
	}

	w := obj.weights(result.X, make([]float64, n))
	u := obj.utility(w)
	if !finite(w) || math.IsNaN(u) || math.IsInf(u, 0) {
		return nil, &domain.ConvergenceError{
			Status:     result.Status.String(),
			Message:    "non-finite solution",
			Iterations: result.Stats.MajorIterations,
		}
	}

	return buildSolution(assets, p, w, u, result.Status.String(), result.Stats.MajorIterations), nil
}

func validate(assets []Asset, p Params) error {
	n := len(assets)
	if n == 0 {
		return domain.InputErrorf("optimize", "no allowed symbols")
	}
	for _, a := range assets {
		for _, v := range []float64{a.Return, a.Liquidity, a.Risk} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return domain.InputErrorf("optimize", "non-finite inputs for %s", a.Symbol)
			}
		}
	}
	switch {
	case math.IsNaN(p.RiskTolerance) || math.IsInf(p.RiskTolerance, 0) || p.RiskTolerance < 0:
		return domain.InputErrorf("optimize", "risk_tolerance must be a finite value >= 0, got %v", p.RiskTolerance)
	case math.IsNaN(p.LiquidityWeight) || math.IsInf(p.LiquidityWeight, 0):
		return domain.InputErrorf("optimize", "liquidity_weight must be finite, got %v", p.LiquidityWeight)
	case math.IsNaN(p.MinAllocation) || p.MinAllocation < 0 || p.MinAllocation > 1:
		return domain.InputErrorf("optimize", "min_allocation must be within [0, 1], got %v", p.MinAllocation)
	case math.IsNaN(p.AmountToInvest) || math.IsInf(p.AmountToInvest, 0) || p.AmountToInvest < 0:
		return domain.InputErrorf("optimize", "amount_to_invest must be a finite value >= 0, got %v", p.AmountToInvest)
	}
	if p.MinAllocation*float64(n) > 1+1e-12 {
		return domain.InputErrorf("optimize", "infeasible: min_allocation %v x %d assets exceeds 1", p.MinAllocation, n)
	}
	return nil
}

func buildSolution(assets []Asset, p Params, w []float64, u float64, status string, iters int) *Solution {
	sol := &Solution{
		Symbols:     make([]string, len(assets)),
		Weights:     w,
		Percentages: make([]float64, len(w)),
		Amounts:     make([]decimal.Decimal, len(w)),
		Objective:   u,
		Status:      status,
		Iterations:  iters,
	}
	amount := decimal.NewFromFloat(p.AmountToInvest)
	for i, a := range assets {
		sol.Symbols[i] = a.Symbol
		sol.Percentages[i] = w[i] * 100
		sol.Amounts[i] = amount.Mul(decimal.NewFromFloat(w[i])).Round(2)
	}
	return sol
}

var successStatuses = map[optimize.Status]bool{
	optimize.Success:             true,
	optimize.GradientThreshold:   true,
	optimize.FunctionConvergence: true,
	optimize.MethodConverge:      true,
}

func converged(r *optimize.Result) bool {
	return r != nil && successStatuses[r.Status] && finite(r.X)
}

func status(r *optimize.Result) string {
	if r == nil {
		return optimize.Failure.String()
	}
	return r.Status.String()
}

func statusLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrInput):
		return "input_error"
	case errors.Is(err, domain.ErrConvergence):
		return "convergence_error"
	default:
		return "error"
	}
}

func finite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return len(x) > 0
}
