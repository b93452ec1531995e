package model

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
)

// Forest defaults.
const (
	DefaultEstimators = 100
	DefaultSeed       = 42
)

// ErrNotFitted is returned when predicting with an unfitted forest.
var ErrNotFitted = errors.New("forest not fitted")

// Forest is a bagged ensemble of regression trees.
// Fitting is deterministic for identical inputs and Seed.
type Forest struct {
	Estimators int
	Seed       uint64

	trees []*Tree
}

// NewForest creates a forest; non-positive estimators take the default.
func NewForest(estimators int, seed uint64) *Forest {
	if estimators <= 0 {
		estimators = DefaultEstimators
	}
	return &Forest{Estimators: estimators, Seed: seed}
}

// Fit trains every tree on its own bootstrap sample of (x, y).
// Per-tree seeds are drawn from a generator seeded with Seed.
func (f *Forest) Fit(ctx context.Context, x [][]float64, y []float64) error {
	if len(x) == 0 {
		return fmt.Errorf("fit forest: no samples")
	}
	if len(x) != len(y) {
		return fmt.Errorf("fit forest: %d rows, %d targets", len(x), len(y))
	}

	master := rand.New(rand.NewPCG(f.Seed, f.Seed^0x9e3779b97f4a7c15))
	trees := make([]*Tree, 0, f.Estimators)
	for i := 0; i < f.Estimators; i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("fit forest: %w", err)
		}
		rng := rand.New(rand.NewPCG(master.Uint64(), master.Uint64()))
		trees = append(trees, fitTree(x, y, bootstrap(rng, len(x))))
	}
	f.trees = trees
	return nil
}

// Predict averages the tree outputs for one row.
func (f *Forest) Predict(row []float64) (float64, error) {
	if len(f.trees) == 0 {
		return 0, ErrNotFitted
	}
	var sum float64
	for _, t := range f.trees {
		sum += t.Predict(row)
	}
	return sum / float64(len(f.trees)), nil
}

// Trees returns the number of fitted trees.
func (f *Forest) Trees() int {
	return len(f.trees)
}
