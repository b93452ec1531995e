package model

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"rwa-portfolio-lab/internal/domain"
	"rwa-portfolio-lab/internal/observability"
)

// Target names of the three regressors.
const (
	TargetReturn    = "return"
	TargetLiquidity = "liquidity"
	TargetRisk      = "risk"
)

// minTrainingRecords is the smallest record set a forest can be trained on.
const minTrainingRecords = 2

// Config configures forest training.
type Config struct {
	Estimators int    `yaml:"estimators" env:"MODEL_ESTIMATORS"`
	Seed       uint64 `yaml:"seed" env:"MODEL_SEED"`
}

// DefaultConfig returns the default training configuration.
func DefaultConfig() Config {
	return Config{Estimators: DefaultEstimators, Seed: DefaultSeed}
}

// Bank trains the return, liquidity and risk models and holds the most
// recent fitted snapshot. Safe for concurrent use.
type Bank struct {
	cfg     Config
	logger  zerolog.Logger
	current atomic.Pointer[Snapshot]
}

// NewBank creates a bank with no snapshot.
func NewBank(cfg Config, logger zerolog.Logger) *Bank {
	if cfg.Estimators <= 0 {
		cfg.Estimators = DefaultEstimators
	}
	return &Bank{cfg: cfg, logger: logger.With().Str("component", "model").Logger()}
}

// Current returns the latest snapshot, or nil before the first training.
func (b *Bank) Current() *Snapshot {
	return b.current.Load()
}

// Train fits the scaler and the three forests on records, writes in-sample
// predictions into a copy of each record and swaps the cached snapshot.
//
// Targets: expected_return (return), total_volume (liquidity) and
// hist_volatility (risk). The liquidity and risk targets are also among the
// inputs. The input records are not modified.
func (b *Bank) Train(ctx context.Context, records []*domain.AssetRecord) (*Snapshot, error) {
	start := time.Now()
	snap, err := b.train(ctx, records)
	elapsed := time.Since(start)

	if err != nil {
		observability.RecordTraining("error", elapsed.Seconds(), len(records))
		b.logger.Error().Err(err).Int("records", len(records)).Msg("training failed")
		return nil, err
	}

	b.current.Store(snap)
	observability.RecordTraining("success", elapsed.Seconds(), len(records))
	observability.UpdateLastTraining(snap.TrainedAt.Unix())
	b.logger.Info().
		Str("snapshot", snap.ID).
		Int("records", len(records)).
		Int("estimators", b.cfg.Estimators).
		Dur("elapsed", elapsed).
		Msg("models trained")
	return snap, nil
}

func (b *Bank) train(ctx context.Context, records []*domain.AssetRecord) (*Snapshot, error) {
	if len(records) < minTrainingRecords {
		return nil, domain.ModelErrorf("train", "need at least %d records, got %d", minTrainingRecords, len(records))
	}

	raw := make([][]float64, len(records))
	yReturn := make([]float64, len(records))
	yLiquidity := make([]float64, len(records))
	yRisk := make([]float64, len(records))
	for i, r := range records {
		if r == nil {
			return nil, domain.ModelErrorf("train", "record %d is nil", i)
		}
		raw[i] = r.FeatureVector()
		yReturn[i] = r.ExpectedReturn
		yLiquidity[i] = r.TotalVolume
		yRisk[i] = r.HistVolatility
	}

	scaler := FitScaler(raw)
	x := scaler.TransformAll(raw)

	models := map[string]*Forest{
		TargetReturn:    NewForest(b.cfg.Estimators, b.cfg.Seed),
		TargetLiquidity: NewForest(b.cfg.Estimators, b.cfg.Seed),
		TargetRisk:      NewForest(b.cfg.Estimators, b.cfg.Seed),
	}
	targets := map[string][]float64{
		TargetReturn:    yReturn,
		TargetLiquidity: yLiquidity,
		TargetRisk:      yRisk,
	}

	g, gctx := errgroup.WithContext(ctx)
	for name, forest := range models {
		g.Go(func() error {
			start := time.Now()
			if err := forest.Fit(gctx, x, targets[name]); err != nil {
				return fmt.Errorf("%s model: %w", name, err)
			}
			observability.RecordForestFit(name, time.Since(start).Seconds())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &domain.Error{Kind: domain.ErrModel, Op: "train", Err: err}
	}

	snap := &Snapshot{
		ID:        uuid.NewString(),
		TrainedAt: time.Now().UTC(),
		scaler:    scaler,
		models:    models,
		records:   make([]*domain.AssetRecord, len(records)),
		index:     make(map[string]int, len(records)),
	}
	for i, r := range records {
		out := *r
		pred, err := snap.predictScaled(x[i])
		if err != nil {
			return nil, &domain.Error{Kind: domain.ErrModel, Op: "train", Err: err}
		}
		out.PredReturn = pred.PredReturn
		out.PredLiquidity = pred.PredLiquidity
		out.PredRisk = pred.PredRisk
		snap.records[i] = &out
		snap.index[r.Symbol] = i
	}
	return snap, nil
}
