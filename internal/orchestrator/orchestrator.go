// Package orchestrator runs the allocation pipeline end to end.
// It coordinates: load tables → assemble → engineer → train → optimize
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"rwa-portfolio-lab/internal/assembly"
	"rwa-portfolio-lab/internal/domain"
	"rwa-portfolio-lab/internal/features"
	"rwa-portfolio-lab/internal/model"
	"rwa-portfolio-lab/internal/optimizer"
	"rwa-portfolio-lab/internal/storage"
)

// ErrUnknownSymbols marks an InputError raised because none of the requested
// symbols is in the trained population.
var ErrUnknownSymbols = errors.New("no requested symbol is known")

// ErrNoSource is returned when training is requested without a table source.
var ErrNoSource = errors.New("orchestrator has no source")

var tracer = otel.Tracer("rwa-portfolio-lab/orchestrator")

// DefaultTrainTimeout bounds one training run when Options.TrainTimeout is zero.
const DefaultTrainTimeout = 10 * time.Minute

// Publisher receives every newly trained snapshot.
type Publisher interface {
	Publish(snap *model.Snapshot)
}

// Options for creating Orchestrator.
type Options struct {
	// Required
	Source storage.Source
	Bank   *model.Bank

	// Optional; a default optimizer logging to Logger is created when nil.
	Optimizer *optimizer.Optimizer
	// Optional subscriber notified after each successful training.
	Publisher Publisher

	// Solver limits applied to every request; zero values use the optimizer defaults.
	MaxIterations int
	Timeout       time.Duration

	// RetrainPerRequest rebuilds the model for every Optimize and
	// Predictions call instead of reusing the cached snapshot.
	RetrainPerRequest bool

	// TrainTimeout bounds a training run. The run is shared by every
	// concurrent caller, so it ignores their cancellation.
	TrainTimeout time.Duration

	Logger zerolog.Logger
}

// Orchestrator coordinates training and optimization.
// Concurrent Train calls share a single in-flight run.
type Orchestrator struct {
	source    storage.Source
	bank      *model.Bank
	optimizer *optimizer.Optimizer
	publisher Publisher

	maxIterations     int
	timeout           time.Duration
	retrainPerRequest bool
	trainTimeout      time.Duration

	logger zerolog.Logger
	train  singleflight.Group

	mu     sync.Mutex
	status Status
}

// Status summarizes the most recent training attempt.
type Status struct {
	SnapshotID  string    `json:"snapshot_id,omitempty"`
	TrainedAt   time.Time `json:"trained_at,omitzero"`
	Records     int       `json:"records"`
	Symbols     []string  `json:"symbols"`
	LastAttempt time.Time `json:"last_attempt,omitzero"`
	LastError   string    `json:"last_error,omitempty"`
	TrainCount  int       `json:"train_count"`
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	logger := opts.Logger.With().Str("component", "orchestrator").Logger()
	opt := opts.Optimizer
	if opt == nil {
		opt = optimizer.New(opts.Logger)
	}
	trainTimeout := opts.TrainTimeout
	if trainTimeout <= 0 {
		trainTimeout = DefaultTrainTimeout
	}
	return &Orchestrator{
		source:            opts.Source,
		bank:              opts.Bank,
		optimizer:         opt,
		publisher:         opts.Publisher,
		maxIterations:     opts.MaxIterations,
		timeout:           opts.Timeout,
		retrainPerRequest: opts.RetrainPerRequest,
		trainTimeout:      trainTimeout,
		logger:            logger,
	}
}

// Train loads the tables, rebuilds the feature records and swaps in a new
// model snapshot. On failure the previous snapshot stays in place.
//
// Concurrent callers share one run. A caller whose ctx ends stops waiting
// and gets ctx.Err(); the run continues for the others, bounded by the
// train timeout.
func (o *Orchestrator) Train(ctx context.Context) (*model.Snapshot, error) {
	ch := o.train.DoChan("train", func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.trainTimeout)
		defer cancel()
		return o.runTraining(runCtx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			o.logger.Debug().Msg("joined in-flight training")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.Snapshot), nil
	}
}

func (o *Orchestrator) runTraining(ctx context.Context) (snap *model.Snapshot, err error) {
	ctx, span := tracer.Start(ctx, "orchestrator.Train")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		o.recordAttempt(snap, err)
	}()

	if o.source == nil || o.bank == nil {
		return nil, ErrNoSource
	}

	start := time.Now()
	tables, err := o.source.LoadTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tables: %w", err)
	}
	span.SetAttributes(
		attribute.Int("tables.prices", len(tables.Prices)),
		attribute.Int("tables.history", len(tables.History)),
		attribute.Int("tables.transfers", len(tables.Transfers)),
	)

	records, err := BuildRecords(tables)
	if err != nil {
		return nil, err
	}

	snap, err = o.bank.Train(ctx, records)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("snapshot.id", snap.ID), attribute.Int("snapshot.records", len(records)))

	if o.publisher != nil {
		o.publisher.Publish(snap)
	}
	o.logger.Info().
		Str("snapshot", snap.ID).
		Int("records", len(records)).
		Dur("elapsed", time.Since(start)).
		Msg("training pipeline completed")
	return snap, nil
}

// BuildRecords runs the assembly and feature stages on loaded tables.
func BuildRecords(tables *domain.Tables) ([]*domain.AssetRecord, error) {
	assets, err := assembly.Assemble(*tables)
	if err != nil {
		return nil, err
	}
	matrix, err := features.PivotPrices(tables.PriceHistory())
	if err != nil {
		return nil, err
	}
	return features.Engineer(assets, matrix, tables.Transfers)
}

func (o *Orchestrator) recordAttempt(snap *model.Snapshot, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status.LastAttempt = time.Now().UTC()
	if err != nil {
		o.status.LastError = err.Error()
		return
	}
	o.status.LastError = ""
	o.status.SnapshotID = snap.ID
	o.status.TrainedAt = snap.TrainedAt
	o.status.Symbols = snap.Symbols()
	o.status.Records = len(o.status.Symbols)
	o.status.TrainCount++
}

// Status returns a copy of the training status.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.status
	s.Symbols = append([]string(nil), o.status.Symbols...)
	return s
}

// Snapshot returns the model snapshot requests run against: the cached one,
// or a freshly trained one when none exists or RetrainPerRequest is set.
func (o *Orchestrator) Snapshot(ctx context.Context) (*model.Snapshot, error) {
	if !o.retrainPerRequest && o.bank != nil {
		if snap := o.bank.Current(); snap != nil {
			return snap, nil
		}
	}
	return o.Train(ctx)
}

// Optimize allocates req.AmountToInvest across the requested symbols that
// are present in the trained population.
//
// Allowed symbols keep request order with duplicates removed. An empty
// allowed set is an InputError wrapping ErrUnknownSymbols; no solve is run.
func (o *Orchestrator) Optimize(ctx context.Context, req domain.OptimizeRequest) (*domain.Allocation, error) {
	ctx, span := tracer.Start(ctx, "orchestrator.Optimize",
		trace.WithAttributes(attribute.Int("request.symbols", len(req.Symbols))))
	defer span.End()

	alloc, err := o.optimize(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.StringSlice("allocation.symbols", alloc.AllowedSymbols))
	return alloc, nil
}

func (o *Orchestrator) optimize(ctx context.Context, req domain.OptimizeRequest) (*domain.Allocation, error) {
	snap, err := o.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	allowed := AllowedSymbols(req.Symbols, snap)
	if len(allowed) == 0 {
		return nil, &domain.Error{
			Kind: domain.ErrInput,
			Op:   "optimize",
			Msg:  fmt.Sprintf("none of the requested symbols %v is in the trained population", req.Symbols),
			Err:  ErrUnknownSymbols,
		}
	}

	records := make([]*domain.AssetRecord, len(allowed))
	for i, sym := range allowed {
		records[i], _ = snap.Record(sym)
	}

	sol, err := o.optimizer.Optimize(ctx, optimizer.AssetsFromRecords(records), optimizer.Params{
		AmountToInvest:  req.AmountToInvest,
		RiskTolerance:   req.RiskTolerance,
		LiquidityWeight: req.LiquidityWeightOrDefault(),
		MinAllocation:   req.MinAllocationOrDefault(),
		MaxIterations:   o.maxIterations,
		Timeout:         o.timeout,
	})
	if err != nil {
		return nil, err
	}

	return &domain.Allocation{
		RequestedSymbols: append([]string{}, req.Symbols...),
		AllowedSymbols:   allowed,
		Portfolio:        sol.Portfolio(),
		Amounts:          sol.AmountMap(),
		SnapshotID:       snap.ID,
	}, nil
}

// AllowedSymbols returns requested ∩ known in request order, deduplicated.
func AllowedSymbols(requested []string, snap *model.Snapshot) []string {
	seen := make(map[string]bool, len(requested))
	var out []string
	for _, sym := range requested {
		if seen[sym] {
			continue
		}
		seen[sym] = true
		if _, ok := snap.Record(sym); ok {
			out = append(out, sym)
		}
	}
	return out
}

// Predictions returns the stored predictions for symbols (all symbols when
// empty). Unknown symbols are skipped.
func (o *Orchestrator) Predictions(ctx context.Context, symbols []string) ([]domain.Prediction, error) {
	snap, err := o.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Predictions(symbols), nil
}
