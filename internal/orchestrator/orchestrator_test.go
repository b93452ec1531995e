package orchestrator

import (
	"context"
	"errors"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"rwa-portfolio-lab/internal/domain"
	"rwa-portfolio-lab/internal/model"
	"rwa-portfolio-lab/internal/storage/memory"
)

const day = int64(86_400_000)

// fixtureTables returns four assets with a week of prices, APY for three of
// them, supply and a small ledger.
func fixtureTables() *domain.Tables {
	base := int64(1_717_200_000_000)
	series := map[string][]float64{
		"PAXG": {2300, 2310, 2295, 2330, 2340, 2335, 2350},
		"USDY": {1.040, 1.041, 1.041, 1.042, 1.043, 1.043, 1.044},
		"OUSG": {105.0, 105.1, 105.1, 105.3, 105.2, 105.4, 105.5},
		"XAUT": {2290, 2305, 2280, 2320, 2345, 2330, 2340},
	}
	t := &domain.Tables{}
	for sym, prices := range series {
		for i, p := range prices {
			t.Prices = append(t.Prices, &domain.PricePoint{Symbol: sym, TimestampMs: base + int64(i)*day, PriceUSD: p})
		}
	}
	t.APY = []*domain.APYPoint{
		{Symbol: "USDY", TimestampMs: base, APY: 5.1},
		{Symbol: "OUSG", TimestampMs: base, APY: 4.8},
		{Symbol: "PAXG", TimestampMs: base, APY: 0.5},
	}
	t.Supply = []*domain.SupplyPoint{
		{Symbol: "PAXG", TimestampMs: base, TotalSupply: 250_000},
		{Symbol: "USDY", TimestampMs: base, TotalSupply: 400_000_000},
		{Symbol: "OUSG", TimestampMs: base, TotalSupply: 1_500_000},
		{Symbol: "XAUT", TimestampMs: base, TotalSupply: 246_000},
	}
	t.Transfers = []*domain.Transfer{
		{Symbol: "USDY", From: "0x1111111111111111111111111111111111111111", To: "0x2222222222222222222222222222222222222222", Value: 5000, TimestampMs: base, TxHash: "0xa1"},
		{Symbol: "USDY", From: "0x2222222222222222222222222222222222222222", To: "0x3333333333333333333333333333333333333333", Value: 2500, TimestampMs: base + day, TxHash: "0xa2"},
		{Symbol: "PAXG", From: "0x1111111111111111111111111111111111111111", To: "0x3333333333333333333333333333333333333333", Value: 12, TimestampMs: base, TxHash: "0xb1"},
	}
	return t
}

type recordingPublisher struct {
	mu    sync.Mutex
	snaps []*model.Snapshot
}

func (p *recordingPublisher) Publish(snap *model.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snaps = append(p.snaps, snap)
}

func newTestOrchestrator(t *testing.T, tables *domain.Tables, opts Options) *Orchestrator {
	t.Helper()
	src, err := memory.NewSource(context.Background(), tables)
	if err != nil {
		t.Fatalf("seed source: %v", err)
	}
	opts.Source = src
	if opts.Bank == nil {
		opts.Bank = model.NewBank(model.Config{Estimators: 20, Seed: model.DefaultSeed}, zerolog.Nop())
	}
	opts.Logger = zerolog.Nop()
	return New(opts)
}

func dollars(amounts map[string]float64) float64 {
	var sum float64
	for _, v := range amounts {
		sum += v
	}
	return sum
}

func TestOrchestrator_TrainPublishes(t *testing.T) {
	pub := &recordingPublisher{}
	orch := newTestOrchestrator(t, fixtureTables(), Options{Publisher: pub})

	snap, err := orch.Train(context.Background())
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if len(pub.snaps) != 1 || pub.snaps[0] != snap {
		t.Fatalf("expected the snapshot to be published once, got %d", len(pub.snaps))
	}

	status := orch.Status()
	if status.SnapshotID != snap.ID || status.Records != 4 || status.TrainCount != 1 {
		t.Errorf("unexpected status: %+v", status)
	}
	if status.LastError != "" {
		t.Errorf("expected no error in status, got %q", status.LastError)
	}
}

func TestOrchestrator_RecordsAreFinite(t *testing.T) {
	records, err := BuildRecords(fixtureTables())
	if err != nil {
		t.Fatalf("BuildRecords: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(records))
	}
	for _, r := range records {
		for i, v := range r.FeatureVector() {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Errorf("%s feature %s is not finite: %v", r.Symbol, domain.FeatureNames[i], v)
			}
		}
	}
}

func TestOrchestrator_Optimize(t *testing.T) {
	orch := newTestOrchestrator(t, fixtureTables(), Options{})

	alloc, err := orch.Optimize(context.Background(), domain.OptimizeRequest{
		Symbols:        []string{"USDY", "PAXG", "BOGUS", "USDY", "OUSG"},
		AmountToInvest: 10_000,
		RiskTolerance:  0.5,
	})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}

	want := []string{"USDY", "PAXG", "OUSG"}
	if len(alloc.AllowedSymbols) != len(want) {
		t.Fatalf("allowed = %v, want %v", alloc.AllowedSymbols, want)
	}
	for i := range want {
		if alloc.AllowedSymbols[i] != want[i] {
			t.Fatalf("allowed = %v, want %v", alloc.AllowedSymbols, want)
		}
	}
	if len(alloc.RequestedSymbols) != 5 {
		t.Errorf("requested symbols should be echoed unchanged, got %v", alloc.RequestedSymbols)
	}

	var sum float64
	for sym, pct := range alloc.Portfolio {
		if pct < domain.DefaultMinAllocation*100-1e-6 || pct > 100+1e-6 {
			t.Errorf("%s percentage %v out of bounds", sym, pct)
		}
		sum += pct
	}
	if math.Abs(sum-100) > 1e-4 {
		t.Errorf("percentages sum to %v, want 100", sum)
	}

	amounts := make(map[string]float64, len(alloc.Amounts))
	for sym, a := range alloc.Amounts {
		amounts[sym] = a.InexactFloat64()
	}
	if math.Abs(dollars(amounts)-10_000) > 0.05 {
		t.Errorf("amounts sum to %v, want 10000", dollars(amounts))
	}
	if alloc.SnapshotID == "" {
		t.Error("expected snapshot id")
	}
}

func TestOrchestrator_OptimizeUnknownSymbols(t *testing.T) {
	orch := newTestOrchestrator(t, fixtureTables(), Options{})

	_, err := orch.Optimize(context.Background(), domain.OptimizeRequest{
		Symbols:        []string{"NOPE", "NADA"},
		AmountToInvest: 1000,
		RiskTolerance:  0.5,
	})
	if !errors.Is(err, domain.ErrInput) {
		t.Fatalf("expected ErrInput, got %v", err)
	}
	if !errors.Is(err, ErrUnknownSymbols) {
		t.Errorf("expected ErrUnknownSymbols, got %v", err)
	}
}

func TestOrchestrator_OptimizeInfeasibleFloor(t *testing.T) {
	orch := newTestOrchestrator(t, fixtureTables(), Options{})
	floor := 0.34

	_, err := orch.Optimize(context.Background(), domain.OptimizeRequest{
		Symbols:        []string{"USDY", "PAXG", "OUSG"},
		AmountToInvest: 1000,
		RiskTolerance:  0.5,
		MinAllocation:  &floor,
	})
	if !errors.Is(err, domain.ErrInput) {
		t.Fatalf("expected ErrInput, got %v", err)
	}
	if errors.Is(err, ErrUnknownSymbols) {
		t.Error("infeasible floor must not be reported as unknown symbols")
	}
}

func TestOrchestrator_Reproducible(t *testing.T) {
	req := domain.OptimizeRequest{
		Symbols:        []string{"PAXG", "USDY", "OUSG", "XAUT"},
		AmountToInvest: 5000,
		RiskTolerance:  1,
	}

	a, err := newTestOrchestrator(t, fixtureTables(), Options{}).Optimize(context.Background(), req)
	if err != nil {
		t.Fatalf("first Optimize: %v", err)
	}
	b, err := newTestOrchestrator(t, fixtureTables(), Options{}).Optimize(context.Background(), req)
	if err != nil {
		t.Fatalf("second Optimize: %v", err)
	}
	for sym, pct := range a.Portfolio {
		if math.Abs(pct-b.Portfolio[sym]) > 1e-6 {
			t.Errorf("%s: %v vs %v", sym, pct, b.Portfolio[sym])
		}
	}
}

func TestOrchestrator_CachedSnapshotReused(t *testing.T) {
	pub := &recordingPublisher{}
	orch := newTestOrchestrator(t, fixtureTables(), Options{Publisher: pub})
	req := domain.OptimizeRequest{Symbols: []string{"USDY", "PAXG"}, AmountToInvest: 100, RiskTolerance: 0.5}

	first, err := orch.Optimize(context.Background(), req)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	second, err := orch.Optimize(context.Background(), req)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if first.SnapshotID != second.SnapshotID {
		t.Error("expected the cached snapshot to be reused")
	}
	if len(pub.snaps) != 1 {
		t.Errorf("expected one training run, got %d", len(pub.snaps))
	}
}

func TestOrchestrator_RetrainPerRequest(t *testing.T) {
	orch := newTestOrchestrator(t, fixtureTables(), Options{RetrainPerRequest: true})
	req := domain.OptimizeRequest{Symbols: []string{"USDY", "PAXG"}, AmountToInvest: 100, RiskTolerance: 0.5}

	first, err := orch.Optimize(context.Background(), req)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	second, err := orch.Optimize(context.Background(), req)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if first.SnapshotID == second.SnapshotID {
		t.Error("expected a fresh snapshot per request")
	}
	for sym, pct := range first.Portfolio {
		if math.Abs(pct-second.Portfolio[sym]) > 1e-6 {
			t.Errorf("%s: retraining changed the allocation: %v vs %v", sym, pct, second.Portfolio[sym])
		}
	}
}

func TestOrchestrator_FailedTrainingKeepsSnapshot(t *testing.T) {
	orch := newTestOrchestrator(t, fixtureTables(), Options{})
	snap, err := orch.Train(context.Background())
	if err != nil {
		t.Fatalf("Train: %v", err)
	}

	orch.source = failingSource{err: errors.New("source offline")}
	if _, err := orch.Train(context.Background()); err == nil {
		t.Fatal("expected training to fail")
	}

	status := orch.Status()
	if status.SnapshotID != snap.ID {
		t.Errorf("status snapshot changed to %q", status.SnapshotID)
	}
	if status.LastError == "" {
		t.Error("expected last error to be recorded")
	}

	preds, err := orch.Predictions(context.Background(), nil)
	if err != nil {
		t.Fatalf("Predictions: %v", err)
	}
	if len(preds) != 4 {
		t.Errorf("expected predictions from the previous snapshot, got %d", len(preds))
	}
}

func TestOrchestrator_TooFewAssets(t *testing.T) {
	tables := &domain.Tables{
		Prices: []*domain.PricePoint{{Symbol: "PAXG", TimestampMs: 1, PriceUSD: 2300}},
	}
	orch := newTestOrchestrator(t, tables, Options{})

	_, err := orch.Train(context.Background())
	if !errors.Is(err, domain.ErrModel) {
		t.Fatalf("expected ErrModel, got %v", err)
	}
}

func TestOrchestrator_ConcurrentTrainShares(t *testing.T) {
	src := &countingSource{tables: fixtureTables(), release: make(chan struct{})}
	orch := New(Options{
		Source: src,
		Bank:   model.NewBank(model.Config{Estimators: 5, Seed: model.DefaultSeed}, zerolog.Nop()),
		Logger: zerolog.Nop(),
	})

	var wg sync.WaitGroup
	ids := make([]string, 4)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := orch.Train(context.Background())
			if err != nil {
				t.Errorf("Train: %v", err)
				return
			}
			ids[i] = snap.ID
		}()
	}
	for src.calls.Load() == 0 {
		runtime.Gosched()
	}
	close(src.release)
	wg.Wait()

	if src.calls.Load() > int32(len(ids)) {
		t.Fatalf("too many loads: %d", src.calls.Load())
	}
	if src.calls.Load() == 1 {
		for _, id := range ids[1:] {
			if id != ids[0] {
				t.Errorf("shared run returned different snapshots: %v", ids)
			}
		}
	}
}

func TestOrchestrator_CanceledCallerDoesNotStopSharedRun(t *testing.T) {
	src := &countingSource{tables: fixtureTables(), release: make(chan struct{})}
	bank := model.NewBank(model.Config{Estimators: 5, Seed: model.DefaultSeed}, zerolog.Nop())
	orch := New(Options{Source: src, Bank: bank, Logger: zerolog.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := orch.Train(ctx)
		done <- err
	}()
	for src.calls.Load() == 0 {
		runtime.Gosched()
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled for the departed caller, got %v", err)
	}

	close(src.release)
	deadline := time.Now().Add(30 * time.Second)
	for bank.Current() == nil {
		if time.Now().After(deadline) {
			t.Fatal("shared run never completed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	for orch.Status().TrainCount == 0 {
		if time.Now().After(deadline) {
			t.Fatal("status never recorded the run")
		}
		time.Sleep(5 * time.Millisecond)
	}

	status := orch.Status()
	if status.LastError != "" {
		t.Errorf("expected a clean run, got %q", status.LastError)
	}
	if src.calls.Load() != 1 {
		t.Errorf("expected one load, got %d", src.calls.Load())
	}
}

func TestOrchestrator_TrainTimeoutBoundsSharedRun(t *testing.T) {
	src := &countingSource{tables: fixtureTables(), release: make(chan struct{})}
	orch := New(Options{
		Source:       src,
		Bank:         model.NewBank(model.Config{Estimators: 5, Seed: model.DefaultSeed}, zerolog.Nop()),
		TrainTimeout: 20 * time.Millisecond,
		Logger:       zerolog.Nop(),
	})

	if _, err := orch.Train(context.Background()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestOrchestrator_NoSource(t *testing.T) {
	orch := New(Options{Logger: zerolog.Nop()})
	if _, err := orch.Train(context.Background()); !errors.Is(err, ErrNoSource) {
		t.Fatalf("expected ErrNoSource, got %v", err)
	}
}

type failingSource struct{ err error }

func (s failingSource) LoadTables(context.Context) (*domain.Tables, error) {
	return nil, s.err
}

// countingSource blocks every load until release is closed.
type countingSource struct {
	tables  *domain.Tables
	release chan struct{}
	calls   atomic.Int32
}

func (s *countingSource) LoadTables(ctx context.Context) (*domain.Tables, error) {
	s.calls.Add(1)
	select {
	case <-s.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.tables, nil
}
