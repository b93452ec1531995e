// Package main provides a one-shot allocation CLI.
// Loads a CSV directory, trains the models and prints the allocation as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"rwa-portfolio-lab/internal/config"
	"rwa-portfolio-lab/internal/domain"
	"rwa-portfolio-lab/internal/httpapi"
	"rwa-portfolio-lab/internal/model"
	"rwa-portfolio-lab/internal/orchestrator"
	"rwa-portfolio-lab/internal/storage/csvfile"
)

func main() {
	dataDir := flag.String("data-dir", "data", "Directory with prices.csv, apy.csv, total_supply.csv and optional ledger/history files")
	symbols := flag.String("symbols", "", "Comma-separated symbols to allocate across (required)")
	amount := flag.Float64("amount", 10000, "Amount to invest in USD")
	risk := flag.Float64("risk-tolerance", 0.5, "Risk tolerance (>= 0)")
	liquidity := flag.Float64("liquidity-weight", domain.DefaultLiquidityWeight, "Liquidity weight")
	minAlloc := flag.Float64("min-allocation", domain.DefaultMinAllocation, "Minimum allocation per asset (fraction)")
	estimators := flag.Int("estimators", model.DefaultEstimators, "Trees per forest")
	seed := flag.Uint64("seed", model.DefaultSeed, "Random seed for training")
	predictions := flag.Bool("predictions", false, "Include model predictions in the output")
	verbose := flag.Bool("verbose", false, "Log pipeline progress to stderr")
	flag.Parse()

	requested := httpapi.ParseSymbols(*symbols)
	if len(requested) == 0 {
		fmt.Fprintln(os.Stderr, "Error: --symbols is required")
		os.Exit(2)
	}

	logger := zerolog.Nop()
	if *verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	defaults := config.Default()
	orch := orchestrator.New(orchestrator.Options{
		Source:        csvfile.New(*dataDir),
		Bank:          model.NewBank(model.Config{Estimators: *estimators, Seed: *seed}, logger),
		MaxIterations: defaults.Optimizer.MaxIterations,
		Timeout:       defaults.Optimizer.Timeout,
		Logger:        logger,
	})

	req := domain.OptimizeRequest{
		Symbols:         requested,
		AmountToInvest:  *amount,
		RiskTolerance:   *risk,
		LiquidityWeight: liquidity,
		MinAllocation:   minAlloc,
	}
	alloc, err := orch.Optimize(ctx, req)
	if err != nil {
		_, kind := httpapi.StatusFor(err)
		fmt.Fprintf(os.Stderr, "Error (%s): %v\n", kind, err)
		os.Exit(1)
	}

	out := struct {
		*domain.Allocation
		Predictions []domain.Prediction `json:"predictions,omitempty"`
	}{Allocation: alloc}
	if *predictions {
		out.Predictions, _ = orch.Predictions(ctx, alloc.AllowedSymbols)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
		os.Exit(1)
	}
}
