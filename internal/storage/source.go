package storage

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"rwa-portfolio-lab/internal/domain"
	"rwa-portfolio-lab/internal/observability"
)

// StoreSource is a Source backed by the table stores.
// Prices holds the spot table and History the dated price series; they are
// loaded into Tables.Prices and Tables.History unchanged.
// History and Transfers are optional; a nil store yields an empty table.
type StoreSource struct {
	Name      string // metrics label, e.g. "postgres"
	Prices    PriceStore
	History   PriceStore
	APY       APYStore
	Supply    SupplyStore
	Transfers TransferStore
}

// LoadTables reads all tables concurrently.
func (s *StoreSource) LoadTables(ctx context.Context) (*domain.Tables, error) {
	if s.Prices == nil || s.APY == nil || s.Supply == nil {
		return nil, fmt.Errorf("load tables: %w: price, apy and supply stores are required", ErrInvalidInput)
	}

	var t domain.Tables
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.timed("prices", func() (int, error) {
			rows, err := s.Prices.GetAll(gctx)
			t.Prices = rows
			return len(rows), err
		})
	})
	if s.History != nil {
		g.Go(func() error {
			return s.timed("history", func() (int, error) {
				rows, err := s.History.GetAll(gctx)
				t.History = rows
				return len(rows), err
			})
		})
	}
	g.Go(func() error {
		return s.timed("apy", func() (int, error) {
			rows, err := s.APY.GetAll(gctx)
			t.APY = rows
			return len(rows), err
		})
	})
	g.Go(func() error {
		return s.timed("supply", func() (int, error) {
			rows, err := s.Supply.GetAll(gctx)
			t.Supply = rows
			return len(rows), err
		})
	})
	if s.Transfers != nil {
		g.Go(func() error {
			return s.timed("transfers", func() (int, error) {
				rows, err := s.Transfers.GetAll(gctx)
				t.Transfers = rows
				return len(rows), err
			})
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *StoreSource) timed(table string, load func() (int, error)) error {
	start := time.Now()
	n, err := load()
	observability.RecordSourceLoad(s.Name, table, n, time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("load %s: %w", table, err)
	}
	return nil
}
