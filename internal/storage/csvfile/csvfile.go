// Package csvfile loads the input tables from a directory of CSV exports
// (prices.csv, apy.csv, total_supply.csv and, optionally,
// synthetic_transfers.csv and historical_rwa_prices.csv).
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"rwa-portfolio-lab/internal/assembly"
	"rwa-portfolio-lab/internal/domain"
	"rwa-portfolio-lab/internal/observability"
	"rwa-portfolio-lab/internal/storage"
)

// Files names the table files inside the source directory.
// Empty History or Transfers disables that table.
type Files struct {
	Prices    string `yaml:"prices"`
	History   string `yaml:"history"`
	APY       string `yaml:"apy"`
	Supply    string `yaml:"supply"`
	Transfers string `yaml:"transfers"`
}

// DefaultFiles is the layout written by the data collection scripts.
var DefaultFiles = Files{
	Prices:    "prices.csv",
	History:   "historical_rwa_prices.csv",
	APY:       "apy.csv",
	Supply:    "total_supply.csv",
	Transfers: "synthetic_transfers.csv",
}

// Source reads tables from Dir on every LoadTables call.
// Missing optional files load as empty tables.
type Source struct {
	Dir   string
	Files Files
}

var _ storage.Source = (*Source)(nil)

// New returns a Source over dir with the default file layout.
func New(dir string) *Source {
	return &Source{Dir: dir, Files: DefaultFiles}
}

// LoadTables parses all files concurrently.
func (s *Source) LoadTables(ctx context.Context) (*domain.Tables, error) {
	history := assembly.PriceSchema
	history.Table = "history"

	var t domain.Tables
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rows, err := load(gctx, s.path(s.Files.Prices), true, assembly.PriceSchema, parsePrice)
		t.Prices = rows
		return err
	})
	g.Go(func() error {
		rows, err := load(gctx, s.path(s.Files.History), false, history, parsePrice)
		t.History = rows
		return err
	})
	g.Go(func() error {
		rows, err := load(gctx, s.path(s.Files.APY), true, assembly.APYSchema, parseAPY)
		t.APY = rows
		return err
	})
	g.Go(func() error {
		rows, err := load(gctx, s.path(s.Files.Supply), true, assembly.SupplySchema, parseSupply)
		t.Supply = rows
		return err
	})
	g.Go(func() error {
		rows, err := load(gctx, s.path(s.Files.Transfers), false, assembly.TransferSchema, parseTransfer)
		t.Transfers = rows
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Source) path(name string) string {
	if name == "" {
		return ""
	}
	return filepath.Join(s.Dir, name)
}

func load[T any](ctx context.Context, path string, required bool, schema assembly.Schema, parse func(assembly.Columns, []string) (*T, error)) ([]*T, error) {
	if path == "" {
		return nil, nil
	}
	start := time.Now()
	rows, err := readFile(ctx, path, schema, parse)
	if !required && errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	observability.RecordSourceLoad("csv", schema.Table, len(rows), time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", schema.Table, err)
	}
	return rows, nil
}

func readFile[T any](ctx context.Context, path string, schema assembly.Schema, parse func(assembly.Columns, []string) (*T, error)) ([]*T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(ctx, f, schema, parse)
}

// Read parses CSV from r against schema. The first record is the header;
// parse converts each non-blank record using the resolved columns.
func Read[T any](ctx context.Context, r io.Reader, schema assembly.Schema, parse func(assembly.Columns, []string) (*T, error)) ([]*T, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, domain.DataErrorf("read", "%s table is empty", schema.Table)
	}
	if err != nil {
		return nil, domain.DataErrorf("read", "%s header: %v", schema.Table, err)
	}
	cols, err := schema.Resolve(header)
	if err != nil {
		return nil, err
	}

	var rows []*T
	for line := 2; ; line++ {
		if line%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, domain.DataErrorf("read", "%s line %d: %v", schema.Table, line, err)
		}
		if blank(rec) {
			continue
		}
		row, err := parse(cols, rec)
		if err != nil {
			return nil, domain.DataErrorf("read", "%s line %d: %v", schema.Table, line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parsePrice(cols assembly.Columns, rec []string) (*domain.PricePoint, error) {
	ts, err := timestampAt(cols, rec)
	if err != nil {
		return nil, err
	}
	price, err := floatAt(cols, rec, "price_usd")
	if err != nil {
		return nil, err
	}
	return &domain.PricePoint{Symbol: field(cols, rec, "symbol"), TimestampMs: ts, PriceUSD: price}, nil
}

func parseAPY(cols assembly.Columns, rec []string) (*domain.APYPoint, error) {
	ts, err := timestampAt(cols, rec)
	if err != nil {
		return nil, err
	}
	apy, err := floatAt(cols, rec, "apy")
	if err != nil {
		return nil, err
	}
	return &domain.APYPoint{Symbol: field(cols, rec, "symbol"), TimestampMs: ts, APY: apy}, nil
}

func parseSupply(cols assembly.Columns, rec []string) (*domain.SupplyPoint, error) {
	ts, err := timestampAt(cols, rec)
	if err != nil {
		return nil, err
	}
	supply, err := floatAt(cols, rec, "total_supply")
	if err != nil {
		return nil, err
	}
	return &domain.SupplyPoint{Symbol: field(cols, rec, "symbol"), TimestampMs: ts, TotalSupply: supply}, nil
}

func parseTransfer(cols assembly.Columns, rec []string) (*domain.Transfer, error) {
	ts, err := timestampAt(cols, rec)
	if err != nil {
		return nil, err
	}
	value, err := floatAt(cols, rec, "value")
	if err != nil {
		return nil, err
	}
	return &domain.Transfer{
		Symbol:      field(cols, rec, "symbol"),
		From:        field(cols, rec, "from"),
		To:          field(cols, rec, "to"),
		Value:       value,
		TimestampMs: ts,
		TxHash:      field(cols, rec, "txhash"),
	}, nil
}

// field returns the trimmed cell of a column, or "" when the column or cell is absent.
func field(cols assembly.Columns, rec []string, name string) string {
	idx, ok := cols[name]
	if !ok || idx < 0 || idx >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[idx])
}

// floatAt parses a numeric cell. Empty cells are NaN.
func floatAt(cols assembly.Columns, rec []string, name string) (float64, error) {
	s := field(cols, rec, name)
	if s == "" {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("column %s: invalid number %q", name, s)
	}
	return v, nil
}

func timestampAt(cols assembly.Columns, rec []string) (int64, error) {
	s := field(cols, rec, "timestamp")
	if s == "" {
		return 0, nil
	}
	ts, err := ParseTimestamp(s)
	if err != nil {
		return 0, fmt.Errorf("column timestamp: %w", err)
	}
	return ts, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// epochMsThreshold separates epoch seconds from epoch milliseconds.
const epochMsThreshold = 1e11

// ParseTimestamp accepts RFC 3339, ISO dates and datetimes without zone (UTC),
// and numeric epoch seconds or milliseconds. It returns Unix milliseconds.
func ParseTimestamp(s string) (int64, error) {
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		if math.Abs(n) < epochMsThreshold {
			return int64(n * 1000), nil
		}
		return int64(n), nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("unrecognized timestamp %q", s)
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
