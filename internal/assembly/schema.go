package assembly

import (
	"strings"

	"rwa-portfolio-lab/internal/domain"
)

// Column describes one column of an input table.
type Column struct {
	Name     string   // canonical name
	Required bool     // absence is a schema error
	Aliases  []string // alternative header spellings
}

// Schema enumerates the required and optional columns of an input table.
// Loaders resolve file headers against a Schema once, instead of probing
// for columns while merging.
type Schema struct {
	Table   string
	Columns []Column
}

// Input table schemas.
var (
	PriceSchema = Schema{
		Table: "prices",
		Columns: []Column{
			{Name: "symbol", Required: true, Aliases: []string{"Symbol", "ticker"}},
			{Name: "timestamp", Required: true, Aliases: []string{"Date", "date", "time"}},
			{Name: "price_usd", Required: true, Aliases: []string{"Price_USD", "price"}},
		},
	}

	APYSchema = Schema{
		Table: "apy",
		Columns: []Column{
			{Name: "symbol", Required: true, Aliases: []string{"Symbol"}},
			{Name: "timestamp", Aliases: []string{"Date", "date"}},
			{Name: "apy", Required: true, Aliases: []string{"APY"}},
		},
	}

	SupplySchema = Schema{
		Table: "supply",
		Columns: []Column{
			{Name: "symbol", Required: true, Aliases: []string{"Symbol"}},
			{Name: "timestamp", Aliases: []string{"Date", "date"}},
			{Name: "total_supply", Required: true, Aliases: []string{"supply", "Total_Supply"}},
		},
	}

	TransferSchema = Schema{
		Table: "transfers",
		Columns: []Column{
			{Name: "symbol", Required: true, Aliases: []string{"Symbol"}},
			{Name: "from", Aliases: []string{"from_address", "sender"}},
			{Name: "to", Aliases: []string{"to_address", "receiver"}},
			{Name: "value", Required: true, Aliases: []string{"amount"}},
			{Name: "timestamp", Aliases: []string{"Date", "date"}},
			{Name: "txhash", Aliases: []string{"tx_hash", "hash"}},
		},
	}
)

// Columns maps canonical column names to header indexes.
// Optional columns absent from the header map to -1.
type Columns map[string]int

// Has reports whether the column was present in the header.
func (c Columns) Has(name string) bool {
	idx, ok := c[name]
	return ok && idx >= 0
}

// Resolve matches a header row against the schema.
// Matching is case-insensitive and ignores surrounding whitespace and a UTF-8 BOM.
func (s Schema) Resolve(header []string) (Columns, error) {
	positions := make(map[string]int, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if _, dup := positions[key]; dup {
			return nil, domain.DataErrorf("schema", "%s table has duplicate column %q", s.Table, strings.TrimSpace(h))
		}
		positions[key] = i
	}

	cols := make(Columns, len(s.Columns))
	for _, c := range s.Columns {
		idx := -1
		for _, name := range append([]string{c.Name}, c.Aliases...) {
			if pos, ok := positions[normalizeHeader(name)]; ok {
				idx = pos
				break
			}
		}
		if idx < 0 && c.Required {
			return nil, domain.DataErrorf("schema", "%s table missing required column %q", s.Table, c.Name)
		}
		cols[c.Name] = idx
	}
	return cols, nil
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
}
