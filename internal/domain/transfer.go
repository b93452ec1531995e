package domain

// Transfer is one token transfer from the ledger.
// Corresponds to asset_transfers table and synthetic_transfers.csv.
// Transfers are only ever aggregated per symbol, never joined individually.
type Transfer struct {
	Symbol      string  // asset symbol
	From        string  // sender address, zero address for mints
	To          string  // receiver address, zero address for burns
	Value       float64 // transferred amount in token units
	TimestampMs int64   // Unix timestamp in milliseconds
	TxHash      string  // transaction hash; empty hashes are not counted
}

// LedgerStats is the per-symbol ledger aggregate.
type LedgerStats struct {
	TotalVolume float64 // sum(value)
	TxCount     float64 // count(txhash)
}
