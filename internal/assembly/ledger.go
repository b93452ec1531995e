package assembly

import "rwa-portfolio-lab/internal/domain"

// AggregateLedger reduces transfers to per-symbol (sum(value), count(txhash)).
// A transfer with an empty hash adds to the volume but not to the count.
func AggregateLedger(transfers []*domain.Transfer) map[string]domain.LedgerStats {
	stats := make(map[string]domain.LedgerStats)
	for _, t := range transfers {
		if t == nil {
			continue
		}
		s := stats[t.Symbol]
		s.TotalVolume += t.Value
		if t.TxHash != "" {
			s.TxCount++
		}
		stats[t.Symbol] = s
	}
	return stats
}
