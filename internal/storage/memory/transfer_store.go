package memory

import (
	"context"
	"sort"
	"sync"

	"rwa-portfolio-lab/internal/domain"
	"rwa-portfolio-lab/internal/storage"
)

// TransferStore is an in-memory implementation of storage.TransferStore.
// Transfers are kept in insertion order; hashed transfers are also indexed
// for duplicate detection.
type TransferStore struct {
	mu     sync.RWMutex
	data   []*domain.Transfer
	hashed map[string]struct{} // (symbol, txhash, from, to)
}

// NewTransferStore creates a new in-memory transfer store.
func NewTransferStore() *TransferStore {
	return &TransferStore{hashed: make(map[string]struct{})}
}

func transferKey(t *domain.Transfer) string {
	return t.Symbol + "|" + t.TxHash + "|" + t.From + "|" + t.To
}

// InsertBulk adds multiple transfers. Fails entire batch on duplicate.
func (s *TransferStore) InsertBulk(_ context.Context, transfers []*domain.Transfer) error {
	if len(transfers) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{})
	for _, t := range transfers {
		if t == nil || t.Symbol == "" {
			return storage.ErrInvalidInput
		}
		if t.TxHash == "" {
			continue
		}
		key := transferKey(t)
		if _, exists := s.hashed[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, t := range transfers {
		c := *t
		s.data = append(s.data, &c)
		if t.TxHash != "" {
			s.hashed[transferKey(t)] = struct{}{}
		}
	}
	return nil
}

// GetAll retrieves every transfer, ordered by timestamp ASC.
func (s *TransferStore) GetAll(_ context.Context) ([]*domain.Transfer, error) {
	return s.filter(func(*domain.Transfer) bool { return true }), nil
}

// GetBySymbol retrieves all transfers of a symbol, ordered by timestamp ASC.
func (s *TransferStore) GetBySymbol(_ context.Context, symbol string) ([]*domain.Transfer, error) {
	return s.filter(func(t *domain.Transfer) bool { return t.Symbol == symbol }), nil
}

func (s *TransferStore) filter(keep func(*domain.Transfer) bool) []*domain.Transfer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Transfer
	for _, t := range s.data {
		if keep(t) {
			c := *t
			result = append(result, &c)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})
	return result
}

var _ storage.TransferStore = (*TransferStore)(nil)
