package memory

import (
	"context"
	"sort"
	"sync"

	"rwa-portfolio-lab/internal/domain"
	"rwa-portfolio-lab/internal/storage"
)

// SupplyStore is an in-memory implementation of storage.SupplyStore.
type SupplyStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SupplyPoint
}

// NewSupplyStore creates a new in-memory supply store.
func NewSupplyStore() *SupplyStore {
	return &SupplyStore{data: make(map[string]*domain.SupplyPoint)}
}

// InsertBulk adds multiple points. Fails entire batch on duplicate.
func (s *SupplyStore) InsertBulk(_ context.Context, points []*domain.SupplyPoint) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(points))
	for _, p := range points {
		if p == nil || p.Symbol == "" {
			return storage.ErrInvalidInput
		}
		key := pointKey(p.Symbol, p.TimestampMs)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, p := range points {
		pointCopy := *p
		s.data[pointKey(p.Symbol, p.TimestampMs)] = &pointCopy
	}
	return nil
}

// GetAll retrieves every point, ordered by symbol ASC then timestamp ASC.
func (s *SupplyStore) GetAll(_ context.Context) ([]*domain.SupplyPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.SupplyPoint, 0, len(s.data))
	for _, p := range s.data {
		pointCopy := *p
		result = append(result, &pointCopy)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Symbol != result[j].Symbol {
			return result[i].Symbol < result[j].Symbol
		}
		return result[i].TimestampMs < result[j].TimestampMs
	})
	return result, nil
}

var _ storage.SupplyStore = (*SupplyStore)(nil)
