package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"fsp-staking/internal/domain"
	"fsp-staking/internal/storage"
)

// PoolStore is an in-memory implementation of storage.PoolStore.
type PoolStore struct {
	mu   sync.RWMutex
	data map[domain.Address]*domain.PoolSnapshot
}

// NewPoolStore creates a new in-memory pool store.
func NewPoolStore() *PoolStore {
	return &PoolStore{
		data: make(map[domain.Address]*domain.PoolSnapshot),
	}
}

// Upsert inserts or replaces the snapshot keyed by pool address.
func (s *PoolStore) Upsert(_ context.Context, p *domain.PoolSnapshot) error {
	if p == nil || p.Config.Address.IsZero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[p.Config.Address] = p.Clone()
	return nil
}

// Get retrieves a pool by address. Returns ErrNotFound if not exists.
func (s *PoolStore) Get(_ context.Context, addr domain.Address) (*domain.PoolSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[addr]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return p.Clone(), nil
}

// List retrieves all pools ordered by created_at ASC, address ASC.
func (s *PoolStore) List(_ context.Context) ([]*domain.PoolSnapshot, error) {
	return s.filter(func(*domain.PoolSnapshot) bool { return true }), nil
}

// ListByOwner retrieves pools deployed by owner.
func (s *PoolStore) ListByOwner(_ context.Context, owner domain.Address) ([]*domain.PoolSnapshot, error) {
	return s.filter(func(p *domain.PoolSnapshot) bool { return p.Config.Owner == owner }), nil
}

func (s *PoolStore) filter(keep func(*domain.PoolSnapshot) bool) []*domain.PoolSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PoolSnapshot
	for _, p := range s.data {
		if keep(p) {
			result = append(result, p.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Config.CreatedAt != result[j].Config.CreatedAt {
			return result[i].Config.CreatedAt < result[j].Config.CreatedAt
		}
		return bytes.Compare(result[i].Config.Address[:], result[j].Config.Address[:]) < 0
	})
	return result
}

// Verify interface compliance at compile time.
var _ storage.PoolStore = (*PoolStore)(nil)
