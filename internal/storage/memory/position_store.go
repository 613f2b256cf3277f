package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"fsp-staking/internal/domain"
	"fsp-staking/internal/storage"
)

type positionKey struct {
	pool domain.Address
	user domain.Address
}

// PositionStore is an in-memory implementation of storage.PositionStore.
type PositionStore struct {
	mu   sync.RWMutex
	data map[positionKey]*domain.Position
}

// NewPositionStore creates a new in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		data: make(map[positionKey]*domain.Position),
	}
}

// Upsert inserts or replaces a position. An empty position is deleted.
func (s *PositionStore) Upsert(_ context.Context, p *domain.Position) error {
	if p == nil || p.Pool.IsZero() || p.User.IsZero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := positionKey{pool: p.Pool, user: p.User}
	if p.IsEmpty() {
		delete(s.data, key)
		return nil
	}
	s.data[key] = p.Clone()
	return nil
}

// Delete removes a position.
func (s *PositionStore) Delete(_ context.Context, pool, user domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, positionKey{pool: pool, user: user})
	return nil
}

// Get retrieves a position. Returns ErrNotFound if not exists.
func (s *PositionStore) Get(_ context.Context, pool, user domain.Address) (*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[positionKey{pool: pool, user: user}]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return p.Clone(), nil
}

// ListByPool retrieves all positions of a pool ordered by user.
func (s *PositionStore) ListByPool(_ context.Context, pool domain.Address) ([]*domain.Position, error) {
	result := s.filter(func(k positionKey) bool { return k.pool == pool })
	sort.Slice(result, func(i, j int) bool {
		return bytes.Compare(result[i].User[:], result[j].User[:]) < 0
	})
	return result, nil
}

// ListByUser retrieves all positions of a user ordered by pool.
func (s *PositionStore) ListByUser(_ context.Context, user domain.Address) ([]*domain.Position, error) {
	result := s.filter(func(k positionKey) bool { return k.user == user })
	sort.Slice(result, func(i, j int) bool {
		return bytes.Compare(result[i].Pool[:], result[j].Pool[:]) < 0
	})
	return result, nil
}

func (s *PositionStore) filter(keep func(positionKey) bool) []*domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Position
	for k, p := range s.data {
		if keep(k) {
			result = append(result, p.Clone())
		}
	}
	return result
}

// Verify interface compliance at compile time.
var _ storage.PositionStore = (*PositionStore)(nil)
