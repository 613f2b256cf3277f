package memory

import (
	"context"
	"sort"
	"sync"

	"fsp-staking/internal/domain"
	"fsp-staking/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Event // keyed by event_id
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		data: make(map[string]*domain.Event),
	}
}

// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
func (s *EventStore) Insert(_ context.Context, e *domain.Event) error {
	if e == nil || e.EventID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[e.EventID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[e.EventID] = e.Clone()
	return nil
}

// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
func (s *EventStore) InsertBulk(_ context.Context, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate all first (atomic semantics)
	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e == nil || e.EventID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[e.EventID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, dup := seen[e.EventID]; dup {
			return storage.ErrDuplicateKey
		}
		seen[e.EventID] = struct{}{}
	}

	for _, e := range events {
		s.data[e.EventID] = e.Clone()
	}
	return nil
}

// GetByEmitter retrieves events of a pool or the factory ordered by (tx_seq, log_index).
func (s *EventStore) GetByEmitter(_ context.Context, emitter domain.Address) ([]*domain.Event, error) {
	return s.filter(func(e *domain.Event) bool { return e.Emitter == emitter }), nil
}

// GetByTimeRange retrieves events with timestamp in [start, end] (inclusive).
func (s *EventStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.Event, error) {
	return s.filter(func(e *domain.Event) bool {
		return e.Timestamp >= start && e.Timestamp <= end
	}), nil
}

func (s *EventStore) filter(keep func(*domain.Event) bool) []*domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Event
	for _, e := range s.data {
		if keep(e) {
			result = append(result, e.Clone())
		}
	}
	sortEvents(result)
	return result
}

func sortEvents(events []*domain.Event) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].TxSeq != events[j].TxSeq {
			return events[i].TxSeq < events[j].TxSeq
		}
		return events[i].LogIndex < events[j].LogIndex
	})
}

// Verify interface compliance at compile time.
var _ storage.EventStore = (*EventStore)(nil)
