package memory

import (
	"context"
	"sync"

	"fsp-staking/internal/storage"
)

// CheckpointStore is an in-memory implementation of storage.CheckpointStore.
type CheckpointStore struct {
	mu sync.RWMutex
	cp *storage.Checkpoint
}

// NewCheckpointStore creates a new in-memory checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{}
}

// GetCheckpoint returns the last saved checkpoint.
func (s *CheckpointStore) GetCheckpoint(_ context.Context) (*storage.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cp == nil {
		return nil, storage.ErrNotFound
	}
	cp := *s.cp
	return &cp, nil
}

// SetCheckpoint saves progress. Older sequence numbers are ignored.
func (s *CheckpointStore) SetCheckpoint(_ context.Context, cp *storage.Checkpoint) error {
	if cp == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cp != nil && cp.Seq < s.cp.Seq {
		return nil
	}
	saved := *cp
	s.cp = &saved
	return nil
}

// Verify interface compliance at compile time.
var _ storage.CheckpointStore = (*CheckpointStore)(nil)
