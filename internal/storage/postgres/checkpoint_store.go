package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"fsp-staking/internal/storage"
)

// CheckpointStore is a PostgreSQL implementation of storage.CheckpointStore.
// Uses a single-row persist_checkpoint table.
type CheckpointStore struct {
	pool *Pool
}

// NewCheckpointStore creates a new PostgreSQL checkpoint store.
func NewCheckpointStore(pool *Pool) *CheckpointStore {
	return &CheckpointStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CheckpointStore = (*CheckpointStore)(nil)

// GetCheckpoint returns the last saved checkpoint.
func (s *CheckpointStore) GetCheckpoint(ctx context.Context) (*storage.Checkpoint, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT tx_seq, block_time
		FROM persist_checkpoint
		WHERE id = 1
	`)

	var (
		cp  storage.Checkpoint
		seq int64
	)
	if err := row.Scan(&seq, &cp.Timestamp); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	cp.Seq = uint64(seq)
	return &cp, nil
}

// SetCheckpoint saves progress. Older sequence numbers are ignored.
func (s *CheckpointStore) SetCheckpoint(ctx context.Context, cp *storage.Checkpoint) error {
	if cp == nil {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO persist_checkpoint (id, tx_seq, block_time, updated_at)
		VALUES (1, $1, $2, NOW())
		ON CONFLICT (id) DO UPDATE
		SET tx_seq = EXCLUDED.tx_seq,
		    block_time = EXCLUDED.block_time,
		    updated_at = NOW()
		WHERE persist_checkpoint.tx_seq <= EXCLUDED.tx_seq
	`, int64(cp.Seq), cp.Timestamp)
	if err != nil {
		return fmt.Errorf("set checkpoint: %w", err)
	}
	return nil
}
