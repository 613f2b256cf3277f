package storage

import "context"

// Checkpoint is the last committed transaction whose effects were persisted.
type Checkpoint struct {
	Seq       uint64 // transaction sequence number
	Timestamp int64  // chain time of that transaction
}

// CheckpointStore records persistence progress so operators can tell how far
// the stores lag behind the in-process chain.
type CheckpointStore interface {
	// GetCheckpoint returns the last saved checkpoint.
	// Returns ErrNotFound if no progress has been saved yet.
	GetCheckpoint(ctx context.Context) (*Checkpoint, error)

	// SetCheckpoint saves progress. Older sequence numbers are ignored.
	SetCheckpoint(ctx context.Context, cp *Checkpoint) error
}
