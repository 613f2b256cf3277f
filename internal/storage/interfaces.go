package storage

import (
	"context"

	"fsp-staking/internal/domain"
)

// PoolStore provides access to pools storage.
// Rows are mutable: every committed transaction that touches a pool upserts it.
type PoolStore interface {
	// Upsert inserts or replaces the snapshot keyed by pool address.
	Upsert(ctx context.Context, p *domain.PoolSnapshot) error

	// Get retrieves a pool by address. Returns ErrNotFound if not exists.
	Get(ctx context.Context, addr domain.Address) (*domain.PoolSnapshot, error)

	// List retrieves all pools ordered by created_at ASC, address ASC.
	List(ctx context.Context) ([]*domain.PoolSnapshot, error)

	// ListByOwner retrieves pools deployed by owner in List order.
	ListByOwner(ctx context.Context, owner domain.Address) ([]*domain.PoolSnapshot, error)
}

// PositionStore provides access to positions storage.
type PositionStore interface {
	// Upsert inserts or replaces a position keyed by (pool, user).
	// An empty position is deleted instead.
	Upsert(ctx context.Context, p *domain.Position) error

	// Delete removes a position. Deleting a missing position is not an error.
	Delete(ctx context.Context, pool, user domain.Address) error

	// Get retrieves a position. Returns ErrNotFound if not exists.
	Get(ctx context.Context, pool, user domain.Address) (*domain.Position, error)

	// ListByPool retrieves all positions of a pool ordered by user.
	ListByPool(ctx context.Context, pool domain.Address) ([]*domain.Position, error)

	// ListByUser retrieves all positions of a user ordered by pool.
	ListByUser(ctx context.Context, user domain.Address) ([]*domain.Position, error)
}

// EventStore provides access to pool_events storage.
type EventStore interface {
	// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
	Insert(ctx context.Context, e *domain.Event) error

	// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, events []*domain.Event) error

	// GetByEmitter retrieves events of a pool or the factory ordered by (tx_seq, log_index) ASC.
	GetByEmitter(ctx context.Context, emitter domain.Address) ([]*domain.Event, error)

	// GetByTimeRange retrieves events with timestamp in [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.Event, error)
}

// ActivityStore provides access to the staking_activity analytics table.
type ActivityStore interface {
	// InsertBulk appends events. Rows already present by event_id are skipped.
	InsertBulk(ctx context.Context, events []*domain.Event) error

	// DailyByPool aggregates a pool's activity per UTC day within [start, end].
	DailyByPool(ctx context.Context, pool domain.Address, start, end int64) ([]*DailyActivity, error)
}

// DailyActivity is one day of aggregated activity for a pool.
// Amounts are decimal strings in base units.
type DailyActivity struct {
	Pool        domain.Address `json:"pool"`
	Day         int64          `json:"day"` // Unix seconds at 00:00 UTC
	Deposits    uint64         `json:"deposits"`
	Withdrawals uint64         `json:"withdrawals"`
	Claims      uint64         `json:"claims"`
	Emergencies uint64         `json:"emergencies"`
	Staked      string         `json:"staked"`
	Unstaked    string         `json:"unstaked"`
	Rewards     string         `json:"rewards"`
	Reflections string         `json:"reflections"`
	Fees        string         `json:"fees"`
}
