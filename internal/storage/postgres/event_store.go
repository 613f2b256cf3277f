package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"fsp-staking/internal/domain"
	"fsp-staking/internal/storage"
)

// EventStore implements storage.EventStore using PostgreSQL.
type EventStore struct {
	pool *Pool
}

// NewEventStore creates a new EventStore.
func NewEventStore(pool *Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

const eventColumns = `
	event_id, kind, emitter, actor, subject,
	amount, reward, reflection, fee, tx_seq, log_index, block_time`

const insertEventQuery = `
	INSERT INTO pool_events (` + eventColumns + `
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`

func eventArgs(e *domain.Event) []any {
	return []any{
		e.EventID,
		string(e.Kind),
		addrText(e.Emitter),
		addrText(e.Actor),
		addrText(e.Subject),
		numeric(e.Amount),
		numeric(e.Reward),
		numeric(e.Reflection),
		numeric(e.Fee),
		int64(e.TxSeq),
		e.LogIndex,
		e.Timestamp,
	}
}

// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
func (s *EventStore) Insert(ctx context.Context, e *domain.Event) (err error) {
	if e == nil || e.EventID == "" {
		return storage.ErrInvalidInput
	}
	defer observe("insert_event", time.Now(), &err)

	_, err = s.pool.Exec(ctx, insertEventQuery, eventArgs(e)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
func (s *EventStore) InsertBulk(ctx context.Context, events []*domain.Event) (err error) {
	if len(events) == 0 {
		return nil
	}
	for _, e := range events {
		if e == nil || e.EventID == "" {
			return storage.ErrInvalidInput
		}
	}
	defer observe("insert_events_bulk", time.Now(), &err)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(insertEventQuery, eventArgs(e)...)
	}

	br := tx.SendBatch(ctx, batch)
	for range events {
		if _, err := br.Exec(); err != nil {
			br.Close()
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert event batch: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetByEmitter retrieves events of a pool or the factory ordered by (tx_seq, log_index).
func (s *EventStore) GetByEmitter(ctx context.Context, emitter domain.Address) (_ []*domain.Event, err error) {
	defer observe("get_events_by_emitter", time.Now(), &err)

	query := `SELECT ` + eventColumns + `
		FROM pool_events
		WHERE emitter = $1
		ORDER BY tx_seq ASC, log_index ASC`

	rows, err := s.pool.Query(ctx, query, emitter.String())
	if err != nil {
		return nil, fmt.Errorf("get events by emitter: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetByTimeRange retrieves events with block_time in [start, end] (inclusive).
func (s *EventStore) GetByTimeRange(ctx context.Context, start, end int64) (_ []*domain.Event, err error) {
	defer observe("get_events_by_time_range", time.Now(), &err)

	query := `SELECT ` + eventColumns + `
		FROM pool_events
		WHERE block_time >= $1 AND block_time <= $2
		ORDER BY tx_seq ASC, log_index ASC`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get events by time range: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]*domain.Event, error) {
	var events []*domain.Event

	for rows.Next() {
		var (
			e                               domain.Event
			kind, emitter, actor, subject   string
			amount, reward, reflection, fee pgtype.Numeric
			seq                             int64
		)
		err := rows.Scan(
			&e.EventID, &kind, &emitter, &actor, &subject,
			&amount, &reward, &reflection, &fee, &seq, &e.LogIndex, &e.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}

		e.Kind = domain.EventKind(kind)
		e.TxSeq = uint64(seq)
		if e.Emitter, err = parseAddr(emitter); err != nil {
			return nil, fmt.Errorf("event %s emitter: %w", e.EventID, err)
		}
		if e.Actor, err = parseAddr(actor); err != nil {
			return nil, fmt.Errorf("event %s actor: %w", e.EventID, err)
		}
		if e.Subject, err = parseAddr(subject); err != nil {
			return nil, fmt.Errorf("event %s subject: %w", e.EventID, err)
		}
		for _, f := range []struct {
			dst **uint256.Int
			src pgtype.Numeric
		}{
			{&e.Amount, amount}, {&e.Reward, reward}, {&e.Reflection, reflection}, {&e.Fee, fee},
		} {
			if *f.dst, err = fromNumeric(f.src); err != nil {
				return nil, fmt.Errorf("event %s: %w", e.EventID, err)
			}
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}

	return events, nil
}
