package service

import (
	"context"
	"errors"
	"time"

	"fsp-staking/internal/chain"
	"fsp-staking/internal/domain"
	"fsp-staking/internal/storage"
)

// commit is a committed transaction plus the pool state it left behind,
// captured before the next transaction can run.
type commit struct {
	receipt   chain.Receipt
	pools     []domain.PoolSnapshot
	positions []*domain.Position
	removed   []positionKey
}

type positionKey struct {
	pool, user domain.Address
}

// onCommit runs under the environment lock.
func (s *Service) onCommit(r chain.Receipt) {
	c := s.capture(r)

	kinds := make([]string, len(r.Events))
	for i, ev := range r.Events {
		kinds[i] = ev.Kind.String()
		if ev.Kind == domain.EventPoolCreated {
			s.metrics.PoolsDeployed.Inc()
		}
	}
	s.metrics.RecordCommit(r.Seq, r.Timestamp, kinds)
	s.metrics.PoolsActive.Set(float64(s.activePools(r.Timestamp)))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.log.Warn().Uint64("seq", r.Seq).Msg("commit after close, not persisted")
		return
	}
	// A full queue holds the environment lock until the worker catches up.
	s.queue <- c
	s.metrics.PersistQueueDepth.Set(float64(len(s.queue)))
}

// capture snapshots every pool the receipt touched and the positions of the
// accounts that acted on them.
func (s *Service) capture(r chain.Receipt) commit {
	c := commit{receipt: r}
	touched := make(map[domain.Address]map[domain.Address]bool)
	var order []domain.Address
	for _, ev := range r.Events {
		addr := ev.Emitter
		if ev.Kind == domain.EventPoolCreated {
			addr = ev.Subject
		}
		if _, err := s.factory.Pool(addr); err != nil {
			continue
		}
		users, ok := touched[addr]
		if !ok {
			users = make(map[domain.Address]bool)
			touched[addr] = users
			order = append(order, addr)
		}
		if ev.Emitter == addr && !ev.Actor.IsZero() {
			users[ev.Actor] = true
		}
	}

	for _, addr := range order {
		p, err := s.factory.Pool(addr)
		if err != nil {
			continue
		}
		c.pools = append(c.pools, p.Snapshot(r.Timestamp))
		for user := range touched[addr] {
			pos := p.Position(user)
			if pos.IsEmpty() {
				c.removed = append(c.removed, positionKey{pool: addr, user: user})
				continue
			}
			c.positions = append(c.positions, pos)
		}
	}
	return c
}

func (s *Service) activePools(now int64) int {
	n := 0
	for _, p := range s.factory.Pools() {
		if p.State(now) == domain.PoolActive {
			n++
		}
	}
	return n
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)
	for c := range s.queue {
		s.metrics.PersistQueueDepth.Set(float64(len(s.queue)))
		s.persist(ctx, c)
	}
}

// persist writes one commit. Store failures are logged and counted; the
// committed ledger state is never rolled back because of them.
func (s *Service) persist(ctx context.Context, c commit) {
	start := time.Now()
	seq := c.receipt.Seq
	failed := ""
	fail := func(store string, err error) {
		if failed == "" {
			failed = store
		}
		s.log.Error().Err(err).Uint64("seq", seq).Str("store", store).Msg("persist failed")
	}

	for i := range c.pools {
		if err := s.stores.Pools.Upsert(ctx, &c.pools[i]); err != nil {
			fail("pools", err)
		}
	}
	for _, pos := range c.positions {
		if err := s.stores.Positions.Upsert(ctx, pos); err != nil {
			fail("positions", err)
		}
	}
	for _, k := range c.removed {
		if err := s.stores.Positions.Delete(ctx, k.pool, k.user); err != nil {
			fail("positions", err)
		}
	}

	if len(c.receipt.Events) > 0 {
		events := make([]*domain.Event, len(c.receipt.Events))
		for i := range c.receipt.Events {
			events[i] = &c.receipt.Events[i]
		}
		// Duplicates mean the transaction was already persisted.
		if err := s.stores.Events.InsertBulk(ctx, events); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			fail("events", err)
		}

		if s.stores.Activity != nil {
			var activity []*domain.Event
			for _, ev := range events {
				if storage.IsActivity(ev.Kind) {
					activity = append(activity, ev)
				}
			}
			if len(activity) > 0 {
				if err := s.stores.Activity.InsertBulk(ctx, activity); err != nil {
					fail("activity", err)
				}
			}
		}
	}

	if failed == "" {
		cp := &storage.Checkpoint{Seq: seq, Timestamp: c.receipt.Timestamp}
		if err := s.stores.Checkpoints.SetCheckpoint(ctx, cp); err != nil {
			fail("checkpoint", err)
		}
	}

	s.metrics.RecordPersist(seq, time.Since(start).Seconds(), failed)
	s.persisted.Store(seq)

	if s.publisher != nil && len(c.receipt.Events) > 0 {
		s.publisher.Publish(c.receipt.Events)
	}
	s.log.Debug().
		Uint64("seq", seq).
		Int("events", len(c.receipt.Events)).
		Int("pools", len(c.pools)).
		Dur("took", time.Since(start)).
		Msg("persisted")
}
