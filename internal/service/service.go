// Package service runs staking transactions against the execution
// environment and persists what they commit.
//
// Every mutating call goes through Env.Execute. A commit hook captures pool
// snapshots and touched positions while the environment is still locked and
// hands them to a single persistence worker, which writes the stores in
// commit order and then publishes the events to the live feed.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"fsp-staking/internal/chain"
	"fsp-staking/internal/domain"
	"fsp-staking/internal/factory"
	"fsp-staking/internal/observability"
	"fsp-staking/internal/storage"
	"fsp-staking/internal/token"
)

// ErrClosed is returned by operations after Close.
var ErrClosed = errors.New("service closed")

// Publisher receives committed events after they are persisted.
type Publisher interface {
	Publish(events []domain.Event)
}

// Stores groups the persistence backends. Activity is optional.
type Stores struct {
	Pools       storage.PoolStore
	Positions   storage.PositionStore
	Events      storage.EventStore
	Checkpoints storage.CheckpointStore
	Activity    storage.ActivityStore
}

func (s Stores) validate() error {
	if s.Pools == nil || s.Positions == nil || s.Events == nil || s.Checkpoints == nil {
		return fmt.Errorf("pool, position, event and checkpoint stores are required")
	}
	return nil
}

// Options contains configuration for creating a Service.
type Options struct {
	Env       *chain.Env
	Tokens    *token.Registry
	Factory   *factory.Factory
	Stores    Stores
	Publisher Publisher // optional
	Metrics   *observability.Metrics
	Logger    zerolog.Logger
	QueueSize int // Default: 1024 committed transactions
}

// Service is the entry point for API handlers and scenarios.
type Service struct {
	env       *chain.Env
	tokens    *token.Registry
	factory   *factory.Factory
	stores    Stores
	publisher Publisher
	metrics   *observability.Metrics
	log       zerolog.Logger

	mu      sync.Mutex
	queue   chan commit
	closed  bool
	started bool
	done    chan struct{}

	persisted atomic.Uint64
}

// New creates a Service and registers its commit hook. Call Start before
// submitting transactions so the persistence queue drains.
func New(opts Options) (*Service, error) {
	if opts.Env == nil || opts.Tokens == nil || opts.Factory == nil {
		return nil, fmt.Errorf("service: env, token registry and factory are required")
	}
	if err := opts.Stores.validate(); err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.DefaultMetrics
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}

	s := &Service{
		env:       opts.Env,
		tokens:    opts.Tokens,
		factory:   opts.Factory,
		stores:    opts.Stores,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		log:       opts.Logger.With().Str("component", "service").Logger(),
		queue:     make(chan commit, opts.QueueSize),
		done:      make(chan struct{}),
	}
	s.persisted.Store(opts.Env.Seq())
	opts.Env.OnCommit(s.onCommit)
	return s, nil
}

// Start launches the persistence worker. Store calls use ctx.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true
	go s.run(ctx)
	s.log.Info().Int("queue", cap(s.queue)).Msg("persistence worker started")
}

// Close stops accepting commits and waits until the worker has drained the
// queue or ctx expires.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	started := s.started
	s.mu.Unlock()

	if !started {
		return nil
	}
	select {
	case <-s.done:
		s.log.Info().Uint64("persisted_seq", s.persisted.Load()).Msg("persistence worker stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain persistence queue: %w", ctx.Err())
	}
}

// Flush waits until every transaction committed so far is persisted.
func (s *Service) Flush(ctx context.Context) error {
	target := s.env.Seq()
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for s.persisted.Load() < target {
		select {
		case <-ctx.Done():
			return fmt.Errorf("flush to seq %d: %w", target, ctx.Err())
		case <-s.done:
			if s.persisted.Load() < target {
				return ErrClosed
			}
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

// PersistedSeq returns the last transaction sequence written to the stores.
func (s *Service) PersistedSeq() uint64 {
	return s.persisted.Load()
}

// Env returns the execution environment.
func (s *Service) Env() *chain.Env {
	return s.env
}

// FactoryAddress returns the address of the factory the service drives.
func (s *Service) FactoryAddress() domain.Address {
	return s.factory.Address()
}

// Stores returns the persistence backends.
func (s *Service) Stores() Stores {
	return s.stores
}
