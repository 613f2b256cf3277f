// Package chain is the execution environment pools run in.
//
// Transactions are serialized. Each one runs against an undo journal: state
// owners (tokens, the native bank, the factory, pools) record an undo entry
// before they mutate, and a failing call scope replays those entries in
// reverse. Events are buffered per transaction and handed to commit hooks
// only after the transaction succeeds.
package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"fsp-staking/internal/domain"
	"fsp-staking/internal/safemath"
)

// Receipt describes a committed transaction.
type Receipt struct {
	Seq       uint64
	Sender    domain.Address
	Value     *uint256.Int
	Timestamp int64
	Events    []domain.Event
}

// CommitHook observes committed transactions in commit order. Hooks run
// while the environment is locked and must not call back into the Env.
type CommitHook func(Receipt)

// EnvOptions configures an Env.
type EnvOptions struct {
	Clock  Clock
	Bank   *Bank
	Logger zerolog.Logger
}

// Env serializes transactions over shared state.
type Env struct {
	mu     sync.Mutex
	clock  Clock
	bank   *Bank
	seq    uint64
	hooks  []CommitHook
	logger zerolog.Logger
}

// NewEnv creates an environment. Unset options get defaults: the system
// clock and an empty bank.
func NewEnv(opts EnvOptions) *Env {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Bank == nil {
		opts.Bank = NewBank()
	}
	return &Env{
		clock:  opts.Clock,
		bank:   opts.Bank,
		logger: opts.Logger,
	}
}

// Bank returns the native-currency bank.
func (e *Env) Bank() *Bank {
	return e.bank
}

// Clock returns the environment clock.
func (e *Env) Clock() Clock {
	return e.clock
}

// Seq returns the sequence number of the last committed transaction.
func (e *Env) Seq() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seq
}

// OnCommit registers a hook called after every committed transaction.
func (e *Env) OnCommit(h CommitHook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hooks = append(e.hooks, h)
}

// Execute runs fn as one transaction from sender with value attached.
// The value is escrowed from sender's native balance and must be consumed
// exactly by a fee payment. Any error reverts every effect of fn.
func (e *Env) Execute(ctx context.Context, sender domain.Address, value *uint256.Int, fn func(tx *Tx) error) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if value == nil {
		value = safemath.Zero()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	tx := &Tx{
		ctx:     ctx,
		env:     e,
		seq:     e.seq + 1,
		origin:  sender,
		senders: []domain.Address{sender},
		now:     e.clock.Now(),
		value:   safemath.Zero(),
	}

	err := tx.Call(func() error {
		if !value.IsZero() {
			if err := e.bank.debit(tx, sender, value); err != nil {
				return fmt.Errorf("escrow payment: %w", err)
			}
			tx.value = safemath.Copy(value)
		}
		if err := fn(tx); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return tx.checkUnconsumed()
	})
	if err != nil {
		e.logger.Debug().
			Uint64("seq", tx.seq).
			Str("sender", sender.String()).
			Err(err).
			Msg("transaction reverted")
		return nil, err
	}

	e.seq = tx.seq
	receipt := Receipt{
		Seq:       tx.seq,
		Sender:    sender,
		Value:     safemath.Copy(value),
		Timestamp: tx.now,
		Events:    tx.events,
	}
	for _, h := range e.hooks {
		h(receipt)
	}
	return &receipt, nil
}

// View runs a read-only closure under the transaction lock with the current
// block time. Nothing fn does is journaled.
func (e *Env) View(ctx context.Context, fn func(now int64) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.clock.Now())
}
