// Package lifecycle tracks whether a pool is accruing rewards, stopped, or
// closed for deposits.
package lifecycle

import (
	"fmt"

	"fsp-staking/internal/domain"
	"fsp-staking/internal/reverts"
)

// Journal records undo operations for the enclosing transaction.
type Journal interface {
	Record(undo func())
}

// Lifecycle is the state machine Active -> RewardsStopped -> Closed.
// Closed is entered once the lock duration has elapsed since the stop.
type Lifecycle struct {
	state        domain.PoolState
	stoppedAt    *int64
	closedAt     *int64
	lockDuration int64
}

// New returns an active lifecycle for a pool with the given lock duration.
func New(lockDuration int64) *Lifecycle {
	return &Lifecycle{state: domain.PoolActive, lockDuration: lockDuration}
}

// State returns the recorded state.
func (l *Lifecycle) State() domain.PoolState {
	return l.state
}

// StateAt returns the state as of now, including a closure that has become
// due but was not yet recorded.
func (l *Lifecycle) StateAt(now int64) domain.PoolState {
	if l.state == domain.PoolRewardsStopped && l.closeDue(now) {
		return domain.PoolClosed
	}
	return l.state
}

// StoppedAt returns the stop time, or nil while active.
func (l *Lifecycle) StoppedAt() *int64 {
	return copyPtr(l.stoppedAt)
}

// ClosedAt returns the time closure was recorded, or nil.
func (l *Lifecycle) ClosedAt() *int64 {
	return copyPtr(l.closedAt)
}

// EndsAt returns the earliest time the pool can close, or nil while active.
func (l *Lifecycle) EndsAt() *int64 {
	if l.stoppedAt == nil {
		return nil
	}
	end := *l.stoppedAt + l.lockDuration
	return &end
}

// RewardsStopped reports whether accrual has ended.
func (l *Lifecycle) RewardsStopped() bool {
	return l.state != domain.PoolActive
}

// Stop ends reward accrual at now. Returns false when already stopped.
func (l *Lifecycle) Stop(j Journal, now int64) bool {
	if l.state != domain.PoolActive {
		return false
	}
	prevState := l.state
	j.Record(func() {
		l.state = prevState
		l.stoppedAt = nil
	})
	stopped := now
	l.state = domain.PoolRewardsStopped
	l.stoppedAt = &stopped
	return true
}

// Observe records the transition to Closed when it has become due.
// Returns true when this call performed the transition.
func (l *Lifecycle) Observe(j Journal, now int64) bool {
	if l.state != domain.PoolRewardsStopped || !l.closeDue(now) {
		return false
	}
	j.Record(func() {
		l.state = domain.PoolRewardsStopped
		l.closedAt = nil
	})
	closed := now
	l.state = domain.PoolClosed
	l.closedAt = &closed
	return true
}

// CheckDeposit refuses deposits into a closed pool.
func (l *Lifecycle) CheckDeposit(now int64) error {
	if l.StateAt(now) == domain.PoolClosed {
		return reverts.ErrPoolClosed
	}
	return nil
}

// CheckSweep refuses the owner sweep until the pool is closed.
func (l *Lifecycle) CheckSweep(now int64) error {
	if l.StateAt(now) != domain.PoolClosed {
		return reverts.ErrPoolNotEnded
	}
	return nil
}

// LockApplies reports whether withdrawals must respect the lock duration.
// Once rewards are stopped the lock no longer binds.
func (l *Lifecycle) LockApplies() bool {
	return l.state == domain.PoolActive
}

// CheckLock fails when a lock-bound withdrawal comes before depositedAt plus
// the lock duration.
func (l *Lifecycle) CheckLock(depositedAt, now int64) error {
	if !l.LockApplies() {
		return nil
	}
	if now < depositedAt+l.lockDuration {
		return fmt.Errorf("unlocks at %d: %w", depositedAt+l.lockDuration, reverts.ErrLockTimeNotElapsed)
	}
	return nil
}

// Authorize checks that caller may stop rewards.
func Authorize(caller, poolOwner domain.Address, callerIsAdmin bool) error {
	if caller == poolOwner || callerIsAdmin {
		return nil
	}
	return reverts.ErrNotAuthorized
}

func (l *Lifecycle) closeDue(now int64) bool {
	return l.stoppedAt != nil && now >= *l.stoppedAt+l.lockDuration
}

func copyPtr(v *int64) *int64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
