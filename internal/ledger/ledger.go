// Package ledger keeps per-user stake positions and the pool-wide total.
//
// Every mutating operation settles the user's pending reward first, then
// changes balances, then moves the settlement point to now. Settled reward
// is drawn from a fixed budget, so the reward paid or owed never exceeds the
// pool's reward supply. Mutations are recorded in the caller's journal so a
// failed transaction leaves no trace.
package ledger

import (
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"fsp-staking/internal/domain"
	"fsp-staking/internal/reverts"
	"fsp-staking/internal/reward"
	"fsp-staking/internal/safemath"
)

// Journal records undo operations for the enclosing transaction.
type Journal interface {
	Record(undo func())
}

// Clock is the time window a ledger operation runs in.
type Clock struct {
	Now       int64
	StoppedAt *int64 // accrual ends here when set
}

// Ledger holds the positions of one pool.
type Ledger struct {
	pool         domain.Address
	rate         reward.Rate
	limitPerUser *uint256.Int
	positions    map[domain.Address]*domain.Position
	totalStaked  *uint256.Int
	budget       *uint256.Int // reward not yet settled into any position
}

// New creates an empty ledger whose settled reward is bounded by budget.
func New(pool domain.Address, rate reward.Rate, limitPerUser, budget *uint256.Int) *Ledger {
	return &Ledger{
		pool:         pool,
		rate:         rate,
		limitPerUser: safemath.Copy(limitPerUser),
		positions:    make(map[domain.Address]*domain.Position),
		totalStaked:  safemath.Zero(),
		budget:       safemath.Copy(budget),
	}
}

// WithdrawResult describes what a withdrawal pays out.
type WithdrawResult struct {
	Principal         *uint256.Int
	Reward            *uint256.Int
	TotalStakedBefore *uint256.Int
}

// Deposit adds amount to user's stake.
// stakeCap bounds the pool total; nil means unbounded.
func (l *Ledger) Deposit(j Journal, user domain.Address, amount *uint256.Int, c Clock, stakeCap *uint256.Int) error {
	if safemath.IsZero(amount) {
		return reverts.ErrZeroAmount
	}
	current := safemath.Zero()
	if pos, ok := l.positions[user]; ok {
		current = pos.StakedAmount
	}
	newStake, err := safemath.Add(current, amount)
	if err != nil {
		return err
	}
	if newStake.Gt(l.limitPerUser) {
		return fmt.Errorf("stake %s above limit %s: %w", newStake, l.limitPerUser, reverts.ErrAmountAboveLimit)
	}
	newTotal, err := safemath.Add(l.totalStaked, amount)
	if err != nil {
		return err
	}
	if stakeCap != nil && newTotal.Gt(stakeCap) {
		return fmt.Errorf("pool total %s above cap %s: %w", newTotal, stakeCap, reverts.ErrStakeCapExceeded)
	}

	pos, err := l.settle(j, user, c)
	if err != nil {
		return err
	}
	pos.StakedAmount = newStake
	pos.DepositTimestamp = c.Now
	pos.LastSettlement = c.Now
	l.setTotal(j, newTotal)
	return nil
}

// Withdraw removes amount from user's stake and pays out the full accrued
// reward. lockCheck is consulted with the latest deposit time.
func (l *Ledger) Withdraw(j Journal, user domain.Address, amount *uint256.Int, c Clock, lockCheck func(depositedAt int64) error) (WithdrawResult, error) {
	if safemath.IsZero(amount) {
		return WithdrawResult{}, reverts.ErrZeroAmount
	}
	staked := l.stakeOf(user)
	if amount.Gt(staked) {
		return WithdrawResult{}, fmt.Errorf("withdraw %s of %s: %w", amount, staked, reverts.ErrAmountTooHigh)
	}
	if lockCheck != nil {
		if err := lockCheck(l.positions[user].DepositTimestamp); err != nil {
			return WithdrawResult{}, err
		}
	}

	pos, err := l.settle(j, user, c)
	if err != nil {
		return WithdrawResult{}, err
	}
	res := WithdrawResult{
		Principal:         safemath.Copy(amount),
		Reward:            pos.AccruedReward,
		TotalStakedBefore: safemath.Copy(l.totalStaked),
	}
	pos.StakedAmount = new(uint256.Int).Sub(pos.StakedAmount, amount)
	pos.AccruedReward = safemath.Zero()
	pos.LastSettlement = c.Now
	l.setTotal(j, new(uint256.Int).Sub(l.totalStaked, amount))
	l.dropIfEmpty(user)
	return res, nil
}

// StakeOf returns a copy of user's staked amount.
func (l *Ledger) StakeOf(user domain.Address) *uint256.Int {
	return safemath.Copy(l.stakeOf(user))
}

// Claim pays out the accrued reward and keeps the stake.
func (l *Ledger) Claim(j Journal, user domain.Address, c Clock) (*uint256.Int, error) {
	if _, ok := l.positions[user]; !ok {
		return nil, reverts.ErrNothingToClaim
	}
	pos, err := l.settle(j, user, c)
	if err != nil {
		return nil, err
	}
	if pos.AccruedReward.IsZero() {
		return nil, reverts.ErrNothingToClaim
	}
	paid := pos.AccruedReward
	pos.AccruedReward = safemath.Zero()
	l.dropIfEmpty(user)
	return paid, nil
}

// EmergencyWithdraw removes the whole stake and forfeits any reward.
// Forfeited settled reward returns to the budget. The lock is not checked.
func (l *Ledger) EmergencyWithdraw(j Journal, user domain.Address) (WithdrawResult, error) {
	staked := l.stakeOf(user)
	if staked.IsZero() {
		return WithdrawResult{}, fmt.Errorf("no stake: %w", reverts.ErrZeroAmount)
	}
	l.snapshotPosition(j, user)
	if forfeited := l.positions[user].AccruedReward; !safemath.IsZero(forfeited) {
		budget, err := safemath.Add(l.budget, forfeited)
		if err != nil {
			return WithdrawResult{}, err
		}
		l.setBudget(j, budget)
	}
	res := WithdrawResult{
		Principal:         safemath.Copy(staked),
		Reward:            safemath.Zero(),
		TotalStakedBefore: safemath.Copy(l.totalStaked),
	}
	l.setTotal(j, new(uint256.Int).Sub(l.totalStaked, staked))
	delete(l.positions, user)
	return res, nil
}

// PendingReward returns settled plus not-yet-settled reward for user.
func (l *Ledger) PendingReward(user domain.Address, c Clock) (*uint256.Int, error) {
	pos, ok := l.positions[user]
	if !ok {
		return safemath.Zero(), nil
	}
	return l.pendingOf(pos, c)
}

// TotalOwedReward sums the pending reward of every position. Unsettled
// accrual counts only up to the remaining budget.
func (l *Ledger) TotalOwedReward(c Clock) (*uint256.Int, error) {
	settled := safemath.Zero()
	unsettled := safemath.Zero()
	for _, pos := range l.positions {
		p, err := reward.Pending(pos.StakedAmount, l.rate, pos.LastSettlement, c.Now, c.StoppedAt)
		if err != nil {
			return nil, err
		}
		if settled, err = safemath.Add(settled, pos.AccruedReward); err != nil {
			return nil, err
		}
		if unsettled, err = safemath.Add(unsettled, p); err != nil {
			return nil, err
		}
	}
	return safemath.Add(settled, safemath.Min(unsettled, l.budget))
}

// RetireBudget shrinks the budget to the accrual still unsettled at c and
// returns how much was released. Used once accrual has ended for good.
func (l *Ledger) RetireBudget(j Journal, c Clock) (*uint256.Int, error) {
	unsettled := safemath.Zero()
	for _, pos := range l.positions {
		p, err := reward.Pending(pos.StakedAmount, l.rate, pos.LastSettlement, c.Now, c.StoppedAt)
		if err != nil {
			return nil, err
		}
		if unsettled, err = safemath.Add(unsettled, p); err != nil {
			return nil, err
		}
	}
	keep := safemath.Min(unsettled, l.budget)
	released := new(uint256.Int).Sub(l.budget, keep)
	if !released.IsZero() {
		l.setBudget(j, keep)
	}
	return released, nil
}

// RewardBudget returns the reward that can still be settled.
func (l *Ledger) RewardBudget() *uint256.Int {
	return safemath.Copy(l.budget)
}

// Position returns a copy of user's position, or nil when none exists.
func (l *Ledger) Position(user domain.Address) *domain.Position {
	return l.positions[user].Clone()
}

// Positions returns copies of all positions ordered by user address.
func (l *Ledger) Positions() []*domain.Position {
	out := make([]*domain.Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, pos.Clone())
	}
	sort.Slice(out, func(i, k int) bool {
		return out[i].User.String() < out[k].User.String()
	})
	return out
}

// TotalStaked returns a copy of the pool-wide stake.
func (l *Ledger) TotalStaked() *uint256.Int {
	return safemath.Copy(l.totalStaked)
}

// StakerCount returns the number of open positions.
func (l *Ledger) StakerCount() int {
	return len(l.positions)
}

func (l *Ledger) stakeOf(user domain.Address) *uint256.Int {
	if pos, ok := l.positions[user]; ok {
		return pos.StakedAmount
	}
	return safemath.Zero()
}

// accrualOf is the reward pos would settle at c, capped by the budget.
func (l *Ledger) accrualOf(pos *domain.Position, c Clock) (*uint256.Int, error) {
	p, err := reward.Pending(pos.StakedAmount, l.rate, pos.LastSettlement, c.Now, c.StoppedAt)
	if err != nil {
		return nil, err
	}
	return safemath.Min(p, l.budget), nil
}

func (l *Ledger) pendingOf(pos *domain.Position, c Clock) (*uint256.Int, error) {
	p, err := l.accrualOf(pos, c)
	if err != nil {
		return nil, err
	}
	return safemath.Add(pos.AccruedReward, p)
}

// settle folds pending reward into the position, creating it when absent,
// and returns the live position for further mutation.
func (l *Ledger) settle(j Journal, user domain.Address, c Clock) (*domain.Position, error) {
	l.snapshotPosition(j, user)
	pos, ok := l.positions[user]
	if !ok {
		pos = &domain.Position{
			Pool:           l.pool,
			User:           user,
			StakedAmount:   safemath.Zero(),
			AccruedReward:  safemath.Zero(),
			LastSettlement: c.Now,
		}
		l.positions[user] = pos
	}
	grant, err := l.accrualOf(pos, c)
	if err != nil {
		return nil, err
	}
	accrued, err := safemath.Add(pos.AccruedReward, grant)
	if err != nil {
		return nil, err
	}
	if !grant.IsZero() {
		l.setBudget(j, new(uint256.Int).Sub(l.budget, grant))
	}
	pos.AccruedReward = accrued
	pos.LastSettlement = c.Now
	return pos, nil
}

func (l *Ledger) snapshotPosition(j Journal, user domain.Address) {
	prev, existed := l.positions[user]
	saved := prev.Clone()
	j.Record(func() {
		if existed {
			l.positions[user] = saved
		} else {
			delete(l.positions, user)
		}
	})
}

func (l *Ledger) setTotal(j Journal, total *uint256.Int) {
	prev := l.totalStaked
	j.Record(func() { l.totalStaked = prev })
	l.totalStaked = total
}

func (l *Ledger) setBudget(j Journal, budget *uint256.Int) {
	prev := l.budget
	j.Record(func() { l.budget = prev })
	l.budget = budget
}

func (l *Ledger) dropIfEmpty(user domain.Address) {
	if pos, ok := l.positions[user]; ok && pos.IsEmpty() {
		delete(l.positions, user)
	}
}
