package domain

import "github.com/holiman/uint256"

// Position is one user's stake in one pool.
// A position with zero stake and zero accrued reward does not exist.
type Position struct {
	Pool             Address
	User             Address
	StakedAmount     *uint256.Int
	DepositTimestamp int64        // latest deposit, drives the lock check
	LastSettlement   int64        // reward accrued up to here
	AccruedReward    *uint256.Int // settled but unpaid reward
}

// IsEmpty reports whether the position holds neither stake nor reward.
func (p *Position) IsEmpty() bool {
	return p == nil ||
		(p.StakedAmount == nil || p.StakedAmount.IsZero()) &&
			(p.AccruedReward == nil || p.AccruedReward.IsZero())
}

// Clone returns a deep copy.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	out := *p
	out.StakedAmount = cloneOrZero(p.StakedAmount)
	out.AccruedReward = cloneOrZero(p.AccruedReward)
	return &out
}

func cloneOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
