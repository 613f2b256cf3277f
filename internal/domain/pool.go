package domain

import "github.com/holiman/uint256"

// PoolState is the lifecycle state of a pool.
type PoolState string

const (
	PoolActive         PoolState = "ACTIVE"
	PoolRewardsStopped PoolState = "REWARDS_STOPPED"
	PoolClosed         PoolState = "CLOSED"
)

// String returns the string representation of PoolState.
func (s PoolState) String() string {
	return string(s)
}

// IsValid checks if the state is a valid value.
func (s PoolState) IsValid() bool {
	return s == PoolActive || s == PoolRewardsStopped || s == PoolClosed
}

// PoolConfig is fixed at deployment.
// Corresponds to the immutable columns of the pools table.
type PoolConfig struct {
	Address           Address      // derived, off-curve
	Factory           Address      // deploying factory
	Owner             Address      // deployer
	StakedToken       Address      // also the reward token
	ReflectionToken   Address      // zero when reflection is disabled
	ReflectionEnabled bool         //
	RewardSupply      *uint256.Int // reward tokens funded at deployment
	APYPercent        uint64       // whole percent
	LockTier          LockTier     // immutable
	LimitPerUser      *uint256.Int // max cumulative stake per user
	CreatedAt         int64        // Unix seconds
}

// RewardToken returns the token rewards are paid in.
func (c PoolConfig) RewardToken() Address {
	return c.StakedToken
}

// PoolSnapshot is the externally visible state of a pool after a transaction.
type PoolSnapshot struct {
	Config      PoolConfig
	State       PoolState
	StoppedAt   *int64 // nil while active
	ClosedAt    *int64 // nil until closure is observed
	Funded      bool
	TotalStaked *uint256.Int
	StakerCount int
	UpdatedAt   int64
}

// Clone returns a deep copy.
func (s *PoolSnapshot) Clone() *PoolSnapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Config.RewardSupply = cloneOrZero(s.Config.RewardSupply)
	out.Config.LimitPerUser = cloneOrZero(s.Config.LimitPerUser)
	out.TotalStaked = cloneOrZero(s.TotalStaked)
	if s.StoppedAt != nil {
		v := *s.StoppedAt
		out.StoppedAt = &v
	}
	if s.ClosedAt != nil {
		v := *s.ClosedAt
		out.ClosedAt = &v
	}
	return &out
}
