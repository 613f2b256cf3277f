// Package pool implements a fixed-APY staking pool with optional reflection
// token distribution.
//
// Every entry point runs in its own transaction scope and is split in two
// phases. The effects phase checks the lifecycle, settles the ledger, takes
// the fee and records an outgoing settlement. The interaction phase then
// performs the token transfers. Outgoing amounts are reserved before the
// first transfer, so a token that calls back into the pool sees balances
// that already exclude what is about to leave.
//
// Pool methods touch shared state and must run inside chain.Env.Execute or
// chain.Env.View.
package pool

import (
	"fmt"

	"github.com/holiman/uint256"

	"fsp-staking/internal/domain"
	"fsp-staking/internal/ledger"
	"fsp-staking/internal/lifecycle"
	"fsp-staking/internal/reflection"
	"fsp-staking/internal/reverts"
	"fsp-staking/internal/reward"
	"fsp-staking/internal/safemath"
	"fsp-staking/internal/token"
)

// Registry is the factory as seen by its pools.
type Registry interface {
	Address() domain.Address // fee treasury
	Fees() domain.FeeSchedule
	IsAdmin(addr domain.Address) bool
	PlatformOwner() domain.Address
}

// Params are the inputs to New.
type Params struct {
	Config          domain.PoolConfig
	Registry        Registry
	StakedToken     token.Token
	ReflectionToken token.Token // required when Config.ReflectionEnabled
}

// Pool is one staking pool.
type Pool struct {
	cfg        domain.PoolConfig
	registry   Registry
	staked     token.Token
	reflection token.Token
	rate       reward.Rate
	stakeCap   *uint256.Int
	ledger     *ledger.Ledger
	life       *lifecycle.Lifecycle

	funded      bool
	outstanding map[domain.Address]*uint256.Int
}

// New creates an unfunded pool.
func New(p Params) (*Pool, error) {
	cfg := p.Config
	if !cfg.LockTier.IsValid() {
		return nil, reverts.ErrInvalidLockTier
	}
	if p.Registry == nil || p.StakedToken == nil {
		return nil, fmt.Errorf("pool %s: registry and staked token are required", cfg.Address)
	}
	if p.StakedToken.Address() != cfg.StakedToken {
		return nil, fmt.Errorf("pool %s: staked token %s does not match config %s",
			cfg.Address, p.StakedToken.Address(), cfg.StakedToken)
	}
	if !cfg.ReflectionToken.IsZero() && cfg.ReflectionToken == cfg.StakedToken {
		return nil, reverts.ErrTokensMustDiffer
	}
	var refl token.Token
	if cfg.ReflectionEnabled {
		if p.ReflectionToken == nil || p.ReflectionToken.Address() != cfg.ReflectionToken {
			return nil, fmt.Errorf("pool %s: reflection token %s not provided", cfg.Address, cfg.ReflectionToken)
		}
		refl = p.ReflectionToken
	}
	if safemath.IsZero(cfg.LimitPerUser) || safemath.IsZero(cfg.RewardSupply) {
		return nil, reverts.ErrZeroAmount
	}

	rate := reward.RateFor(cfg.APYPercent, cfg.LockTier)
	stakeCap, err := reward.MaxStake(cfg.RewardSupply, rate)
	if err != nil {
		return nil, err
	}
	cfg.RewardSupply = safemath.Copy(cfg.RewardSupply)
	cfg.LimitPerUser = safemath.Copy(cfg.LimitPerUser)

	return &Pool{
		cfg:         cfg,
		registry:    p.Registry,
		staked:      p.StakedToken,
		reflection:  refl,
		rate:        rate,
		stakeCap:    stakeCap,
		ledger:      ledger.New(cfg.Address, rate, cfg.LimitPerUser, cfg.RewardSupply),
		life:        lifecycle.New(cfg.LockTier.Duration()),
		outstanding: make(map[domain.Address]*uint256.Int),
	}, nil
}

// Address returns the pool address.
func (p *Pool) Address() domain.Address { return p.cfg.Address }

// Config returns the immutable configuration.
func (p *Pool) Config() domain.PoolConfig {
	cfg := p.cfg
	cfg.RewardSupply = safemath.Copy(p.cfg.RewardSupply)
	cfg.LimitPerUser = safemath.Copy(p.cfg.LimitPerUser)
	return cfg
}

// Funded reports whether the reward supply has been transferred in.
func (p *Pool) Funded() bool { return p.funded }

// State returns the lifecycle state as of now.
func (p *Pool) State(now int64) domain.PoolState { return p.life.StateAt(now) }

// StoppedAt returns when rewards were stopped, or nil.
func (p *Pool) StoppedAt() *int64 { return p.life.StoppedAt() }

// EndsAt returns the earliest closing time, or nil while active.
func (p *Pool) EndsAt() *int64 { return p.life.EndsAt() }

// TotalStaked returns the pool-wide stake.
func (p *Pool) TotalStaked() *uint256.Int { return p.ledger.TotalStaked() }

// MaxStake returns the total stake cap derived from the reward supply.
func (p *Pool) MaxStake() *uint256.Int { return safemath.Copy(p.stakeCap) }

// RewardBudget returns the part of the reward supply not yet settled into
// any position.
func (p *Pool) RewardBudget() *uint256.Int { return p.ledger.RewardBudget() }

// Position returns user's position, or nil.
func (p *Pool) Position(user domain.Address) *domain.Position { return p.ledger.Position(user) }

// Positions returns all open positions.
func (p *Pool) Positions() []*domain.Position { return p.ledger.Positions() }

// PendingReward returns the reward user would receive at now.
func (p *Pool) PendingReward(user domain.Address, now int64) (*uint256.Int, error) {
	return p.ledger.PendingReward(user, p.clockAt(now))
}

// PendingReflection returns the gross reflection share user would receive
// for withdrawing their whole stake now.
func (p *Pool) PendingReflection(user domain.Address) (*uint256.Int, error) {
	stake := p.ledger.StakeOf(user)
	if p.reflection == nil || stake.IsZero() {
		return safemath.Zero(), nil
	}
	return reflection.Share(stake, p.heldBalance(p.reflection), p.ledger.TotalStaked())
}

// TotalOwedReward sums every staker's pending reward at now.
func (p *Pool) TotalOwedReward(now int64) (*uint256.Int, error) {
	return p.ledger.TotalOwedReward(p.clockAt(now))
}

// DepositFee returns the native fee a deposit must carry.
func (p *Pool) DepositFee() *uint256.Int { return p.scaledFee(p.registry.Fees().Deposit) }

// WithdrawFee returns the native fee a withdrawal must carry.
func (p *Pool) WithdrawFee() *uint256.Int { return p.scaledFee(p.registry.Fees().Withdraw) }

// EmergencyWithdrawFee returns the native fee an emergency withdrawal must carry.
func (p *Pool) EmergencyWithdrawFee() *uint256.Int {
	return p.scaledFee(p.registry.Fees().EmergencyWithdraw)
}

// ClaimFee returns the native fee a claim must carry.
func (p *Pool) ClaimFee() *uint256.Int { return p.scaledFee(p.registry.Fees().Claim) }

// Snapshot returns the externally visible state at now.
func (p *Pool) Snapshot(now int64) domain.PoolSnapshot {
	return domain.PoolSnapshot{
		Config:      p.Config(),
		State:       p.life.StateAt(now),
		StoppedAt:   p.life.StoppedAt(),
		ClosedAt:    p.life.ClosedAt(),
		Funded:      p.funded,
		TotalStaked: p.ledger.TotalStaked(),
		StakerCount: p.ledger.StakerCount(),
		UpdatedAt:   now,
	}
}

// scaledFee applies the lock-tier multiplier to the base fee for this pool.
func (p *Pool) scaledFee(pair domain.FeePair) *uint256.Int {
	base := pair.For(p.cfg.ReflectionEnabled)
	fee, err := safemath.MulDiv(base, safemath.U64(p.rate.Multiplier), safemath.U64(p.rate.Denominator))
	if err != nil {
		// multiplier never exceeds the denominator
		return base
	}
	return fee
}

func (p *Pool) clockAt(now int64) ledger.Clock {
	return ledger.Clock{Now: now, StoppedAt: p.life.StoppedAt()}
}

// heldBalance is the pool's balance of tok net of reserved outgoing transfers.
func (p *Pool) heldBalance(tok token.Token) *uint256.Int {
	bal := tok.BalanceOf(p.cfg.Address)
	if out, ok := p.outstanding[tok.Address()]; ok {
		return safemath.SaturatingSub(bal, out)
	}
	return bal
}
