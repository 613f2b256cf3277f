package pool

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"fsp-staking/internal/chain"
	"fsp-staking/internal/domain"
	"fsp-staking/internal/token"
)

const (
	day   = int64(86400)
	year  = int64(365) * day
	start = int64(1_700_000_000)
)

var (
	owner    = domain.AddressFromLabel("owner")
	alice    = domain.AddressFromLabel("alice")
	bob      = domain.AddressFromLabel("bob")
	stranger = domain.AddressFromLabel("stranger")
	admin    = domain.AddressFromLabel("admin")
	platform = domain.AddressFromLabel("platform")
	factory  = domain.AddressFromLabel("factory")
	poolAddr = domain.AddressFromLabel("pool")
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

type fakeRegistry struct {
	fees   domain.FeeSchedule
	admins map[domain.Address]bool
}

func (r *fakeRegistry) Address() domain.Address       { return factory }
func (r *fakeRegistry) Fees() domain.FeeSchedule      { return r.fees.Clone() }
func (r *fakeRegistry) IsAdmin(a domain.Address) bool { return r.admins[a] }
func (r *fakeRegistry) PlatformOwner() domain.Address { return platform }

func zeroFees() domain.FeeSchedule {
	zero := feePair(0, 0)
	return domain.FeeSchedule{
		Creation:          [4]*uint256.Int{u(0), u(0), u(0), u(0)},
		Deposit:           zero,
		Withdraw:          zero,
		EmergencyWithdraw: zero,
		Claim:             zero,
		ReflectionFeeBps:  100,
	}
}

func feePair(nonReflection, reflection uint64) domain.FeePair {
	return domain.FeePair{NonReflection: u(nonReflection), Reflection: u(reflection)}
}

type options struct {
	tier       domain.LockTier
	apy        uint64
	supply     uint64
	limit      uint64
	reflection bool
	fees       *domain.FeeSchedule
	skipFund   bool
	stakedTok  token.Token
	reflTok    token.Token
}

type harness struct {
	t      *testing.T
	env    *chain.Env
	clock  *chain.ManualClock
	reg    *fakeRegistry
	staked token.Token
	refl   token.Token
	pool   *Pool
}

func defaults() options {
	return options{tier: domain.LockNone, apy: 10, supply: 1_000_000, limit: 1_000_000}
}

func newHarness(t *testing.T, o options) *harness {
	t.Helper()
	clock := chain.NewManualClock(start)
	env := chain.NewEnv(chain.EnvOptions{Clock: clock, Logger: zerolog.Nop()})

	fees := zeroFees()
	if o.fees != nil {
		fees = *o.fees
	}
	reg := &fakeRegistry{fees: fees, admins: map[domain.Address]bool{admin: true}}

	staked := o.stakedTok
	if staked == nil {
		staked = token.NewMemory(domain.AddressFromLabel("staked"), "STK", 18)
	}
	refl := o.reflTok
	if o.reflection && refl == nil {
		refl = token.NewMemory(domain.AddressFromLabel("reflect"), "RFL", 9)
	}

	cfg := domain.PoolConfig{
		Address:           poolAddr,
		Factory:           factory,
		Owner:             owner,
		StakedToken:       staked.Address(),
		ReflectionEnabled: o.reflection,
		RewardSupply:      u(o.supply),
		APYPercent:        o.apy,
		LockTier:          o.tier,
		LimitPerUser:      u(o.limit),
		CreatedAt:         start,
	}
	if o.reflection {
		cfg.ReflectionToken = refl.Address()
	}
	p, err := New(Params{Config: cfg, Registry: reg, StakedToken: staked, ReflectionToken: refl})
	require.NoError(t, err)

	h := &harness{t: t, env: env, clock: clock, reg: reg, staked: staked, refl: refl, pool: p}

	h.mustExec(owner, nil, func(tx *chain.Tx) error {
		for _, who := range []domain.Address{owner, alice, bob, stranger} {
			if err := mint(tx, staked, who, 10_000_000); err != nil {
				return err
			}
			if err := staked.Approve(tx, who, poolAddr, u(10_000_000)); err != nil {
				return err
			}
			if err := env.Bank().Mint(tx, who, u(1_000_000)); err != nil {
				return err
			}
		}
		return nil
	})
	if !o.skipFund {
		h.mustExec(owner, nil, func(tx *chain.Tx) error { return p.Fund(tx) })
	}
	return h
}

type minter interface {
	Mint(tx *chain.Tx, to domain.Address, amount *uint256.Int) error
}

func mint(tx *chain.Tx, tok token.Token, to domain.Address, amount uint64) error {
	return tok.(minter).Mint(tx, to, u(amount))
}

func (h *harness) exec(sender domain.Address, value *uint256.Int, fn func(tx *chain.Tx) error) error {
	h.t.Helper()
	_, err := h.env.Execute(context.Background(), sender, value, fn)
	return err
}

func (h *harness) mustExec(sender domain.Address, value *uint256.Int, fn func(tx *chain.Tx) error) *chain.Receipt {
	h.t.Helper()
	r, err := h.env.Execute(context.Background(), sender, value, fn)
	require.NoError(h.t, err)
	return r
}

func (h *harness) deposit(user domain.Address, amount uint64) error {
	return h.exec(user, h.pool.DepositFee(), func(tx *chain.Tx) error { return h.pool.Deposit(tx, u(amount)) })
}

func (h *harness) withdraw(user domain.Address, amount uint64) error {
	return h.exec(user, h.pool.WithdrawFee(), func(tx *chain.Tx) error { return h.pool.Withdraw(tx, u(amount)) })
}

func (h *harness) withdrawAll(user domain.Address) error {
	return h.exec(user, h.pool.WithdrawFee(), func(tx *chain.Tx) error { return h.pool.WithdrawAll(tx) })
}

func (h *harness) claim(user domain.Address) error {
	return h.exec(user, h.pool.ClaimFee(), func(tx *chain.Tx) error { return h.pool.ClaimReward(tx) })
}

func (h *harness) emergency(user domain.Address) error {
	return h.exec(user, h.pool.EmergencyWithdrawFee(), func(tx *chain.Tx) error { return h.pool.EmergencyWithdraw(tx) })
}

func (h *harness) stop(caller domain.Address) error {
	return h.exec(caller, nil, func(tx *chain.Tx) error { return h.pool.StopReward(tx) })
}

func (h *harness) sweep(caller domain.Address) error {
	return h.exec(caller, nil, func(tx *chain.Tx) error { return h.pool.EmergencyWithdrawByOwner(tx) })
}

func (h *harness) fundReflection(amount uint64) {
	h.t.Helper()
	h.mustExec(owner, nil, func(tx *chain.Tx) error { return mint(tx, h.refl, poolAddr, amount) })
}

func (h *harness) stakedBalance(who domain.Address) uint64 {
	return h.staked.BalanceOf(who).Uint64()
}

func (h *harness) reflBalance(who domain.Address) uint64 {
	return h.refl.BalanceOf(who).Uint64()
}
