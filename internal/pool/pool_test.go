package pool

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fsp-staking/internal/chain"
	"fsp-staking/internal/domain"
	"fsp-staking/internal/reverts"
)

func TestNew_Validation(t *testing.T) {
	h := newHarness(t, defaults())
	cfg := h.pool.Config()

	bad := cfg
	bad.LockTier = 7
	_, err := New(Params{Config: bad, Registry: h.reg, StakedToken: h.staked})
	assert.ErrorIs(t, err, reverts.ErrInvalidLockTier)

	bad = cfg
	bad.LimitPerUser = u(0)
	_, err = New(Params{Config: bad, Registry: h.reg, StakedToken: h.staked})
	assert.ErrorIs(t, err, reverts.ErrZeroAmount)

	bad = cfg
	bad.ReflectionEnabled = true
	bad.ReflectionToken = cfg.StakedToken
	_, err = New(Params{Config: bad, Registry: h.reg, StakedToken: h.staked, ReflectionToken: h.staked})
	assert.ErrorIs(t, err, reverts.ErrTokensMustDiffer)

	bad.ReflectionEnabled = false
	_, err = New(Params{Config: bad, Registry: h.reg, StakedToken: h.staked})
	assert.ErrorIs(t, err, reverts.ErrTokensMustDiffer)
}

func TestDepositAndWithdrawAfterOneYear(t *testing.T) {
	h := newHarness(t, defaults())
	before := h.stakedBalance(alice)

	require.NoError(t, h.deposit(alice, 10000))
	assert.Equal(t, uint64(10000), h.pool.TotalStaked().Uint64())
	assert.Equal(t, before-10000, h.stakedBalance(alice))

	h.clock.Advance(year)
	pending, err := h.pool.PendingReward(alice, h.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), pending.Uint64())

	require.NoError(t, h.withdrawAll(alice))
	assert.Equal(t, before+1000, h.stakedBalance(alice))
	assert.Equal(t, uint64(1_000_000-1000), h.stakedBalance(poolAddr))
	assert.Nil(t, h.pool.Position(alice))
	assert.True(t, h.pool.TotalStaked().IsZero())
}

func TestDeposit_EmitsEvent(t *testing.T) {
	h := newHarness(t, defaults())
	r := h.mustExec(alice, nil, func(tx *chain.Tx) error { return h.pool.Deposit(tx, u(500)) })

	require.Len(t, r.Events, 1)
	ev := r.Events[0]
	assert.Equal(t, domain.EventDeposit, ev.Kind)
	assert.Equal(t, poolAddr, ev.Emitter)
	assert.Equal(t, alice, ev.Actor)
	assert.Equal(t, uint64(500), ev.Amount.Uint64())
}

func TestDeposit_Rejections(t *testing.T) {
	h := newHarness(t, defaults())

	assert.ErrorIs(t, h.deposit(alice, 0), reverts.ErrZeroAmount)
	assert.ErrorIs(t, h.deposit(alice, 1_000_001), reverts.ErrAmountAboveLimit)
	require.NoError(t, h.deposit(alice, 600_000))
	assert.ErrorIs(t, h.deposit(alice, 400_001), reverts.ErrAmountAboveLimit)
}

func TestDeposit_RequiresFunding(t *testing.T) {
	o := defaults()
	o.skipFund = true
	h := newHarness(t, o)

	assert.ErrorIs(t, h.deposit(alice, 100), reverts.ErrFundingMissing)

	err := h.exec(stranger, nil, func(tx *chain.Tx) error { return h.pool.Fund(tx) })
	assert.ErrorIs(t, err, reverts.ErrNotOwner)

	h.mustExec(owner, nil, func(tx *chain.Tx) error { return h.pool.Fund(tx) })
	assert.True(t, h.pool.Funded())
	assert.Equal(t, uint64(1_000_000), h.stakedBalance(poolAddr))

	err = h.exec(owner, nil, func(tx *chain.Tx) error { return h.pool.Fund(tx) })
	assert.ErrorIs(t, err, reverts.ErrAlreadyFunded)

	require.NoError(t, h.deposit(alice, 100))
}

func TestStakeCap(t *testing.T) {
	o := defaults()
	o.supply = 1000
	h := newHarness(t, o)

	assert.Equal(t, uint64(10000), h.pool.MaxStake().Uint64())
	assert.ErrorIs(t, h.deposit(alice, 10001), reverts.ErrStakeCapExceeded)
	require.NoError(t, h.deposit(alice, 6000))
	assert.ErrorIs(t, h.deposit(bob, 4001), reverts.ErrStakeCapExceeded)
	require.NoError(t, h.deposit(bob, 4000))
}

func TestFees_ExactAndScaledByTier(t *testing.T) {
	fees := zeroFees()
	fees.Deposit = feePair(1000, 2000)
	fees.Withdraw = feePair(500, 500)
	fees.Claim = feePair(300, 300)
	o := defaults()
	o.tier = domain.LockThreeMonth
	o.fees = &fees
	h := newHarness(t, o)

	fee := h.pool.DepositFee()
	assert.Equal(t, uint64(493), fee.Uint64(), "1000 * 49310 / 100000")
	assert.Equal(t, uint64(147), h.pool.ClaimFee().Uint64())

	nativeBefore := h.env.Bank().BalanceOf(alice).Uint64()
	depositWith := func(value uint64) error {
		return h.exec(alice, u(value), func(tx *chain.Tx) error { return h.pool.Deposit(tx, u(1000)) })
	}
	assert.ErrorIs(t, depositWith(492), reverts.ErrFeeInsufficient)
	assert.ErrorIs(t, depositWith(494), reverts.ErrFeeInsufficient)
	assert.ErrorIs(t, depositWith(0), reverts.ErrFeeInsufficient)
	assert.Equal(t, nativeBefore, h.env.Bank().BalanceOf(alice).Uint64(), "failed deposits refund the payment")

	require.NoError(t, depositWith(493))
	assert.Equal(t, uint64(493), h.env.Bank().BalanceOf(factory).Uint64())

	h.clock.Advance(30 * day)
	err := h.exec(alice, u(148), func(tx *chain.Tx) error { return h.pool.ClaimReward(tx) })
	assert.ErrorIs(t, err, reverts.ErrClaimFeeInsufficient)
	require.NoError(t, h.claim(alice))
	assert.Equal(t, uint64(493+147), h.env.Bank().BalanceOf(factory).Uint64())
}

func TestFees_ReflectionPoolsUseReflectionFee(t *testing.T) {
	fees := zeroFees()
	fees.Deposit = feePair(1000, 2000)
	o := defaults()
	o.reflection = true
	o.fees = &fees
	h := newHarness(t, o)

	assert.Equal(t, uint64(2000), h.pool.DepositFee().Uint64())
}

func TestWithdraw_LockTime(t *testing.T) {
	o := defaults()
	o.tier = domain.LockThreeMonth
	h := newHarness(t, o)

	require.NoError(t, h.deposit(alice, 1000))
	h.clock.Advance(89 * day)
	assert.ErrorIs(t, h.withdraw(alice, 1000), reverts.ErrLockTimeNotElapsed)

	h.clock.Advance(day)
	require.NoError(t, h.withdraw(alice, 1000))
}

func TestWithdraw_LockResetsOnDeposit(t *testing.T) {
	o := defaults()
	o.tier = domain.LockThreeMonth
	h := newHarness(t, o)

	require.NoError(t, h.deposit(alice, 1000))
	h.clock.Advance(80 * day)
	require.NoError(t, h.deposit(alice, 1000))
	h.clock.Advance(20 * day)
	assert.ErrorIs(t, h.withdraw(alice, 500), reverts.ErrLockTimeNotElapsed)
}

func TestWithdraw_LockLiftedAfterStop(t *testing.T) {
	o := defaults()
	o.tier = domain.LockTwelveMonth
	h := newHarness(t, o)

	require.NoError(t, h.deposit(alice, 1000))
	h.clock.Advance(10 * day)
	require.NoError(t, h.stop(owner))
	require.NoError(t, h.withdrawAll(alice))
}

func TestWithdraw_Rejections(t *testing.T) {
	fees := zeroFees()
	fees.Withdraw = feePair(50, 50)
	o := defaults()
	o.fees = &fees
	h := newHarness(t, o)
	require.NoError(t, h.deposit(alice, 1000))

	assert.ErrorIs(t, h.withdraw(alice, 1001), reverts.ErrAmountTooHigh)
	assert.ErrorIs(t, h.withdraw(alice, 0), reverts.ErrZeroAmount)
	assert.ErrorIs(t, h.withdrawAll(bob), reverts.ErrZeroAmount)

	err := h.exec(alice, u(49), func(tx *chain.Tx) error { return h.pool.Withdraw(tx, u(10)) })
	assert.ErrorIs(t, err, reverts.ErrFeeInsufficient)
}

func TestStopReward(t *testing.T) {
	o := defaults()
	o.tier = domain.LockThreeMonth
	h := newHarness(t, o)
	require.NoError(t, h.deposit(alice, 10000))

	h.clock.Advance(73 * day)
	assert.ErrorIs(t, h.stop(stranger), reverts.ErrNotAuthorized)
	require.NoError(t, h.stop(admin))
	stoppedAt := *h.pool.StoppedAt()
	assert.Equal(t, h.clock.Now(), stoppedAt)
	assert.Equal(t, domain.PoolRewardsStopped, h.pool.State(h.clock.Now()))

	h.clock.Advance(day)
	require.NoError(t, h.stop(owner), "stopping twice is a no-op")
	assert.Equal(t, stoppedAt, *h.pool.StoppedAt())

	// 10000 * 10% * 0.4931 * 73/365
	h.clock.Advance(200 * day)
	pending, err := h.pool.PendingReward(alice, h.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, uint64(98), pending.Uint64())
}

func TestStopReward_EventsOnce(t *testing.T) {
	o := defaults()
	o.tier = domain.LockSixMonth
	h := newHarness(t, o)

	r := h.mustExec(owner, nil, func(tx *chain.Tx) error { return h.pool.StopReward(tx) })
	require.Len(t, r.Events, 1)
	assert.Equal(t, domain.EventRewardStopped, r.Events[0].Kind)

	r = h.mustExec(owner, nil, func(tx *chain.Tx) error { return h.pool.StopReward(tx) })
	assert.Empty(t, r.Events)
}

func TestClosedPool(t *testing.T) {
	o := defaults()
	o.tier = domain.LockThreeMonth
	h := newHarness(t, o)
	require.NoError(t, h.deposit(alice, 1000))
	require.NoError(t, h.stop(owner))

	h.clock.Advance(90*day - 1)
	assert.Equal(t, domain.PoolRewardsStopped, h.pool.State(h.clock.Now()))
	require.NoError(t, h.deposit(bob, 10), "deposits still allowed before closure")

	h.clock.Advance(1)
	assert.Equal(t, domain.PoolClosed, h.pool.State(h.clock.Now()))
	assert.ErrorIs(t, h.deposit(bob, 10), reverts.ErrPoolClosed)

	require.NoError(t, h.withdrawAll(alice), "withdrawals stay open")
	require.NoError(t, h.emergency(bob))
}

func TestClaimReward(t *testing.T) {
	h := newHarness(t, defaults())
	assert.ErrorIs(t, h.claim(alice), reverts.ErrNothingToClaim)

	require.NoError(t, h.deposit(alice, 10000))
	before := h.stakedBalance(alice)
	h.clock.Advance(year / 2)
	require.NoError(t, h.claim(alice))
	assert.Equal(t, before+500, h.stakedBalance(alice))

	pos := h.pool.Position(alice)
	require.NotNil(t, pos)
	assert.Equal(t, uint64(10000), pos.StakedAmount.Uint64())
	assert.True(t, pos.AccruedReward.IsZero())
	assert.ErrorIs(t, h.claim(alice), reverts.ErrNothingToClaim)
}

func TestReflectionDistribution(t *testing.T) {
	o := defaults()
	o.reflection = true
	h := newHarness(t, o)

	require.NoError(t, h.deposit(alice, 6000))
	require.NoError(t, h.deposit(bob, 4000))
	h.fundReflection(1000)

	require.NoError(t, h.withdraw(alice, 3000))
	assert.Equal(t, uint64(297), h.reflBalance(alice))
	assert.Equal(t, uint64(3), h.reflBalance(platform))

	pending, err := h.pool.PendingReflection(alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), pending.Uint64())

	require.NoError(t, h.withdrawAll(bob))
	assert.Equal(t, uint64(396), h.reflBalance(bob))

	require.NoError(t, h.withdrawAll(alice))
	assert.Equal(t, uint64(297+297), h.reflBalance(alice), "last staker takes the rest")
	assert.Equal(t, uint64(10), h.reflBalance(platform))
	assert.Zero(t, h.reflBalance(poolAddr))
}

func TestEmergencyWithdraw(t *testing.T) {
	o := defaults()
	o.tier = domain.LockThreeMonth
	o.reflection = true
	h := newHarness(t, o)

	before := h.stakedBalance(alice)
	require.NoError(t, h.deposit(alice, 10000))
	require.NoError(t, h.deposit(bob, 10000))
	h.fundReflection(1000)
	h.clock.Advance(10 * day)

	require.NoError(t, h.emergency(alice))
	assert.Equal(t, before, h.stakedBalance(alice), "principal only, reward forfeited")
	assert.Equal(t, uint64(495), h.reflBalance(alice))
	assert.Nil(t, h.pool.Position(alice))
	assert.Equal(t, uint64(10000), h.pool.TotalStaked().Uint64())

	pending, err := h.pool.PendingReward(bob, h.clock.Now())
	require.NoError(t, err)
	assert.False(t, pending.IsZero())

	assert.ErrorIs(t, h.emergency(alice), reverts.ErrZeroAmount)
}

func TestOwnerSweep(t *testing.T) {
	o := defaults()
	o.reflection = true
	h := newHarness(t, o)

	require.NoError(t, h.deposit(alice, 10000))
	h.fundReflection(500)

	assert.ErrorIs(t, h.sweep(owner), reverts.ErrPoolNotEnded)

	h.clock.Advance(year)
	require.NoError(t, h.stop(owner))
	assert.ErrorIs(t, h.sweep(stranger), reverts.ErrNotOwner)

	ownerBefore := h.stakedBalance(owner)
	require.NoError(t, h.sweep(owner))
	// pool holds 1,010,000: 10,000 principal and 1,000 owed reward stay
	assert.Equal(t, ownerBefore+999_000, h.stakedBalance(owner))
	assert.Zero(t, h.reflBalance(owner), "reflection stays while stake remains")

	require.NoError(t, h.sweep(owner))
	assert.Equal(t, ownerBefore+999_000, h.stakedBalance(owner), "second sweep pays nothing")

	aliceBefore := h.stakedBalance(alice)
	require.NoError(t, h.withdrawAll(alice))
	assert.Equal(t, aliceBefore+11000, h.stakedBalance(alice))
	assert.Equal(t, uint64(495), h.reflBalance(alice))

	h.fundReflection(300)
	require.NoError(t, h.sweep(owner))
	assert.Equal(t, uint64(300), h.reflBalance(owner))
	assert.Zero(t, h.stakedBalance(poolAddr))
}

func TestFailedDepositLeavesNoTrace(t *testing.T) {
	fees := zeroFees()
	fees.Deposit = feePair(100, 100)
	o := defaults()
	o.fees = &fees
	h := newHarness(t, o)

	h.mustExec(alice, nil, func(tx *chain.Tx) error { return h.staked.Approve(tx, alice, poolAddr, u(0)) })
	nativeBefore := h.env.Bank().BalanceOf(alice)
	tokensBefore := h.stakedBalance(alice)

	err := h.deposit(alice, 1000)
	assert.ErrorIs(t, err, reverts.ErrInsufficientAllowance)
	assert.Equal(t, "InsufficientAllowance", reverts.Code(err))

	assert.Nil(t, h.pool.Position(alice))
	assert.True(t, h.pool.TotalStaked().IsZero())
	assert.Equal(t, nativeBefore, h.env.Bank().BalanceOf(alice))
	assert.True(t, h.env.Bank().BalanceOf(factory).IsZero())
	assert.Equal(t, tokensBefore, h.stakedBalance(alice))
}

func TestSnapshot(t *testing.T) {
	h := newHarness(t, defaults())
	require.NoError(t, h.deposit(alice, 10))
	require.NoError(t, h.deposit(bob, 20))

	snap := h.pool.Snapshot(h.clock.Now())
	assert.Equal(t, domain.PoolActive, snap.State)
	assert.True(t, snap.Funded)
	assert.Equal(t, 2, snap.StakerCount)
	assert.Equal(t, uint256.NewInt(30), snap.TotalStaked)
	assert.Nil(t, snap.StoppedAt)
	assert.Equal(t, poolAddr, snap.Config.Address)
}

func TestRewardBoundedBySupply(t *testing.T) {
	o := defaults()
	o.supply = 1000
	o.limit = 10000
	h := newHarness(t, o)
	require.Equal(t, uint64(10000), h.pool.MaxStake().Uint64())

	aliceBefore := h.stakedBalance(alice)
	bobBefore := h.stakedBalance(bob)
	require.NoError(t, h.deposit(alice, 5000))
	require.NoError(t, h.deposit(bob, 5000))

	// three years owe 3000 against a supply of 1000
	h.clock.Advance(3 * year)
	owed, err := h.pool.TotalOwedReward(h.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), owed.Uint64())

	require.NoError(t, h.withdrawAll(alice))
	assert.Equal(t, aliceBefore+1000, h.stakedBalance(alice), "reward capped at the remaining supply")
	assert.True(t, h.pool.RewardBudget().IsZero())
	assert.Equal(t, uint64(5000), h.stakedBalance(poolAddr))
	assert.Equal(t, uint64(5000), h.pool.TotalStaked().Uint64())

	pending, err := h.pool.PendingReward(bob, h.clock.Now())
	require.NoError(t, err)
	assert.True(t, pending.IsZero())

	require.NoError(t, h.emergency(bob))
	assert.Equal(t, bobBefore, h.stakedBalance(bob), "principal is always recoverable")
	assert.Zero(t, h.stakedBalance(poolAddr))
}

func TestRewardBoundedBySupply_WithdrawKeepsPrincipal(t *testing.T) {
	o := defaults()
	o.supply = 1000
	o.limit = 10000
	h := newHarness(t, o)

	bobBefore := h.stakedBalance(bob)
	require.NoError(t, h.deposit(alice, 5000))
	require.NoError(t, h.deposit(bob, 5000))
	h.clock.Advance(3 * year)

	require.NoError(t, h.withdrawAll(alice))
	require.NoError(t, h.withdrawAll(bob))
	assert.Equal(t, bobBefore, h.stakedBalance(bob))
	assert.Zero(t, h.stakedBalance(poolAddr))
}

func TestDepositSeveralTimes(t *testing.T) {
	o := defaults()
	o.apy = 20
	h := newHarness(t, o)
	before := h.stakedBalance(alice)

	require.NoError(t, h.deposit(alice, 1000))
	h.clock.Advance(10 * day)
	pending, err := h.pool.PendingReward(alice, h.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, uint64(5), pending.Uint64())

	require.NoError(t, h.deposit(alice, 2000))
	h.clock.Advance(355 * day)

	// 5 settled plus floor(3000*0.2*355/365)
	pending, err = h.pool.PendingReward(alice, h.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, uint64(588), pending.Uint64())

	// one deposit carrying the same stake-seconds: floor(589.04)
	exact := (1000*10*day + 3000*355*day) * 20 / (100 * year)
	assert.InDelta(t, exact, int64(pending.Uint64()), 1, "one settlement boundary loses at most one unit")

	require.NoError(t, h.withdrawAll(alice))
	assert.Equal(t, before+588, h.stakedBalance(alice))
}
