package verification

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fsp-staking/internal/domain"
	"fsp-staking/internal/storage/memory"
)

var (
	poolAddr = domain.AddressFromLabel("pool")
	alice    = domain.AddressFromLabel("alice")
	bob      = domain.AddressFromLabel("bob")
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func ev(seq uint64, kind domain.EventKind, actor domain.Address, amount uint64) *domain.Event {
	return &domain.Event{
		EventID:   string(kind) + "-" + actor.Short() + "-" + uint256.NewInt(seq).Dec(),
		Kind:      kind,
		Emitter:   poolAddr,
		Actor:     actor,
		Amount:    u(amount),
		TxSeq:     seq,
		Timestamp: int64(seq),
	}
}

type fixture struct {
	pools     *memory.PoolStore
	positions *memory.PositionStore
	events    *memory.EventStore
	v         *Verifier
}

func newFixture(t *testing.T, total uint64, stakers int, positions map[domain.Address]uint64, events ...*domain.Event) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		pools:     memory.NewPoolStore(),
		positions: memory.NewPositionStore(),
		events:    memory.NewEventStore(),
	}
	require.NoError(t, f.pools.Upsert(ctx, &domain.PoolSnapshot{
		Config:      domain.PoolConfig{Address: poolAddr, RewardSupply: u(1000), LimitPerUser: u(1000)},
		State:       domain.PoolActive,
		TotalStaked: u(total),
		StakerCount: stakers,
	}))
	for user, amt := range positions {
		require.NoError(t, f.positions.Upsert(ctx, &domain.Position{Pool: poolAddr, User: user, StakedAmount: u(amt), AccruedReward: u(0)}))
	}
	require.NoError(t, f.events.InsertBulk(ctx, events))
	f.v = New(f.pools, f.positions, f.events)
	return f
}

func TestReplay(t *testing.T) {
	stakes, err := Replay([]*domain.Event{
		ev(1, domain.EventDeposit, alice, 100),
		ev(2, domain.EventDeposit, bob, 50),
		ev(3, domain.EventWithdraw, alice, 30),
		ev(4, domain.EventEmergencyWithdraw, bob, 50),
		ev(5, domain.EventOwnerSweep, alice, 999),
	})
	require.NoError(t, err)
	require.Len(t, stakes, 1)
	assert.Equal(t, uint64(70), stakes[alice].Uint64())
}

func TestReplay_Underflow(t *testing.T) {
	_, err := Replay([]*domain.Event{ev(1, domain.EventWithdraw, alice, 1)})
	assert.ErrorContains(t, err, "tx 1")
}

func TestVerifyPool_Match(t *testing.T) {
	f := newFixture(t, 120, 2, map[domain.Address]uint64{alice: 70, bob: 50},
		ev(1, domain.EventDeposit, alice, 100),
		ev(2, domain.EventDeposit, bob, 50),
		ev(3, domain.EventWithdraw, alice, 30),
	)

	res, err := f.v.VerifyPool(context.Background(), poolAddr)
	require.NoError(t, err)
	assert.True(t, res.Match)
	assert.Equal(t, 3, res.Events)
	assert.Empty(t, res.Divergences)
}

func TestVerifyPool_Divergences(t *testing.T) {
	// bob's withdrawal never reached the position store
	f := newFixture(t, 150, 2, map[domain.Address]uint64{alice: 100, bob: 50},
		ev(1, domain.EventDeposit, alice, 100),
		ev(2, domain.EventDeposit, bob, 50),
		ev(3, domain.EventEmergencyWithdraw, bob, 50),
	)

	res, err := f.v.VerifyPool(context.Background(), poolAddr)
	require.NoError(t, err)
	assert.False(t, res.Match)
	require.Len(t, res.Divergences, 3)
	assert.Equal(t, FieldDivergence{Field: "stake:" + bob.String(), Expected: "50", Actual: "0"}, res.Divergences[0])
	assert.Equal(t, FieldDivergence{Field: "staker_count", Expected: "2", Actual: "1"}, res.Divergences[1])
	assert.Equal(t, FieldDivergence{Field: "total_staked", Expected: "150", Actual: "100"}, res.Divergences[2])
}

func TestVerifyPool_MissingPosition(t *testing.T) {
	f := newFixture(t, 10, 1, nil, ev(1, domain.EventDeposit, alice, 10))

	res, err := f.v.VerifyPool(context.Background(), poolAddr)
	require.NoError(t, err)
	assert.Equal(t, []FieldDivergence{{Field: "stake:" + alice.String(), Expected: "0", Actual: "10"}}, res.Divergences)
}

func TestVerifyPool_Unknown(t *testing.T) {
	f := newFixture(t, 0, 0, nil)
	_, err := f.v.VerifyPool(context.Background(), domain.AddressFromLabel("nowhere"))
	assert.ErrorIs(t, err, ErrPoolNotFound)
}

func TestVerifyAll(t *testing.T) {
	f := newFixture(t, 5, 1, map[domain.Address]uint64{alice: 5}, ev(1, domain.EventDeposit, alice, 5))

	report, err := f.v.VerifyAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalPools)
	assert.Equal(t, 1, report.MatchedPools)
	assert.Zero(t, report.DivergentPools)
}
