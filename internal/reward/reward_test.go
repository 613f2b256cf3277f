package reward

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fsp-staking/internal/domain"
	"fsp-staking/internal/reverts"
)

const day = int64(86400)

func ptr[T any](v T) *T { return &v }

func TestCompute(t *testing.T) {
	tests := []struct {
		name    string
		staked  uint64
		apy     uint64
		tier    domain.LockTier
		elapsed int64
		want    uint64
	}{
		{"one year no lock", 10000, 10, domain.LockNone, 365 * day, 1000},
		// floor(10000*0.2*10/365) = floor(54.79)
		{"ten days at twenty percent", 10000, 20, domain.LockNone, 10 * day, 54},
		{"zero elapsed", 10000, 10, domain.LockNone, 0, 0},
		{"negative elapsed", 10000, 10, domain.LockNone, -5, 0},
		{"zero stake", 0, 10, domain.LockNone, 365 * day, 0},
		// 10000*10*49310*365d / (100*100000*365d) = 493.1
		{"three month tier floors", 10000, 10, domain.LockThreeMonth, 365 * day, 493},
		{"one second rounds to zero", 1000, 10, domain.LockNone, 1, 0},
		// 1e18*100*100000*31536000 / (100*100000*31536000)
		{"large stake full apy", 1_000_000_000_000_000_000, 100, domain.LockNone, 365 * day, 1_000_000_000_000_000_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compute(uint256.NewInt(tt.staked), RateFor(tt.apy, tt.tier), tt.elapsed)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Uint64())
		})
	}
}

func TestCompute_Overflow(t *testing.T) {
	huge := new(uint256.Int).SetAllOne()
	_, err := Compute(huge, RateFor(10, domain.LockNone), day)
	assert.ErrorIs(t, err, reverts.ErrArithmeticOverflow)
}

func TestCompute_Monotone(t *testing.T) {
	r := RateFor(12, domain.LockSixMonth)
	staked := uint256.NewInt(123456789)
	prev := uint256.NewInt(0)
	for elapsed := int64(0); elapsed <= 400*day; elapsed += 7 * day {
		got, err := Compute(staked, r, elapsed)
		require.NoError(t, err)
		assert.False(t, got.Lt(prev), "reward must not decrease with time")
		prev = got
	}
}

func TestCompute_SplitNeverExceedsWhole(t *testing.T) {
	r := RateFor(7, domain.LockThreeMonth)
	staked := uint256.NewInt(999_999)
	whole, err := Compute(staked, r, 100*day)
	require.NoError(t, err)

	first, err := Compute(staked, r, 37*day)
	require.NoError(t, err)
	second, err := Compute(staked, r, 63*day)
	require.NoError(t, err)

	sum := new(uint256.Int).Add(first, second)
	assert.False(t, whole.Lt(sum), "settling in pieces must not create reward")
}

func TestElapsed(t *testing.T) {
	tests := []struct {
		name      string
		last      int64
		now       int64
		stoppedAt *int64
		want      int64
	}{
		{"running", 100, 250, nil, 150},
		{"stopped in window", 100, 250, ptr(int64(180)), 80},
		{"stopped after now", 100, 250, ptr(int64(300)), 150},
		{"stopped before settlement", 100, 250, ptr(int64(50)), 0},
		{"clock behind", 300, 250, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Elapsed(tt.last, tt.now, tt.stoppedAt))
		})
	}
}

func TestPending_FrozenAfterStop(t *testing.T) {
	r := RateFor(10, domain.LockNone)
	staked := uint256.NewInt(10000)
	stop := int64(200 * day)

	atStop, err := Pending(staked, r, 0, stop, &stop)
	require.NoError(t, err)
	later, err := Pending(staked, r, 0, stop+100*day, &stop)
	require.NoError(t, err)
	assert.Equal(t, atStop, later)
}

func TestMaxStake(t *testing.T) {
	// 1000 supply at 10% no lock caps the stake at 10000.
	got, err := MaxStake(uint256.NewInt(1000), RateFor(10, domain.LockNone))
	require.NoError(t, err)
	assert.Equal(t, uint64(10000), got.Uint64())

	// One year of reward at the cap never exceeds the supply.
	supply := uint256.NewInt(5_000_000)
	r := RateFor(25, domain.LockTwelveMonth)
	maxStake, err := MaxStake(supply, r)
	require.NoError(t, err)
	yearly, err := Compute(maxStake, r, domain.SecondsPerYear)
	require.NoError(t, err)
	assert.False(t, supply.Lt(yearly))
}
