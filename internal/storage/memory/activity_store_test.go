package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fsp-staking/internal/domain"
)

func TestActivityStore_DailyByPool(t *testing.T) {
	store := NewActivityStore()
	ctx := context.Background()
	pool := addr("p")
	day := int64(19000 * 86400)

	dep := event("d1", domain.EventDeposit, pool, 1, 0, day+10)
	dep.Amount, dep.Fee = u(100), u(7)
	dep2 := event("d2", domain.EventDeposit, pool, 2, 0, day+20)
	dep2.Amount = u(50)
	wd := event("w1", domain.EventWithdraw, pool, 3, 0, day+86400+5)
	wd.Amount, wd.Reward, wd.Reflection = u(60), u(4), u(2)
	claim := event("c1", domain.EventRewardClaimed, pool, 4, 0, day+86400+6)
	claim.Reward = u(1)
	other := event("o1", domain.EventDeposit, addr("other"), 5, 0, day+30)
	other.Amount = u(1000)
	funded := event("f1", domain.EventFunded, pool, 6, 0, day)
	funded.Amount = u(5000)

	require.NoError(t, store.InsertBulk(ctx, []*domain.Event{dep, dep2, wd, claim, other, funded}))
	// replays are ignored
	require.NoError(t, store.InsertBulk(ctx, []*domain.Event{dep}))

	rows, err := store.DailyByPool(ctx, pool, 0, day+2*86400)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, day, rows[0].Day)
	assert.Equal(t, uint64(2), rows[0].Deposits)
	assert.Equal(t, "150", rows[0].Staked)
	assert.Equal(t, "7", rows[0].Fees)
	assert.Equal(t, "0", rows[0].Unstaked)

	assert.Equal(t, day+86400, rows[1].Day)
	assert.Equal(t, uint64(1), rows[1].Withdrawals)
	assert.Equal(t, uint64(1), rows[1].Claims)
	assert.Equal(t, "60", rows[1].Unstaked)
	assert.Equal(t, "5", rows[1].Rewards)
	assert.Equal(t, "2", rows[1].Reflections)

	firstDay, err := store.DailyByPool(ctx, pool, day, day+86399)
	require.NoError(t, err)
	assert.Len(t, firstDay, 1)
}
