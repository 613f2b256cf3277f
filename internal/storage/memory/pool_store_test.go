package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fsp-staking/internal/domain"
	"fsp-staking/internal/storage"
)

func TestPoolStore_UpsertAndGet(t *testing.T) {
	store := NewPoolStore()
	ctx := context.Background()

	p := snapshot("pool-1", addr("bob"), 100)
	require.NoError(t, store.Upsert(ctx, p))

	got, err := store.Get(ctx, addr("pool-1"))
	require.NoError(t, err)
	assert.Equal(t, p.Config.Address, got.Config.Address)
	assert.Equal(t, uint64(1000), got.Config.RewardSupply.Uint64())

	// replaced, not duplicated
	stopped := int64(200)
	p.State = domain.PoolRewardsStopped
	p.StoppedAt = &stopped
	p.TotalStaked = u(42)
	require.NoError(t, store.Upsert(ctx, p))

	got, err = store.Get(ctx, addr("pool-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.PoolRewardsStopped, got.State)
	require.NotNil(t, got.StoppedAt)
	assert.Equal(t, int64(200), *got.StoppedAt)
	assert.Equal(t, uint64(42), got.TotalStaked.Uint64())

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestPoolStore_ReturnsCopies(t *testing.T) {
	store := NewPoolStore()
	ctx := context.Background()

	p := snapshot("pool-1", addr("bob"), 100)
	require.NoError(t, store.Upsert(ctx, p))
	p.TotalStaked.SetUint64(999)

	got, err := store.Get(ctx, addr("pool-1"))
	require.NoError(t, err)
	assert.True(t, got.TotalStaked.IsZero())

	got.Config.RewardSupply.SetUint64(1)
	again, err := store.Get(ctx, addr("pool-1"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), again.Config.RewardSupply.Uint64())
}

func TestPoolStore_GetNotFound(t *testing.T) {
	_, err := NewPoolStore().Get(context.Background(), addr("missing"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPoolStore_InvalidInput(t *testing.T) {
	store := NewPoolStore()
	assert.ErrorIs(t, store.Upsert(context.Background(), nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Upsert(context.Background(), &domain.PoolSnapshot{}), storage.ErrInvalidInput)
}

func TestPoolStore_ListOrderingAndOwner(t *testing.T) {
	store := NewPoolStore()
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, snapshot("c", addr("bob"), 300)))
	require.NoError(t, store.Upsert(ctx, snapshot("a", addr("carol"), 100)))
	require.NoError(t, store.Upsert(ctx, snapshot("b", addr("bob"), 200)))

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, int64(100), all[0].Config.CreatedAt)
	assert.Equal(t, int64(200), all[1].Config.CreatedAt)
	assert.Equal(t, int64(300), all[2].Config.CreatedAt)

	bobs, err := store.ListByOwner(ctx, addr("bob"))
	require.NoError(t, err)
	require.Len(t, bobs, 2)
	assert.Equal(t, addr("b"), bobs[0].Config.Address)
	assert.Equal(t, addr("c"), bobs[1].Config.Address)
}
