package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"fsp-staking/internal/domain"
	"fsp-staking/internal/storage/migrations"
	"fsp-staking/internal/storage/postgres"
)

// setupTestDB creates a PostgreSQL container for testing and applies the
// embedded migrations.
func setupTestDB(t *testing.T) *postgres.Pool {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := postgres.NewPool(ctx, dsn)
	require.NoError(t, err, "failed to create pool")
	t.Cleanup(pool.Close)

	applied, err := migrations.RunPostgresMigrations(ctx, pool, zerolog.Nop())
	require.NoError(t, err, "failed to apply migrations")
	require.NotEmpty(t, applied)

	// second run is a no-op
	again, err := migrations.RunPostgresMigrations(ctx, pool, zerolog.Nop())
	require.NoError(t, err)
	require.Empty(t, again)

	return pool
}

func addr(label string) domain.Address {
	return domain.AddressFromLabel(label)
}

func u(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

func snapshot(label string, owner domain.Address, createdAt int64) *domain.PoolSnapshot {
	return &domain.PoolSnapshot{
		Config: domain.PoolConfig{
			Address:      addr(label),
			Factory:      addr("factory"),
			Owner:        owner,
			StakedToken:  addr("stk"),
			RewardSupply: u(1000),
			APYPercent:   10,
			LockTier:     domain.LockSixMonth,
			LimitPerUser: u(500),
			CreatedAt:    createdAt,
		},
		State:       domain.PoolActive,
		Funded:      true,
		TotalStaked: u(0),
		UpdatedAt:   createdAt,
	}
}
