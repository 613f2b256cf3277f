package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"fsp-staking/internal/domain"
	"fsp-staking/internal/storage"
)

// PoolStore implements storage.PoolStore using PostgreSQL.
type PoolStore struct {
	pool *Pool
}

// NewPoolStore creates a new PoolStore.
func NewPoolStore(pool *Pool) *PoolStore {
	return &PoolStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PoolStore = (*PoolStore)(nil)

const poolColumns = `
	address, factory, owner, staked_token, reflection_token, reflection_enabled,
	reward_supply, apy_percent, lock_tier, limit_per_user, created_at,
	state, stopped_at, closed_at, funded, total_staked, staker_count, updated_at`

// Upsert inserts or replaces the snapshot keyed by pool address.
// Configuration columns are immutable and only written on first insert.
func (s *PoolStore) Upsert(ctx context.Context, p *domain.PoolSnapshot) (err error) {
	if p == nil || p.Config.Address.IsZero() {
		return storage.ErrInvalidInput
	}
	defer observe("upsert_pool", time.Now(), &err)

	query := `
		INSERT INTO pools (` + poolColumns + `
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (address) DO UPDATE
		SET state = EXCLUDED.state,
		    stopped_at = EXCLUDED.stopped_at,
		    closed_at = EXCLUDED.closed_at,
		    funded = EXCLUDED.funded,
		    total_staked = EXCLUDED.total_staked,
		    staker_count = EXCLUDED.staker_count,
		    updated_at = EXCLUDED.updated_at
	`

	c := p.Config
	_, err = s.pool.Exec(ctx, query,
		c.Address.String(),
		addrText(c.Factory),
		addrText(c.Owner),
		addrText(c.StakedToken),
		addrText(c.ReflectionToken),
		c.ReflectionEnabled,
		numeric(c.RewardSupply),
		int64(c.APYPercent),
		int16(c.LockTier.Code()),
		numeric(c.LimitPerUser),
		c.CreatedAt,
		string(p.State),
		p.StoppedAt,
		p.ClosedAt,
		p.Funded,
		numeric(p.TotalStaked),
		p.StakerCount,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert pool: %w", err)
	}
	return nil
}

// Get retrieves a pool by address. Returns ErrNotFound if not exists.
func (s *PoolStore) Get(ctx context.Context, addr domain.Address) (_ *domain.PoolSnapshot, err error) {
	defer observe("get_pool", time.Now(), &err)

	query := `SELECT ` + poolColumns + ` FROM pools WHERE address = $1`

	p, err := scanPool(s.pool.QueryRow(ctx, query, addr.String()))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get pool: %w", err)
	}
	return p, nil
}

// List retrieves all pools ordered by created_at ASC, address ASC.
func (s *PoolStore) List(ctx context.Context) (_ []*domain.PoolSnapshot, err error) {
	defer observe("list_pools", time.Now(), &err)

	query := `SELECT ` + poolColumns + ` FROM pools ORDER BY created_at ASC, address ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	defer rows.Close()

	return scanPools(rows)
}

// ListByOwner retrieves pools deployed by owner.
func (s *PoolStore) ListByOwner(ctx context.Context, owner domain.Address) (_ []*domain.PoolSnapshot, err error) {
	defer observe("list_pools_by_owner", time.Now(), &err)

	query := `SELECT ` + poolColumns + ` FROM pools WHERE owner = $1 ORDER BY created_at ASC, address ASC`

	rows, err := s.pool.Query(ctx, query, owner.String())
	if err != nil {
		return nil, fmt.Errorf("list pools by owner: %w", err)
	}
	defer rows.Close()

	return scanPools(rows)
}

// scanPool scans a single row into a PoolSnapshot.
func scanPool(row pgx.Row) (*domain.PoolSnapshot, error) {
	var (
		p                                           domain.PoolSnapshot
		address, factory, owner, staked, reflection string
		supply, limit, total                        pgtype.Numeric
		apy                                         int64
		tier                                        int16
		state                                       string
	)

	err := row.Scan(
		&address, &factory, &owner, &staked, &reflection,
		&p.Config.ReflectionEnabled,
		&supply, &apy, &tier, &limit, &p.Config.CreatedAt,
		&state, &p.StoppedAt, &p.ClosedAt, &p.Funded, &total, &p.StakerCount, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c := &p.Config
	for _, f := range []struct {
		dst *domain.Address
		src string
	}{
		{&c.Address, address}, {&c.Factory, factory}, {&c.Owner, owner},
		{&c.StakedToken, staked}, {&c.ReflectionToken, reflection},
	} {
		if *f.dst, err = parseAddr(f.src); err != nil {
			return nil, fmt.Errorf("pool %s: %w", address, err)
		}
	}
	if c.RewardSupply, err = fromNumericOrZero(supply); err != nil {
		return nil, fmt.Errorf("pool %s reward_supply: %w", address, err)
	}
	if c.LimitPerUser, err = fromNumericOrZero(limit); err != nil {
		return nil, fmt.Errorf("pool %s limit_per_user: %w", address, err)
	}
	if p.TotalStaked, err = fromNumericOrZero(total); err != nil {
		return nil, fmt.Errorf("pool %s total_staked: %w", address, err)
	}
	if c.LockTier, err = domain.LockTierFromCode(uint8(tier)); err != nil {
		return nil, fmt.Errorf("pool %s: %w", address, err)
	}
	c.APYPercent = uint64(apy)
	p.State = domain.PoolState(state)

	return &p, nil
}

// scanPools scans multiple rows into a slice of PoolSnapshot.
func scanPools(rows pgx.Rows) ([]*domain.PoolSnapshot, error) {
	var pools []*domain.PoolSnapshot

	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pool row: %w", err)
		}
		pools = append(pools, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pool rows: %w", err)
	}

	return pools, nil
}
