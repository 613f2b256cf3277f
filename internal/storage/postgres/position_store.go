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

// PositionStore implements storage.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *Pool
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(pool *Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

const positionColumns = `pool, user_address, staked_amount, deposit_timestamp, last_settlement, accrued_reward`

// Upsert inserts or replaces a position. An empty position is deleted.
func (s *PositionStore) Upsert(ctx context.Context, p *domain.Position) (err error) {
	if p == nil || p.Pool.IsZero() || p.User.IsZero() {
		return storage.ErrInvalidInput
	}
	if p.IsEmpty() {
		return s.Delete(ctx, p.Pool, p.User)
	}
	defer observe("upsert_position", time.Now(), &err)

	query := `
		INSERT INTO positions (` + positionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (pool, user_address) DO UPDATE
		SET staked_amount = EXCLUDED.staked_amount,
		    deposit_timestamp = EXCLUDED.deposit_timestamp,
		    last_settlement = EXCLUDED.last_settlement,
		    accrued_reward = EXCLUDED.accrued_reward,
		    updated_at = NOW()
	`

	_, err = s.pool.Exec(ctx, query,
		p.Pool.String(),
		p.User.String(),
		numeric(p.StakedAmount),
		p.DepositTimestamp,
		p.LastSettlement,
		numeric(p.AccruedReward),
	)
	if err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	return nil
}

// Delete removes a position.
func (s *PositionStore) Delete(ctx context.Context, pool, user domain.Address) (err error) {
	defer observe("delete_position", time.Now(), &err)

	_, err = s.pool.Exec(ctx, `DELETE FROM positions WHERE pool = $1 AND user_address = $2`,
		pool.String(), user.String())
	if err != nil {
		return fmt.Errorf("delete position: %w", err)
	}
	return nil
}

// Get retrieves a position. Returns ErrNotFound if not exists.
func (s *PositionStore) Get(ctx context.Context, pool, user domain.Address) (_ *domain.Position, err error) {
	defer observe("get_position", time.Now(), &err)

	query := `SELECT ` + positionColumns + ` FROM positions WHERE pool = $1 AND user_address = $2`

	p, err := scanPosition(s.pool.QueryRow(ctx, query, pool.String(), user.String()))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position: %w", err)
	}
	return p, nil
}

// ListByPool retrieves all positions of a pool ordered by user.
func (s *PositionStore) ListByPool(ctx context.Context, pool domain.Address) (_ []*domain.Position, err error) {
	defer observe("list_positions_by_pool", time.Now(), &err)

	query := `SELECT ` + positionColumns + ` FROM positions WHERE pool = $1 ORDER BY user_address ASC`

	rows, err := s.pool.Query(ctx, query, pool.String())
	if err != nil {
		return nil, fmt.Errorf("list positions by pool: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// ListByUser retrieves all positions of a user ordered by pool.
func (s *PositionStore) ListByUser(ctx context.Context, user domain.Address) (_ []*domain.Position, err error) {
	defer observe("list_positions_by_user", time.Now(), &err)

	query := `SELECT ` + positionColumns + ` FROM positions WHERE user_address = $1 ORDER BY pool ASC`

	rows, err := s.pool.Query(ctx, query, user.String())
	if err != nil {
		return nil, fmt.Errorf("list positions by user: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

func scanPosition(row pgx.Row) (*domain.Position, error) {
	var (
		p             domain.Position
		pool, user    string
		staked, accrd pgtype.Numeric
	)

	if err := row.Scan(&pool, &user, &staked, &p.DepositTimestamp, &p.LastSettlement, &accrd); err != nil {
		return nil, err
	}

	var err error
	if p.Pool, err = domain.ParseAddress(pool); err != nil {
		return nil, err
	}
	if p.User, err = domain.ParseAddress(user); err != nil {
		return nil, err
	}
	if p.StakedAmount, err = fromNumericOrZero(staked); err != nil {
		return nil, fmt.Errorf("staked_amount: %w", err)
	}
	if p.AccruedReward, err = fromNumericOrZero(accrd); err != nil {
		return nil, fmt.Errorf("accrued_reward: %w", err)
	}
	return &p, nil
}

func scanPositions(rows pgx.Rows) ([]*domain.Position, error) {
	var positions []*domain.Position

	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position row: %w", err)
		}
		positions = append(positions, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position rows: %w", err)
	}

	return positions, nil
}
