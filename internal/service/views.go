package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"fsp-staking/internal/domain"
	"fsp-staking/internal/pool"
	"fsp-staking/internal/storage"
	"fsp-staking/internal/token"
	"fsp-staking/internal/verification"
)

// ErrAnalyticsDisabled is returned by activity queries when no ActivityStore
// is configured.
var ErrAnalyticsDisabled = errors.New("analytics store not configured")

// FactoryInfo is the current factory configuration.
type FactoryInfo struct {
	Address       domain.Address
	Owner         domain.Address
	PlatformOwner domain.Address
	Admins        []domain.Address
	Fees          domain.FeeSchedule
	Treasury      *uint256.Int
	PoolCount     int
}

// PoolView is a live pool snapshot with the fees it currently charges.
type PoolView struct {
	Snapshot             domain.PoolSnapshot
	MaxStake             *uint256.Int
	TotalOwedReward      *uint256.Int
	DepositFee           *uint256.Int
	WithdrawFee          *uint256.Int
	EmergencyWithdrawFee *uint256.Int
	ClaimFee             *uint256.Int
}

// PositionView is a live position with what the user would receive now.
// Position is nil when the user holds nothing in the pool.
type PositionView struct {
	Pool              domain.Address
	User              domain.Address
	Position          *domain.Position
	PendingReward     *uint256.Int
	PendingReflection *uint256.Int
}

// TokenInfo describes a registered token.
type TokenInfo struct {
	Address     domain.Address
	Symbol      string
	Decimals    uint8
	TotalSupply *uint256.Int
}

// Now returns the current block time.
func (s *Service) Now(ctx context.Context) (int64, error) {
	var out int64
	err := s.env.View(ctx, func(now int64) error {
		out = now
		return nil
	})
	return out, err
}

// Factory returns the factory configuration.
func (s *Service) Factory(ctx context.Context) (FactoryInfo, error) {
	var info FactoryInfo
	err := s.env.View(ctx, func(int64) error {
		info = FactoryInfo{
			Address:       s.factory.Address(),
			Owner:         s.factory.Owner(),
			PlatformOwner: s.factory.PlatformOwner(),
			Admins:        s.factory.Admins(),
			Fees:          s.factory.Fees(),
			Treasury:      s.factory.TreasuryBalance(),
			PoolCount:     len(s.factory.Pools()),
		}
		return nil
	})
	return info, err
}

// Pools returns every deployed pool in deployment order.
func (s *Service) Pools(ctx context.Context) ([]PoolView, error) {
	var out []PoolView
	err := s.env.View(ctx, func(now int64) error {
		pools := s.factory.Pools()
		out = make([]PoolView, 0, len(pools))
		for _, p := range pools {
			v, err := poolView(p, now)
			if err != nil {
				return err
			}
			out = append(out, v)
		}
		return nil
	})
	return out, err
}

// Pool returns one pool.
func (s *Service) Pool(ctx context.Context, addr domain.Address) (PoolView, error) {
	var out PoolView
	err := s.env.View(ctx, func(now int64) error {
		p, err := s.factory.Pool(addr)
		if err != nil {
			return err
		}
		out, err = poolView(p, now)
		return err
	})
	return out, err
}

func poolView(p *pool.Pool, now int64) (PoolView, error) {
	owed, err := p.TotalOwedReward(now)
	if err != nil {
		return PoolView{}, fmt.Errorf("pool %s: %w", p.Address(), err)
	}
	return PoolView{
		Snapshot:             p.Snapshot(now),
		MaxStake:             p.MaxStake(),
		TotalOwedReward:      owed,
		DepositFee:           p.DepositFee(),
		WithdrawFee:          p.WithdrawFee(),
		EmergencyWithdrawFee: p.EmergencyWithdrawFee(),
		ClaimFee:             p.ClaimFee(),
	}, nil
}

// Position returns a user's position in a pool.
func (s *Service) Position(ctx context.Context, poolAddr, user domain.Address) (PositionView, error) {
	out := PositionView{Pool: poolAddr, User: user}
	err := s.env.View(ctx, func(now int64) error {
		p, err := s.factory.Pool(poolAddr)
		if err != nil {
			return err
		}
		if pos := p.Position(user); !pos.IsEmpty() {
			out.Position = pos
		}
		if out.PendingReward, err = p.PendingReward(user, now); err != nil {
			return err
		}
		out.PendingReflection, err = p.PendingReflection(user)
		return err
	})
	return out, err
}

// Tokens lists registered tokens.
func (s *Service) Tokens(ctx context.Context) ([]TokenInfo, error) {
	var out []TokenInfo
	err := s.env.View(ctx, func(int64) error {
		for _, t := range s.tokens.List() {
			out = append(out, tokenInfo(t))
		}
		return nil
	})
	return out, err
}

// Token describes one registered token.
func (s *Service) Token(ctx context.Context, addr domain.Address) (TokenInfo, error) {
	var out TokenInfo
	err := s.env.View(ctx, func(int64) error {
		t, err := s.tokens.Get(addr)
		if err != nil {
			return err
		}
		out = tokenInfo(t)
		return nil
	})
	return out, err
}

func tokenInfo(t token.Token) TokenInfo {
	return TokenInfo{
		Address:     t.Address(),
		Symbol:      t.Symbol(),
		Decimals:    t.Decimals(),
		TotalSupply: t.TotalSupply(),
	}
}

// TokenBalance returns owner's balance of a token.
func (s *Service) TokenBalance(ctx context.Context, tokenAddr, owner domain.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := s.env.View(ctx, func(int64) error {
		t, err := s.tokens.Get(tokenAddr)
		if err != nil {
			return err
		}
		out = t.BalanceOf(owner)
		return nil
	})
	return out, err
}

// Allowance returns what spender may move on owner's behalf.
func (s *Service) Allowance(ctx context.Context, tokenAddr, owner, spender domain.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := s.env.View(ctx, func(int64) error {
		t, err := s.tokens.Get(tokenAddr)
		if err != nil {
			return err
		}
		out = t.Allowance(owner, spender)
		return nil
	})
	return out, err
}

// NativeBalance returns owner's native currency balance.
func (s *Service) NativeBalance(ctx context.Context, owner domain.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := s.env.View(ctx, func(int64) error {
		out = s.env.Bank().BalanceOf(owner)
		return nil
	})
	return out, err
}

// Events returns the persisted events of a pool or the factory in commit order.
func (s *Service) Events(ctx context.Context, emitter domain.Address) ([]*domain.Event, error) {
	return s.stores.Events.GetByEmitter(ctx, emitter)
}

// EventsBetween returns persisted events with block time in [start, end].
func (s *Service) EventsBetween(ctx context.Context, start, end int64) ([]*domain.Event, error) {
	return s.stores.Events.GetByTimeRange(ctx, start, end)
}

// PersistedPools lists the pool snapshots in the pool store.
func (s *Service) PersistedPools(ctx context.Context, owner *domain.Address) ([]*domain.PoolSnapshot, error) {
	if owner != nil {
		return s.stores.Pools.ListByOwner(ctx, *owner)
	}
	return s.stores.Pools.List(ctx)
}

// PoolPositions lists the persisted positions of a pool.
func (s *Service) PoolPositions(ctx context.Context, poolAddr domain.Address) ([]*domain.Position, error) {
	return s.stores.Positions.ListByPool(ctx, poolAddr)
}

// UserPositions lists the persisted positions of a user across pools.
func (s *Service) UserPositions(ctx context.Context, user domain.Address) ([]*domain.Position, error) {
	return s.stores.Positions.ListByUser(ctx, user)
}

// DailyActivity aggregates a pool's staking activity per day.
func (s *Service) DailyActivity(ctx context.Context, poolAddr domain.Address, start, end int64) ([]*storage.DailyActivity, error) {
	if s.stores.Activity == nil {
		return nil, ErrAnalyticsDisabled
	}
	return s.stores.Activity.DailyByPool(ctx, poolAddr, start, end)
}

// Checkpoint returns the persistence checkpoint.
func (s *Service) Checkpoint(ctx context.Context) (*storage.Checkpoint, error) {
	return s.stores.Checkpoints.GetCheckpoint(ctx)
}

// Verify reconciles one pool's persisted state with its persisted events.
// Call Flush first to include every committed transaction.
func (s *Service) Verify(ctx context.Context, poolAddr domain.Address) (*verification.Result, error) {
	return s.verifier().VerifyPool(ctx, poolAddr)
}

// VerifyAll reconciles every persisted pool.
func (s *Service) VerifyAll(ctx context.Context) (*verification.Report, error) {
	return s.verifier().VerifyAll(ctx)
}

func (s *Service) verifier() *verification.Verifier {
	return verification.New(s.stores.Pools, s.stores.Positions, s.stores.Events)
}
