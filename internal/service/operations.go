package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/holiman/uint256"

	"fsp-staking/internal/chain"
	"fsp-staking/internal/domain"
	"fsp-staking/internal/factory"
	"fsp-staking/internal/pool"
	"fsp-staking/internal/reverts"
	"fsp-staking/internal/token"
	"fsp-staking/internal/units"
)

// ErrTokenExists is returned when creating a token whose symbol is taken.
var ErrTokenExists = errors.New("token already exists")

// Operation names used in logs and metrics.
const (
	OpCreateToken       = "create_token"
	OpMint              = "mint"
	OpMintNative        = "mint_native"
	OpApprove           = "approve"
	OpDeployPool        = "deploy_pool"
	OpAddAdmin          = "add_admin"
	OpRemoveAdmin       = "remove_admin"
	OpSetPlatformOwner  = "set_platform_owner"
	OpTransferOwnership = "transfer_ownership"
	OpUpdateFees        = "update_fees"
	OpWithdrawTreasury  = "withdraw_treasury"
	OpDeposit           = "deposit"
	OpWithdraw          = "withdraw"
	OpWithdrawAll       = "withdraw_all"
	OpClaim             = "claim"
	OpEmergencyWithdraw = "emergency_withdraw"
	OpStopReward        = "stop_reward"
	OpSweep             = "sweep"
	OpFund              = "fund"
)

type minter interface {
	Mint(tx *chain.Tx, to domain.Address, amount *uint256.Int) error
}

// execute submits fn as one transaction and records its outcome.
func (s *Service) execute(ctx context.Context, op string, sender domain.Address, value *uint256.Int,
	fn func(tx *chain.Tx) error) (*chain.Receipt, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	start := time.Now()
	receipt, err := s.env.Execute(ctx, sender, value, fn)
	code := ""
	if err != nil {
		code = reverts.Code(err)
		if code == "" {
			code = "internal"
		}
	}
	s.metrics.RecordTransaction(op, code, time.Since(start).Seconds())

	if err != nil {
		s.log.Debug().Str("op", op).Str("sender", sender.String()).Str("code", code).Err(err).Msg("reverted")
		return nil, err
	}
	if value != nil && !value.IsZero() {
		fee, _ := units.ToDecimal(value, units.NativeDecimals).Float64()
		s.metrics.RecordFee(op, fee)
	}
	s.log.Debug().Str("op", op).Str("sender", sender.String()).Uint64("seq", receipt.Seq).Msg("committed")
	return receipt, nil
}

// CreateToken registers a new in-memory token. The address is derived from
// the symbol, so symbols are unique.
func (s *Service) CreateToken(ctx context.Context, symbol string, decimals uint8) (*token.Memory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("create token: empty symbol")
	}
	addr := domain.AddressFromLabel("token:" + strings.ToUpper(symbol))
	if _, err := s.tokens.Get(addr); err == nil {
		return nil, fmt.Errorf("create token %s: %w", symbol, ErrTokenExists)
	}
	t := token.NewMemory(addr, symbol, decimals)
	s.tokens.Register(t)
	s.metrics.RecordTransaction(OpCreateToken, "", 0)
	s.log.Info().Str("symbol", symbol).Str("address", addr.String()).Uint8("decimals", decimals).Msg("token created")
	return t, nil
}

// Mint creates amount of a token for to.
func (s *Service) Mint(ctx context.Context, tokenAddr, to domain.Address, amount *uint256.Int) (*chain.Receipt, error) {
	t, err := s.tokens.Get(tokenAddr)
	if err != nil {
		return nil, err
	}
	m, ok := t.(minter)
	if !ok {
		return nil, fmt.Errorf("mint: token %s is not mintable", t.Symbol())
	}
	return s.execute(ctx, OpMint, to, nil, func(tx *chain.Tx) error {
		return m.Mint(tx, to, amount)
	})
}

// MintNative credits native currency to to.
func (s *Service) MintNative(ctx context.Context, to domain.Address, amount *uint256.Int) (*chain.Receipt, error) {
	return s.execute(ctx, OpMintNative, to, nil, func(tx *chain.Tx) error {
		return s.env.Bank().Mint(tx, to, amount)
	})
}

// Approve sets owner's allowance for spender on a token.
func (s *Service) Approve(ctx context.Context, tokenAddr, owner, spender domain.Address, amount *uint256.Int) (*chain.Receipt, error) {
	t, err := s.tokens.Get(tokenAddr)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, OpApprove, owner, nil, func(tx *chain.Tx) error {
		return t.Approve(tx, owner, spender, amount)
	})
}

// DeployPool deploys a pool owned by sender, who attaches the creation fee.
func (s *Service) DeployPool(ctx context.Context, sender domain.Address, value *uint256.Int,
	req factory.DeployRequest) (domain.PoolSnapshot, *chain.Receipt, error) {
	var snap domain.PoolSnapshot
	receipt, err := s.execute(ctx, OpDeployPool, sender, value, func(tx *chain.Tx) error {
		p, err := s.factory.DeployPool(tx, req)
		if err != nil {
			return err
		}
		snap = p.Snapshot(tx.Now())
		return nil
	})
	if err != nil {
		return domain.PoolSnapshot{}, nil, err
	}
	s.log.Info().
		Str("pool", snap.Config.Address.String()).
		Str("owner", sender.String()).
		Str("tier", snap.Config.LockTier.String()).
		Bool("reflection", snap.Config.ReflectionEnabled).
		Msg("pool deployed")
	return snap, receipt, nil
}

// AddAdmin grants admin rights. Factory owner only.
func (s *Service) AddAdmin(ctx context.Context, sender, admin domain.Address) (*chain.Receipt, error) {
	return s.execute(ctx, OpAddAdmin, sender, nil, func(tx *chain.Tx) error {
		return s.factory.AddAdmin(tx, admin)
	})
}

// RemoveAdmin revokes admin rights. Factory owner only.
func (s *Service) RemoveAdmin(ctx context.Context, sender, admin domain.Address) (*chain.Receipt, error) {
	return s.execute(ctx, OpRemoveAdmin, sender, nil, func(tx *chain.Tx) error {
		return s.factory.RemoveAdmin(tx, admin)
	})
}

// SetPlatformOwner changes the recipient of reflection fees. Factory owner only.
func (s *Service) SetPlatformOwner(ctx context.Context, sender, owner domain.Address) (*chain.Receipt, error) {
	return s.execute(ctx, OpSetPlatformOwner, sender, nil, func(tx *chain.Tx) error {
		return s.factory.SetPlatformOwner(tx, owner)
	})
}

// TransferOwnership hands the factory to a new owner.
func (s *Service) TransferOwnership(ctx context.Context, sender, to domain.Address) (*chain.Receipt, error) {
	return s.execute(ctx, OpTransferOwnership, sender, nil, func(tx *chain.Tx) error {
		return s.factory.TransferOwnership(tx, to)
	})
}

// UpdateFees replaces the fee schedule. Factory owner only.
func (s *Service) UpdateFees(ctx context.Context, sender domain.Address, fees domain.FeeSchedule) (*chain.Receipt, error) {
	return s.execute(ctx, OpUpdateFees, sender, nil, func(tx *chain.Tx) error {
		return s.factory.UpdateFees(tx, fees)
	})
}

// WithdrawTreasury moves collected fees out of the factory. Factory owner only.
func (s *Service) WithdrawTreasury(ctx context.Context, sender, to domain.Address, amount *uint256.Int) (*chain.Receipt, error) {
	return s.execute(ctx, OpWithdrawTreasury, sender, nil, func(tx *chain.Tx) error {
		return s.factory.Withdraw(tx, to, amount)
	})
}

// Deposit stakes amount in a pool. value must equal the pool's deposit fee.
func (s *Service) Deposit(ctx context.Context, poolAddr, sender domain.Address, value, amount *uint256.Int) (*chain.Receipt, error) {
	return s.poolTx(ctx, OpDeposit, poolAddr, sender, value, func(p *pool.Pool, tx *chain.Tx) error {
		return p.Deposit(tx, amount)
	})
}

// Withdraw unstakes amount and pays the reward accrued on the position.
func (s *Service) Withdraw(ctx context.Context, poolAddr, sender domain.Address, value, amount *uint256.Int) (*chain.Receipt, error) {
	return s.poolTx(ctx, OpWithdraw, poolAddr, sender, value, func(p *pool.Pool, tx *chain.Tx) error {
		return p.Withdraw(tx, amount)
	})
}

// WithdrawAll unstakes the sender's whole position.
func (s *Service) WithdrawAll(ctx context.Context, poolAddr, sender domain.Address, value *uint256.Int) (*chain.Receipt, error) {
	return s.poolTx(ctx, OpWithdrawAll, poolAddr, sender, value, func(p *pool.Pool, tx *chain.Tx) error {
		return p.WithdrawAll(tx)
	})
}

// ClaimReward pays the accrued reward without touching the stake.
func (s *Service) ClaimReward(ctx context.Context, poolAddr, sender domain.Address, value *uint256.Int) (*chain.Receipt, error) {
	return s.poolTx(ctx, OpClaim, poolAddr, sender, value, func(p *pool.Pool, tx *chain.Tx) error {
		return p.ClaimReward(tx)
	})
}

// EmergencyWithdraw returns principal and forfeits reward.
func (s *Service) EmergencyWithdraw(ctx context.Context, poolAddr, sender domain.Address, value *uint256.Int) (*chain.Receipt, error) {
	return s.poolTx(ctx, OpEmergencyWithdraw, poolAddr, sender, value, func(p *pool.Pool, tx *chain.Tx) error {
		return p.EmergencyWithdraw(tx)
	})
}

// StopReward freezes accrual. Pool owner or factory admin.
func (s *Service) StopReward(ctx context.Context, poolAddr, sender domain.Address) (*chain.Receipt, error) {
	return s.poolTx(ctx, OpStopReward, poolAddr, sender, nil, func(p *pool.Pool, tx *chain.Tx) error {
		return p.StopReward(tx)
	})
}

// Sweep lets the pool owner recover unowed tokens after closure.
func (s *Service) Sweep(ctx context.Context, poolAddr, sender domain.Address) (*chain.Receipt, error) {
	return s.poolTx(ctx, OpSweep, poolAddr, sender, nil, func(p *pool.Pool, tx *chain.Tx) error {
		return p.EmergencyWithdrawByOwner(tx)
	})
}

// Fund pulls the reward supply into a pool deployed with deferred funding.
func (s *Service) Fund(ctx context.Context, poolAddr, sender domain.Address) (*chain.Receipt, error) {
	return s.poolTx(ctx, OpFund, poolAddr, sender, nil, func(p *pool.Pool, tx *chain.Tx) error {
		return p.Fund(tx)
	})
}

func (s *Service) poolTx(ctx context.Context, op string, poolAddr, sender domain.Address, value *uint256.Int,
	fn func(p *pool.Pool, tx *chain.Tx) error) (*chain.Receipt, error) {
	return s.execute(ctx, op, sender, value, func(tx *chain.Tx) error {
		p, err := s.factory.Pool(poolAddr)
		if err != nil {
			return err
		}
		return fn(p, tx)
	})
}
