package pool

import (
	"fmt"

	"github.com/holiman/uint256"

	"fsp-staking/internal/chain"
	"fsp-staking/internal/domain"
	"fsp-staking/internal/ledger"
	"fsp-staking/internal/lifecycle"
	"fsp-staking/internal/reflection"
	"fsp-staking/internal/reverts"
	"fsp-staking/internal/safemath"
)

// Deposit stakes amount of the staked token from the sender. The sender must
// have approved the pool and attach exactly DepositFee.
func (p *Pool) Deposit(tx *chain.Tx, amount *uint256.Int) error {
	err := tx.Call(func() error {
		user := tx.Sender()
		p.observe(tx)
		if err := p.life.CheckDeposit(tx.Now()); err != nil {
			return err
		}
		if !p.funded {
			return reverts.ErrFundingMissing
		}
		if err := p.ledger.Deposit(tx, user, amount, p.clock(tx), p.stakeCap); err != nil {
			return err
		}
		fee := p.DepositFee()
		if err := tx.CollectFee(fee, p.registry.Address(), reverts.ErrFeeInsufficient); err != nil {
			return err
		}
		tx.Emit(domain.Event{Kind: domain.EventDeposit, Emitter: p.cfg.Address, Amount: safemath.Copy(amount), Fee: fee})

		if err := p.staked.TransferFrom(tx, p.cfg.Address, user, p.cfg.Address, amount); err != nil {
			return fmt.Errorf("pull stake: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("deposit: %w", err)
	}
	return nil
}

// Withdraw unstakes amount and pays it together with the whole accrued
// reward and the reflection share of amount.
func (p *Pool) Withdraw(tx *chain.Tx, amount *uint256.Int) error {
	if err := tx.Call(func() error { return p.withdraw(tx, amount) }); err != nil {
		return fmt.Errorf("withdraw: %w", err)
	}
	return nil
}

// WithdrawAll withdraws the sender's entire stake.
func (p *Pool) WithdrawAll(tx *chain.Tx) error {
	err := tx.Call(func() error {
		stake := p.ledger.StakeOf(tx.Sender())
		if stake.IsZero() {
			return reverts.ErrZeroAmount
		}
		return p.withdraw(tx, stake)
	})
	if err != nil {
		return fmt.Errorf("withdraw all: %w", err)
	}
	return nil
}

func (p *Pool) withdraw(tx *chain.Tx, amount *uint256.Int) error {
	user := tx.Sender()
	now := tx.Now()
	p.observe(tx)

	res, err := p.ledger.Withdraw(tx, user, amount, p.clock(tx), func(depositedAt int64) error {
		return p.life.CheckLock(depositedAt, now)
	})
	if err != nil {
		return err
	}
	fee := p.WithdrawFee()
	if err := tx.CollectFee(fee, p.registry.Address(), reverts.ErrFeeInsufficient); err != nil {
		return err
	}

	var s settlement
	refl, err := p.planReflection(&s, user, res)
	if err != nil {
		return err
	}
	payout, err := safemath.Add(res.Principal, res.Reward)
	if err != nil {
		return err
	}
	s.pay(p.staked, user, payout)

	tx.Emit(domain.Event{
		Kind:       domain.EventWithdraw,
		Emitter:    p.cfg.Address,
		Amount:     res.Principal,
		Reward:     res.Reward,
		Reflection: refl.Net,
		Fee:        fee,
	})
	return p.execute(tx, &s)
}

// ClaimReward pays the accrued reward and keeps the stake in place.
func (p *Pool) ClaimReward(tx *chain.Tx) error {
	err := tx.Call(func() error {
		user := tx.Sender()
		p.observe(tx)
		paid, err := p.ledger.Claim(tx, user, p.clock(tx))
		if err != nil {
			return err
		}
		fee := p.ClaimFee()
		if err := tx.CollectFee(fee, p.registry.Address(), reverts.ErrClaimFeeInsufficient); err != nil {
			return err
		}

		var s settlement
		s.pay(p.staked, user, paid)
		tx.Emit(domain.Event{Kind: domain.EventRewardClaimed, Emitter: p.cfg.Address, Reward: paid, Fee: fee})
		return p.execute(tx, &s)
	})
	if err != nil {
		return fmt.Errorf("claim reward: %w", err)
	}
	return nil
}

// EmergencyWithdraw returns the sender's whole principal regardless of the
// lock and forfeits the accrued reward. The reflection share is still paid.
func (p *Pool) EmergencyWithdraw(tx *chain.Tx) error {
	err := tx.Call(func() error {
		user := tx.Sender()
		p.observe(tx)
		res, err := p.ledger.EmergencyWithdraw(tx, user)
		if err != nil {
			return err
		}
		fee := p.EmergencyWithdrawFee()
		if err := tx.CollectFee(fee, p.registry.Address(), reverts.ErrFeeInsufficient); err != nil {
			return err
		}

		var s settlement
		refl, err := p.planReflection(&s, user, res)
		if err != nil {
			return err
		}
		s.pay(p.staked, user, res.Principal)
		tx.Emit(domain.Event{
			Kind:       domain.EventEmergencyWithdraw,
			Emitter:    p.cfg.Address,
			Amount:     res.Principal,
			Reflection: refl.Net,
			Fee:        fee,
		})
		return p.execute(tx, &s)
	})
	if err != nil {
		return fmt.Errorf("emergency withdraw: %w", err)
	}
	return nil
}

// StopReward freezes accrual for every position. Callable by the pool owner
// or a factory admin; stopping an already stopped pool is a no-op.
func (p *Pool) StopReward(tx *chain.Tx) error {
	err := tx.Call(func() error {
		caller := tx.Sender()
		if err := lifecycle.Authorize(caller, p.cfg.Owner, p.registry.IsAdmin(caller)); err != nil {
			return err
		}
		if p.life.Stop(tx, tx.Now()) {
			tx.Emit(domain.Event{Kind: domain.EventRewardStopped, Emitter: p.cfg.Address})
		}
		p.observe(tx)
		return nil
	})
	if err != nil {
		return fmt.Errorf("stop reward: %w", err)
	}
	return nil
}

// EmergencyWithdrawByOwner sweeps what no staker is owed once the pool is
// closed: the reflection balance when nobody is staked, and staked tokens
// above outstanding principal and reward. A repeated sweep pays nothing.
func (p *Pool) EmergencyWithdrawByOwner(tx *chain.Tx) error {
	err := tx.Call(func() error {
		if tx.Sender() != p.cfg.Owner {
			return reverts.ErrNotOwner
		}
		p.observe(tx)
		if err := p.life.CheckSweep(tx.Now()); err != nil {
			return err
		}

		owed, err := p.ledger.TotalOwedReward(p.clock(tx))
		if err != nil {
			return err
		}
		if _, err := p.ledger.RetireBudget(tx, p.clock(tx)); err != nil {
			return err
		}
		total := p.ledger.TotalStaked()
		stakedResidue := reflection.StakedTokenResidue(p.heldBalance(p.staked), total, owed)
		reflResidue := safemath.Zero()
		if p.reflection != nil {
			reflResidue = reflection.OwnerResidue(p.heldBalance(p.reflection), total)
		}

		var s settlement
		s.pay(p.staked, p.cfg.Owner, stakedResidue)
		s.pay(p.reflection, p.cfg.Owner, reflResidue)
		tx.Emit(domain.Event{
			Kind:       domain.EventOwnerSweep,
			Emitter:    p.cfg.Address,
			Amount:     stakedResidue,
			Reflection: reflResidue,
		})
		return p.execute(tx, &s)
	})
	if err != nil {
		return fmt.Errorf("owner sweep: %w", err)
	}
	return nil
}

// Fund pulls the reward supply from the pool owner. Called by the owner
// (against an allowance to the pool) or by the factory at deployment
// (against an allowance to the factory).
func (p *Pool) Fund(tx *chain.Tx) error {
	err := tx.Call(func() error {
		caller := tx.Sender()
		if caller != p.cfg.Owner && caller != p.cfg.Factory {
			return reverts.ErrNotOwner
		}
		if p.funded {
			return reverts.ErrAlreadyFunded
		}
		tx.Record(func() { p.funded = false })
		p.funded = true
		tx.Emit(domain.Event{Kind: domain.EventFunded, Emitter: p.cfg.Address, Amount: safemath.Copy(p.cfg.RewardSupply)})

		spender := p.cfg.Address
		if caller == p.cfg.Factory {
			spender = p.cfg.Factory
		}
		if err := p.staked.TransferFrom(tx, spender, p.cfg.Owner, p.cfg.Address, p.cfg.RewardSupply); err != nil {
			return fmt.Errorf("pull reward supply: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("fund: %w", err)
	}
	return nil
}

// planReflection adds the reflection payout for a withdrawal to s: the net
// share to the user and the platform fee to the platform owner.
func (p *Pool) planReflection(s *settlement, user domain.Address, res ledger.WithdrawResult) (reflection.Payout, error) {
	if p.reflection == nil {
		return reflection.Payout{}, nil
	}
	payout, err := reflection.Compute(res.Principal, p.heldBalance(p.reflection), res.TotalStakedBefore,
		p.registry.Fees().ReflectionFeeBps)
	if err != nil {
		return reflection.Payout{}, err
	}
	s.pay(p.reflection, user, payout.Net)
	s.pay(p.reflection, p.registry.PlatformOwner(), payout.Fee)
	return payout, nil
}

// observe records a closure that has become due.
func (p *Pool) observe(tx *chain.Tx) {
	if p.life.Observe(tx, tx.Now()) {
		tx.Emit(domain.Event{Kind: domain.EventPoolClosed, Emitter: p.cfg.Address})
	}
}

func (p *Pool) clock(tx *chain.Tx) ledger.Clock {
	return p.clockAt(tx.Now())
}
