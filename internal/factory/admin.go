package factory

import (
	"fmt"

	"github.com/holiman/uint256"

	"fsp-staking/internal/chain"
	"fsp-staking/internal/domain"
	"fsp-staking/internal/reverts"
)

// AddAdmin grants addr the right to stop any pool's rewards.
func (f *Factory) AddAdmin(tx *chain.Tx, addr domain.Address) error {
	return f.ownerOnly(tx, "add admin", func() error {
		if f.admins[addr] {
			return nil
		}
		f.setAdmin(tx, addr, true)
		tx.Emit(domain.Event{Kind: domain.EventAdminAdded, Emitter: f.addr, Subject: addr})
		return nil
	})
}

// RemoveAdmin revokes addr's admin right.
func (f *Factory) RemoveAdmin(tx *chain.Tx, addr domain.Address) error {
	return f.ownerOnly(tx, "remove admin", func() error {
		if !f.admins[addr] {
			return nil
		}
		f.setAdmin(tx, addr, false)
		tx.Emit(domain.Event{Kind: domain.EventAdminRemoved, Emitter: f.addr, Subject: addr})
		return nil
	})
}

// SetPlatformOwner changes who receives the reflection fee.
func (f *Factory) SetPlatformOwner(tx *chain.Tx, addr domain.Address) error {
	return f.ownerOnly(tx, "set platform owner", func() error {
		if addr.IsZero() {
			return fmt.Errorf("zero platform owner: %w", reverts.ErrZeroAmount)
		}
		prev := f.platformOwner
		tx.Record(func() { f.platformOwner = prev })
		f.platformOwner = addr
		tx.Emit(domain.Event{Kind: domain.EventPlatformOwnerChanged, Emitter: f.addr, Subject: addr})
		return nil
	})
}

// UpdateFees replaces the fee schedule. Existing pools pick up the new fees
// on their next call.
func (f *Factory) UpdateFees(tx *chain.Tx, fees domain.FeeSchedule) error {
	return f.ownerOnly(tx, "update fees", func() error {
		if err := fees.Validate(); err != nil {
			return err
		}
		prev := f.fees
		tx.Record(func() { f.fees = prev })
		f.fees = fees.Clone()
		tx.Emit(domain.Event{Kind: domain.EventFeesUpdated, Emitter: f.addr})
		return nil
	})
}

// TransferOwnership hands the factory to a new owner.
func (f *Factory) TransferOwnership(tx *chain.Tx, to domain.Address) error {
	return f.ownerOnly(tx, "transfer ownership", func() error {
		if to.IsZero() {
			return fmt.Errorf("zero owner: %w", reverts.ErrZeroAmount)
		}
		prev := f.owner
		tx.Record(func() { f.owner = prev })
		f.owner = to
		tx.Emit(domain.Event{Kind: domain.EventOwnershipTransferred, Emitter: f.addr, Subject: to})
		return nil
	})
}

// Withdraw moves collected fees out of the treasury.
func (f *Factory) Withdraw(tx *chain.Tx, to domain.Address, amount *uint256.Int) error {
	return f.ownerOnly(tx, "treasury withdraw", func() error {
		if amount == nil || amount.IsZero() {
			return reverts.ErrZeroAmount
		}
		if bal := f.bank.BalanceOf(f.addr); amount.Gt(bal) {
			return fmt.Errorf("treasury holds %s: %w", bal, reverts.ErrAmountTooHigh)
		}
		if err := f.bank.Transfer(tx, f.addr, to, amount); err != nil {
			return err
		}
		tx.Emit(domain.Event{
			Kind:    domain.EventTreasuryWithdraw,
			Emitter: f.addr,
			Subject: to,
			Amount:  new(uint256.Int).Set(amount),
		})
		return nil
	})
}

func (f *Factory) ownerOnly(tx *chain.Tx, op string, fn func() error) error {
	err := tx.Call(func() error {
		if tx.Sender() != f.owner {
			return reverts.ErrNotOwner
		}
		return fn()
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (f *Factory) setAdmin(tx *chain.Tx, addr domain.Address, on bool) {
	prev, existed := f.admins[addr]
	tx.Record(func() {
		if existed {
			f.admins[addr] = prev
		} else {
			delete(f.admins, addr)
		}
	})
	if on {
		f.admins[addr] = true
	} else {
		delete(f.admins, addr)
	}
}
