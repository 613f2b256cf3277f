package chain

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"fsp-staking/internal/domain"
	"fsp-staking/internal/reverts"
	"fsp-staking/internal/safemath"
)

// Bank holds native-currency balances. Fees are paid in native currency.
type Bank struct {
	mu       sync.RWMutex
	balances map[domain.Address]*uint256.Int
}

// NewBank creates an empty bank.
func NewBank() *Bank {
	return &Bank{balances: make(map[domain.Address]*uint256.Int)}
}

// BalanceOf returns a copy of owner's balance.
func (b *Bank) BalanceOf(owner domain.Address) *uint256.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return safemath.Copy(b.balances[owner])
}

// Mint credits new currency to an account (dev faucet).
func (b *Bank) Mint(tx *Tx, to domain.Address, amount *uint256.Int) error {
	return b.credit(tx, to, amount)
}

// Transfer moves currency between accounts.
func (b *Bank) Transfer(tx *Tx, from, to domain.Address, amount *uint256.Int) error {
	return tx.Call(func() error {
		if err := b.debit(tx, from, amount); err != nil {
			return err
		}
		return b.credit(tx, to, amount)
	})
}

func (b *Bank) set(tx *Tx, owner domain.Address, v *uint256.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev, existed := b.balances[owner]
	tx.Record(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existed {
			b.balances[owner] = prev
		} else {
			delete(b.balances, owner)
		}
	})
	b.balances[owner] = v
}

func (b *Bank) credit(tx *Tx, to domain.Address, amount *uint256.Int) error {
	next, err := safemath.Add(b.BalanceOf(to), amount)
	if err != nil {
		return err
	}
	b.set(tx, to, next)
	return nil
}

func (b *Bank) debit(tx *Tx, from domain.Address, amount *uint256.Int) error {
	bal := b.BalanceOf(from)
	if bal.Lt(amount) {
		return fmt.Errorf("native balance %s below %s: %w", bal, amount, reverts.ErrInsufficientBalance)
	}
	b.set(tx, from, new(uint256.Int).Sub(bal, amount))
	return nil
}
