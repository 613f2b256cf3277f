package token

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"fsp-staking/internal/chain"
	"fsp-staking/internal/domain"
	"fsp-staking/internal/reverts"
	"fsp-staking/internal/safemath"
)

type allowanceKey struct {
	owner   domain.Address
	spender domain.Address
}

// Memory is an in-memory token whose mutations are undone when the
// enclosing transaction scope fails.
type Memory struct {
	mu         sync.RWMutex
	addr       domain.Address
	symbol     string
	decimals   uint8
	supply     *uint256.Int
	balances   map[domain.Address]*uint256.Int
	allowances map[allowanceKey]*uint256.Int
}

// NewMemory creates a token with zero supply.
func NewMemory(addr domain.Address, symbol string, decimals uint8) *Memory {
	return &Memory{
		addr:       addr,
		symbol:     symbol,
		decimals:   decimals,
		supply:     safemath.Zero(),
		balances:   make(map[domain.Address]*uint256.Int),
		allowances: make(map[allowanceKey]*uint256.Int),
	}
}

// Address returns the token address.
func (m *Memory) Address() domain.Address { return m.addr }

// Symbol returns the ticker.
func (m *Memory) Symbol() string { return m.symbol }

// Decimals returns the display precision.
func (m *Memory) Decimals() uint8 { return m.decimals }

// TotalSupply returns a copy of the minted supply.
func (m *Memory) TotalSupply() *uint256.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return safemath.Copy(m.supply)
}

// BalanceOf returns a copy of owner's balance.
func (m *Memory) BalanceOf(owner domain.Address) *uint256.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return safemath.Copy(m.balances[owner])
}

// Allowance returns a copy of what spender may move from owner.
func (m *Memory) Allowance(owner, spender domain.Address) *uint256.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return safemath.Copy(m.allowances[allowanceKey{owner, spender}])
}

// Mint creates amount new tokens for to.
func (m *Memory) Mint(tx *chain.Tx, to domain.Address, amount *uint256.Int) error {
	return tx.Call(func() error {
		supply, err := safemath.Add(m.TotalSupply(), amount)
		if err != nil {
			return fmt.Errorf("mint %s: %w", m.symbol, err)
		}
		bal, err := safemath.Add(m.BalanceOf(to), amount)
		if err != nil {
			return fmt.Errorf("mint %s: %w", m.symbol, err)
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		prevSupply := m.supply
		tx.Record(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.supply = prevSupply
		})
		m.supply = supply
		m.setBalance(tx, to, bal)
		return nil
	})
}

// Transfer moves amount from from to to.
func (m *Memory) Transfer(tx *chain.Tx, from, to domain.Address, amount *uint256.Int) error {
	return tx.Call(func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.move(tx, from, to, amount)
	})
}

// TransferFrom moves amount from from to to against spender's allowance.
func (m *Memory) TransferFrom(tx *chain.Tx, spender, from, to domain.Address, amount *uint256.Int) error {
	return tx.Call(func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		key := allowanceKey{from, spender}
		allowed := safemath.Copy(m.allowances[key])
		if allowed.Lt(amount) {
			return fmt.Errorf("%s: %w: %w", m.symbol, reverts.ErrTransferFailed, reverts.ErrInsufficientAllowance)
		}
		m.setAllowance(tx, key, new(uint256.Int).Sub(allowed, amount))
		return m.move(tx, from, to, amount)
	})
}

// Approve sets spender's allowance over owner's balance.
func (m *Memory) Approve(tx *chain.Tx, owner, spender domain.Address, amount *uint256.Int) error {
	return tx.Call(func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.setAllowance(tx, allowanceKey{owner, spender}, safemath.Copy(amount))
		return nil
	})
}

// move requires m.mu held.
func (m *Memory) move(tx *chain.Tx, from, to domain.Address, amount *uint256.Int) error {
	fromBal := safemath.Copy(m.balances[from])
	if fromBal.Lt(amount) {
		return fmt.Errorf("%s: %w: %w", m.symbol, reverts.ErrTransferFailed, reverts.ErrInsufficientBalance)
	}
	if from == to || amount.IsZero() {
		return nil
	}
	toBal, err := safemath.Add(safemath.Copy(m.balances[to]), amount)
	if err != nil {
		return err
	}
	m.setBalance(tx, from, new(uint256.Int).Sub(fromBal, amount))
	m.setBalance(tx, to, toBal)
	return nil
}

// setBalance requires m.mu held.
func (m *Memory) setBalance(tx *chain.Tx, owner domain.Address, v *uint256.Int) {
	prev, existed := m.balances[owner]
	tx.Record(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if existed {
			m.balances[owner] = prev
		} else {
			delete(m.balances, owner)
		}
	})
	m.balances[owner] = v
}

// setAllowance requires m.mu held.
func (m *Memory) setAllowance(tx *chain.Tx, key allowanceKey, v *uint256.Int) {
	prev, existed := m.allowances[key]
	tx.Record(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if existed {
			m.allowances[key] = prev
		} else {
			delete(m.allowances, key)
		}
	})
	m.allowances[key] = v
}

var _ Token = (*Memory)(nil)
