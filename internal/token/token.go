// Package token defines the fungible token interface pools depend on and a
// journaled in-memory implementation.
package token

import (
	"github.com/holiman/uint256"

	"fsp-staking/internal/chain"
	"fsp-staking/internal/domain"
)

// Token is a fungible token. There are no signatures in the environment, so
// callers name the authorizing account explicitly: from for Transfer, the
// spender for TransferFrom, the owner for Approve. Every mutation returns an
// error that callers must check.
type Token interface {
	Address() domain.Address
	Symbol() string
	Decimals() uint8
	TotalSupply() *uint256.Int
	BalanceOf(owner domain.Address) *uint256.Int
	Allowance(owner, spender domain.Address) *uint256.Int
	Transfer(tx *chain.Tx, from, to domain.Address, amount *uint256.Int) error
	TransferFrom(tx *chain.Tx, spender, from, to domain.Address, amount *uint256.Int) error
	Approve(tx *chain.Tx, owner, spender domain.Address, amount *uint256.Int) error
}
