package pool

import (
	"fmt"

	"github.com/holiman/uint256"

	"fsp-staking/internal/chain"
	"fsp-staking/internal/domain"
	"fsp-staking/internal/safemath"
	"fsp-staking/internal/token"
)

type transfer struct {
	tok    token.Token
	to     domain.Address
	amount *uint256.Int
}

// settlement is the outgoing side of an entry point, collected during the
// effects phase and paid out once all internal state is final.
type settlement struct {
	transfers []transfer
}

func (s *settlement) pay(tok token.Token, to domain.Address, amount *uint256.Int) {
	if tok == nil || safemath.IsZero(amount) {
		return
	}
	s.transfers = append(s.transfers, transfer{tok: tok, to: to, amount: safemath.Copy(amount)})
}

// execute reserves every outgoing amount, then performs the transfers in
// order. A transfer's reservation is released just before the token moves
// the balance.
func (p *Pool) execute(tx *chain.Tx, s *settlement) error {
	for _, t := range s.transfers {
		if err := p.adjustOutstanding(tx, t.tok.Address(), t.amount, true); err != nil {
			return err
		}
	}
	for _, t := range s.transfers {
		if err := p.adjustOutstanding(tx, t.tok.Address(), t.amount, false); err != nil {
			return err
		}
		if err := t.tok.Transfer(tx, p.cfg.Address, t.to, t.amount); err != nil {
			return fmt.Errorf("pay %s %s: %w", t.amount, t.tok.Symbol(), err)
		}
	}
	return nil
}

func (p *Pool) adjustOutstanding(tx *chain.Tx, tokAddr domain.Address, amount *uint256.Int, reserve bool) error {
	prev, existed := p.outstanding[tokAddr]
	current := safemath.Copy(prev)
	var next *uint256.Int
	var err error
	if reserve {
		next, err = safemath.Add(current, amount)
	} else {
		next, err = safemath.Sub(current, amount)
	}
	if err != nil {
		return err
	}
	tx.Record(func() {
		if existed {
			p.outstanding[tokAddr] = prev
		} else {
			delete(p.outstanding, tokAddr)
		}
	})
	if next.IsZero() {
		delete(p.outstanding, tokAddr)
	} else {
		p.outstanding[tokAddr] = next
	}
	return nil
}
