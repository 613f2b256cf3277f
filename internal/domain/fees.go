package domain

import (
	"fmt"

	"github.com/holiman/uint256"

	"fsp-staking/internal/reverts"
)

// MaxBps is 100% in basis points.
const MaxBps uint64 = 10000

// FeePair holds a fee for pools without and with a reflection token.
type FeePair struct {
	NonReflection *uint256.Int `json:"nonReflection" yaml:"non_reflection"`
	Reflection    *uint256.Int `json:"reflection" yaml:"reflection"`
}

// For returns a copy of the fee that applies to a pool.
func (p FeePair) For(reflection bool) *uint256.Int {
	v := p.NonReflection
	if reflection {
		v = p.Reflection
	}
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

func (p FeePair) clone() FeePair {
	return FeePair{NonReflection: cloneInt(p.NonReflection), Reflection: cloneInt(p.Reflection)}
}

// FeeSchedule is the factory-wide fee configuration. Native-currency amounts.
type FeeSchedule struct {
	Creation          [4]*uint256.Int // per lock tier code
	Deposit           FeePair
	Withdraw          FeePair
	EmergencyWithdraw FeePair
	Claim             FeePair
	ReflectionFeeBps  uint64 // share of every reflection payout sent to the platform owner
}

// CreationFee returns a copy of the pool creation price for a tier.
func (s FeeSchedule) CreationFee(t LockTier) *uint256.Int {
	return cloneInt(s.Creation[t])
}

// Clone returns a deep copy.
func (s FeeSchedule) Clone() FeeSchedule {
	out := FeeSchedule{
		Deposit:           s.Deposit.clone(),
		Withdraw:          s.Withdraw.clone(),
		EmergencyWithdraw: s.EmergencyWithdraw.clone(),
		Claim:             s.Claim.clone(),
		ReflectionFeeBps:  s.ReflectionFeeBps,
	}
	for i, c := range s.Creation {
		out.Creation[i] = cloneInt(c)
	}
	return out
}

// Validate checks that every fee is set and the reflection fee is at most 100%.
func (s FeeSchedule) Validate() error {
	for i, c := range s.Creation {
		if c == nil {
			return fmt.Errorf("creation fee for tier %d unset: %w", i, reverts.ErrInvalidFees)
		}
	}
	pairs := map[string]FeePair{
		"deposit":            s.Deposit,
		"withdraw":           s.Withdraw,
		"emergency withdraw": s.EmergencyWithdraw,
		"claim":              s.Claim,
	}
	for name, p := range pairs {
		if p.NonReflection == nil || p.Reflection == nil {
			return fmt.Errorf("%s fee unset: %w", name, reverts.ErrInvalidFees)
		}
	}
	if s.ReflectionFeeBps > MaxBps {
		return fmt.Errorf("reflection fee %d bps above %d: %w", s.ReflectionFeeBps, MaxBps, reverts.ErrInvalidFees)
	}
	return nil
}

func cloneInt(v *uint256.Int) *uint256.Int {
	if v == nil {
		return nil
	}
	return new(uint256.Int).Set(v)
}
