// Package reflection splits a pool's reflection-token balance among
// withdrawing stakers.
package reflection

import (
	"fmt"

	"github.com/holiman/uint256"

	"fsp-staking/internal/domain"
	"fsp-staking/internal/reverts"
	"fsp-staking/internal/safemath"
)

// Payout is a reflection distribution for one withdrawal.
type Payout struct {
	Gross *uint256.Int // share of the held balance
	Fee   *uint256.Int // platform cut of Gross
	Net   *uint256.Int // Gross - Fee, paid to the user
}

// IsZero reports whether nothing is paid.
func (p Payout) IsZero() bool {
	return safemath.IsZero(p.Gross)
}

// Share returns floor(withdrawn * held / totalStakedBefore).
// totalStakedBefore is the pool total before the withdrawal is debited, so a
// sole staker leaving with everything receives the whole balance.
func Share(withdrawn, held, totalStakedBefore *uint256.Int) (*uint256.Int, error) {
	if safemath.IsZero(totalStakedBefore) {
		return nil, reverts.ErrNoStakers
	}
	if withdrawn.Gt(totalStakedBefore) {
		return nil, fmt.Errorf("withdrawn %s above total %s: %w", withdrawn, totalStakedBefore, reverts.ErrAmountTooHigh)
	}
	return safemath.MulDiv(withdrawn, held, totalStakedBefore)
}

// SplitFee deducts feeBps of gross for the platform.
func SplitFee(gross *uint256.Int, feeBps uint64) (net, fee *uint256.Int, err error) {
	if feeBps > domain.MaxBps {
		return nil, nil, fmt.Errorf("reflection fee %d bps: %w", feeBps, reverts.ErrInvalidFees)
	}
	fee, err = safemath.MulDiv(gross, safemath.U64(feeBps), safemath.U64(domain.MaxBps))
	if err != nil {
		return nil, nil, err
	}
	return new(uint256.Int).Sub(gross, fee), fee, nil
}

// Compute returns the payout owed for withdrawing principal.
func Compute(withdrawn, held, totalStakedBefore *uint256.Int, feeBps uint64) (Payout, error) {
	gross, err := Share(withdrawn, held, totalStakedBefore)
	if err != nil {
		return Payout{}, err
	}
	net, fee, err := SplitFee(gross, feeBps)
	if err != nil {
		return Payout{}, err
	}
	return Payout{Gross: gross, Fee: fee, Net: net}, nil
}

// OwnerResidue is the reflection balance the pool owner may sweep: all of it
// once no stake remains, nothing while stakers are still entitled to it.
func OwnerResidue(held, totalStaked *uint256.Int) *uint256.Int {
	if safemath.IsZero(totalStaked) {
		return safemath.Copy(held)
	}
	return safemath.Zero()
}

// StakedTokenResidue is the staked-token balance not backing principal or
// owed reward: balance - totalStaked - owed, floored at zero.
func StakedTokenResidue(balance, totalStaked, owed *uint256.Int) *uint256.Int {
	return safemath.SaturatingSub(safemath.SaturatingSub(balance, totalStaked), owed)
}
