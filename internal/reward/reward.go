// Package reward computes fixed-APY reward accrual.
//
// reward = floor(staked * apy * m * elapsed / (100 * d * SecondsPerYear))
//
// All products are formed before the single division and every step is
// checked, so rounding is applied exactly once.
package reward

import (
	"fmt"

	"github.com/holiman/uint256"

	"fsp-staking/internal/domain"
	"fsp-staking/internal/safemath"
)

// Rate is the per-pool accrual rate.
type Rate struct {
	APYPercent  uint64
	Multiplier  uint64
	Denominator uint64
}

// RateFor returns the accrual rate of a pool.
func RateFor(apy uint64, tier domain.LockTier) Rate {
	return Rate{APYPercent: apy, Multiplier: tier.Multiplier(), Denominator: domain.MultiplierDenominator}
}

// Compute returns the reward accrued by staked over elapsed seconds.
func Compute(staked *uint256.Int, r Rate, elapsed int64) (*uint256.Int, error) {
	if elapsed <= 0 || safemath.IsZero(staked) || r.APYPercent == 0 || r.Multiplier == 0 {
		return safemath.Zero(), nil
	}

	num, err := safemath.Product(staked,
		safemath.U64(r.APYPercent),
		safemath.U64(r.Multiplier),
		safemath.U64(uint64(elapsed)),
	)
	if err != nil {
		return nil, fmt.Errorf("reward numerator: %w", err)
	}
	den, err := safemath.Product(safemath.U64(100), safemath.U64(r.Denominator), safemath.U64(uint64(domain.SecondsPerYear)))
	if err != nil {
		return nil, fmt.Errorf("reward denominator: %w", err)
	}
	return safemath.Div(num, den)
}

// Elapsed returns the accrual window [lastSettlement, min(now, stoppedAt)],
// clamped at zero.
func Elapsed(lastSettlement, now int64, stoppedAt *int64) int64 {
	end := now
	if stoppedAt != nil && *stoppedAt < end {
		end = *stoppedAt
	}
	if end <= lastSettlement {
		return 0
	}
	return end - lastSettlement
}

// Pending returns the reward accrued since lastSettlement.
func Pending(staked *uint256.Int, r Rate, lastSettlement, now int64, stoppedAt *int64) (*uint256.Int, error) {
	return Compute(staked, r, Elapsed(lastSettlement, now, stoppedAt))
}

// MaxStake returns the total stake whose one-year reward equals supply:
// supply * 100 * d / (apy * m). A pool never accepts more stake than this.
func MaxStake(supply *uint256.Int, r Rate) (*uint256.Int, error) {
	if r.APYPercent == 0 || r.Multiplier == 0 {
		return new(uint256.Int).SetAllOne(), nil
	}
	num, err := safemath.Product(supply, safemath.U64(100), safemath.U64(r.Denominator))
	if err != nil {
		return nil, fmt.Errorf("max stake: %w", err)
	}
	den, err := safemath.Mul(safemath.U64(r.APYPercent), safemath.U64(r.Multiplier))
	if err != nil {
		return nil, fmt.Errorf("max stake: %w", err)
	}
	return safemath.Div(num, den)
}
