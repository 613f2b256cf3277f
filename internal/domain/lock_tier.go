package domain

import (
	"fmt"

	"fsp-staking/internal/reverts"
)

// LockTier selects a pool's lock duration and reward multiplier.
// Immutable once a pool is deployed.
type LockTier uint8

const (
	LockNone        LockTier = 0 // no lock, full rate
	LockThreeMonth  LockTier = 1 // 90 days
	LockSixMonth    LockTier = 2 // 180 days
	LockTwelveMonth LockTier = 3 // 365 days
)

// MultiplierDenominator is the fixed denominator of every tier multiplier.
const MultiplierDenominator uint64 = 100000

// SecondsPerDay and SecondsPerYear are the time units of the reward formula.
const (
	SecondsPerDay  int64 = 86400
	SecondsPerYear int64 = 31536000
)

type tierParams struct {
	name       string
	multiplier uint64
	days       int64
}

var tiers = [...]tierParams{
	LockNone:        {"NO_LOCK", 100000, 0},
	LockThreeMonth:  {"THREE_MONTH", 49310, 90},
	LockSixMonth:    {"SIX_MONTH", 24650, 180},
	LockTwelveMonth: {"TWELVE_MONTH", 8291, 365},
}

// LockTierFromCode validates a tier code (0..3).
func LockTierFromCode(code uint8) (LockTier, error) {
	t := LockTier(code)
	if !t.IsValid() {
		return 0, fmt.Errorf("tier code %d: %w", code, reverts.ErrInvalidLockTier)
	}
	return t, nil
}

// AllLockTiers returns the tiers in code order.
func AllLockTiers() []LockTier {
	return []LockTier{LockNone, LockThreeMonth, LockSixMonth, LockTwelveMonth}
}

// IsValid checks if the tier is a known value.
func (t LockTier) IsValid() bool {
	return int(t) < len(tiers)
}

// Code returns the numeric tier code.
func (t LockTier) Code() uint8 {
	return uint8(t)
}

// String returns the tier name.
func (t LockTier) String() string {
	if !t.IsValid() {
		return fmt.Sprintf("LockTier(%d)", uint8(t))
	}
	return tiers[t].name
}

// Multiplier returns the reward multiplier numerator over MultiplierDenominator.
func (t LockTier) Multiplier() uint64 {
	return tiers[t].multiplier
}

// Duration returns the lock duration in seconds.
func (t LockTier) Duration() int64 {
	return tiers[t].days * SecondsPerDay
}
