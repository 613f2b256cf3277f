package storage

import "fsp-staking/internal/domain"

// IsActivity reports whether an event kind is user staking activity that the
// ActivityStore records.
func IsActivity(kind domain.EventKind) bool {
	switch kind {
	case domain.EventDeposit, domain.EventWithdraw, domain.EventRewardClaimed, domain.EventEmergencyWithdraw:
		return true
	}
	return false
}

// DayOf truncates a Unix timestamp to 00:00 UTC of its day.
func DayOf(ts int64) int64 {
	if ts < 0 {
		return 0
	}
	return ts - ts%domain.SecondsPerDay
}
