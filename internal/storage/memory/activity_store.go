package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/holiman/uint256"

	"fsp-staking/internal/domain"
	"fsp-staking/internal/storage"
)

// ActivityStore is an in-memory implementation of storage.ActivityStore.
type ActivityStore struct {
	mu     sync.RWMutex
	seen   map[string]struct{}
	events []*domain.Event
}

// NewActivityStore creates a new in-memory activity store.
func NewActivityStore() *ActivityStore {
	return &ActivityStore{
		seen: make(map[string]struct{}),
	}
}

// InsertBulk appends activity events, skipping non-activity kinds and ids already present.
func (s *ActivityStore) InsertBulk(_ context.Context, events []*domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		if e == nil || e.EventID == "" {
			return storage.ErrInvalidInput
		}
	}
	for _, e := range events {
		if !storage.IsActivity(e.Kind) {
			continue
		}
		if _, dup := s.seen[e.EventID]; dup {
			continue
		}
		s.seen[e.EventID] = struct{}{}
		s.events = append(s.events, e.Clone())
	}
	return nil
}

type dayTotals struct {
	row                                          storage.DailyActivity
	staked, unstaked, rewards, reflections, fees uint256.Int
}

// DailyByPool aggregates a pool's activity per UTC day within [start, end].
func (s *ActivityStore) DailyByPool(_ context.Context, pool domain.Address, start, end int64) ([]*storage.DailyActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	days := make(map[int64]*dayTotals)
	for _, e := range s.events {
		if e.Emitter != pool || e.Timestamp < start || e.Timestamp > end {
			continue
		}
		day := storage.DayOf(e.Timestamp)
		t, ok := days[day]
		if !ok {
			t = &dayTotals{row: storage.DailyActivity{Pool: pool, Day: day}}
			days[day] = t
		}
		switch e.Kind {
		case domain.EventDeposit:
			t.row.Deposits++
			addTo(&t.staked, e.Amount)
		case domain.EventWithdraw:
			t.row.Withdrawals++
			addTo(&t.unstaked, e.Amount)
		case domain.EventRewardClaimed:
			t.row.Claims++
		case domain.EventEmergencyWithdraw:
			t.row.Emergencies++
			addTo(&t.unstaked, e.Amount)
		}
		addTo(&t.rewards, e.Reward)
		addTo(&t.reflections, e.Reflection)
		addTo(&t.fees, e.Fee)
	}

	result := make([]*storage.DailyActivity, 0, len(days))
	for _, t := range days {
		row := t.row
		row.Staked = t.staked.Dec()
		row.Unstaked = t.unstaked.Dec()
		row.Rewards = t.rewards.Dec()
		row.Reflections = t.reflections.Dec()
		row.Fees = t.fees.Dec()
		result = append(result, &row)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Day < result[j].Day })
	return result, nil
}

// addTo accumulates v into sum. Totals are analytics only, so overflow saturates.
func addTo(sum *uint256.Int, v *uint256.Int) {
	if v == nil {
		return
	}
	if _, overflow := sum.AddOverflow(sum, v); overflow {
		sum.SetAllOne()
	}
}

// Verify interface compliance at compile time.
var _ storage.ActivityStore = (*ActivityStore)(nil)
