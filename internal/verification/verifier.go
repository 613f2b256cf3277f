// Package verification reconciles persisted pool state against the
// persisted event log. Replaying a pool's deposit and withdrawal events must
// reproduce the stored total stake, staker count and every stored position.
package verification

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"fsp-staking/internal/domain"
	"fsp-staking/internal/safemath"
	"fsp-staking/internal/storage"
)

// ErrPoolNotFound is returned when the pool has no stored snapshot.
var ErrPoolNotFound = errors.New("pool not found")

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Field    string // "total_staked", "staker_count" or "stake:<user>"
	Expected string // stored value
	Actual   string // replayed value
}

// Result is the outcome of verifying one pool.
type Result struct {
	Pool        domain.Address
	Match       bool
	Events      int
	Divergences []FieldDivergence
}

// Report contains results for batch verification.
type Report struct {
	TotalPools     int
	MatchedPools   int
	DivergentPools int
	Results        []Result
}

// Verifier replays persisted events.
type Verifier struct {
	pools     storage.PoolStore
	positions storage.PositionStore
	events    storage.EventStore
}

// New creates a verifier over the given stores.
func New(pools storage.PoolStore, positions storage.PositionStore, events storage.EventStore) *Verifier {
	return &Verifier{pools: pools, positions: positions, events: events}
}

// VerifyPool replays the events emitted by pool and compares the result with
// the stored snapshot and positions.
func (v *Verifier) VerifyPool(ctx context.Context, pool domain.Address) (*Result, error) {
	snap, err := v.pools.Get(ctx, pool)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrPoolNotFound
		}
		return nil, fmt.Errorf("load pool: %w", err)
	}
	events, err := v.events.GetByEmitter(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	stored, err := v.positions.ListByPool(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}

	stakes, err := Replay(events)
	if err != nil {
		return nil, err
	}
	divergences := Compare(snap, stored, stakes)
	return &Result{
		Pool:        pool,
		Match:       len(divergences) == 0,
		Events:      len(events),
		Divergences: divergences,
	}, nil
}

// VerifyAll verifies every stored pool.
func (v *Verifier) VerifyAll(ctx context.Context) (*Report, error) {
	snaps, err := v.pools.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	report := &Report{TotalPools: len(snaps), Results: make([]Result, 0, len(snaps))}
	for _, s := range snaps {
		res, err := v.VerifyPool(ctx, s.Config.Address)
		if err != nil {
			return nil, fmt.Errorf("verify %s: %w", s.Config.Address.Short(), err)
		}
		if res.Match {
			report.MatchedPools++
		} else {
			report.DivergentPools++
		}
		report.Results = append(report.Results, *res)
	}
	return report, nil
}

// Replay folds deposit and withdrawal events into per-user stakes. Events
// must be in commit order. Users whose stake returns to zero are dropped.
func Replay(events []*domain.Event) (map[domain.Address]*uint256.Int, error) {
	stakes := make(map[domain.Address]*uint256.Int)
	for _, e := range events {
		if e.Amount == nil {
			continue
		}
		cur, ok := stakes[e.Actor]
		if !ok {
			cur = safemath.Zero()
		}
		var err error
		switch e.Kind {
		case domain.EventDeposit:
			cur, err = safemath.Add(cur, e.Amount)
		case domain.EventWithdraw, domain.EventEmergencyWithdraw:
			cur, err = safemath.Sub(cur, e.Amount)
		default:
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("replay %s at tx %d: %w", e.Kind, e.TxSeq, err)
		}
		if cur.IsZero() {
			delete(stakes, e.Actor)
		} else {
			stakes[e.Actor] = cur
		}
	}
	return stakes, nil
}

// Compare returns the divergences between stored state and replayed stakes.
func Compare(snap *domain.PoolSnapshot, stored []*domain.Position, stakes map[domain.Address]*uint256.Int) []FieldDivergence {
	var out []FieldDivergence

	total := safemath.Zero()
	for _, s := range stakes {
		total.Add(total, s)
	}
	if !eq(snap.TotalStaked, total) {
		out = append(out, FieldDivergence{Field: "total_staked", Expected: dec(snap.TotalStaked), Actual: total.Dec()})
	}
	if snap.StakerCount != len(stakes) {
		out = append(out, FieldDivergence{
			Field:    "staker_count",
			Expected: fmt.Sprint(snap.StakerCount),
			Actual:   fmt.Sprint(len(stakes)),
		})
	}

	seen := make(map[domain.Address]bool, len(stored))
	for _, p := range stored {
		seen[p.User] = true
		want := stakes[p.User]
		if !eq(p.StakedAmount, want) {
			out = append(out, FieldDivergence{Field: "stake:" + p.User.String(), Expected: dec(p.StakedAmount), Actual: dec(want)})
		}
	}
	for user, s := range stakes {
		if !seen[user] {
			out = append(out, FieldDivergence{Field: "stake:" + user.String(), Expected: "0", Actual: s.Dec()})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

func eq(a, b *uint256.Int) bool {
	if a == nil {
		a = safemath.Zero()
	}
	if b == nil {
		b = safemath.Zero()
	}
	return a.Eq(b)
}

func dec(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
