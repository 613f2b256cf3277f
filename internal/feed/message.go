// Package feed publishes committed staking events over WebSocket and provides
// a reconnecting subscriber for indexers.
package feed

import (
	"fmt"

	"github.com/holiman/uint256"

	"fsp-staking/internal/domain"
)

// Message types exchanged on the feed connection.
const (
	TypeEvent      = "event"
	TypeSubscribe  = "subscribe"
	TypeSubscribed = "subscribed"
	TypeError      = "error"
)

// Message is one JSON frame on the feed.
type Message struct {
	Type  string           `json:"type"`
	Event *Event           `json:"event,omitempty"`
	Pools []domain.Address `json:"pools,omitempty"` // subscribe filter, empty for all
	Error string           `json:"error,omitempty"`
}

// Event is the wire form of domain.Event. Amounts are base-unit decimal strings.
type Event struct {
	ID         string           `json:"id"`
	Kind       domain.EventKind `json:"kind"`
	Emitter    domain.Address   `json:"emitter"`
	Actor      domain.Address   `json:"actor"`
	Subject    *domain.Address  `json:"subject,omitempty"`
	Amount     string           `json:"amount,omitempty"`
	Reward     string           `json:"reward,omitempty"`
	Reflection string           `json:"reflection,omitempty"`
	Fee        string           `json:"fee,omitempty"`
	TxSeq      uint64           `json:"txSeq"`
	LogIndex   int              `json:"logIndex"`
	Timestamp  int64            `json:"timestamp"`
}

// FromDomain converts a committed event to its wire form.
func FromDomain(e domain.Event) Event {
	out := Event{
		ID:         e.EventID,
		Kind:       e.Kind,
		Emitter:    e.Emitter,
		Actor:      e.Actor,
		Amount:     dec(e.Amount),
		Reward:     dec(e.Reward),
		Reflection: dec(e.Reflection),
		Fee:        dec(e.Fee),
		TxSeq:      e.TxSeq,
		LogIndex:   e.LogIndex,
		Timestamp:  e.Timestamp,
	}
	if !e.Subject.IsZero() {
		s := e.Subject
		out.Subject = &s
	}
	return out
}

// ToDomain converts a wire event back to a domain event.
func (e Event) ToDomain() (domain.Event, error) {
	out := domain.Event{
		EventID:   e.ID,
		Kind:      e.Kind,
		Emitter:   e.Emitter,
		Actor:     e.Actor,
		TxSeq:     e.TxSeq,
		LogIndex:  e.LogIndex,
		Timestamp: e.Timestamp,
	}
	if e.Subject != nil {
		out.Subject = *e.Subject
	}
	for _, f := range []struct {
		name string
		src  string
		dst  **uint256.Int
	}{
		{"amount", e.Amount, &out.Amount},
		{"reward", e.Reward, &out.Reward},
		{"reflection", e.Reflection, &out.Reflection},
		{"fee", e.Fee, &out.Fee},
	} {
		if f.src == "" {
			continue
		}
		v, err := uint256.FromDecimal(f.src)
		if err != nil {
			return domain.Event{}, fmt.Errorf("event %s %s: %w", e.ID, f.name, err)
		}
		*f.dst = v
	}
	return out, nil
}

func dec(v *uint256.Int) string {
	if v == nil {
		return ""
	}
	return v.Dec()
}
