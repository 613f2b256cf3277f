package domain

import "github.com/holiman/uint256"

// EventKind names a state change published by a pool or the factory.
type EventKind string

const (
	EventPoolCreated          EventKind = "POOL_CREATED"
	EventFunded               EventKind = "FUNDED"
	EventDeposit              EventKind = "DEPOSIT"
	EventWithdraw             EventKind = "WITHDRAW"
	EventRewardClaimed        EventKind = "REWARD_CLAIMED"
	EventEmergencyWithdraw    EventKind = "EMERGENCY_WITHDRAW"
	EventRewardStopped        EventKind = "REWARD_STOPPED"
	EventPoolClosed           EventKind = "POOL_CLOSED"
	EventOwnerSweep           EventKind = "OWNER_SWEEP"
	EventAdminAdded           EventKind = "ADMIN_ADDED"
	EventAdminRemoved         EventKind = "ADMIN_REMOVED"
	EventFeesUpdated          EventKind = "FEES_UPDATED"
	EventPlatformOwnerChanged EventKind = "PLATFORM_OWNER_CHANGED"
	EventOwnershipTransferred EventKind = "OWNERSHIP_TRANSFERRED"
	EventTreasuryWithdraw     EventKind = "TREASURY_WITHDRAW"
)

var eventKinds = map[EventKind]bool{
	EventPoolCreated: true, EventFunded: true, EventDeposit: true, EventWithdraw: true,
	EventRewardClaimed: true, EventEmergencyWithdraw: true, EventRewardStopped: true,
	EventPoolClosed: true, EventOwnerSweep: true, EventAdminAdded: true, EventAdminRemoved: true,
	EventFeesUpdated: true, EventPlatformOwnerChanged: true, EventOwnershipTransferred: true,
	EventTreasuryWithdraw: true,
}

// String returns the string representation of EventKind.
func (k EventKind) String() string {
	return string(k)
}

// IsValid checks if the kind is a known value.
func (k EventKind) IsValid() bool {
	return eventKinds[k]
}

// Event is a committed state change.
// Corresponds to pool_events table in PostgreSQL.
type Event struct {
	EventID    string       // PRIMARY KEY, deterministic hash
	Kind       EventKind    //
	Emitter    Address      // pool or factory
	Actor      Address      // transaction sender
	Subject    Address      // counterparty: new pool, admin, recipient (optional)
	Amount     *uint256.Int // principal, supply or treasury amount (nullable)
	Reward     *uint256.Int // reward paid (nullable)
	Reflection *uint256.Int // net reflection paid to the actor (nullable)
	Fee        *uint256.Int // native fee paid (nullable)
	TxSeq      uint64       // committing transaction sequence number
	LogIndex   int          // position within the transaction
	Timestamp  int64        // block time, Unix seconds
}

// Clone returns a deep copy. Nil amounts stay nil.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	out := *e
	out.Amount = cloneInt(e.Amount)
	out.Reward = cloneInt(e.Reward)
	out.Reflection = cloneInt(e.Reflection)
	out.Fee = cloneInt(e.Fee)
	return &out
}
