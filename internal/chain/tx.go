package chain

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"fsp-staking/internal/domain"
	"fsp-staking/internal/idhash"
	"fsp-staking/internal/reverts"
	"fsp-staking/internal/safemath"
)

// Tx is one serialized transaction. State owners record an undo entry before
// every mutation so a failing scope can be rolled back.
type Tx struct {
	ctx     context.Context
	env     *Env
	seq     uint64
	origin  domain.Address
	senders []domain.Address
	now     int64
	value   *uint256.Int
	journal journal
	events  []domain.Event
	depth   int
}

// Context returns the transaction context.
func (tx *Tx) Context() context.Context {
	return tx.ctx
}

// Seq returns the sequence number this transaction commits under.
func (tx *Tx) Seq() uint64 {
	return tx.seq
}

// Origin returns the account that submitted the transaction.
func (tx *Tx) Origin() domain.Address {
	return tx.origin
}

// Sender returns the caller of the current scope.
func (tx *Tx) Sender() domain.Address {
	return tx.senders[len(tx.senders)-1]
}

// Now returns the block time.
func (tx *Tx) Now() int64 {
	return tx.now
}

// Depth returns the number of open call scopes.
func (tx *Tx) Depth() int {
	return tx.depth
}

// Value returns a copy of the unconsumed native payment.
func (tx *Tx) Value() *uint256.Int {
	return safemath.Copy(tx.value)
}

// Record registers undo to run if the current scope fails.
func (tx *Tx) Record(undo func()) {
	tx.journal.record(undo)
}

// Call runs fn in a nested scope. If fn fails, every state change and event
// made inside it is undone and the error is returned.
func (tx *Tx) Call(fn func() error) error {
	cp := tx.journal.checkpoint()
	nEvents := len(tx.events)
	tx.depth++
	err := fn()
	tx.depth--
	if err != nil {
		tx.journal.revertTo(cp)
		tx.events = tx.events[:nEvents]
	}
	return err
}

// CallAs runs fn in a nested scope with sender as the caller.
func (tx *Tx) CallAs(sender domain.Address, fn func() error) error {
	tx.senders = append(tx.senders, sender)
	defer func() { tx.senders = tx.senders[:len(tx.senders)-1] }()
	return tx.Call(fn)
}

// CollectFee consumes the attached payment, which must equal required
// exactly, and credits it to recipient. mismatch is returned otherwise.
func (tx *Tx) CollectFee(required *uint256.Int, recipient domain.Address, mismatch error) error {
	if !tx.value.Eq(required) {
		return fmt.Errorf("paid %s, required %s: %w", tx.value, required, mismatch)
	}
	if required.IsZero() {
		return nil
	}
	paid := tx.value
	tx.Record(func() { tx.value = paid })
	tx.value = safemath.Zero()
	return tx.env.bank.credit(tx, recipient, paid)
}

// Emit appends an event to the transaction. It is published only if the
// transaction commits.
func (tx *Tx) Emit(ev domain.Event) {
	ev.TxSeq = tx.seq
	ev.LogIndex = len(tx.events)
	ev.Timestamp = tx.now
	if ev.Actor.IsZero() {
		ev.Actor = tx.Sender()
	}
	ev.EventID = idhash.ComputeEventID(ev.Emitter, ev.Kind, ev.TxSeq, ev.LogIndex)
	tx.events = append(tx.events, ev)
}

func (tx *Tx) checkUnconsumed() error {
	if !tx.value.IsZero() {
		return fmt.Errorf("%s left unconsumed: %w", tx.value, reverts.ErrUnconsumedValue)
	}
	return nil
}
