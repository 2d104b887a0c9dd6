package reliablequeue

import (
	"context"
	"time"

	"github.com/open-collar/reliablequeue/pkg/storage/table"
)

// StateMachine enforces legal MessageRecord transitions, attempt
// accounting, and terminal classification (spec.md §4.3). Every transition
// is an optimistic table.Replace conditioned on the record's ETag; on a
// conflict the caller re-reads and re-evaluates rather than retrying
// blindly.
type StateMachine struct {
	maxAttempts int
}

// NewStateMachine creates a StateMachine enforcing maxAttempts before
// poisoning a message.
func NewStateMachine(maxAttempts int) *StateMachine {
	return &StateMachine{maxAttempts: maxAttempts}
}

// legalTransitions maps a from-state to the set of to-states the state
// machine permits (spec.md §4.3 diagram).
var legalTransitions = map[MessageState]map[MessageState]bool{
	StateNew:        {StateQueued: true},
	StateQueued:     {StateClaimed: true, StateExpired: true},
	StateClaimed:    {StateProcessing: true, StateQueued: true, StateExpired: true},
	StateProcessing: {StateDelivered: true, StateQueued: true, StatePoison: true, StateExpired: true},
}

// CanTransition reports whether from -> to is a legal edge.
func (sm *StateMachine) CanTransition(from, to MessageState) bool {
	return legalTransitions[from][to]
}

// Claim performs Queued -> Claimed: increments attempts and installs
// lease, inside the same conditional replace that enforces the
// precondition. Returns ErrMessageStateError if record is not currently
// Queued.
func (sm *StateMachine) Claim(record *MessageRecord, ownerEndpointID string, now time.Time, leaseDuration time.Duration) error {
	if record.State != StateQueued {
		return ErrMessageStateError(record.MessageID, StateQueued, record.State)
	}
	record.State = StateClaimed
	record.Attempts++
	record.LastAttemptedAt = now
	record.Lease = Lease{OwnerEndpointID: ownerEndpointID, LeaseExpiresAt: now.Add(leaseDuration)}
	return nil
}

// BeginProcessing performs Claimed -> Processing.
func (sm *StateMachine) BeginProcessing(record *MessageRecord) error {
	if record.State != StateClaimed {
		return ErrMessageStateError(record.MessageID, StateClaimed, record.State)
	}
	record.State = StateProcessing
	return nil
}

// Ack performs Processing -> Delivered (terminal).
func (sm *StateMachine) Ack(record *MessageRecord) error {
	if record.State != StateProcessing {
		return ErrMessageStateError(record.MessageID, StateProcessing, record.State)
	}
	record.State = StateDelivered
	record.Lease = Lease{}
	return nil
}

// Nack performs Processing -> Queued (if attempts < MaxAttempts) or
// Processing -> Poison (else, terminal). Returns true if the record was
// poisoned.
func (sm *StateMachine) Nack(record *MessageRecord) (poisoned bool, err error) {
	if record.State != StateProcessing {
		return false, ErrMessageStateError(record.MessageID, StateProcessing, record.State)
	}
	if record.Attempts >= sm.maxAttempts {
		record.State = StatePoison
		record.Lease = Lease{}
		return true, nil
	}
	record.State = StateQueued
	record.Lease = Lease{}
	return false, nil
}

// ReclaimExpiredLease performs Claimed/Processing -> Queued for a record
// whose lease has lapsed (spec.md §4.8 Janitor lease-reclaim sweep).
func (sm *StateMachine) ReclaimExpiredLease(record *MessageRecord, now time.Time) error {
	if record.State != StateClaimed && record.State != StateProcessing {
		return ErrMessageStateError(record.MessageID, StateClaimed, record.State)
	}
	if record.Lease.LeaseExpiresAt.After(now) {
		return ErrMessageStateError(record.MessageID, StateQueued, record.State)
	}
	record.State = StateQueued
	record.Lease = Lease{}
	return nil
}

// ExpireTTL performs Queued/Claimed/Processing -> Expired (terminal) for a
// record whose TTL has elapsed.
func (sm *StateMachine) ExpireTTL(record *MessageRecord, now time.Time) error {
	if record.State.IsTerminal() {
		return ErrMessageStateError(record.MessageID, StateQueued, record.State)
	}
	if !record.ExpiresAt.Before(now) && record.ExpiresAt != now {
		return ErrMessageStateError(record.MessageID, StateExpired, record.State)
	}
	record.State = StateExpired
	record.Lease = Lease{}
	return nil
}

// Replace persists record's current in-memory fields to tbl, conditioned
// on record.ETag, and updates record.ETag on success. On an ETag conflict
// it returns the table package's Conflict error unchanged so callers can
// distinguish it from a logical MessageStateError and re-read.
func Replace(ctx context.Context, tbl table.Table, record *MessageRecord) error {
	item := recordToItem(record)
	item.ETag = record.ETag

	out, err := tbl.Replace(ctx, item)
	if err != nil {
		return err
	}
	record.ETag = out.ETag
	return nil
}

// Insert persists a brand-new record to tbl in state New->Queued,
// failing with table's AlreadyExists error if one is already present at
// that partition/row.
func Insert(ctx context.Context, tbl table.Table, record *MessageRecord) error {
	item := recordToItem(record)

	out, err := tbl.Insert(ctx, item)
	if err != nil {
		return err
	}
	record.ETag = out.ETag
	return nil
}
