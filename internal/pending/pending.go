// Package pending tracks in-flight operations between prepare_X (a proof
// has been built and a submission payload handed to the caller) and
// complete_X (the caller observed confirmation and the note store is
// mutated), per spec.md §4.8's state-transition diagram.
//
// Grounded on the teacher's internal/mempool.go: the same index-plus-
// ordered-list shape (map keyed by identity, sorted slice for in-order
// iteration, a side index for conflict detection), repurposed from block-
// building transaction selection to single-wallet operation bookkeeping.
// Priority/Size/block-selection concerns are dropped entirely — there is
// no block to build here — and Status/SubmittedAt/ExpectedNullifiers are
// added in their place.
package pending

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zdoge/shieldwallet/internal/field"
	"github.com/zdoge/shieldwallet/pkg/capability"
)

// Status is the lifecycle state of a tracked operation.
type Status int

const (
	// StatusSubmitted is set when prepare_X has handed a payload to the
	// caller and the caller has submitted (or is about to submit) a
	// transaction.
	StatusSubmitted Status = iota
	// StatusConfirmed is set once complete_X has observed confirmation and
	// mutated the note store.
	StatusConfirmed
	// StatusDropped is set when the caller cancels before submission, or
	// the operation is abandoned without ever confirming.
	StatusDropped
)

func (s Status) String() string {
	switch s {
	case StatusSubmitted:
		return "submitted"
	case StatusConfirmed:
		return "confirmed"
	case StatusDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// ErrAlreadyTracked is returned by Track when the operation ID is already
// in the tracker.
var ErrAlreadyTracked = errors.New("pending: operation already tracked")

// ErrNotFound is returned when an operation ID has no tracked entry.
var ErrNotFound = errors.New("pending: operation not found")

// Operation is a single tracked prepare_X/complete_X lifecycle.
type Operation struct {
	ID                  string
	Status              Status
	SubmittedAt         int64 // ms, per capability.Clock
	ExpectedNullifiers  []field.Element
	ExpectedCommitments []field.Element // change/recipient-to-self outputs
}

// Tracker holds every in-flight operation for a single wallet instance.
// The note store's own uniqueness check is still the final backstop (see
// spec.md §5's "Ordering guarantees"); this index exists so the Operation
// API can reject overlapping prepare_X calls over the same note before
// ever reaching the prover.
type Tracker struct {
	mu    sync.Mutex
	clock capability.Clock

	ops   map[string]*Operation
	order []*Operation // ascending SubmittedAt, oldest first

	// nullifiers indexes every ExpectedNullifiers entry of every submitted
	// operation back to its ID, mirroring the teacher's double-spend index.
	nullifiers map[string]string
}

// NewTracker constructs an empty Tracker.
func NewTracker(clock capability.Clock) *Tracker {
	return &Tracker{
		clock:      clock,
		ops:        make(map[string]*Operation),
		nullifiers: make(map[string]string),
	}
}

// Track registers a newly submitted operation. id should be unique per
// prepare_X call (e.g. the raw transaction hash once known, or a locally
// generated UUID before submission).
func (t *Tracker) Track(id string, expectedNullifiers, expectedCommitments []field.Element) (*Operation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.ops[id]; exists {
		return nil, ErrAlreadyTracked
	}

	op := &Operation{
		ID:                  id,
		Status:              StatusSubmitted,
		SubmittedAt:         t.clock.NowMs(),
		ExpectedNullifiers:  expectedNullifiers,
		ExpectedCommitments: expectedCommitments,
	}

	t.ops[id] = op
	t.insertOrdered(op)
	for _, n := range expectedNullifiers {
		t.nullifiers[nullifierKey(n)] = id
	}
	return op, nil
}

// HasNullifier reports whether any currently-submitted (not yet confirmed
// or dropped) operation already expects to spend this nullifier, letting
// the caller refuse a conflicting prepare_X before it reaches the prover.
func (t *Tracker) HasNullifier(n field.Element) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, exists := t.nullifiers[nullifierKey(n)]
	if !exists {
		return false
	}
	op, ok := t.ops[id]
	return ok && op.Status == StatusSubmitted
}

// MarkConfirmed transitions an operation to StatusConfirmed.
func (t *Tracker) MarkConfirmed(id string) error {
	return t.setStatus(id, StatusConfirmed)
}

// MarkDropped transitions an operation to StatusDropped, e.g. on caller
// cancellation before submission.
func (t *Tracker) MarkDropped(id string) error {
	return t.setStatus(id, StatusDropped)
}

func (t *Tracker) setStatus(id string, status Status) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	op, exists := t.ops[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	op.Status = status
	return nil
}

// Get returns a tracked operation by ID.
func (t *Tracker) Get(id string) (*Operation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	op, ok := t.ops[id]
	return op, ok
}

// Remove drops an operation from the tracker entirely, e.g. once
// complete_X has finished mutating the store and there is no further need
// to track it.
func (t *Tracker) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	op, exists := t.ops[id]
	if !exists {
		return
	}
	delete(t.ops, id)
	for _, n := range op.ExpectedNullifiers {
		key := nullifierKey(n)
		if t.nullifiers[key] == id {
			delete(t.nullifiers, key)
		}
	}
	t.removeOrdered(id)
}

// Pending returns every tracked operation still in StatusSubmitted,
// ordered oldest-first.
func (t *Tracker) Pending() []*Operation {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Operation, 0, len(t.order))
	for _, op := range t.order {
		if op.Status == StatusSubmitted {
			out = append(out, op)
		}
	}
	return out
}

func (t *Tracker) insertOrdered(op *Operation) {
	idx := sort.Search(len(t.order), func(i int) bool {
		return t.order[i].SubmittedAt > op.SubmittedAt
	})
	t.order = append(t.order, nil)
	copy(t.order[idx+1:], t.order[idx:])
	t.order[idx] = op
}

func (t *Tracker) removeOrdered(id string) {
	for i, op := range t.order {
		if op.ID == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			return
		}
	}
}

func nullifierKey(n field.Element) string {
	return n.String()
}
