package pending

import (
	"errors"
	"testing"

	"github.com/zdoge/shieldwallet/internal/field"
)

type fakeClock struct{ ms int64 }

func (c *fakeClock) NowMs() int64 {
	c.ms++
	return c.ms
}

func TestTrackRejectsDuplicateID(t *testing.T) {
	tr := NewTracker(&fakeClock{})
	if _, err := tr.Track("op1", nil, nil); err != nil {
		t.Fatalf("Track: %v", err)
	}
	if _, err := tr.Track("op1", nil, nil); err != ErrAlreadyTracked {
		t.Fatalf("expected ErrAlreadyTracked, got %v", err)
	}
}

func TestHasNullifierReflectsOnlySubmittedOps(t *testing.T) {
	tr := NewTracker(&fakeClock{})
	n := field.FromUint64(42)

	if _, err := tr.Track("op1", []field.Element{n}, nil); err != nil {
		t.Fatalf("Track: %v", err)
	}
	if !tr.HasNullifier(n) {
		t.Error("expected nullifier conflict while op1 is still submitted")
	}

	if err := tr.MarkConfirmed("op1"); err != nil {
		t.Fatalf("MarkConfirmed: %v", err)
	}
	if tr.HasNullifier(n) {
		t.Error("expected no conflict once op1 is confirmed")
	}
}

func TestPendingOrderedOldestFirst(t *testing.T) {
	tr := NewTracker(&fakeClock{})
	tr.Track("first", nil, nil)
	tr.Track("second", nil, nil)
	tr.Track("third", nil, nil)

	pending := tr.Pending()
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending operations, got %d", len(pending))
	}
	if pending[0].ID != "first" || pending[1].ID != "second" || pending[2].ID != "third" {
		t.Errorf("expected oldest-first order, got %v", []string{pending[0].ID, pending[1].ID, pending[2].ID})
	}
}

func TestRemoveClearsNullifierIndex(t *testing.T) {
	tr := NewTracker(&fakeClock{})
	n := field.FromUint64(7)
	tr.Track("op1", []field.Element{n}, nil)

	tr.Remove("op1")

	if tr.HasNullifier(n) {
		t.Error("expected nullifier index to be cleared after Remove")
	}
	if _, ok := tr.Get("op1"); ok {
		t.Error("expected operation to be gone after Remove")
	}
	if len(tr.Pending()) != 0 {
		t.Error("expected no pending operations after Remove")
	}
}

func TestMarkDroppedRemovesFromPendingButKeepsEntry(t *testing.T) {
	tr := NewTracker(&fakeClock{})
	tr.Track("op1", nil, nil)

	if err := tr.MarkDropped("op1"); err != nil {
		t.Fatalf("MarkDropped: %v", err)
	}
	if len(tr.Pending()) != 0 {
		t.Error("expected dropped operation to be excluded from Pending")
	}
	op, ok := tr.Get("op1")
	if !ok {
		t.Fatal("expected operation entry to remain after MarkDropped")
	}
	if op.Status != StatusDropped {
		t.Errorf("expected StatusDropped, got %v", op.Status)
	}
}

func TestMarkConfirmedUnknownIDReturnsNotFound(t *testing.T) {
	tr := NewTracker(&fakeClock{})
	if err := tr.MarkConfirmed("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
