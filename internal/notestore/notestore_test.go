package notestore

import (
	"context"
	"testing"

	"github.com/zdoge/shieldwallet/internal/field"
	"github.com/zdoge/shieldwallet/internal/note"
	"github.com/zdoge/shieldwallet/internal/storekv"
)

func newTestStore() *Store {
	var key [32]byte
	return New(storekv.NewMemory(), "wallet:test", key)
}

func sampleNote(amount uint64, secretSeed uint64) *note.Note {
	owner := field.FromUint64(1)
	secret := field.FromUint64(secretSeed)
	blinding := field.FromUint64(secretSeed + 1000)
	return note.New(amount, owner, secret, blinding, "DOGE", [20]byte{1}, 18)
}

func TestAddDiscoveredRejectsDuplicateCommitment(t *testing.T) {
	s := newTestStore()
	n := sampleNote(100, 1)

	if !s.AddDiscovered(n) {
		t.Fatal("first insert should succeed")
	}
	dup := sampleNote(100, 1) // same secret/blinding/amount/owner -> same commitment
	if s.AddDiscovered(dup) {
		t.Error("duplicate commitment insert should be a no-op returning false")
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 stored note, got %d", s.Len())
	}
}

func TestBalanceByTokenCountsOnlyConfirmed(t *testing.T) {
	s := newTestStore()
	unconfirmed := sampleNote(50, 2)
	s.AddDiscovered(unconfirmed)

	confirmed := sampleNote(75, 3)
	s.AddDiscovered(confirmed)
	s.ConfirmLeafIndex(confirmed.Commitment, 5)

	if got := s.BalanceByToken("DOGE"); got != 75 {
		t.Errorf("expected balance 75 (unconfirmed note excluded), got %d", got)
	}
}

func TestConfirmLeafIndexEnablesLookup(t *testing.T) {
	s := newTestStore()
	n := sampleNote(10, 4)
	s.AddDiscovered(n)

	if !s.ConfirmLeafIndex(n.Commitment, 42) {
		t.Fatal("ConfirmLeafIndex should succeed for a stored note")
	}
	got, ok := s.ByLeafIndex(42)
	if !ok || got.Commitment != n.Commitment {
		t.Error("expected ByLeafIndex to find the confirmed note")
	}
}

func TestRemoveByCommitment(t *testing.T) {
	s := newTestStore()
	n := sampleNote(10, 5)
	s.AddDiscovered(n)

	if !s.RemoveByCommitment(n.Commitment) {
		t.Fatal("remove should succeed for a stored note")
	}
	if s.RemoveByCommitment(n.Commitment) {
		t.Error("removing an already-removed note should return false")
	}
	if s.Len() != 0 {
		t.Errorf("expected empty store, got %d notes", s.Len())
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	var key [32]byte
	kv := storekv.NewMemory()

	s1 := New(kv, "wallet:roundtrip", key)
	n := sampleNote(20, 6)
	s1.AddDiscovered(n)
	s1.ConfirmLeafIndex(n.Commitment, 1)
	if err := s1.Save(context.Background()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	s2 := New(kv, "wallet:roundtrip", key)
	if err := s2.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s2.Len() != 1 {
		t.Fatalf("expected 1 note after reload, got %d", s2.Len())
	}
	got, ok := s2.ByCommitment(n.Commitment)
	if !ok || got.Amount != 20 {
		t.Error("reloaded note should match the original")
	}
	if got.LeafIndex == nil || *got.LeafIndex != 1 {
		t.Error("reloaded note should keep its confirmed leaf index")
	}
}
