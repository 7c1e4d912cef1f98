package reconcile

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/zdoge/shieldwallet/internal/chain"
	"github.com/zdoge/shieldwallet/internal/field"
	"github.com/zdoge/shieldwallet/internal/note"
	"github.com/zdoge/shieldwallet/internal/notestore"
	"github.com/zdoge/shieldwallet/internal/storekv"
	"github.com/zdoge/shieldwallet/pkg/types"
)

type fakeRpc struct {
	commitmentExists bool
	nullifierSpent   bool
}

func (f *fakeRpc) Call(_ context.Context, method string, _ ...any) ([]byte, error) {
	switch method {
	case "shieldpool_commitmentExists":
		return json.Marshal(f.commitmentExists)
	case "shieldpool_isNullifierSpent":
		return json.Marshal(f.nullifierSpent)
	}
	return json.Marshal(nil)
}

func newReconciler(rpc *fakeRpc, spendingKey field.Element) (*Reconciler, *notestore.Store) {
	store := notestore.New(storekv.NewMemory(), "wallet:test", [32]byte{})
	return New(chain.NewReader(rpc), store, types.Address{}, spendingKey), store
}

func TestReconcileConfirmsFromScanResult(t *testing.T) {
	r, store := newReconciler(&fakeRpc{}, field.FromUint64(1))
	n := note.New(100, field.FromUint64(1), field.FromUint64(2), field.FromUint64(3), "DOGE", [20]byte{}, 18)
	store.AddDiscovered(n)

	scan := ScanResult{commitmentKey(n.Commitment): 7}
	if err := r.Reconcile(context.Background(), scan); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	got, ok := store.ByCommitment(n.Commitment)
	if !ok {
		t.Fatal("expected note still present")
	}
	if got.LeafIndex == nil || *got.LeafIndex != 7 {
		t.Error("expected leaf index to be confirmed from the scan result")
	}
}

func TestReconcileKeepsUnresolvedButOnChainNote(t *testing.T) {
	r, store := newReconciler(&fakeRpc{commitmentExists: true}, field.FromUint64(1))
	n := note.New(100, field.FromUint64(1), field.FromUint64(2), field.FromUint64(3), "DOGE", [20]byte{}, 18)
	store.AddDiscovered(n)

	if err := r.Reconcile(context.Background(), ScanResult{}); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if _, ok := store.ByCommitment(n.Commitment); !ok {
		t.Error("expected note to be kept since commitment_exists returned true")
	}
}

func TestReconcileRemovesUnconfirmedAbsentNote(t *testing.T) {
	r, store := newReconciler(&fakeRpc{commitmentExists: false}, field.FromUint64(1))
	n := note.New(100, field.FromUint64(1), field.FromUint64(2), field.FromUint64(3), "DOGE", [20]byte{}, 18)
	store.AddDiscovered(n)

	if err := r.Reconcile(context.Background(), ScanResult{}); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if _, ok := store.ByCommitment(n.Commitment); ok {
		t.Error("expected unconfirmed, absent note to be removed")
	}
}

func TestReconcileNeverRemovesConfirmedNotes(t *testing.T) {
	r, store := newReconciler(&fakeRpc{commitmentExists: false}, field.FromUint64(1))
	n := note.New(100, field.FromUint64(1), field.FromUint64(2), field.FromUint64(3), "DOGE", [20]byte{}, 18)
	leafIndex := uint64(3)
	n.LeafIndex = &leafIndex
	store.AddDiscovered(n)

	if err := r.Reconcile(context.Background(), ScanResult{}); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if _, ok := store.ByCommitment(n.Commitment); !ok {
		t.Error("a confirmed note must never be removed by Reconcile, regardless of commitment_exists")
	}
}

func TestRemoveSpentDeletesRegardlessOfNullifierCheckOutcome(t *testing.T) {
	r, store := newReconciler(&fakeRpc{nullifierSpent: false}, field.FromUint64(99))
	n := note.New(100, field.FromUint64(1), field.FromUint64(2), field.FromUint64(3), "DOGE", [20]byte{}, 18)
	leafIndex := uint64(0)
	n.LeafIndex = &leafIndex
	store.AddDiscovered(n)

	if err := r.RemoveSpent(context.Background(), n.Commitment); err != nil {
		t.Fatalf("RemoveSpent: %v", err)
	}

	if _, ok := store.ByCommitment(n.Commitment); ok {
		t.Error("expected RemoveSpent to delete the note even when is_nullifier_spent returned false")
	}
}

func TestRemoveSpentRejectsUnconfirmedNote(t *testing.T) {
	r, store := newReconciler(&fakeRpc{}, field.FromUint64(99))
	n := note.New(100, field.FromUint64(1), field.FromUint64(2), field.FromUint64(3), "DOGE", [20]byte{}, 18)
	store.AddDiscovered(n)

	if err := r.RemoveSpent(context.Background(), n.Commitment); err == nil {
		t.Error("expected an error when trying to verify-before-remove an unconfirmed note")
	}
}
