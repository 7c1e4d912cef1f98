package note

import (
	"testing"

	"github.com/zdoge/shieldwallet/internal/field"
	"github.com/zdoge/shieldwallet/pkg/types"
)

func TestComputeCommitmentDeterministic(t *testing.T) {
	secret := field.FromUint64(1)
	blinding := field.FromUint64(2)
	owner := field.FromUint64(3)

	a := ComputeCommitment(secret, blinding, 1000, owner)
	b := ComputeCommitment(secret, blinding, 1000, owner)
	if !a.Equal(b) {
		t.Error("commitment must be deterministic")
	}
}

func TestComputeCommitmentSensitivity(t *testing.T) {
	secret := field.FromUint64(1)
	blinding := field.FromUint64(2)
	owner := field.FromUint64(3)

	base := ComputeCommitment(secret, blinding, 1000, owner)
	changedAmount := ComputeCommitment(secret, blinding, 1001, owner)
	changedOwner := ComputeCommitment(secret, blinding, 1000, field.FromUint64(4))

	if base.Equal(changedAmount) || base.Equal(changedOwner) {
		t.Error("commitment should change when amount or owner changes")
	}
}

func TestNullifierHashDistinctPerInput(t *testing.T) {
	spendingKey := field.FromUint64(99)
	secret := field.FromUint64(7)

	n1 := Nullifier(secret, 0, spendingKey)
	n2 := Nullifier(secret, 1, spendingKey)
	if NullifierHash(n1).Equal(NullifierHash(n2)) {
		t.Error("different leaf positions must yield distinct nullifier hashes")
	}
}

func TestZeroNoteIsDeterministic(t *testing.T) {
	a := Zero()
	b := Zero()
	if !a.Commitment.Equal(b.Commitment) {
		t.Error("zero-note commitment must be deterministic for padding slots")
	}
}

func TestIsOwnedBy(t *testing.T) {
	owner := field.FromUint64(42)
	n := New(1000, owner, field.FromUint64(1), field.FromUint64(2), "DOGE", types.Address{}, 18)

	if err := n.IsOwnedBy(owner); err != nil {
		t.Errorf("note should be owned by its owner_pubkey: %v", err)
	}
	if err := n.IsOwnedBy(field.FromUint64(43)); err == nil {
		t.Error("note should not be owned by a different shielded address")
	}
}
