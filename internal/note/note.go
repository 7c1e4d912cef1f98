// Package note implements the shielded note model: structure, wire
// serialization, and the commitment/nullifier derivations that must match
// the circuit bit-for-bit (spec.md §3, §4.1).
package note

import (
	"errors"
	"time"

	"github.com/zdoge/shieldwallet/internal/field"
	"github.com/zdoge/shieldwallet/internal/mimc"
	"github.com/zdoge/shieldwallet/pkg/types"
)

// ErrNotOwned is returned when a discovered note's owner_pubkey does not
// match the local identity's shielded address.
var ErrNotOwned = errors.New("note: owner_pubkey does not match local identity")

// Note is the off-chain secret record whose commitment lives in the
// on-chain tree; spec.md §3.
type Note struct {
	Amount        uint64 // token base units
	OwnerPubkey   field.Element
	Secret        field.Element // 31-byte random field
	Blinding      field.Element // 31-byte random field
	TokenSymbol   string
	TokenAddress  types.Address
	TokenDecimals uint8
	LeafIndex     *uint64 // set once inserted on-chain
	Commitment    field.Element
	CreatedAt     time.Time
}

// New builds a note and computes its commitment. secret and blinding should
// come from field.RandomElementFrom (over the injected capability.Rng) for
// freshly-created outputs, or from a decrypted memo for discovered notes.
func New(amount uint64, ownerPubkey, secret, blinding field.Element, tokenSymbol string, tokenAddress types.Address, tokenDecimals uint8) *Note {
	n := &Note{
		Amount:        amount,
		OwnerPubkey:   ownerPubkey,
		Secret:        secret,
		Blinding:      blinding,
		TokenSymbol:   tokenSymbol,
		TokenAddress:  tokenAddress,
		TokenDecimals: tokenDecimals,
		CreatedAt:     time.Now(),
	}
	n.Commitment = ComputeCommitment(secret, blinding, amount, ownerPubkey)
	return n
}

// ComputeCommitment computes
// commitment = MiMC(MiMC(secret,blinding), MiMC(amount,owner_pubkey)),
// matching the circuit exactly (spec.md §3). Any deviation breaks proofs.
func ComputeCommitment(secret, blinding field.Element, amount uint64, ownerPubkey field.Element) field.Element {
	left := mimc.Hash2(secret, blinding)
	right := mimc.Hash2(field.FromUint64(amount), ownerPubkey)
	return mimc.Hash2(left, right)
}

// Nullifier computes nullifier = MiMC(secret, leaf_index, spending_key), the
// sponge over three inputs described in spec.md §3. Callers must only call
// this once the note has a confirmed leaf index.
func Nullifier(secret field.Element, leafIndex uint64, spendingKey field.Element) field.Element {
	return mimc.Sponge(secret, field.FromUint64(leafIndex), spendingKey)
}

// NullifierHash computes nullifier_hash = MiMC(nullifier, nullifier), the
// value that actually appears in public inputs and is checked for replay.
func NullifierHash(nullifier field.Element) field.Element {
	return mimc.Hash2(nullifier, nullifier)
}

// Zero returns the canonical zero-note used to pad unused multi-input
// transfer slots (spec.md §4.5.2): secret=0, blinding=0, amount=0,
// leaf_index=0. Its nullifier hash and commitment are deterministic and the
// contract side must treat slots holding it as inert.
func Zero() *Note {
	zeroLeaf := uint64(0)
	n := &Note{
		Amount:      0,
		OwnerPubkey: field.Zero(),
		Secret:      field.Zero(),
		Blinding:    field.Zero(),
		LeafIndex:   &zeroLeaf,
	}
	n.Commitment = ComputeCommitment(n.Secret, n.Blinding, n.Amount, n.OwnerPubkey)
	return n
}

// ComputedNullifier returns this note's nullifier under spendingKey,
// requiring a confirmed leaf index.
func (n *Note) ComputedNullifier(spendingKey field.Element) (field.Element, error) {
	if n.LeafIndex == nil {
		return field.Element{}, errors.New("note: cannot derive nullifier before leaf_index is confirmed")
	}
	return Nullifier(n.Secret, *n.LeafIndex, spendingKey), nil
}

// IsOwnedBy returns an error unless the note's owner_pubkey equals the
// given shielded address, per spec.md §3's ownership rule.
func (n *Note) IsOwnedBy(shieldedAddress field.Element) error {
	if !n.OwnerPubkey.Equal(shieldedAddress) {
		return ErrNotOwned
	}
	return nil
}

// IsConfirmed reports whether the note has a known on-chain leaf index.
func (n *Note) IsConfirmed() bool {
	return n.LeafIndex != nil
}
