// Package domain holds the fixed domain-separation tags used by every
// MiMC-based key and hash derivation in the wallet. Using a distinct tag per
// purpose means the same two field inputs never collide across derivations
// that should be independent (a viewing key must never equal a nullifier
// computed from the same spending key, for instance).
package domain

import "github.com/zdoge/shieldwallet/internal/field"

// Tag identifies the purpose of a MiMC derivation.
type Tag int

const (
	// ViewingKey tags derivation of a viewing key from a spending key.
	ViewingKey Tag = iota
	// ShieldedAddress tags derivation of a shielded address from a spending key.
	ShieldedAddress
	// Nullifier tags derivation of a per-note nullifier.
	Nullifier
	// Commitment tags derivation of a note commitment.
	Commitment
)

// Field returns the tag's fixed field-element encoding, suitable for use as
// one of MiMC's sponge inputs.
func (t Tag) Field() field.Element {
	return field.FromUint64(uint64(t))
}
