// Package identity derives the permanent per-wallet shielded identity from
// an external wallet signature: spending_key -> viewing_key ->
// shielded_address, per spec.md §4.2.
package identity

import (
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/sha3"

	"github.com/zdoge/shieldwallet/internal/domain"
	"github.com/zdoge/shieldwallet/internal/field"
	"github.com/zdoge/shieldwallet/internal/logging"
	"github.com/zdoge/shieldwallet/internal/mimc"
)

var log = logging.New("identity")

// Errors surfaced by identity derivation, matching spec.md §7's IdentityError kind.
var (
	// ErrSignRefused is returned when the injected Signer declines to sign.
	ErrSignRefused = errors.New("identity: signing wallet refused to sign")
	// ErrMismatchRederived is returned when re-deriving from a stored
	// signature produces a shielded address different from the one on
	// record; the caller must treat the re-derived value as authoritative.
	ErrMismatchRederived = errors.New("identity: re-derivation does not match stored identity")
)

// AddressPrefix is the wire-format prefix for a shielded address string.
const AddressPrefix = "zdoge:"

// Identity is the deterministic triple derived from a single wallet signature.
type Identity struct {
	SpendingKey     field.Element
	ViewingKey      field.Element
	ShieldedAddress field.Element
}

// Derive computes the identity triple from a signature, per spec.md §4.2:
//  1. spending_key := keccak256(signature) mod FIELD_SIZE
//  2. viewing_key := MiMC(spending_key, DOMAIN.VIEWING_KEY)
//  3. shielded_address := MiMC(spending_key, DOMAIN.SHIELDED_ADDRESS)
//
// The same signature always yields the identical triple bit-for-bit.
func Derive(signature []byte) Identity {
	digest := sha3.NewLegacyKeccak256()
	digest.Write(signature)
	spendingKey := field.FromBytes(digest.Sum(nil))

	return Identity{
		SpendingKey:     spendingKey,
		ViewingKey:      mimc.Hash2(spendingKey, domain.ViewingKey.Field()),
		ShieldedAddress: mimc.Hash2(spendingKey, domain.ShieldedAddress.Field()),
	}
}

// Reconcile re-derives an identity from the stored signature and compares it
// against a previously-persisted shielded address. Per spec.md §4.2 and the
// "legacy-signature migration" redesign note in §9, the stored signature is
// authoritative: a mismatch does not discard anything, it signals that the
// caller must overwrite the stored address with the re-derived one and
// record a migration event.
func Reconcile(signature []byte, storedShieldedAddress field.Element) (Identity, error) {
	fresh := Derive(signature)
	if !fresh.ShieldedAddress.Equal(storedShieldedAddress) {
		log.Warn().Str("stored", storedShieldedAddress.String()).Str("rederived", fresh.ShieldedAddress.String()).
			Msg("re-derived identity does not match stored shielded address; caller must migrate")
		return fresh, fmt.Errorf("%w: stored=%s rederived=%s",
			ErrMismatchRederived, storedShieldedAddress.String(), fresh.ShieldedAddress.String())
	}
	return fresh, nil
}

// String returns the canonical wire encoding "zdoge:" + 64-char zero-padded
// hex of the shielded address field element.
func (id Identity) String() string {
	return AddressPrefix + fmt.Sprintf("%064x", id.ShieldedAddress.BigInt())
}

// ParseShieldedAddress parses the canonical wire encoding back into a field
// element, rejecting any other prefix or a hex payload of the wrong length.
func ParseShieldedAddress(s string) (field.Element, error) {
	if len(s) != len(AddressPrefix)+64 || s[:len(AddressPrefix)] != AddressPrefix {
		return field.Element{}, fmt.Errorf("identity: malformed shielded address %q", s)
	}
	return decodeHex64(s[len(AddressPrefix):])
}

func decodeHex64(hexPart string) (field.Element, error) {
	if len(hexPart) != 64 {
		return field.Element{}, fmt.Errorf("identity: shielded address hex must be 64 chars, got %d", len(hexPart))
	}
	out, err := hex.DecodeString(hexPart)
	if err != nil {
		return field.Element{}, fmt.Errorf("identity: invalid hex in shielded address %q: %w", hexPart, err)
	}
	return field.FromBytes(out), nil
}
