// Package types defines the small set of primitive wire types shared across
// the wallet: fixed-size hashes and addresses used to identify commitments,
// nullifiers, and on-chain accounts.
package types

import (
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// HashSize is the size of a hash in bytes.
	HashSize = 32

	// AddressSize is the size of an EVM address in bytes.
	AddressSize = 20
)

// Hash represents a 32-byte hash or field-element encoding.
type Hash [HashSize]byte

// Address represents a 20-byte EVM account or token address.
type Address [AddressSize]byte

// EmptyHash is the zero hash.
var EmptyHash = Hash{}

// EmptyAddress is the zero address.
var EmptyAddress = Address{}

// IsEmpty returns true if the hash is all zeros.
func (h Hash) IsEmpty() bool {
	return h == EmptyHash
}

// Bytes returns the hash as a byte slice.
func (h Hash) Bytes() []byte {
	return h[:]
}

// String returns the lowercase hex string representation of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// HashFromBytes creates a Hash from a byte slice, left-padding with zeros if
// shorter than HashSize and truncating the high-order bytes if longer.
func HashFromBytes(b []byte) Hash {
	var h Hash
	if len(b) >= HashSize {
		copy(h[:], b[len(b)-HashSize:])
		return h
	}
	copy(h[HashSize-len(b):], b)
	return h
}

// IsEmpty returns true if the address is all zeros.
func (a Address) IsEmpty() bool {
	return a == EmptyAddress
}

// Bytes returns the address as a byte slice.
func (a Address) Bytes() []byte {
	return a[:]
}

// String returns the lowercase hex string representation of the address.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// AddressFromBytes creates an Address from a byte slice.
func AddressFromBytes(b []byte) Address {
	var a Address
	if len(b) >= AddressSize {
		copy(a[:], b[len(b)-AddressSize:])
		return a
	}
	copy(a[AddressSize-len(b):], b)
	return a
}

// MarshalJSON encodes a Hash as a 0x-prefixed hex string, matching the wire
// format returned by EVM JSON-RPC endpoints.
func (h Hash) MarshalJSON() ([]byte, error) {
	return []byte(`"0x` + hex.EncodeToString(h[:]) + `"`), nil
}

// UnmarshalJSON decodes a Hash from a 0x-prefixed (or bare) hex string.
func (h *Hash) UnmarshalJSON(data []byte) error {
	b, err := decodeHexJSON(data, HashSize)
	if err != nil {
		return fmt.Errorf("types: Hash: %w", err)
	}
	copy(h[:], b)
	return nil
}

// MarshalJSON encodes an Address as a 0x-prefixed hex string.
func (a Address) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON decodes an Address from a 0x-prefixed (or bare) hex string.
func (a *Address) UnmarshalJSON(data []byte) error {
	b, err := decodeHexJSON(data, AddressSize)
	if err != nil {
		return fmt.Errorf("types: Address: %w", err)
	}
	copy(a[:], b)
	return nil
}

func decodeHexJSON(data []byte, size int) ([]byte, error) {
	s := strings.Trim(string(data), `"`)
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != size {
		return nil, fmt.Errorf("expected %d bytes, got %d", size, len(b))
	}
	return b, nil
}
