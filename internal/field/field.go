// Package field wraps BN254 scalar field arithmetic used throughout the
// wallet's cryptography: commitments, nullifiers, and key derivation all
// operate on elements of this field so that they interoperate bit-exactly
// with the Circom-compiled circuit the external prover evaluates.
package field

import (
	"crypto/rand"
	"errors"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/zdoge/shieldwallet/pkg/capability"
)

// ErrShortRead is returned when the system RNG does not fill the requested
// number of random bytes.
var ErrShortRead = errors.New("field: short random read")

// Element is a single BN254 scalar field element, reduced modulo FIELD_SIZE.
type Element struct {
	inner fr.Element
}

// Modulus returns the BN254 scalar field prime, FIELD_SIZE.
func Modulus() *big.Int {
	return fr.Modulus()
}

// Zero returns the additive identity.
func Zero() Element {
	return Element{}
}

// FromUint64 builds an element from a uint64.
func FromUint64(v uint64) Element {
	var e Element
	e.inner.SetUint64(v)
	return e
}

// FromBigInt reduces a big.Int modulo FIELD_SIZE.
func FromBigInt(v *big.Int) Element {
	var e Element
	e.inner.SetBigInt(v)
	return e
}

// FromBytes interprets b as a big-endian integer and reduces it modulo
// FIELD_SIZE, per spec.md §4.1's field_from_bytes.
func FromBytes(b []byte) Element {
	var e Element
	e.inner.SetBytes(b)
	return e
}

// systemRng satisfies capability.Rng over crypto/rand, used as the default
// source when a caller has no injected capability.Rng (tests, and
// RandomElement's back-compat wrapper).
type systemRng struct{}

func (systemRng) Fill(b []byte) error {
	n, err := rand.Read(b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return ErrShortRead
	}
	return nil
}

// RandomElementFrom draws 31 random bytes from rng and interprets them,
// big-endian, as a field element. 31 bytes (248 bits) is always strictly
// less than the 254-bit BN254 modulus, so the result is canonical without
// needing modular reduction — this is spec.md §4.1's random_field, chosen
// to avoid modular bias. Production code paths must go through an
// injected capability.Rng (spec.md §6) rather than RandomElement below.
func RandomElementFrom(rng capability.Rng) (Element, error) {
	buf := make([]byte, 31)
	if err := rng.Fill(buf); err != nil {
		return Element{}, err
	}
	return FromBytes(buf), nil
}

// RandomElement draws from the system RNG directly. It exists for tests
// and standalone tooling that have no capability.Rng to inject; wallet and
// orchestrator code call RandomElementFrom with the host-supplied Rng
// instead.
func RandomElement() (Element, error) {
	return RandomElementFrom(systemRng{})
}

// Add returns e + other mod FIELD_SIZE.
func (e Element) Add(other Element) Element {
	var r Element
	r.inner.Add(&e.inner, &other.inner)
	return r
}

// Mul returns e * other mod FIELD_SIZE.
func (e Element) Mul(other Element) Element {
	var r Element
	r.inner.Mul(&e.inner, &other.inner)
	return r
}

// Square returns e^2 mod FIELD_SIZE.
func (e Element) Square() Element {
	var r Element
	r.inner.Square(&e.inner)
	return r
}

// Equal reports whether two elements are the same residue.
func (e Element) Equal(other Element) bool {
	return e.inner.Equal(&other.inner)
}

// IsZero reports whether the element is the additive identity.
func (e Element) IsZero() bool {
	return e.inner.IsZero()
}

// BigInt returns the element's canonical big.Int representation.
func (e Element) BigInt() *big.Int {
	var out big.Int
	e.inner.BigInt(&out)
	return &out
}

// Bytes returns the element's big-endian 32-byte canonical encoding.
func (e Element) Bytes() []byte {
	b := e.inner.Bytes()
	return b[:]
}

// String returns the element's decimal string representation.
func (e Element) String() string {
	return e.inner.String()
}
