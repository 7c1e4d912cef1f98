// Package proof repacks the external prover's raw Groth16 output into the
// layout the on-chain verifier expects (spec.md §4.5.1): decimal-string
// field elements parsed into big.Int, and the two components of each G2
// coordinate pair swapped, which is the standard snarkjs-to-Solidity
// ordering fix for pi_b.
//
// The circuit compiler and prover/verifier implementation are out of scope
// (spec.md §1 Non-goals); this package uses gnark-crypto's bn254 curve
// types only to validate that the repacked coordinates are well-formed
// curve points before they are handed to the contract, never to prove or
// verify anything itself.
package proof

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254"

	"github.com/zdoge/shieldwallet/pkg/capability"
)

// Repacked is the (pi_a, pi_b, pi_c) triple in the coordinate order the
// contract's pairing check expects.
type Repacked struct {
	A [2]*big.Int
	B [2][2]*big.Int
	C [2]*big.Int
}

// Repack parses a capability.Groth16Proof's decimal-string coordinates into
// big.Int and swaps pi_b's two G2 component pairs.
func Repack(p capability.Groth16Proof) (Repacked, []*big.Int, error) {
	a, err := parsePair(p.PiA)
	if err != nil {
		return Repacked{}, nil, fmt.Errorf("proof: pi_a: %w", err)
	}
	c, err := parsePair(p.PiC)
	if err != nil {
		return Repacked{}, nil, fmt.Errorf("proof: pi_c: %w", err)
	}

	b0, err := parsePair(p.PiB[0])
	if err != nil {
		return Repacked{}, nil, fmt.Errorf("proof: pi_b[0]: %w", err)
	}
	b1, err := parsePair(p.PiB[1])
	if err != nil {
		return Repacked{}, nil, fmt.Errorf("proof: pi_b[1]: %w", err)
	}

	// snarkjs emits each G2 limb pair as [c1, c0]; the Solidity verifier
	// expects [c0, c1], so the two components of each pair are swapped.
	b := [2][2]*big.Int{
		{b0[1], b0[0]},
		{b1[1], b1[0]},
	}

	signals := make([]*big.Int, len(p.PublicSignals))
	for i, s := range p.PublicSignals {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return Repacked{}, nil, fmt.Errorf("proof: public signal %d %q is not a base-10 integer", i, s)
		}
		signals[i] = v
	}

	if err := validateG1(a); err != nil {
		return Repacked{}, nil, fmt.Errorf("proof: pi_a: %w", err)
	}
	if err := validateG1(c); err != nil {
		return Repacked{}, nil, fmt.Errorf("proof: pi_c: %w", err)
	}
	if err := validateG2(b); err != nil {
		return Repacked{}, nil, fmt.Errorf("proof: pi_b: %w", err)
	}

	return Repacked{A: a, B: b, C: c}, signals, nil
}

// validateG1 confirms (x, y) lies on the BN254 G1 curve, catching a
// malformed or truncated prover response before it reaches the contract.
func validateG1(coords [2]*big.Int) error {
	var affine bn254.G1Affine
	affine.X.SetBigInt(coords[0])
	affine.Y.SetBigInt(coords[1])
	if !affine.IsOnCurve() {
		return fmt.Errorf("point (%s, %s) is not on the BN254 G1 curve", coords[0], coords[1])
	}
	return nil
}

// validateG2 confirms the G2 point formed by coords (already swapped into
// contract order) lies on the BN254 G2 curve.
func validateG2(coords [2][2]*big.Int) error {
	var affine bn254.G2Affine
	affine.X.A0.SetBigInt(coords[0][0])
	affine.X.A1.SetBigInt(coords[0][1])
	affine.Y.A0.SetBigInt(coords[1][0])
	affine.Y.A1.SetBigInt(coords[1][1])
	if !affine.IsOnCurve() {
		return fmt.Errorf("G2 point is not on the BN254 curve")
	}
	return nil
}

func parsePair(pair [2]string) ([2]*big.Int, error) {
	var out [2]*big.Int
	for i, s := range pair {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return out, fmt.Errorf("%q is not a base-10 integer", s)
		}
		out[i] = v
	}
	return out, nil
}

// PackUint256x8 flattens Repacked into the contract's uint256[8] calldata
// layout: a[0], a[1], b[0][0], b[0][1], b[1][0], b[1][1], c[0], c[1].
func PackUint256x8(r Repacked) [8]*big.Int {
	return [8]*big.Int{
		r.A[0], r.A[1],
		r.B[0][0], r.B[0][1],
		r.B[1][0], r.B[1][1],
		r.C[0], r.C[1],
	}
}
