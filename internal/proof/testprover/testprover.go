// Package testprover is a deterministic stand-in for an external Groth16
// prover, used only by tests in this module. The real circuit compiler and
// prover are out of scope (spec.md §1 Non-goals; §4.5 delegates proving
// entirely to pkg/capability.Prover), so exercising the orchestrator
// end-to-end without a live prover needs some capability.Prover
// implementation — this one fabricates a proof shape from the witness
// instead of actually proving anything.
package testprover

import (
	"context"
	"fmt"
	"sort"

	"github.com/zdoge/shieldwallet/pkg/capability"
)

// Prover returns a cryptographically meaningless Groth16Proof whose points
// are the BN254 G1/G2 generators (so proof.Repack's curve checks accept it)
// and whose public signals are derived from the witness keys, so
// orchestrator tests can assert on wiring (which public inputs were
// requested, shape of the result) without a real prover attached.
type Prover struct{}

// Prove implements capability.Prover.
func (Prover) Prove(_ context.Context, witness map[string]any, _, _ []byte) (capability.Groth16Proof, error) {
	keys := make([]string, 0, len(witness))
	for k := range witness {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	signals := make([]string, 0, len(keys))
	for _, k := range keys {
		signals = append(signals, fmt.Sprintf("%v", witness[k]))
	}

	return capability.Groth16Proof{
		PiA: [2]string{"1", "2"},
		// G2 generator in the raw (pre-swap) limb order Repack expects.
		PiB: [2][2]string{
			{"11559732032986387107991004021392285783925812861821192530917403151452391805634", "10857046999023057135944570762232829481370756359578518086990519993285655852781"},
			{"4082367875863433681332203403145435568316851327593401208105741076214120093531", "8495653923123431417604973247489272438418190587263600148770280649306958101930"},
		},
		PiC:           [2]string{"1", "2"},
		PublicSignals: signals,
	}, nil
}
