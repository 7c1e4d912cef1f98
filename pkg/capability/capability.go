// Package capability declares the external capabilities the wallet core
// depends on but never implements concretely: signing, RPC transport, proof
// generation, key/value persistence, the clock, and the system RNG
// (spec.md §6). Core code is written entirely against these interfaces so
// that no package ever names a specific wallet, prover, or storage backend.
package capability

import "context"

// Signer produces a signature over a message using the external wallet's
// key. The core calls this exactly once per identity derivation.
type Signer interface {
	Sign(ctx context.Context, message string) ([]byte, error)
}

// Rpc is a generic JSON-RPC transport capability.
type Rpc interface {
	Call(ctx context.Context, method string, params ...any) (json []byte, err error)
}

// Groth16Proof is the (pi_a, pi_b, pi_c, public_signals) tuple produced by
// the external prover, in the raw (non-repacked) shape it hands back.
type Groth16Proof struct {
	PiA           [2]string
	PiB           [2][2]string
	PiC           [2]string
	PublicSignals []string
}

// Prover invokes the external Groth16 prover: prove(witness, wasm, zkey) ->
// (proof, public_inputs). The circuit compiler and the prover/verifier
// implementation themselves are out of scope (spec.md §1 Non-goals); this
// interface is the entire surface the core ever sees.
type Prover interface {
	Prove(ctx context.Context, witness map[string]any, wasm, zkey []byte) (Groth16Proof, error)
}

// KvStore is a minimal get/put byte-value store. Implementations may be
// in-memory, file-backed, or (optionally) Postgres-backed; see
// internal/storekv.
type KvStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Clock abstracts wall-clock time for testability.
type Clock interface {
	NowMs() int64
}

// Rng abstracts randomness for testability.
type Rng interface {
	Fill(b []byte) error
}
