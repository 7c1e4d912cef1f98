// Package orchestrator assembles circuit witnesses, runs the
// pre-generation checks, invokes the external prover, and repacks the
// result for a contract call — the three proof shapes of spec.md §4.5:
// single-input (shield/transfer/unshield/swap), multi-input transfer, and
// the sequential fallback.
//
// Grounded on the teacher's internal/zkp/transaction.go TransactionBuilder:
// the same input/output/fee assembly and value-conservation check, but
// generalized to delegate proving to the injected pkg/capability.Prover
// instead of a live circuit (spec.md §1 Non-goals excludes the circuit
// compiler and prover implementation from this module's scope).
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/zdoge/shieldwallet/internal/chain"
	"github.com/zdoge/shieldwallet/internal/field"
	"github.com/zdoge/shieldwallet/internal/logging"
	"github.com/zdoge/shieldwallet/internal/note"
	"github.com/zdoge/shieldwallet/internal/notestore"
	"github.com/zdoge/shieldwallet/internal/proof"
	"github.com/zdoge/shieldwallet/pkg/capability"
	"github.com/zdoge/shieldwallet/pkg/types"
)

var log = logging.New("orchestrator")

// MaxInputs is the compile-time bound on the multi-input transfer circuit
// (spec.md §4.5.2).
const MaxInputs = 5

var (
	// ErrNoteNotOnChain is returned when a spent note's commitment is not
	// (or no longer) present in the pool's accumulator. The note is
	// removed from the store before this error is returned.
	ErrNoteNotOnChain = errors.New("orchestrator: note commitment not found on chain")
	// ErrAlreadySpent is returned when a spent note's nullifier hash has
	// already appeared on chain. The note is removed from the store
	// before this error is returned.
	ErrAlreadySpent = errors.New("orchestrator: note nullifier already spent")
	// ErrValueConservation is an internal-bug guard: inputs must always
	// equal outputs plus fee before a witness is ever assembled.
	ErrValueConservation = errors.New("orchestrator: input amount does not equal outputs plus fee")
	// ErrTooManyInputs is returned when a multi-input transfer is asked to
	// spend more than MaxInputs real notes.
	ErrTooManyInputs = errors.New("orchestrator: multi-input transfer exceeds MaxInputs")
)

// Artifacts is the compiled-circuit material (wasm witness calculator +
// proving key) for one circuit. The circuit compiler itself is out of
// scope; callers obtain these bytes from wherever their build pipeline
// produces them and hand them in here.
type Artifacts struct {
	Wasm []byte
	Zkey []byte
}

// Result is a completed, contract-ready proof.
type Result struct {
	Raw           capability.Groth16Proof
	Repacked      proof.Repacked
	PublicSignals []string
	Calldata      [8]string
}

// Orchestrator wires the chain reader, note store, external prover, and
// injected capability.Rng together to produce proofs. It holds no cryptographic
// material of its own.
type Orchestrator struct {
	Chain     *chain.Reader
	NoteStore *notestore.Store
	Prover    capability.Prover
	Rng       capability.Rng
}

// New constructs an Orchestrator over the given collaborators.
func New(chainReader *chain.Reader, store *notestore.Store, prover capability.Prover, rng capability.Rng) *Orchestrator {
	return &Orchestrator{Chain: chainReader, NoteStore: store, Prover: prover, Rng: rng}
}

// verifyNoteBeforeSpending implements spec.md §4.5.1's pre-generation
// check sequence for a single spent note. On failure the note is removed
// from the store, matching the spec's "silently remove ... and fail"
// wording.
func (o *Orchestrator) verifyNoteBeforeSpending(ctx context.Context, pool types.Address, n *note.Note, spendingKey field.Element) error {
	commitmentHash := types.HashFromBytes(n.Commitment.Bytes())
	exists, err := o.Chain.CommitmentExists(ctx, pool, commitmentHash)
	if err != nil {
		return fmt.Errorf("orchestrator: verify_note_before_spending: %w", err)
	}
	if !exists {
		log.Warn().Str("commitment", commitmentHash.String()).Msg("spend attempted on a note not found on chain; removing from store")
		o.NoteStore.RemoveByCommitment(n.Commitment)
		return ErrNoteNotOnChain
	}

	if n.LeafIndex != nil {
		nullifier, err := n.ComputedNullifier(spendingKey)
		if err != nil {
			return fmt.Errorf("orchestrator: verify_note_before_spending: %w", err)
		}
		nullifierHash := note.NullifierHash(nullifier)
		spent, err := o.Chain.IsNullifierSpent(ctx, pool, types.HashFromBytes(nullifierHash.Bytes()))
		if err != nil {
			return fmt.Errorf("orchestrator: verify_note_before_spending: %w", err)
		}
		if spent {
			log.Warn().Str("commitment", commitmentHash.String()).Msg("spend attempted on a note whose nullifier is already spent; removing from store")
			o.NoteStore.RemoveByCommitment(n.Commitment)
			return ErrAlreadySpent
		}
	}
	return nil
}

// inputWitness is the private per-note witness material for a spent note.
type inputWitness struct {
	secret, blinding, ownerPubkey, spendingKey string
	pathElements                               [chain.Depth]string
	pathIndices                                [chain.Depth]bool
	nullifierHash, root                        string
}

func buildInputWitness(n *note.Note, spendingKey field.Element, path chain.MerklePath) (inputWitness, error) {
	nullifier, err := n.ComputedNullifier(spendingKey)
	if err != nil {
		return inputWitness{}, err
	}
	w := inputWitness{
		secret:        n.Secret.String(),
		blinding:      n.Blinding.String(),
		ownerPubkey:   n.OwnerPubkey.String(),
		spendingKey:   spendingKey.String(),
		nullifierHash: note.NullifierHash(nullifier).String(),
		root:          path.Root.String(),
	}
	for i := 0; i < chain.Depth; i++ {
		w.pathElements[i] = path.Siblings[i].String()
		w.pathIndices[i] = path.PathBits[i]
	}
	return w, nil
}

// zeroInputWitness is the deterministic witness for an unused multi-input
// slot, filled with the canonical zero-note (spec.md §4.5.2).
func zeroInputWitness() inputWitness {
	zero := note.Zero()
	var path chain.MerklePath // all-zero siblings/bits, leaf position 0
	w, _ := buildInputWitness(zero, field.Zero(), path)
	return w
}

func runProver(ctx context.Context, prover capability.Prover, witness map[string]any, artifacts Artifacts) (Result, error) {
	raw, err := prover.Prove(ctx, witness, artifacts.Wasm, artifacts.Zkey)
	if err != nil {
		return Result{}, fmt.Errorf("orchestrator: prove: %w", err)
	}
	repacked, signals, err := proof.Repack(raw)
	if err != nil {
		return Result{}, fmt.Errorf("orchestrator: repack: %w", err)
	}
	packed := proof.PackUint256x8(repacked)
	calldata := [8]string{}
	for i, v := range packed {
		calldata[i] = v.String()
	}
	signalStrs := make([]string, len(signals))
	for i, s := range signals {
		signalStrs[i] = s.String()
	}
	return Result{Raw: raw, Repacked: repacked, PublicSignals: signalStrs, Calldata: calldata}, nil
}

// Shield produces the single-input proof for a public-to-shielded deposit.
// There is no spent note, so no pre-generation check or Merkle path is
// needed; the public inputs are the new note's commitment plus the
// deposit's amount/token/sender.
func (o *Orchestrator) Shield(ctx context.Context, output *note.Note, sender types.Address, artifacts Artifacts) (Result, error) {
	witness := map[string]any{
		"secret":      output.Secret.String(),
		"blinding":    output.Blinding.String(),
		"ownerPubkey": output.OwnerPubkey.String(),
		"commitment":  output.Commitment.String(),
		"amount":      output.Amount,
		"token":       output.TokenAddress.String(),
		"sender":      sender.String(),
	}
	return runProver(ctx, o.Prover, witness, artifacts)
}

// Transfer produces the single-input proof for a shielded-to-shielded
// transfer spending exactly one note, per spec.md §4.5.1.
func (o *Orchestrator) Transfer(ctx context.Context, pool types.Address, spent *note.Note, spendingKey field.Element, out1, out2 *note.Note, relayer types.Address, fee uint64, artifacts Artifacts) (Result, error) {
	if spent.Amount != out1.Amount+out2.Amount+fee {
		return Result{}, ErrValueConservation
	}
	if err := o.verifyNoteBeforeSpending(ctx, pool, spent, spendingKey); err != nil {
		return Result{}, err
	}
	path, err := o.Chain.PathFor(ctx, pool, *spent.LeafIndex)
	if err != nil {
		return Result{}, fmt.Errorf("orchestrator: transfer: %w", err)
	}
	in, err := buildInputWitness(spent, spendingKey, path)
	if err != nil {
		return Result{}, err
	}

	witness := map[string]any{
		"secret":             in.secret,
		"blinding":           in.blinding,
		"ownerPubkey":        in.ownerPubkey,
		"spendingKey":        in.spendingKey,
		"pathElements":       in.pathElements,
		"pathIndices":        in.pathIndices,
		"root":               in.root,
		"nullifierHash":      in.nullifierHash,
		"outputCommitment1":  out1.Commitment.String(),
		"outputCommitment2":  out2.Commitment.String(),
		"relayer":            relayer.String(),
		"fee":                fee,
	}
	return runProver(ctx, o.Prover, witness, artifacts)
}

// Unshield produces the single-input proof for a shielded-to-public
// withdrawal, with an optional change note.
func (o *Orchestrator) Unshield(ctx context.Context, pool types.Address, spent *note.Note, spendingKey field.Element, recipient types.Address, amount uint64, change *note.Note, relayer types.Address, fee uint64, artifacts Artifacts) (Result, error) {
	changeAmount := uint64(0)
	changeCommitment := field.Zero().String()
	if change != nil {
		changeAmount = change.Amount
		changeCommitment = change.Commitment.String()
	}
	if spent.Amount != amount+changeAmount+fee {
		return Result{}, ErrValueConservation
	}
	if err := o.verifyNoteBeforeSpending(ctx, pool, spent, spendingKey); err != nil {
		return Result{}, err
	}
	path, err := o.Chain.PathFor(ctx, pool, *spent.LeafIndex)
	if err != nil {
		return Result{}, fmt.Errorf("orchestrator: unshield: %w", err)
	}
	in, err := buildInputWitness(spent, spendingKey, path)
	if err != nil {
		return Result{}, err
	}

	witness := map[string]any{
		"secret":           in.secret,
		"blinding":         in.blinding,
		"ownerPubkey":      in.ownerPubkey,
		"spendingKey":      in.spendingKey,
		"pathElements":     in.pathElements,
		"pathIndices":      in.pathIndices,
		"root":             in.root,
		"nullifierHash":    in.nullifierHash,
		"recipient":        recipient.String(),
		"amount":           amount,
		"changeCommitment": changeCommitment,
		"relayer":          relayer.String(),
		"fee":              fee,
	}
	return runProver(ctx, o.Prover, witness, artifacts)
}

// Swap produces the single-input proof for a shielded cross-token swap.
func (o *Orchestrator) Swap(ctx context.Context, pool types.Address, spent *note.Note, spendingKey field.Element, out1, out2 *note.Note, tokenIn, tokenOut types.Address, swapAmount, outputAmount uint64, artifacts Artifacts) (Result, error) {
	if err := o.verifyNoteBeforeSpending(ctx, pool, spent, spendingKey); err != nil {
		return Result{}, err
	}
	path, err := o.Chain.PathFor(ctx, pool, *spent.LeafIndex)
	if err != nil {
		return Result{}, fmt.Errorf("orchestrator: swap: %w", err)
	}
	in, err := buildInputWitness(spent, spendingKey, path)
	if err != nil {
		return Result{}, err
	}

	witness := map[string]any{
		"secret":            in.secret,
		"blinding":          in.blinding,
		"ownerPubkey":       in.ownerPubkey,
		"spendingKey":       in.spendingKey,
		"pathElements":      in.pathElements,
		"pathIndices":       in.pathIndices,
		"root":              in.root,
		"nullifierHash":     in.nullifierHash,
		"outputCommitment1": out1.Commitment.String(),
		"outputCommitment2": out2.Commitment.String(),
		"tokenIn":           tokenIn.String(),
		"tokenOut":          tokenOut.String(),
		"swapAmount":        swapAmount,
		"outputAmount":      outputAmount,
	}
	return runProver(ctx, o.Prover, witness, artifacts)
}

// MultiInputTransfer produces a single proof spending up to MaxInputs real
// notes (spec.md §4.5.2). Unused slots are padded with the canonical
// zero-note; the contract treats them as inert.
func (o *Orchestrator) MultiInputTransfer(ctx context.Context, pool types.Address, spent []*note.Note, spendingKey field.Element, out1, out2 *note.Note, relayer types.Address, fee uint64, artifacts Artifacts) (Result, error) {
	if len(spent) > MaxInputs {
		return Result{}, ErrTooManyInputs
	}

	var totalIn uint64
	for _, n := range spent {
		totalIn += n.Amount
	}
	if totalIn != out1.Amount+out2.Amount+fee {
		return Result{}, ErrValueConservation
	}

	inputs := make([]inputWitness, 0, MaxInputs)
	for _, n := range spent {
		if err := o.verifyNoteBeforeSpending(ctx, pool, n, spendingKey); err != nil {
			return Result{}, err
		}
		path, err := o.Chain.PathFor(ctx, pool, *n.LeafIndex)
		if err != nil {
			return Result{}, fmt.Errorf("orchestrator: multi_input_transfer: %w", err)
		}
		in, err := buildInputWitness(n, spendingKey, path)
		if err != nil {
			return Result{}, err
		}
		inputs = append(inputs, in)
	}
	for len(inputs) < MaxInputs {
		inputs = append(inputs, zeroInputWitness())
	}

	nullifierHashes := make([]string, MaxInputs)
	roots := make([]string, MaxInputs)
	secrets := make([]string, MaxInputs)
	blindings := make([]string, MaxInputs)
	pathElements := make([][chain.Depth]string, MaxInputs)
	pathIndices := make([][chain.Depth]bool, MaxInputs)
	for i, in := range inputs {
		nullifierHashes[i] = in.nullifierHash
		roots[i] = in.root
		secrets[i] = in.secret
		blindings[i] = in.blinding
		pathElements[i] = in.pathElements
		pathIndices[i] = in.pathIndices
	}

	witness := map[string]any{
		"secrets":           secrets,
		"blindings":         blindings,
		"pathElements":      pathElements,
		"pathIndices":       pathIndices,
		"nullifierHashes":   nullifierHashes,
		"roots":             roots,
		"outputCommitment1": out1.Commitment.String(),
		"outputCommitment2": out2.Commitment.String(),
		"relayer":           relayer.String(),
		"fee":               fee,
	}
	return runProver(ctx, o.Prover, witness, artifacts)
}

// SequentialStep is one proof in a sequential (fallback) transfer, along
// with enough metadata for the caller to display progress and retry
// individual steps (spec.md §4.5.3).
type SequentialStep struct {
	SpentCommitment  field.Element
	RecipientNote    *note.Note
	ChangeNote       *note.Note // nil when the step is a full-spend
	Result           Result
}

// SequentialTransfer emits one single-input Transfer proof per selected
// note when multi-input is unavailable or the required N exceeds
// MaxInputs. The on-chain sequence is not atomic: each step is independent
// and can be resubmitted on its own.
//
// Fee-only notes that coin selection pulls in purely to cover fees (never
// surfaced in a Selection's Outputs) have no single-note transfer step of
// their own here; sweeping them requires a multi-input proof instead, so a
// candidate set that needs one is rejected with ErrValueConservation
// rather than silently dropping value.
func (o *Orchestrator) SequentialTransfer(ctx context.Context, pool types.Address, spendingKey field.Element, recipientPubkey, changePubkey field.Element, allocations []Allocation, relayer types.Address, artifacts Artifacts) ([]SequentialStep, error) {
	steps := make([]SequentialStep, 0, len(allocations))
	for _, a := range allocations {
		if a.TransferAmount == 0 && a.ChangeAmount == 0 {
			return nil, ErrValueConservation
		}

		// A zero-amount side is represented by the canonical zero-note,
		// never a real note with amount 0 — the circuit rejects
		// zero-amount output notes (spec.md §4.5.4).
		out1 := note.Zero()
		var recipientNote *note.Note
		if a.TransferAmount > 0 {
			recipientNote = note.New(a.TransferAmount, recipientPubkey, o.mustRandom(), o.mustRandom(), a.SpentNote.TokenSymbol, a.SpentNote.TokenAddress, a.SpentNote.TokenDecimals)
			out1 = recipientNote
		}
		out2 := note.Zero()
		var changeNote *note.Note
		if a.ChangeAmount > 0 {
			changeNote = note.New(a.ChangeAmount, changePubkey, o.mustRandom(), o.mustRandom(), a.SpentNote.TokenSymbol, a.SpentNote.TokenAddress, a.SpentNote.TokenDecimals)
			out2 = changeNote
		}

		result, err := o.Transfer(ctx, pool, a.SpentNote, spendingKey, out1, out2, relayer, a.Fee, artifacts)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: sequential_transfer: step for commitment %s: %w", a.SpentNote.Commitment, err)
		}
		steps = append(steps, SequentialStep{
			SpentCommitment: a.SpentNote.Commitment,
			RecipientNote:   recipientNote,
			ChangeNote:      changeNote,
			Result:          result,
		})
	}
	return steps, nil
}

// Allocation is the minimal shape SequentialTransfer needs from a coin
// selection result. Callers copy each internal/coinselect.Allocation into
// it field by field (coinselect's Note becomes SpentNote); it is a separate
// type so this package never imports coinselect (selection is the caller's
// concern, not the orchestrator's).
type Allocation struct {
	SpentNote      *note.Note
	Fee            uint64
	TransferAmount uint64
	ChangeAmount   uint64
}

func (o *Orchestrator) mustRandom() field.Element {
	e, err := field.RandomElementFrom(o.Rng)
	if err != nil {
		// The injected Rng failing is not a recoverable condition for
		// witness generation; every other cryptographic operation in this
		// module shares that assumption.
		panic(err)
	}
	return e
}
