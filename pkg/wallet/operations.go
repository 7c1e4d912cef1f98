package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/zdoge/shieldwallet/internal/coinselect"
	"github.com/zdoge/shieldwallet/internal/field"
	"github.com/zdoge/shieldwallet/internal/note"
	"github.com/zdoge/shieldwallet/internal/orchestrator"
	"github.com/zdoge/shieldwallet/pkg/types"
)

// ErrUnshieldNeedsConsolidation and ErrSwapNeedsConsolidation are returned
// when coin selection spreads the requested amount over more than one
// note: neither orchestrator.Unshield nor orchestrator.Swap has a
// multi-input circuit (only Transfer does, per spec.md §4.5.2), so the
// caller must first consolidate via a transfer-to-self before unshielding
// or swapping an amount that spans several notes.
var (
	ErrUnshieldNeedsConsolidation = errors.New("wallet: unshield target spans multiple notes; transfer-to-self to consolidate first")
	ErrSwapNeedsConsolidation     = errors.New("wallet: swap target spans multiple notes; transfer-to-self to consolidate first")
)

// OutputMemo pairs an encrypted memo blob with the output commitment it
// belongs to, so the caller can place it in the matching on-chain memo
// slot.
type OutputMemo struct {
	Commitment field.Element
	Blob       []byte
}

func outputOrNil(n *note.Note) *note.Note {
	if n == nil || n.Amount == 0 {
		return nil
	}
	return n
}

// PrepareShield builds the single-input shield proof for a public deposit
// of amount into this wallet's own shielded balance.
func (w *Wallet) PrepareShield(ctx context.Context, amount uint64, artifacts orchestrator.Artifacts) (*Operation, error) {
	secret, blinding := w.mustRandomPair()
	output := note.New(amount, w.Identity.ShieldedAddress, secret, blinding, w.cfg.TokenSymbol, w.cfg.TokenAddress, w.cfg.TokenDecimals)

	result, err := w.Orchestrator.Shield(ctx, output, w.cfg.ExternalAddress, artifacts)
	if err != nil {
		return nil, classify(err, KindProof)
	}

	op := &Operation{ID: w.nextID("shield"), Kind: "shield", Result: result, outputs: []*note.Note{output}}
	if err := w.registerPending(op, nil); err != nil {
		return nil, err
	}
	if blob, err := EncryptOutgoingMemo(output, w.Identity.ViewingKey); err == nil {
		op.Memos = []OutputMemo{{Commitment: output.Commitment, Blob: blob}}
	}
	return op, nil
}

// CompleteShield confirms a shielded deposit once its tree-insertion event
// has assigned leafIndex to the new note.
func (w *Wallet) CompleteShield(ctx context.Context, opID string, leafIndex uint64) error {
	op, err := w.takeOperation(opID)
	if err != nil {
		return err
	}
	if op.Kind != "shield" {
		return wrap(KindNotFound, fmt.Errorf("wallet: operation %q is not a shield", opID))
	}
	return w.completeCommon(ctx, op, []uint64{leafIndex})
}

// selectSingle runs coin selection and requires exactly one spent note,
// the shape every circuit except Transfer's multi-input variant demands.
func (w *Wallet) selectSingle(tokenSymbol string, target uint64, needsConsolidation error) (coinselect.Allocation, error) {
	candidates := w.NoteStore.ConfirmedByToken(tokenSymbol)
	sel, err := coinselect.Select(candidates, target, w.cfg.FeeModel)
	if err != nil {
		return coinselect.Allocation{}, classify(err, KindSelectionInsuff)
	}
	if len(sel.Spent) != 1 {
		return coinselect.Allocation{}, wrap(KindSelectionInsuff, needsConsolidation)
	}
	return sel.Spent[0], nil
}

// PrepareTransfer builds a shielded-to-shielded transfer of amount to
// recipientShieldedAddress, choosing among the single-input, multi-input,
// and sequential-fallback proof shapes per spec.md §4.5.4's selection
// rule: as few notes as coin selection needs, multi-input while the count
// fits the circuit's MaxInputs bound, sequential beyond that.
func (w *Wallet) PrepareTransfer(ctx context.Context, recipientShieldedAddress, recipientViewingKey field.Element, amount uint64, artifacts orchestrator.Artifacts) (*Operation, error) {
	candidates := w.NoteStore.ConfirmedByToken(w.cfg.TokenSymbol)
	sel, err := coinselect.Select(candidates, amount, w.cfg.FeeModel)
	if err != nil {
		return nil, classify(err, KindSelectionInsuff)
	}

	spentNotes := make([]*note.Note, len(sel.Spent))
	for i, a := range sel.Spent {
		spentNotes[i] = a.Note
	}

	op := &Operation{ID: w.nextID("transfer"), Kind: "transfer"}

	switch {
	case len(sel.Spent) == 1:
		a := sel.Spent[0]
		out1, out2 := w.buildTransferOutputs(recipientShieldedAddress, a.TransferAmount, a.ChangeAmount, a.Note)
		result, err := w.Orchestrator.Transfer(ctx, w.cfg.Pool, a.Note, w.Identity.SpendingKey, out1, out2, w.cfg.Relayer, a.Fee, artifacts)
		if err != nil {
			return nil, classify(err, KindProof)
		}
		op.Result = result
		op.outputs = []*note.Note{outputOrNil(out1), outputOrNil(out2)}

	case len(sel.Spent) <= orchestrator.MaxInputs:
		// ErrSelfTransferSharedOutput only applies to the deprecated
		// shared-commitment DistributeEvenly batch path, which no
		// production code path invokes; MultiInputTransfer builds a
		// fresh recipient/change output pair per call, so a self-transfer
		// across several notes (consolidation) is a legitimate spend here.
		var totalIn uint64
		for _, n := range spentNotes {
			totalIn += n.Amount
		}
		changeAmount := totalIn - sel.RecipientTotal - sel.TotalFee
		out1, out2 := w.buildTransferOutputs(recipientShieldedAddress, sel.RecipientTotal, changeAmount, spentNotes[0])
		result, err := w.Orchestrator.MultiInputTransfer(ctx, w.cfg.Pool, spentNotes, w.Identity.SpendingKey, out1, out2, w.cfg.Relayer, sel.TotalFee, artifacts)
		if err != nil {
			return nil, classify(err, KindProof)
		}
		op.Result = result
		op.outputs = []*note.Note{outputOrNil(out1), outputOrNil(out2)}

	default:
		allocations := make([]orchestrator.Allocation, len(sel.Spent))
		for i, a := range sel.Spent {
			allocations[i] = orchestrator.Allocation{SpentNote: a.Note, Fee: a.Fee, TransferAmount: a.TransferAmount, ChangeAmount: a.ChangeAmount}
		}
		steps, err := w.Orchestrator.SequentialTransfer(ctx, w.cfg.Pool, w.Identity.SpendingKey, recipientShieldedAddress, w.Identity.ShieldedAddress, allocations, w.cfg.Relayer, artifacts)
		if err != nil {
			return nil, classify(err, KindProof)
		}
		op.Steps = steps
		for _, s := range steps {
			op.outputs = append(op.outputs, outputOrNil(s.RecipientNote), outputOrNil(s.ChangeNote))
		}
	}

	if err := w.registerPending(op, spentNotes); err != nil {
		return nil, err
	}
	op.spentCommitments = make([]field.Element, len(spentNotes))
	for i, n := range spentNotes {
		op.spentCommitments[i] = n.Commitment
	}
	op.Memos = w.encryptOutputMemos(op.outputs, recipientViewingKey)
	return op, nil
}

func (w *Wallet) buildTransferOutputs(recipient field.Element, transferAmount, changeAmount uint64, template *note.Note) (*note.Note, *note.Note) {
	out1 := note.Zero()
	if transferAmount > 0 {
		s, b := w.mustRandomPair()
		out1 = note.New(transferAmount, recipient, s, b, template.TokenSymbol, template.TokenAddress, template.TokenDecimals)
	}
	out2 := note.Zero()
	if changeAmount > 0 {
		s, b := w.mustRandomPair()
		out2 = note.New(changeAmount, w.Identity.ShieldedAddress, s, b, template.TokenSymbol, template.TokenAddress, template.TokenDecimals)
	}
	return out1, out2
}

// encryptOutputMemos addresses even-indexed (recipient) outputs to
// recipientViewingKey and odd-indexed (change) outputs to this wallet's own
// viewing key: every output list this package builds alternates
// recipient-note, change-note, so index parity determines the memo target.
func (w *Wallet) encryptOutputMemos(outputs []*note.Note, recipientViewingKey field.Element) []OutputMemo {
	var memos []OutputMemo
	for i, n := range outputs {
		if n == nil {
			continue
		}
		target := recipientViewingKey
		if i%2 == 1 {
			target = w.Identity.ViewingKey
		}
		blob, err := EncryptOutgoingMemo(n, target)
		if err != nil {
			log.Warn().Str("commitment", n.Commitment.String()).Err(err).Msg("failed to encrypt outgoing memo")
			continue
		}
		memos = append(memos, OutputMemo{Commitment: n.Commitment, Blob: blob})
	}
	return memos
}

// CompleteTransfer confirms a prepared transfer once the caller has
// observed the on-chain leaf indices assigned to its output notes, in the
// same order PrepareTransfer produced them (recipient then change: one
// pair for a single- or multi-input transfer, one pair per step of a
// sequential transfer; a skipped zero-amount output consumes no leaf index).
func (w *Wallet) CompleteTransfer(ctx context.Context, opID string, leafIndices []uint64) error {
	op, err := w.takeOperation(opID)
	if err != nil {
		return err
	}
	if op.Kind != "transfer" {
		return wrap(KindNotFound, fmt.Errorf("wallet: operation %q is not a transfer", opID))
	}
	return w.completeCommon(ctx, op, leafIndices)
}

// PrepareUnshield builds the single-input withdrawal proof paying amount
// to recipient on-chain, with any leftover value returned as a change note.
func (w *Wallet) PrepareUnshield(ctx context.Context, recipient types.Address, amount uint64, artifacts orchestrator.Artifacts) (*Operation, error) {
	a, err := w.selectSingle(w.cfg.TokenSymbol, amount, ErrUnshieldNeedsConsolidation)
	if err != nil {
		return nil, err
	}

	var change *note.Note
	if a.ChangeAmount > 0 {
		s, b := w.mustRandomPair()
		change = note.New(a.ChangeAmount, w.Identity.ShieldedAddress, s, b, a.Note.TokenSymbol, a.Note.TokenAddress, a.Note.TokenDecimals)
	}

	result, err := w.Orchestrator.Unshield(ctx, w.cfg.Pool, a.Note, w.Identity.SpendingKey, recipient, a.TransferAmount, change, w.cfg.Relayer, a.Fee, artifacts)
	if err != nil {
		return nil, classify(err, KindProof)
	}

	op := &Operation{ID: w.nextID("unshield"), Kind: "unshield", Result: result, outputs: []*note.Note{change}}
	if err := w.registerPending(op, []*note.Note{a.Note}); err != nil {
		return nil, err
	}
	op.spentCommitments = []field.Element{a.Note.Commitment}
	if change != nil {
		if blob, err := EncryptOutgoingMemo(change, w.Identity.ViewingKey); err == nil {
			op.Memos = []OutputMemo{{Commitment: change.Commitment, Blob: blob}}
		}
	}
	return op, nil
}

// CompleteUnshield confirms a prepared withdrawal; leafIndex is only
// needed when a change note was produced (call with nil otherwise).
func (w *Wallet) CompleteUnshield(ctx context.Context, opID string, leafIndex *uint64) error {
	op, err := w.takeOperation(opID)
	if err != nil {
		return err
	}
	if op.Kind != "unshield" {
		return wrap(KindNotFound, fmt.Errorf("wallet: operation %q is not an unshield", opID))
	}
	var indices []uint64
	if leafIndex != nil {
		indices = []uint64{*leafIndex}
	}
	return w.completeCommon(ctx, op, indices)
}

// PrepareSwap builds the single-input cross-token swap proof: swapAmount
// of this wallet's configured token is spent, outputAmount of tokenOut
// (as quoted by whatever pricing source the host uses — out of scope
// here) is produced as a new shielded note, with any leftover input-token
// value returned as change.
func (w *Wallet) PrepareSwap(ctx context.Context, swapAmount, outputAmount uint64, tokenOut types.Address, tokenOutSymbol string, tokenOutDecimals uint8, artifacts orchestrator.Artifacts) (*Operation, error) {
	a, err := w.selectSingle(w.cfg.TokenSymbol, swapAmount, ErrSwapNeedsConsolidation)
	if err != nil {
		return nil, err
	}

	s, b := w.mustRandomPair()
	out1 := note.New(outputAmount, w.Identity.ShieldedAddress, s, b, tokenOutSymbol, tokenOut, tokenOutDecimals)

	out2 := note.Zero()
	if a.ChangeAmount > 0 {
		cs, cb := w.mustRandomPair()
		out2 = note.New(a.ChangeAmount, w.Identity.ShieldedAddress, cs, cb, a.Note.TokenSymbol, a.Note.TokenAddress, a.Note.TokenDecimals)
	}

	result, err := w.Orchestrator.Swap(ctx, w.cfg.Pool, a.Note, w.Identity.SpendingKey, out1, out2, a.Note.TokenAddress, tokenOut, swapAmount, outputAmount, artifacts)
	if err != nil {
		return nil, classify(err, KindProof)
	}

	op := &Operation{ID: w.nextID("swap"), Kind: "swap", Result: result, outputs: []*note.Note{out1, outputOrNil(out2)}}
	if err := w.registerPending(op, []*note.Note{a.Note}); err != nil {
		return nil, err
	}
	op.spentCommitments = []field.Element{a.Note.Commitment}
	op.Memos = w.encryptOutputMemos(op.outputs, w.Identity.ViewingKey)
	return op, nil
}

// CompleteSwap confirms a prepared swap once both output notes (the new
// token-out note and, if present, the token-in change note) have leaf
// indices.
func (w *Wallet) CompleteSwap(ctx context.Context, opID string, leafIndices []uint64) error {
	op, err := w.takeOperation(opID)
	if err != nil {
		return err
	}
	if op.Kind != "swap" {
		return wrap(KindNotFound, fmt.Errorf("wallet: operation %q is not a swap", opID))
	}
	return w.completeCommon(ctx, op, leafIndices)
}
