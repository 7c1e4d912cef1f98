// Package wallet is the composition root and public Operation API
// (spec.md §4.8, §6): prepare_shield/transfer/unshield/swap plus the
// matching complete_* calls that mutate the note store once a caller has
// observed on-chain confirmation.
//
// Grounded on the teacher's cmd/ccoind/main.go Config+run() shape: a single
// struct wiring every collaborator (chain reader, note store, orchestrator,
// discovery scanner, reconciler, pending tracker) behind one constructor,
// generalized here from a standalone daemon's wiring into a library entry
// point a host application calls into directly.
package wallet

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/zdoge/shieldwallet/internal/chain"
	"github.com/zdoge/shieldwallet/internal/coinselect"
	"github.com/zdoge/shieldwallet/internal/discovery"
	"github.com/zdoge/shieldwallet/internal/field"
	"github.com/zdoge/shieldwallet/internal/identity"
	"github.com/zdoge/shieldwallet/internal/logging"
	"github.com/zdoge/shieldwallet/internal/memo"
	"github.com/zdoge/shieldwallet/internal/note"
	"github.com/zdoge/shieldwallet/internal/notestore"
	"github.com/zdoge/shieldwallet/internal/orchestrator"
	"github.com/zdoge/shieldwallet/internal/pending"
	"github.com/zdoge/shieldwallet/internal/persist"
	"github.com/zdoge/shieldwallet/internal/reconcile"
	"github.com/zdoge/shieldwallet/pkg/capability"
	"github.com/zdoge/shieldwallet/pkg/types"
)

var log = logging.New("wallet")

// identitySigningMessage is the fixed, versioned message signed once to
// derive a wallet's identity (spec.md §4.2: "the signature message is
// versioned and must never change without a migration").
const identitySigningMessage = "shieldwallet:identity:v1"

// Capabilities bundles every external dependency the wallet core never
// implements itself (spec.md §6).
type Capabilities struct {
	Signer capability.Signer
	Rpc    capability.Rpc
	Prover capability.Prover
	Kv     capability.KvStore
	Clock  capability.Clock
	Rng    capability.Rng
}

// Config carries the per-wallet parameters a host application supplies:
// which pool and token this instance operates over, where it persists
// state, and the fee schedule coin selection should apply. A host running
// several tokens constructs one Wallet per token.
type Config struct {
	Pool          types.Address
	TokenSymbol   string
	TokenAddress  types.Address
	TokenDecimals uint8

	// ExternalAddress is the connected EOA's address; it both seeds the
	// encrypted-storage key (spec.md §3) and is the shield operation's
	// sender field.
	ExternalAddress types.Address
	// Password is an optional additional storage-key input (spec.md §3's
	// "[, optional user password]"); leave empty to derive from address alone.
	Password string

	Relayer  types.Address
	FeeModel coinselect.Config

	StorageKey string // notestore blob key within Capabilities.Kv
	CursorKey  string // discovery.Scanner cursor key within Capabilities.Kv
	TopicSet   []types.Hash
}

// Wallet is the assembled Operation API over one identity/token pair.
type Wallet struct {
	cfg Config

	Identity     identity.Identity
	NoteStore    *notestore.Store
	Chain        *chain.Reader
	Orchestrator *orchestrator.Orchestrator
	Scanner      *discovery.Scanner
	Reconciler   *reconcile.Reconciler
	Pending      *pending.Tracker

	rng capability.Rng

	mu      sync.Mutex
	counter uint64
	ops     map[string]*Operation
}

// New derives the wallet's identity from a single signature, loads its
// note store, and wires together every collaborator. Per spec.md §4.2 the
// Signer is invoked exactly once, here and nowhere else in the Wallet's
// lifetime.
func New(ctx context.Context, caps Capabilities, cfg Config) (*Wallet, error) {
	signature, err := caps.Signer.Sign(ctx, identitySigningMessage)
	if err != nil {
		return nil, wrap(KindIdentity, fmt.Errorf("%w: %v", identity.ErrSignRefused, err))
	}
	id := identity.Derive(signature)

	cryptKey := persist.DeriveKey(cfg.ExternalAddress.Bytes(), cfg.Password)
	store := notestore.New(caps.Kv, cfg.StorageKey, cryptKey)
	if err := store.Load(ctx); err != nil {
		return nil, wrap(KindStorage, err)
	}

	chainReader := chain.NewReader(caps.Rpc)
	orch := orchestrator.New(chainReader, store, caps.Prover, caps.Rng)
	scanner := &discovery.Scanner{
		Chain:       chainReader,
		Store:       store,
		Cursor:      caps.Kv,
		CursorKey:   cfg.CursorKey,
		Pool:        cfg.Pool,
		TopicSet:    cfg.TopicSet,
		ViewingKey:  id.ViewingKey,
		OwnerPubkey: id.ShieldedAddress,
	}
	reconciler := reconcile.New(chainReader, store, cfg.Pool, id.SpendingKey)

	log.Info().Str("shieldedAddress", id.String()).Str("token", cfg.TokenSymbol).Msg("wallet identity derived")

	return &Wallet{
		cfg:          cfg,
		Identity:     id,
		NoteStore:    store,
		Chain:        chainReader,
		Orchestrator: orch,
		Scanner:      scanner,
		Reconciler:   reconciler,
		Pending:      pending.NewTracker(caps.Clock),
		rng:          caps.Rng,
		ops:          make(map[string]*Operation),
	}, nil
}

// Balance returns the confirmed balance of this wallet's configured token.
func (w *Wallet) Balance() uint64 {
	return w.NoteStore.BalanceByToken(w.cfg.TokenSymbol)
}

// Discover runs a bounded auto-discovery scan up to upToBlock and persists
// any newly claimed notes (spec.md §4.6).
func (w *Wallet) Discover(ctx context.Context, upToBlock uint64) (int, error) {
	inserted, err := w.Scanner.Scan(ctx, upToBlock)
	if err != nil {
		return inserted, classify(err, KindChain)
	}
	if inserted > 0 {
		if err := w.NoteStore.Save(ctx); err != nil {
			return inserted, wrap(KindStorage, err)
		}
	}
	return inserted, nil
}

// ReconcileNotes runs reconciliation (spec.md §4.7) against a scan result
// produced by the caller's own event indexing (typically the same scan
// that fed Discover), then persists any removals.
func (w *Wallet) ReconcileNotes(ctx context.Context, scan reconcile.ScanResult) error {
	if err := w.Reconciler.Reconcile(ctx, scan); err != nil {
		return classify(err, KindChain)
	}
	return wrap(KindStorage, w.NoteStore.Save(ctx))
}

// Operation is a prepared, not-yet-confirmed transaction: a proof plus the
// note-store mutations complete_X will apply once the caller observes
// on-chain confirmation (spec.md §4.8's prepare_X -> complete_X diagram).
type Operation struct {
	ID     string
	Kind   string // "shield", "transfer", "unshield", "swap"
	Result orchestrator.Result
	Steps  []orchestrator.SequentialStep // populated only for a sequential fallback
	Memos  []OutputMemo

	outputs          []*note.Note    // in on-chain output-slot order; a nil entry marks an unused (zero-note) slot
	spentCommitments []field.Element // notes to remove once the spend confirms
}

func (w *Wallet) nextID(kind string) string {
	n := atomic.AddUint64(&w.counter, 1)
	return fmt.Sprintf("%s-%s-%d", kind, w.cfg.TokenSymbol, n)
}

// registerPending tracks op with the pending tracker and indexes it for
// CompleteX/DropOperation, guarding against a concurrent prepare_X over a
// note another in-flight operation has already claimed (spec.md §5's
// ordering guarantees).
func (w *Wallet) registerPending(op *Operation, spent []*note.Note) error {
	nullifiers := make([]field.Element, 0, len(spent))
	for _, n := range spent {
		nf, err := n.ComputedNullifier(w.Identity.SpendingKey)
		if err != nil {
			return wrap(KindSpendNoteNotOnChain, err)
		}
		if w.Pending.HasNullifier(nf) {
			return wrap(KindSelectionInsuff, fmt.Errorf("wallet: note %s is already claimed by an in-flight operation", n.Commitment))
		}
		nullifiers = append(nullifiers, nf)
	}
	commitments := make([]field.Element, 0, len(op.outputs))
	for _, n := range op.outputs {
		if n != nil {
			commitments = append(commitments, n.Commitment)
		}
	}
	if _, err := w.Pending.Track(op.ID, nullifiers, commitments); err != nil {
		return wrap(KindNotFound, err)
	}

	w.mu.Lock()
	w.ops[op.ID] = op
	w.mu.Unlock()
	return nil
}

func (w *Wallet) takeOperation(id string) (*Operation, error) {
	w.mu.Lock()
	op, ok := w.ops[id]
	w.mu.Unlock()
	if !ok {
		return nil, wrap(KindNotFound, fmt.Errorf("wallet: unknown operation %q", id))
	}
	return op, nil
}

// DropOperation abandons a prepared-but-not-submitted operation, releasing
// any notes it had provisionally claimed.
func (w *Wallet) DropOperation(id string) error {
	op, err := w.takeOperation(id)
	if err != nil {
		return err
	}
	if err := w.Pending.MarkDropped(op.ID); err != nil {
		return wrap(KindNotFound, err)
	}
	w.Pending.Remove(op.ID)
	w.mu.Lock()
	delete(w.ops, op.ID)
	w.mu.Unlock()
	return nil
}

// completeCommon applies the note-store side effects shared by every
// complete_X: confirming new outputs at their on-chain leaf index (in the
// same order prepare_X produced them, skipping unused zero-note slots) and
// removing the notes the operation spent.
func (w *Wallet) completeCommon(ctx context.Context, op *Operation, leafIndices []uint64) error {
	used := 0
	for _, n := range op.outputs {
		if n == nil {
			continue
		}
		if used >= len(leafIndices) {
			return wrap(KindStorage, fmt.Errorf("wallet: complete %s: expected %d leaf index(es), got %d", op.ID, used+1, len(leafIndices)))
		}
		n.LeafIndex = new(uint64)
		*n.LeafIndex = leafIndices[used]
		used++

		// An output addressed to someone else (a transfer recipient) is
		// never added to this wallet's own store; the recipient's own
		// instance picks it up through auto-discovery or its own complete_X.
		if !n.OwnerPubkey.Equal(w.Identity.ShieldedAddress) {
			continue
		}
		w.NoteStore.AddDiscovered(n)
		w.NoteStore.ConfirmLeafIndex(n.Commitment, *n.LeafIndex)
	}

	for _, c := range op.spentCommitments {
		if err := w.Reconciler.RemoveSpent(ctx, c); err != nil {
			return classify(err, KindChain)
		}
	}

	if err := w.Pending.MarkConfirmed(op.ID); err != nil {
		return wrap(KindNotFound, err)
	}
	w.Pending.Remove(op.ID)
	w.mu.Lock()
	delete(w.ops, op.ID)
	w.mu.Unlock()

	return wrap(KindStorage, w.NoteStore.Save(ctx))
}

// mustRandomPair draws the (secret, blinding) pair every new note needs
// from the host-injected capability.Rng (spec.md §6), rather than going
// behind it to the system RNG directly.
func (w *Wallet) mustRandomPair() (field.Element, field.Element) {
	a, err := field.RandomElementFrom(w.rng)
	if err != nil {
		panic(err)
	}
	b, err := field.RandomElementFrom(w.rng)
	if err != nil {
		panic(err)
	}
	return a, b
}

// EncryptOutgoingMemo encrypts a note body for delivery alongside an
// on-chain output, addressed to the recipient's viewing key (spec.md §3
// "Encrypted memo"). Hosts call this once per real output note in a
// prepared operation and submit the resulting blob in the corresponding
// memo slot.
func EncryptOutgoingMemo(n *note.Note, recipientViewingKey field.Element) ([]byte, error) {
	recipientPub, err := memo.ViewingKeyToECDHPublicKey(recipientViewingKey)
	if err != nil {
		return nil, wrap(KindMemoTooLarge, err)
	}
	blob, err := memo.Encrypt(memo.Body{
		Amount:        n.Amount,
		Secret:        memo.SecretFieldHex(n.Secret),
		Blinding:      memo.SecretFieldHex(n.Blinding),
		TokenSymbol:   n.TokenSymbol,
		TokenAddress:  n.TokenAddress.String(),
		TokenDecimals: n.TokenDecimals,
	}, recipientPub)
	if err != nil {
		return nil, classify(err, KindMemoTooLarge)
	}
	return blob, nil
}
