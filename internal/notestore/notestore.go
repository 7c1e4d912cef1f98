// Package notestore implements the note store (spec.md §3, §4.3): a
// commitment-unique set of notes persisted as a single encrypted blob per
// external wallet address, addressable by commitment, leaf index, and
// (token, commitment).
//
// Grounded on the teacher's internal/zkp/nullifier.go: the
// NullifierSet/NullifierStore split (an in-process index guarded by a
// sync.RWMutex, backed by a pluggable persistence interface) is reused here
// for notes instead of nullifiers. Persistence goes through
// internal/persist (AEAD blob framing) and pkg/capability.KvStore.
package notestore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/zdoge/shieldwallet/internal/field"
	"github.com/zdoge/shieldwallet/internal/logging"
	"github.com/zdoge/shieldwallet/internal/note"
	"github.com/zdoge/shieldwallet/internal/persist"
	"github.com/zdoge/shieldwallet/pkg/capability"
	"github.com/zdoge/shieldwallet/pkg/types"
)

var log = logging.New("notestore")

// Store is the in-memory note set backed by an encrypted KvStore blob.
// Every exported method is safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	kv          capability.KvStore
	storageKey  string
	cryptKey    [32]byte
	wasLegacy   bool

	byCommitment map[string]*note.Note // hex(commitment) -> note
	byLeafIndex  map[uint64]string     // leaf_index -> hex(commitment)
}

// New constructs an empty store that persists under storageKey in kv,
// encrypted with cryptKey (spec.md §3: "derived from wallet address [,
// optional user password]" — key derivation itself is the caller's
// concern; this package only seals/opens with whatever key it is given).
func New(kv capability.KvStore, storageKey string, cryptKey [32]byte) *Store {
	return &Store{
		kv:           kv,
		storageKey:   storageKey,
		cryptKey:     cryptKey,
		byCommitment: make(map[string]*note.Note),
		byLeafIndex:  make(map[uint64]string),
	}
}

// noteRecord is the JSON wire shape for a persisted note; field elements
// are carried as their canonical byte encoding (JSON marshals []byte as
// base64 automatically).
type noteRecord struct {
	Amount        uint64        `json:"amount"`
	OwnerPubkey   []byte        `json:"ownerPubkey"`
	Secret        []byte        `json:"secret"`
	Blinding      []byte        `json:"blinding"`
	TokenSymbol   string        `json:"tokenSymbol"`
	TokenAddress  types.Address `json:"tokenAddress"`
	TokenDecimals uint8         `json:"tokenDecimals"`
	LeafIndex     *uint64       `json:"leafIndex,omitempty"`
	Commitment    []byte        `json:"commitment"`
	CreatedAt     time.Time     `json:"createdAt"`
}

func toRecord(n *note.Note) noteRecord {
	return noteRecord{
		Amount:        n.Amount,
		OwnerPubkey:   n.OwnerPubkey.Bytes(),
		Secret:        n.Secret.Bytes(),
		Blinding:      n.Blinding.Bytes(),
		TokenSymbol:   n.TokenSymbol,
		TokenAddress:  n.TokenAddress,
		TokenDecimals: n.TokenDecimals,
		LeafIndex:     n.LeafIndex,
		Commitment:    n.Commitment.Bytes(),
		CreatedAt:     n.CreatedAt,
	}
}

func fromRecord(r noteRecord) *note.Note {
	return &note.Note{
		Amount:        r.Amount,
		OwnerPubkey:   field.FromBytes(r.OwnerPubkey),
		Secret:        field.FromBytes(r.Secret),
		Blinding:      field.FromBytes(r.Blinding),
		TokenSymbol:   r.TokenSymbol,
		TokenAddress:  r.TokenAddress,
		TokenDecimals: r.TokenDecimals,
		LeafIndex:     r.LeafIndex,
		Commitment:    field.FromBytes(r.Commitment),
		CreatedAt:     r.CreatedAt,
	}
}

func commitmentKey(c field.Element) string {
	return fmt.Sprintf("%x", c.Bytes())
}

// Load populates the store from its persisted blob, if one exists. A
// missing key is not an error: the store simply starts empty. Legacy
// (unversioned-plaintext) blobs are read transparently and re-sealed on
// the next Save.
func (s *Store) Load(ctx context.Context) error {
	raw, ok, err := s.kv.Get(ctx, s.storageKey)
	if err != nil {
		return fmt.Errorf("notestore: load: %w", err)
	}
	if !ok {
		return nil
	}

	plaintext, legacy, err := persist.Open(s.cryptKey, raw)
	if err != nil {
		return fmt.Errorf("notestore: load: %w", err)
	}

	var records []noteRecord
	if err := json.Unmarshal(plaintext, &records); err != nil {
		return fmt.Errorf("notestore: load: decode: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byCommitment = make(map[string]*note.Note, len(records))
	s.byLeafIndex = make(map[uint64]string, len(records))
	for _, r := range records {
		n := fromRecord(r)
		key := commitmentKey(n.Commitment)
		s.byCommitment[key] = n
		if n.LeafIndex != nil {
			s.byLeafIndex[*n.LeafIndex] = key
		}
	}
	s.wasLegacy = legacy
	if legacy {
		log.Warn().Str("storageKey", s.storageKey).Msg("loaded unversioned legacy plaintext blob; will re-seal on next Save")
	}
	return nil
}

// Save serializes and persists the current note set.
func (s *Store) Save(ctx context.Context) error {
	s.mu.RLock()
	records := make([]noteRecord, 0, len(s.byCommitment))
	for _, n := range s.byCommitment {
		records = append(records, toRecord(n))
	}
	s.mu.RUnlock()

	plaintext, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("notestore: save: encode: %w", err)
	}
	blob, err := persist.Seal(s.cryptKey, plaintext)
	if err != nil {
		return fmt.Errorf("notestore: save: %w", err)
	}
	if err := s.kv.Put(ctx, s.storageKey, blob); err != nil {
		return fmt.Errorf("notestore: save: %w", err)
	}

	s.mu.Lock()
	s.wasLegacy = false
	s.mu.Unlock()
	return nil
}

// WasLegacy reports whether the most recent Load read an unversioned
// plaintext blob that has not yet been re-sealed by a Save.
func (s *Store) WasLegacy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wasLegacy
}

// AddDiscovered inserts n if no stored note already shares its commitment.
// Per spec.md §4.3's hard invariant, duplicate insertion is a no-op
// returning false.
func (s *Store) AddDiscovered(n *note.Note) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := commitmentKey(n.Commitment)
	if _, exists := s.byCommitment[key]; exists {
		return false
	}
	s.byCommitment[key] = n
	if n.LeafIndex != nil {
		s.byLeafIndex[*n.LeafIndex] = key
	}
	return true
}

// ConfirmLeafIndex assigns leafIndex to the note matching commitment,
// transitioning it from created to confirmed (spec.md §3 lifecycle step
// 2). Returns false if no such note is stored.
func (s *Store) ConfirmLeafIndex(commitment field.Element, leafIndex uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := commitmentKey(commitment)
	n, ok := s.byCommitment[key]
	if !ok {
		return false
	}
	n.LeafIndex = &leafIndex
	s.byLeafIndex[leafIndex] = key
	return true
}

// RemoveByCommitment deletes the note with the given commitment, if any,
// returning whether a note was actually removed.
func (s *Store) RemoveByCommitment(commitment field.Element) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := commitmentKey(commitment)
	n, ok := s.byCommitment[key]
	if !ok {
		return false
	}
	delete(s.byCommitment, key)
	if n.LeafIndex != nil {
		delete(s.byLeafIndex, *n.LeafIndex)
	}
	return true
}

// ByCommitment looks up a single note by its commitment.
func (s *Store) ByCommitment(commitment field.Element) (*note.Note, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.byCommitment[commitmentKey(commitment)]
	return n, ok
}

// ByLeafIndex looks up a single note by its confirmed leaf index.
func (s *Store) ByLeafIndex(leafIndex uint64) (*note.Note, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.byLeafIndex[leafIndex]
	if !ok {
		return nil, false
	}
	n, ok := s.byCommitment[key]
	return n, ok
}

// NotesByToken returns every stored note (confirmed or not) for tokenSymbol.
func (s *Store) NotesByToken(tokenSymbol string) []*note.Note {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*note.Note
	for _, n := range s.byCommitment {
		if n.TokenSymbol == tokenSymbol {
			out = append(out, n)
		}
	}
	return out
}

// ConfirmedByToken returns only confirmed notes (leaf_index set) for
// tokenSymbol — the candidate pool for coin selection.
func (s *Store) ConfirmedByToken(tokenSymbol string) []*note.Note {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*note.Note
	for _, n := range s.byCommitment {
		if n.TokenSymbol == tokenSymbol && n.IsConfirmed() {
			out = append(out, n)
		}
	}
	return out
}

// BalanceByToken sums the amount of confirmed notes for tokenSymbol.
// Per spec.md §4.3's invariant, unconfirmed notes never contribute.
func (s *Store) BalanceByToken(tokenSymbol string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total uint64
	for _, n := range s.byCommitment {
		if n.TokenSymbol == tokenSymbol && n.IsConfirmed() {
			total += n.Amount
		}
	}
	return total
}

// All returns every stored note regardless of token, for callers (such as
// reconciliation) that must walk the full set rather than one token's
// slice.
func (s *Store) All() []*note.Note {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*note.Note, 0, len(s.byCommitment))
	for _, n := range s.byCommitment {
		out = append(out, n)
	}
	return out
}

// Len returns the total number of stored notes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byCommitment)
}
