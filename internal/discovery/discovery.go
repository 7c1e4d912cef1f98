// Package discovery implements auto-discovery (spec.md §4.6): a bounded
// forward scan over Transfer events that trial-decrypts both memo slots
// against the local identity's viewing key and inserts any note that
// decrypts and whose reconstructed commitment matches the event.
//
// Grounded on the teacher's internal/mempool.go cursor-and-chunk sweep
// style, generalized from mempool eviction passes to a persisted
// last_scanned_block cursor walked forward in MaxBlockRange-sized chunks.
package discovery

import (
	"context"
	"crypto/ecdh"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/zdoge/shieldwallet/internal/chain"
	"github.com/zdoge/shieldwallet/internal/field"
	"github.com/zdoge/shieldwallet/internal/logging"
	"github.com/zdoge/shieldwallet/internal/memo"
	"github.com/zdoge/shieldwallet/internal/note"
	"github.com/zdoge/shieldwallet/internal/notestore"
	"github.com/zdoge/shieldwallet/pkg/capability"
	"github.com/zdoge/shieldwallet/pkg/types"
)

var log = logging.New("discovery")

// transferEventData is the expected shape of a Transfer event's log data:
// two output commitments, two encrypted memos, and the two leaf indices
// the tree insertion assigned them.
type transferEventData struct {
	Commitment1 types.Hash `json:"commitment1"`
	Commitment2 types.Hash `json:"commitment2"`
	Memo1       []byte     `json:"memo1"`
	Memo2       []byte     `json:"memo2"`
	LeafIndex1  uint64     `json:"leafIndex1"`
	LeafIndex2  uint64     `json:"leafIndex2"`
}

// Scanner walks Transfer events forward from a persisted cursor, trying to
// claim any note addressed to the local identity.
type Scanner struct {
	Chain       *chain.Reader
	Store       *notestore.Store
	Cursor      capability.KvStore
	CursorKey   string
	Pool        types.Address
	TopicSet    []types.Hash
	ViewingKey  field.Element
	OwnerPubkey field.Element // this identity's shielded_address
}

func (s *Scanner) loadCursor(ctx context.Context) (uint64, error) {
	raw, ok, err := s.Cursor.Get(ctx, s.CursorKey)
	if err != nil {
		return 0, fmt.Errorf("discovery: load cursor: %w", err)
	}
	if !ok || len(raw) != 8 {
		return 0, nil
	}
	return binary.BigEndian.Uint64(raw), nil
}

func (s *Scanner) saveCursor(ctx context.Context, block uint64) error {
	raw := make([]byte, 8)
	binary.BigEndian.PutUint64(raw, block)
	if err := s.Cursor.Put(ctx, s.CursorKey, raw); err != nil {
		return fmt.Errorf("discovery: save cursor: %w", err)
	}
	return nil
}

// Scan walks forward in chunks of at most chain.MaxBlockRange blocks from
// the persisted cursor up to (and including) upToBlock, persisting the
// cursor after each chunk so a crash mid-scan only re-scans the current
// chunk — safe because AddDiscovered is idempotent on commitment.
func (s *Scanner) Scan(ctx context.Context, upToBlock uint64) (inserted int, err error) {
	cursor, err := s.loadCursor(ctx)
	if err != nil {
		return 0, err
	}

	privKey, err := memo.ViewingKeyToECDHKey(s.ViewingKey)
	if err != nil {
		return 0, fmt.Errorf("discovery: derive memo key: %w", err)
	}

	for cursor <= upToBlock {
		chunkEnd := cursor + chain.MaxBlockRange - 1
		if chunkEnd > upToBlock {
			chunkEnd = upToBlock
		}

		events, err := s.Chain.FetchEvents(ctx, s.Pool, cursor, chunkEnd, s.TopicSet)
		if err != nil {
			return inserted, fmt.Errorf("discovery: scan [%d,%d]: %w", cursor, chunkEnd, err)
		}

		n, err := s.processEvents(events, privKey)
		if err != nil {
			return inserted, err
		}
		inserted += n

		cursor = chunkEnd + 1
		if err := s.saveCursor(ctx, cursor); err != nil {
			return inserted, err
		}
	}
	if inserted > 0 {
		log.Info().Int("inserted", inserted).Uint64("upToBlock", upToBlock).Msg("discovery scan claimed new notes")
	}
	return inserted, nil
}

func (s *Scanner) processEvents(events []chain.Event, privKey *ecdh.PrivateKey) (int, error) {
	inserted := 0
	for _, e := range events {
		var data transferEventData
		if err := json.Unmarshal(e.Data, &data); err != nil {
			return inserted, fmt.Errorf("discovery: decode event at block %d: %w", e.BlockNumber, err)
		}
		if s.tryClaim(data.Memo1, data.Commitment1, data.LeafIndex1, privKey) {
			inserted++
		}
		if s.tryClaim(data.Memo2, data.Commitment2, data.LeafIndex2, privKey) {
			inserted++
		}
	}
	return inserted, nil
}

// tryClaim attempts to decrypt a single memo slot and, on success, verifies
// the reconstructed commitment matches the event before inserting the note
// into the store. A failed decryption, a commitment mismatch, or a note
// already known to the store are all silent no-ops — the scan is expected
// to encounter many memos that do not belong to this identity.
func (s *Scanner) tryClaim(memoBlob []byte, commitment types.Hash, leafIndex uint64, privKey *ecdh.PrivateKey) bool {
	if len(memoBlob) == 0 {
		return false
	}
	body, ok := memo.Decrypt(memoBlob, privKey)
	if !ok {
		return false
	}

	secret := memo.ParseFieldHex(body.Secret)
	blinding := memo.ParseFieldHex(body.Blinding)

	n := note.New(body.Amount, s.OwnerPubkey, secret, blinding, body.TokenSymbol, parseTokenAddress(body.TokenAddress), body.TokenDecimals)
	if !field.FromBytes(commitment[:]).Equal(n.Commitment) {
		return false
	}

	idx := leafIndex
	n.LeafIndex = &idx
	return s.Store.AddDiscovered(n)
}

func parseTokenAddress(hexAddr string) types.Address {
	if len(hexAddr) >= 2 && hexAddr[0] == '0' && (hexAddr[1] == 'x' || hexAddr[1] == 'X') {
		hexAddr = hexAddr[2:]
	}
	decoded, err := hex.DecodeString(hexAddr)
	if err != nil {
		return types.Address{}
	}
	return types.AddressFromBytes(decoded)
}
