package discovery

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/json"
	"testing"

	"github.com/zdoge/shieldwallet/internal/chain"
	"github.com/zdoge/shieldwallet/internal/field"
	"github.com/zdoge/shieldwallet/internal/memo"
	"github.com/zdoge/shieldwallet/internal/note"
	"github.com/zdoge/shieldwallet/internal/notestore"
	"github.com/zdoge/shieldwallet/internal/storekv"
	"github.com/zdoge/shieldwallet/pkg/types"
)

type fakeRpc struct {
	events []chain.Event
}

func (f *fakeRpc) Call(_ context.Context, method string, _ ...any) ([]byte, error) {
	switch method {
	case "shieldpool_getLogs":
		return json.Marshal(f.events)
	}
	return json.Marshal(nil)
}

func encryptedMemo(t *testing.T, pub *ecdh.PublicKey, amount uint64, secret, blinding field.Element) []byte {
	t.Helper()
	blob, err := memo.Encrypt(memo.Body{
		Amount:        amount,
		Secret:        memo.SecretFieldHex(secret),
		Blinding:      memo.SecretFieldHex(blinding),
		TokenSymbol:   "DOGE",
		TokenAddress:  "0x0000000000000000000000000000000000000000",
		TokenDecimals: 18,
	}, pub)
	if err != nil {
		t.Fatalf("encryptedMemo: %v", err)
	}
	return blob
}

func newScanner(rpc *fakeRpc, viewingKey, owner field.Element) *Scanner {
	return &Scanner{
		Chain:       chain.NewReader(rpc),
		Store:       notestore.New(storekv.NewMemory(), "wallet:test", [32]byte{}),
		Cursor:      storekv.NewMemory(),
		CursorKey:   "wallet:cursor",
		Pool:        types.Address{},
		TopicSet:    nil,
		ViewingKey:  viewingKey,
		OwnerPubkey: owner,
	}
}

func TestScanClaimsMatchingMemoAndSkipsOther(t *testing.T) {
	viewingKey := field.FromUint64(777)
	owner := field.FromUint64(42)
	pub, err := memo.ViewingKeyToECDHPublicKey(viewingKey)
	if err != nil {
		t.Fatalf("ViewingKeyToECDHPublicKey: %v", err)
	}

	secret := field.FromUint64(10)
	blinding := field.FromUint64(11)
	commitment := note.ComputeCommitment(secret, blinding, 500, owner)

	otherPub, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate unrelated recipient key: %v", err)
	}
	unrelatedMemo := encryptedMemo(t, otherPub.PublicKey(), 9, field.FromUint64(1), field.FromUint64(2))

	data := transferEventData{
		Commitment1: types.HashFromBytes(commitment.Bytes()),
		Commitment2: types.Hash{},
		Memo1:       encryptedMemo(t, pub, 500, secret, blinding),
		Memo2:       unrelatedMemo,
		LeafIndex1:  5,
		LeafIndex2:  6,
	}
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal event data: %v", err)
	}

	rpc := &fakeRpc{events: []chain.Event{{BlockNumber: 1, Data: raw}}}
	s := newScanner(rpc, viewingKey, owner)

	inserted, err := s.Scan(context.Background(), 1)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if inserted != 1 {
		t.Fatalf("expected exactly 1 note claimed, got %d", inserted)
	}

	n, ok := s.Store.ByCommitment(commitment)
	if !ok {
		t.Fatal("expected the claimed note to be present in the store")
	}
	if n.LeafIndex == nil || *n.LeafIndex != 5 {
		t.Error("expected leaf index from the matching memo slot")
	}
}

func TestScanDiscardsCommitmentMismatch(t *testing.T) {
	viewingKey := field.FromUint64(321)
	owner := field.FromUint64(1)
	pub, err := memo.ViewingKeyToECDHPublicKey(viewingKey)
	if err != nil {
		t.Fatalf("ViewingKeyToECDHPublicKey: %v", err)
	}

	data := transferEventData{
		Commitment1: types.HashFromBytes([]byte("not the real commitment")),
		Memo1:       encryptedMemo(t, pub, 100, field.FromUint64(1), field.FromUint64(2)),
		LeafIndex1:  0,
	}
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal event data: %v", err)
	}

	rpc := &fakeRpc{events: []chain.Event{{BlockNumber: 1, Data: raw}}}
	s := newScanner(rpc, viewingKey, owner)

	inserted, err := s.Scan(context.Background(), 1)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if inserted != 0 {
		t.Fatalf("expected 0 notes claimed on commitment mismatch, got %d", inserted)
	}
}

func TestScanPersistsCursorAcrossCalls(t *testing.T) {
	viewingKey := field.FromUint64(55)
	owner := field.FromUint64(1)
	rpc := &fakeRpc{}
	s := newScanner(rpc, viewingKey, owner)

	if _, err := s.Scan(context.Background(), chain.MaxBlockRange+10); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	cursor, err := s.loadCursor(context.Background())
	if err != nil {
		t.Fatalf("loadCursor: %v", err)
	}
	if cursor != chain.MaxBlockRange+11 {
		t.Errorf("expected cursor past the scanned range, got %d", cursor)
	}
}
