package chain

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/zdoge/shieldwallet/pkg/types"
)

type fakeRpc struct {
	calls    int
	response func(method string, params []any) ([]byte, error)
}

func (f *fakeRpc) Call(_ context.Context, method string, params ...any) ([]byte, error) {
	f.calls++
	return f.response(method, params)
}

func TestFetchEventsRejectsOversizedRange(t *testing.T) {
	r := NewReader(&fakeRpc{response: func(string, []any) ([]byte, error) {
		t.Fatal("rpc should not be called when the range is rejected locally")
		return nil, nil
	}})

	_, err := r.FetchEvents(context.Background(), types.Address{}, 0, MaxBlockRange+1, nil)
	if err != ErrRangeTooWide {
		t.Fatalf("expected ErrRangeTooWide, got %v", err)
	}
}

func TestFetchEventsValidatesAddressAndTopic(t *testing.T) {
	addr := types.AddressFromBytes([]byte{1})
	topic := types.HashFromBytes([]byte("shield"))
	otherAddr := types.AddressFromBytes([]byte{2})

	rpc := &fakeRpc{response: func(string, []any) ([]byte, error) {
		events := []Event{{BlockNumber: 1, Address: otherAddr, Topics: []types.Hash{topic}}}
		return json.Marshal(events)
	}}
	r := NewReader(rpc)

	_, err := r.FetchEvents(context.Background(), addr, 0, 100, []types.Hash{topic})
	if err == nil {
		t.Fatal("expected validation error for mismatched event address")
	}
}

func TestFetchEventsAcceptsMatchingEvents(t *testing.T) {
	addr := types.AddressFromBytes([]byte{1})
	topic := types.HashFromBytes([]byte("shield"))

	rpc := &fakeRpc{response: func(string, []any) ([]byte, error) {
		events := []Event{{BlockNumber: 1, Address: addr, Topics: []types.Hash{topic}}}
		return json.Marshal(events)
	}}
	r := NewReader(rpc)

	got, err := r.FetchEvents(context.Background(), addr, 0, 100, []types.Hash{topic})
	if err != nil {
		t.Fatalf("FetchEvents: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
}

func TestIsNullifierSpent(t *testing.T) {
	rpc := &fakeRpc{response: func(method string, _ []any) ([]byte, error) {
		if method != "shieldpool_isNullifierSpent" {
			t.Fatalf("unexpected method %s", method)
		}
		return json.Marshal(true)
	}}
	r := NewReader(rpc)

	spent, err := r.IsNullifierSpent(context.Background(), types.Address{}, types.Hash{})
	if err != nil {
		t.Fatalf("IsNullifierSpent: %v", err)
	}
	if !spent {
		t.Error("expected spent=true")
	}
}

func TestPathForRejectsUnindexedLeaf(t *testing.T) {
	rpc := &fakeRpc{response: func(string, []any) ([]byte, error) {
		return json.Marshal(pathResponse{Indexed: false})
	}}
	r := NewReader(rpc)

	_, err := r.PathFor(context.Background(), types.Address{}, 7)
	if err != ErrLeafNotIndexed {
		t.Fatalf("expected ErrLeafNotIndexed, got %v", err)
	}
}

func TestPathForReturnsFullPath(t *testing.T) {
	elements := make([]types.Hash, Depth)
	indices := make([]bool, Depth)
	for i := range elements {
		elements[i] = types.HashFromBytes([]byte{byte(i)})
		indices[i] = i%2 == 0
	}
	root := types.HashFromBytes([]byte("root"))

	rpc := &fakeRpc{response: func(string, []any) ([]byte, error) {
		return json.Marshal(pathResponse{Elements: elements, Indices: indices, Root: root, Indexed: true})
	}}
	r := NewReader(rpc)

	path, err := r.PathFor(context.Background(), types.Address{}, 3)
	if err != nil {
		t.Fatalf("PathFor: %v", err)
	}
	if path.Root != root {
		t.Error("expected returned root to be propagated unchanged")
	}
	if path.LeafPosition != 3 {
		t.Error("expected leaf position to be preserved")
	}
	for i := range path.Siblings {
		if path.Siblings[i] != elements[i] || path.PathBits[i] != indices[i] {
			t.Fatalf("path element %d mismatch", i)
		}
	}
}
