package p2phint

import (
	"encoding/json"
	"testing"

	"github.com/zdoge/shieldwallet/pkg/types"
)

func TestHintJSONRoundTrip(t *testing.T) {
	h := Hint{Pool: types.AddressFromBytes([]byte{1, 2, 3}), BlockNumber: 9000}

	data, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got Hint
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Pool != h.Pool || got.BlockNumber != h.BlockNumber {
		t.Error("expected round trip to preserve pool and block number")
	}
}
