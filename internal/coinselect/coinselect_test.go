package coinselect

import (
	"testing"

	"github.com/zdoge/shieldwallet/internal/field"
	"github.com/zdoge/shieldwallet/internal/note"
)

func mkNote(amount uint64, seed uint64) *note.Note {
	return note.New(amount, field.FromUint64(1), field.FromUint64(seed), field.FromUint64(seed+1), "DOGE", [20]byte{}, 18)
}

// TestSelectHeterogeneousNotes mirrors spec scenario S3: notes [1,2,3,5,8],
// target 10, min_fee effectively zero relative to amounts. Largest-first fill
// takes 8, then the smallest note covering the remaining 2: {8,2}.
func TestSelectHeterogeneousNotes(t *testing.T) {
	candidates := []*note.Note{
		mkNote(1, 1), mkNote(2, 2), mkNote(3, 3), mkNote(5, 4), mkNote(8, 5),
	}
	cfg := Config{MinFee: 0, FeeBps: 0}

	sel, err := Select(candidates, 10, cfg)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	var gotAmounts []uint64
	for _, a := range sel.Spent {
		gotAmounts = append(gotAmounts, a.Note.Amount)
	}
	if len(gotAmounts) != 2 || gotAmounts[0] != 8 || gotAmounts[1] != 2 {
		t.Fatalf("expected greedy selection {8,2}, got %v", gotAmounts)
	}

	var transferSum uint64
	for _, a := range sel.Spent {
		transferSum += a.TransferAmount
	}
	if transferSum != 10-sel.TotalFee {
		t.Errorf("expected Σtransfer == target - Σfees, got %d want %d", transferSum, 10-sel.TotalFee)
	}
	for _, a := range sel.Outputs {
		if a.TransferAmount == 0 && a.ChangeAmount == 0 {
			t.Error("no zero-amount output should be emitted")
		}
	}
}

// TestSelectFeeOnlyNoteOmittedFromOutputs mirrors spec scenario S4: a tiny
// note whose amount doesn't exceed its own fee contributes nothing to the
// recipient and is never emitted as a transfer output.
func TestSelectFeeOnlyNoteOmittedFromOutputs(t *testing.T) {
	cfg := Config{MinFee: 1000, FeeBps: 0}
	tiny := mkNote(500, 1)       // amount <= min_fee: fee-only
	other := mkNote(4_000_000, 2) // alone insufficient to cover target

	// Target equals the full candidate capacity, so the within-1% edge case
	// takes every note, the fee-only one included.
	target := tiny.Amount + other.Amount
	sel, err := Select([]*note.Note{tiny, other}, target, cfg)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	var tinySelected bool
	for _, a := range sel.Spent {
		if a.Note == tiny {
			tinySelected = true
		}
	}
	if !tinySelected {
		t.Fatal("expected the fee-only note to be selected when the target needs every note")
	}

	for _, a := range sel.Outputs {
		if a.Note == tiny {
			t.Fatal("fee-only note should never appear in Outputs")
		}
	}
}

func TestSelectWithinOnePercentTakesAll(t *testing.T) {
	cfg := Config{MinFee: 0, FeeBps: 0}
	candidates := []*note.Note{mkNote(100, 1), mkNote(100, 2), mkNote(100, 3)}

	sel, err := Select(candidates, 299, cfg) // 299/300 > 99%
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(sel.Spent) != 3 {
		t.Errorf("expected all 3 notes selected within 1%% edge case, got %d", len(sel.Spent))
	}
}

func TestSelectInsufficientBalance(t *testing.T) {
	cfg := Config{MinFee: 0, FeeBps: 0}
	candidates := []*note.Note{mkNote(5, 1)}

	_, err := Select(candidates, 10, cfg)
	if err != ErrInsufficient {
		t.Fatalf("expected ErrInsufficient, got %v", err)
	}
}

func TestSelectPartialSpendRespectsMinChange(t *testing.T) {
	cfg := Config{MinFee: 0, FeeBps: 0}
	// A single large note spending far more than target should produce
	// change comfortably above MinChange, not a full-spend.
	candidates := []*note.Note{mkNote(1_000_000, 1)}

	sel, err := Select(candidates, 10_000, cfg)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(sel.Spent) != 1 {
		t.Fatalf("expected 1 note spent, got %d", len(sel.Spent))
	}
	a := sel.Spent[0]
	if a.ChangeAmount < MinChange {
		t.Errorf("expected change >= MinChange, got %d", a.ChangeAmount)
	}
	if a.TransferAmount+a.ChangeAmount+a.Fee != a.Note.Amount {
		t.Error("transfer + change + fee should equal the note's amount")
	}
}

func TestDistributeEvenlySumsToTotal(t *testing.T) {
	shares := DistributeEvenly(103, 4)
	var sum uint64
	for _, s := range shares {
		sum += s
	}
	if sum != 103 {
		t.Errorf("expected shares to sum to 103, got %d", sum)
	}
}
