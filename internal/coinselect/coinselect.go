// Package coinselect implements the fee model and coin selection algorithm
// shared by multi-input and sequential transfer construction (spec.md
// §4.5.4 / §4.6).
//
// Grounded on kslamph-tronlib's note-selection loop (try a candidate, skip
// it and move to the next on failure — the structural precedent for
// "classify, then try the next candidate") and the teacher's
// internal/mempool.go priority-sorted greedy-fill (insertIntoQueue's
// descending-priority insertion, reused here as descending-capacity sort).
package coinselect

import (
	"errors"
	"sort"

	"github.com/zdoge/shieldwallet/internal/note"
)

// MinChange is the rounding buffer below which a change output is not
// produced; a note that would leave less than this is instead fully spent.
const MinChange = 10000

// ErrInsufficient is returned when the candidate notes cannot cover target,
// even after including every fee-only note.
var ErrInsufficient = errors.New("coinselect: insufficient spendable balance to cover target")

// ErrSelfTransferSharedOutput names the rejection of a self-transfer under
// shared-output (historical batch) distribution, where the recipient and
// change commitments would collide. No function in this package returns
// it: DistributeEvenly does not check for self-transfer.
var ErrSelfTransferSharedOutput = errors.New("coinselect: self-transfer is rejected under shared-output distribution")

// Config carries the fee schedule.
type Config struct {
	MinFee uint64
	FeeBps uint64 // basis points, i.e. fee_bps/10000
}

// Fee computes the per-note fee max(min_fee, amount * fee_bps / 10000).
func Fee(amount uint64, cfg Config) uint64 {
	bpsFee := amount * cfg.FeeBps / 10000
	if bpsFee > cfg.MinFee {
		return bpsFee
	}
	return cfg.MinFee
}

// IsFeeOnly reports whether a note's amount cannot exceed its own fee,
// meaning it can never contribute to the recipient amount.
func IsFeeOnly(amount uint64, fee uint64) bool {
	return amount <= fee
}

// Allocation is the outcome of selection for a single spent note: how much
// of its value reaches the recipient, how much returns as change, and the
// fee charged against it.
type Allocation struct {
	Note           *note.Note
	Fee            uint64
	TransferAmount uint64
	ChangeAmount   uint64
}

// Selection is the full result of Select: every spent note (including
// fee-only notes contributing nothing to the recipient) plus the subset of
// allocations that actually produce an output note.
type Selection struct {
	Spent          []Allocation
	Outputs        []Allocation // Spent filtered to TransferAmount>0 || ChangeAmount>0
	TotalFee       uint64
	RecipientTotal uint64 // target - TotalFee
}

// Select implements spec.md §4.5.4's algorithm: classify candidates as
// fee-only or useful, greedily fill useful notes largest-first (taking
// instead the smallest useful note that alone covers what is still needed,
// once one does), fall back to fee-only notes if still short, and — when
// target is at most total available capacity and within 1% of it — simply
// take everything. Each selected note is
// then resolved to full-spend or partial-spend, skipping any that would
// ultimately transfer nothing.
func Select(candidates []*note.Note, target uint64, cfg Config) (Selection, error) {
	type classified struct {
		n       *note.Note
		fee     uint64
		feeOnly bool
	}

	classifiedNotes := make([]classified, len(candidates))
	var totalCapacity uint64
	for i, n := range candidates {
		fee := Fee(n.Amount, cfg)
		classifiedNotes[i] = classified{n: n, fee: fee, feeOnly: IsFeeOnly(n.Amount, fee)}
		totalCapacity += n.Amount
	}

	var useful, feeOnly []classified
	for _, c := range classifiedNotes {
		if c.feeOnly {
			feeOnly = append(feeOnly, c)
		} else {
			useful = append(useful, c)
		}
	}
	sort.Slice(useful, func(i, j int) bool { return useful[i].n.Amount > useful[j].n.Amount })
	sort.Slice(feeOnly, func(i, j int) bool { return feeOnly[i].n.Amount > feeOnly[j].n.Amount })

	var selected []classified
	withinOnePercent := totalCapacity > 0 && target <= totalCapacity && target*100 >= totalCapacity*99
	if withinOnePercent {
		selected = append(append(selected, useful...), feeOnly...)
	} else {
		var running uint64
		pool := useful
		for running < target && len(pool) > 0 {
			// useful is sorted descending, so scanning from the end finds the
			// smallest note covering the rest; if none does, take the largest.
			pick := 0
			for i := len(pool) - 1; i >= 0; i-- {
				if pool[i].n.Amount >= target-running {
					pick = i
					break
				}
			}
			selected = append(selected, pool[pick])
			running += pool[pick].n.Amount
			pool = append(pool[:pick:pick], pool[pick+1:]...)
		}
		if running < target {
			for _, c := range feeOnly {
				selected = append(selected, c)
				running += c.n.Amount
				if running >= target {
					break
				}
			}
		}
		if running < target {
			return Selection{}, ErrInsufficient
		}
	}

	var totalFee uint64
	for _, c := range selected {
		totalFee += c.fee
	}
	if totalFee > target {
		return Selection{}, ErrInsufficient
	}
	recipientTotal := target - totalFee

	// remaining tracks value still owed to the recipient. Signed so a
	// dust-avoidance full-spend that slightly overshoots doesn't underflow;
	// once it goes non-positive, every further note is pure change.
	remaining := int64(recipientTotal)
	spent := make([]Allocation, 0, len(selected))
	for _, c := range selected {
		var capacity int64
		if c.n.Amount > c.fee {
			capacity = int64(c.n.Amount - c.fee)
		}

		var transfer, change int64
		switch {
		case remaining <= 0:
			change = capacity
		case capacity <= remaining:
			// Full-spend: the whole note's post-fee value goes to the
			// recipient, leaving no change.
			transfer = capacity
		default:
			// Partial-spend candidate: recipient takes what's left owed,
			// the note keeps the rest as change.
			transfer = remaining
			change = capacity - remaining
			if change > 0 && change < MinChange {
				// Dust change is not allowed; fall back to full-spend.
				transfer = capacity
				change = 0
			}
		}
		remaining -= transfer

		spent = append(spent, Allocation{Note: c.n, Fee: c.fee, TransferAmount: uint64(transfer), ChangeAmount: uint64(change)})
	}

	outputs := make([]Allocation, 0, len(spent))
	for _, a := range spent {
		if a.TransferAmount > 0 || a.ChangeAmount > 0 {
			outputs = append(outputs, a)
		}
	}

	return Selection{Spent: spent, Outputs: outputs, TotalFee: totalFee, RecipientTotal: recipientTotal}, nil
}

// DistributeEvenly splits total into n equal shares for the shared-output
// (historical batch) multi-input mode, per spec.md §4.5.4's caveat: uneven
// distribution across shared outputs would violate per-input value
// conservation. The remainder (total % n) is added to the first share so
// the shares still sum exactly to total.
func DistributeEvenly(total uint64, n int) []uint64 {
	if n <= 0 {
		return nil
	}
	shares := make([]uint64, n)
	per := total / uint64(n)
	remainder := total % uint64(n)
	for i := range shares {
		shares[i] = per
	}
	shares[0] += remainder
	return shares
}
