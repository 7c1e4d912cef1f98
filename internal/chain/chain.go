// Package chain implements the chain reader and Merkle-path client
// (spec.md §4.4): bounded event fetches, on-chain view calls for nullifier
// and commitment status, and path retrieval from an external indexer.
//
// Adapted from the teacher's internal/zkp/merkle.go: the MerklePath shape
// (Siblings/PathBits/LeafPosition) and the TreeDepth convention are kept,
// but the tree itself is never built or stored locally — every path and
// root comes from the injected pkg/capability.Rpc, since the contract (not
// the wallet) is the source of truth for the accumulator.
package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zdoge/shieldwallet/pkg/capability"
	"github.com/zdoge/shieldwallet/pkg/types"
)

// Depth is the fixed Merkle tree depth, matching the on-chain accumulator
// and every circuit's path-length assumption.
const Depth = 20

// MaxBlockRange is the largest span a single fetch_events call may cover.
const MaxBlockRange = 10000

// MaxTotalResults is the cap on events a single FetchEvents call may
// return; callers exceeding it must narrow their query. Totals across
// several calls are not counted.
const MaxTotalResults = 100000

// MinPollInterval is the minimum spacing between polling-loop RPC calls.
const MinPollInterval = 5 * time.Second

var (
	// ErrRangeTooWide is returned when to_block - from_block > MaxBlockRange.
	ErrRangeTooWide = errors.New("chain: block range exceeds MaxBlockRange")
	// ErrTooManyResults is returned when a single call would exceed MaxTotalResults.
	ErrTooManyResults = errors.New("chain: result count exceeds MaxTotalResults")
	// ErrLeafNotIndexed is returned by PathFor when the indexer has not yet
	// observed the requested leaf index (caller should wait and retry).
	ErrLeafNotIndexed = errors.New("chain: leaf not yet indexed")
	// ErrBadEvent is returned when a returned log fails signature/address
	// validation.
	ErrBadEvent = errors.New("chain: event failed signature or address validation")
)

// Event is a single validated on-chain log entry.
type Event struct {
	BlockNumber uint64          `json:"blockNumber"`
	TxHash      types.Hash      `json:"txHash"`
	Address     types.Address   `json:"address"`
	Topics      []types.Hash    `json:"topics"`
	Data        json.RawMessage `json:"data"`
}

// MerklePath is the sibling hashes and left/right bits needed to prove a
// leaf's membership in a tree of the accompanying root.
type MerklePath struct {
	Siblings     [Depth]types.Hash
	PathBits     [Depth]bool
	LeafPosition uint64
	Root         types.Hash
}

// Reader is the chain reader and Merkle-path client. It holds no local
// tree state: every query is delegated to the injected Rpc capability,
// which is assumed to speak to a contract-backed indexer.
type Reader struct {
	rpc capability.Rpc

	mu           sync.Mutex
	lastCallTime time.Time
}

// NewReader constructs a Reader over the given RPC transport.
func NewReader(rpc capability.Rpc) *Reader {
	return &Reader{rpc: rpc}
}

// throttle enforces MinPollInterval between successive FetchEvents calls,
// the call discovery's scan loop makes. IsNullifierSpent, CommitmentExists
// and PathFor (used by reconciliation and the orchestrator) are not
// throttled. It blocks the calling goroutine until the interval has elapsed.
func (r *Reader) throttle(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.lastCallTime.IsZero() {
		if wait := MinPollInterval - time.Since(r.lastCallTime); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	r.lastCallTime = time.Now()
	return nil
}

// FetchEvents retrieves events for address emitted between from_block and
// to_block (inclusive) matching any topic in topicSet. Per spec.md §4.4,
// to_block - from_block must not exceed MaxBlockRange and the result count
// must not exceed MaxTotalResults; callers needing more must paginate by
// issuing further calls with advanced block ranges.
func (r *Reader) FetchEvents(ctx context.Context, address types.Address, fromBlock, toBlock uint64, topicSet []types.Hash) ([]Event, error) {
	if toBlock < fromBlock {
		return nil, fmt.Errorf("chain: to_block %d before from_block %d", toBlock, fromBlock)
	}
	if toBlock-fromBlock > MaxBlockRange {
		return nil, ErrRangeTooWide
	}

	if err := r.throttle(ctx); err != nil {
		return nil, err
	}

	raw, err := r.rpc.Call(ctx, "shieldpool_getLogs", address.String(), fromBlock, toBlock, topicSet)
	if err != nil {
		return nil, fmt.Errorf("chain: fetch_events: %w", err)
	}

	var events []Event
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("chain: fetch_events: decode response: %w", err)
	}
	if len(events) > MaxTotalResults {
		return nil, ErrTooManyResults
	}

	for i := range events {
		if err := validateEvent(events[i], address, topicSet); err != nil {
			return nil, err
		}
	}
	return events, nil
}

func validateEvent(e Event, address types.Address, topicSet []types.Hash) error {
	if e.Address != address {
		return fmt.Errorf("%w: event address %s does not match query address %s", ErrBadEvent, e.Address, address)
	}
	if len(topicSet) == 0 {
		return nil
	}
	if len(e.Topics) == 0 {
		return fmt.Errorf("%w: event carries no topics", ErrBadEvent)
	}
	for _, want := range topicSet {
		if e.Topics[0] == want {
			return nil
		}
	}
	return fmt.Errorf("%w: event topic %s not in requested topic set", ErrBadEvent, e.Topics[0])
}

// IsNullifierSpent performs the single contract view call that checks
// whether a nullifier hash has already been consumed within pool.
func (r *Reader) IsNullifierSpent(ctx context.Context, pool types.Address, nullifierHash types.Hash) (bool, error) {
	raw, err := r.rpc.Call(ctx, "shieldpool_isNullifierSpent", pool.String(), nullifierHash.String())
	if err != nil {
		return false, fmt.Errorf("chain: is_nullifier_spent: %w", err)
	}
	var spent bool
	if err := json.Unmarshal(raw, &spent); err != nil {
		return false, fmt.Errorf("chain: is_nullifier_spent: decode response: %w", err)
	}
	return spent, nil
}

// CommitmentExists performs the single contract view call that checks
// whether a commitment has been recorded in pool's accumulator.
func (r *Reader) CommitmentExists(ctx context.Context, pool types.Address, commitment types.Hash) (bool, error) {
	raw, err := r.rpc.Call(ctx, "shieldpool_commitmentExists", pool.String(), commitment.String())
	if err != nil {
		return false, fmt.Errorf("chain: commitment_exists: %w", err)
	}
	var exists bool
	if err := json.Unmarshal(raw, &exists); err != nil {
		return false, fmt.Errorf("chain: commitment_exists: decode response: %w", err)
	}
	return exists, nil
}

// pathResponse is the wire shape returned by the indexer's path_for call.
type pathResponse struct {
	Elements []types.Hash `json:"elements"`
	Indices  []bool       `json:"indices"`
	Root     types.Hash   `json:"root"`
	Indexed  bool         `json:"indexed"`
}

// PathFor fetches the sibling path and current root for leafIndex from the
// external indexer. The returned root is what must appear in the proof's
// public inputs — callers must never substitute a separately fetched
// "latest root", since that would reintroduce the root-rotation race the
// indexer-returned root is specifically meant to defeat (spec.md §4.5.1).
func (r *Reader) PathFor(ctx context.Context, pool types.Address, leafIndex uint64) (MerklePath, error) {
	raw, err := r.rpc.Call(ctx, "indexer_pathFor", pool.String(), leafIndex)
	if err != nil {
		return MerklePath{}, fmt.Errorf("chain: path_for: %w", err)
	}

	var resp pathResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return MerklePath{}, fmt.Errorf("chain: path_for: decode response: %w", err)
	}
	if !resp.Indexed {
		return MerklePath{}, ErrLeafNotIndexed
	}
	if len(resp.Elements) != Depth || len(resp.Indices) != Depth {
		return MerklePath{}, fmt.Errorf("chain: path_for: expected %d-element path, got %d elements/%d indices", Depth, len(resp.Elements), len(resp.Indices))
	}

	path := MerklePath{LeafPosition: leafIndex, Root: resp.Root}
	copy(path.Siblings[:], resp.Elements)
	copy(path.PathBits[:], resp.Indices)
	return path, nil
}
