// Package p2phint implements an optional libp2p-pubsub "rescan hint"
// channel: peers advertise the highest block they have observed a new
// shielded-pool commitment at, and a listener uses that only to nudge its
// own bounded poll loop (internal/discovery) to run sooner than its next
// scheduled tick. A hint is never trusted as authoritative data — every
// claimed note still goes through the full decrypt-and-commitment-match
// check in internal/discovery before it is ever inserted into the note
// store.
//
// Grounded on the teacher's internal/p2p/node.go: libp2p host + GossipSub
// topic join/subscribe/publish, generalized from the teacher's three
// block/transaction/task topics down to a single advisory topic, and with
// the teacher's DHT-based peer discovery and mDNS dropped since this
// package only needs whatever peers the host already has addresses for.
package p2phint

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"

	"github.com/zdoge/shieldwallet/pkg/types"
)

// Topic is the single gossip topic carrying rescan hints.
const Topic = "shieldwallet/rescan-hint/v1"

// HintQueueSize bounds how many unconsumed hints a Listener buffers before
// it starts dropping the oldest ones; hints are advisory, so losing one
// just means the discovery loop leans on its next scheduled tick instead.
const HintQueueSize = 16

// Hint advertises that a peer observed a shielded-pool event up to and
// including the given block for the given pool contract.
type Hint struct {
	Pool        types.Address `json:"pool"`
	BlockNumber uint64        `json:"blockNumber"`
}

// Listener joins the rescan-hint topic and republishes received hints on a
// Go channel for a caller (typically the wallet's discovery scheduler) to
// consume.
type Listener struct {
	host  host.Host
	topic *pubsub.Topic
	sub   *pubsub.Subscription

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	hints  chan Hint
	closed bool
}

// Config configures a Listener's libp2p host.
type Config struct {
	ListenAddrs []string
	PrivateKey  crypto.PrivKey // nil generates an ephemeral identity
}

// New creates a libp2p host, joins the pubsub topic, and starts the
// background read loop. Call Close to tear everything down.
func New(ctx context.Context, cfg Config) (*Listener, error) {
	lctx, cancel := context.WithCancel(ctx)

	opts := []libp2p.Option{}
	if cfg.PrivateKey != nil {
		opts = append(opts, libp2p.Identity(cfg.PrivateKey))
	}
	for _, addr := range cfg.ListenAddrs {
		ma, err := multiaddr.NewMultiaddr(addr)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("p2phint: invalid listen address %q: %w", addr, err)
		}
		opts = append(opts, libp2p.ListenAddrs(ma))
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("p2phint: create host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(lctx, h)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("p2phint: create pubsub: %w", err)
	}

	topic, err := ps.Join(Topic)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("p2phint: join topic: %w", err)
	}

	sub, err := topic.Subscribe()
	if err != nil {
		topic.Close()
		h.Close()
		cancel()
		return nil, fmt.Errorf("p2phint: subscribe: %w", err)
	}

	l := &Listener{
		host:   h,
		topic:  topic,
		sub:    sub,
		ctx:    lctx,
		cancel: cancel,
		hints:  make(chan Hint, HintQueueSize),
	}
	go l.readLoop()
	return l, nil
}

// Hints returns the channel hints are delivered on. A hint is dropped,
// never blocking the read loop, if the channel is full.
func (l *Listener) Hints() <-chan Hint {
	return l.hints
}

// Publish broadcasts a hint to the topic. Failures are the caller's to
// handle; publishing a hint is itself advisory and not on any critical
// path.
func (l *Listener) Publish(ctx context.Context, hint Hint) error {
	data, err := json.Marshal(hint)
	if err != nil {
		return fmt.Errorf("p2phint: marshal hint: %w", err)
	}
	if err := l.topic.Publish(ctx, data); err != nil {
		return fmt.Errorf("p2phint: publish: %w", err)
	}
	return nil
}

func (l *Listener) readLoop() {
	selfID := l.host.ID()
	for {
		msg, err := l.sub.Next(l.ctx)
		if err != nil {
			return // context cancelled, shutting down
		}
		if msg.ReceivedFrom == selfID {
			continue
		}

		var hint Hint
		if err := json.Unmarshal(msg.Data, &hint); err != nil {
			continue // malformed hint from a misbehaving or incompatible peer
		}

		select {
		case l.hints <- hint:
		default:
			// queue full: drop the oldest and make room for the newest hint
			select {
			case <-l.hints:
			default:
			}
			select {
			case l.hints <- hint:
			default:
			}
		}
	}
}

// Connect dials a peer's multiaddress so it can start gossiping hints with
// this listener.
func (l *Listener) Connect(ctx context.Context, addr string) error {
	ma, err := multiaddr.NewMultiaddr(addr)
	if err != nil {
		return fmt.Errorf("p2phint: invalid peer address: %w", err)
	}
	info, err := peer.AddrInfoFromP2pAddr(ma)
	if err != nil {
		return fmt.Errorf("p2phint: parse peer address: %w", err)
	}
	if err := l.host.Connect(ctx, *info); err != nil {
		return fmt.Errorf("p2phint: connect: %w", err)
	}
	return nil
}

// Close shuts down the subscription, topic, and host.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true

	l.cancel()
	l.sub.Cancel()
	if err := l.topic.Close(); err != nil {
		l.host.Close()
		return fmt.Errorf("p2phint: close topic: %w", err)
	}
	return l.host.Close()
}
