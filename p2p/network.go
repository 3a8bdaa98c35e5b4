package p2p

import (
	"context"
	"fmt"
	"sync"

	"github.com/Artfain/triad-fedchain/core"
	"github.com/Artfain/triad-fedchain/logging"
)

// Peer is a node reachable through the network.
type Peer interface {
	ID() string
	ReceiveBlock(b core.Block) error
	Chain() *core.Chain
}

// Announcement is a block seen on the network, published to subscribers.
type Announcement struct {
	From  string     `json:"from"`
	Block core.Block `json:"block"`
}

// Network delivers sealed blocks between in-process peers.
type Network struct {
	peers       map[string]Peer
	order       []string
	subscribers map[int]chan Announcement
	nextSub     int
	mutex       sync.RWMutex
}

// NewNetwork creates an empty network.
func NewNetwork() *Network {
	return &Network{
		peers:       make(map[string]Peer),
		subscribers: make(map[int]chan Announcement),
	}
}

// AddPeer adds a peer to the network.
func (n *Network) AddPeer(p Peer) error {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	if _, exists := n.peers[p.ID()]; exists {
		return fmt.Errorf("peer %s already connected", p.ID())
	}
	n.peers[p.ID()] = p
	n.order = append(n.order, p.ID())
	logging.Debug("Connected to peer", logging.Network, "peer", p.ID())
	return nil
}

// RemovePeer disconnects a peer.
func (n *Network) RemovePeer(id string) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	delete(n.peers, id)
	for i, o := range n.order {
		if o == id {
			n.order = append(n.order[:i], n.order[i+1:]...)
			break
		}
	}
}

// Peers returns the connected peers in connection order.
func (n *Network) Peers() []Peer {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	out := make([]Peer, 0, len(n.order))
	for _, id := range n.order {
		out = append(out, n.peers[id])
	}
	return out
}

// Peer looks up a peer by id.
func (n *Network) Peer(id string) (Peer, bool) {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	p, ok := n.peers[id]
	return p, ok
}

// BroadcastBlock hands a copy of b to every peer except the sender. Deliveries run
// concurrently; the call returns once every peer has processed its copy.
func (n *Network) BroadcastBlock(ctx context.Context, from string, b core.Block) {
	var wg sync.WaitGroup
	for _, p := range n.Peers() {
		if p.ID() == from {
			continue
		}
		wg.Add(1)
		go func(p Peer, b core.Block) {
			defer wg.Done()
			if ctx.Err() != nil {
				logging.Warn("Dropped block delivery", logging.Network, "peer", p.ID(), "from", from, "error", ctx.Err())
				return
			}
			if err := p.ReceiveBlock(b); err != nil {
				logging.Error("Failed to deliver block to peer", logging.Network, "peer", p.ID(), "from", from, "error", err)
			}
		}(p, b.Clone())
	}
	wg.Wait()
	n.publish(Announcement{From: from, Block: b.Clone()})
}

// Subscribe returns a channel of announced blocks and a cancel function. Slow
// subscribers miss announcements rather than stall broadcasts.
func (n *Network) Subscribe(buffer int) (<-chan Announcement, func()) {
	ch := make(chan Announcement, buffer)
	n.mutex.Lock()
	id := n.nextSub
	n.nextSub++
	n.subscribers[id] = ch
	n.mutex.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mutex.Lock()
			delete(n.subscribers, id)
			n.mutex.Unlock()
			close(ch)
		})
	}
}

func (n *Network) publish(a Announcement) {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	for _, ch := range n.subscribers {
		select {
		case ch <- a:
		default:
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (n *Network) Subscribers() int {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return len(n.subscribers)
}
