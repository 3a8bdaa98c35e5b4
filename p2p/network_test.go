package p2p

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Artfain/triad-fedchain/core"
)

type chainPeer struct {
	chain *core.Chain
}

func newChainPeer(id string) *chainPeer {
	return &chainPeer{chain: core.NewChain(id, nil)}
}

func (p *chainPeer) ID() string { return p.chain.Owner() }
func (p *chainPeer) ReceiveBlock(b core.Block) error { return p.chain.Receive(b) }
func (p *chainPeer) Chain() *core.Chain { return p.chain }

func testBlock(t *testing.T, creator string, seed uint64) core.Block {
	t.Helper()
	b, err := core.SealBlock(context.Background(), creator, "", seed, core.BlockParams{Difficulty: 1, VDFIterations: 10})
	require.NoError(t, err)
	return b
}

func testNetwork(t *testing.T, ids ...string) (*Network, map[string]*chainPeer) {
	t.Helper()
	net := NewNetwork()
	peers := make(map[string]*chainPeer)
	for _, id := range ids {
		p := newChainPeer(id)
		require.NoError(t, net.AddPeer(p))
		peers[id] = p
	}
	return net, peers
}

func TestBroadcastSkipsSender(t *testing.T) {
	net, peers := testNetwork(t, "a", "b", "c")
	b := testBlock(t, "a", 1)

	net.BroadcastBlock(context.Background(), "a", b)

	require.Equal(t, 0, peers["a"].chain.Len())
	require.Equal(t, 1, peers["b"].chain.Len())
	require.Equal(t, 1, peers["c"].chain.Len())
	require.Equal(t, b.Hash, peers["c"].chain.Tail())
}

func TestBroadcastCancelledContextDropsDelivery(t *testing.T) {
	net, peers := testNetwork(t, "a", "b")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	net.BroadcastBlock(ctx, "a", testBlock(t, "a", 1))
	require.Equal(t, 0, peers["b"].chain.Len())
}

func TestAddPeerRejectsDuplicate(t *testing.T) {
	net, _ := testNetwork(t, "a")
	require.Error(t, net.AddPeer(newChainPeer("a")))

	net.RemovePeer("a")
	require.Empty(t, net.Peers())
	_, ok := net.Peer("a")
	require.False(t, ok)
	require.NoError(t, net.AddPeer(newChainPeer("a")))
}

func TestSubscribeReceivesAnnouncements(t *testing.T) {
	net, _ := testNetwork(t, "a", "b")
	feed, cancel := net.Subscribe(4)
	require.Equal(t, 1, net.Subscribers())

	b := testBlock(t, "a", 3)
	net.BroadcastBlock(context.Background(), "a", b)

	a := <-feed
	require.Equal(t, "a", a.From)
	require.Equal(t, b.Hash, a.Block.Hash)

	cancel()
	cancel()
	require.Equal(t, 0, net.Subscribers())
	_, open := <-feed
	require.False(t, open)
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	net, _ := testNetwork(t, "a", "b")
	_, cancel := net.Subscribe(0)
	defer cancel()

	net.BroadcastBlock(context.Background(), "a", testBlock(t, "a", 5))
}
