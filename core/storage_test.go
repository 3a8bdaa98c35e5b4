package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreChainRoundTrip(t *testing.T) {
	store, err := OpenStore("")
	require.NoError(t, err)
	defer store.Close()

	a1 := sealTestBlock(t, "a", "", 1)
	a2 := sealTestBlock(t, "a", a1.Hash, 2)
	require.NoError(t, store.SaveChain("a", []Block{a1}))
	require.NoError(t, store.SaveChain("a", []Block{a1, a2}))

	loaded, err := store.LoadChain("a")
	require.NoError(t, err)
	require.Equal(t, []Block{a1, a2}, loaded)

	other, err := store.LoadChain("ab")
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestStoreChainsDoNotShareKeyPrefixes(t *testing.T) {
	store, err := OpenStore("")
	require.NoError(t, err)
	defer store.Close()

	a := sealTestBlock(t, "a", "", 1)
	ab := sealTestBlock(t, "a:b", "", 2)
	require.NoError(t, store.SaveChain("a", []Block{a}))
	require.NoError(t, store.SaveChain("a:b", []Block{ab}))

	loaded, err := store.LoadChain("a")
	require.NoError(t, err)
	require.Equal(t, []Block{a}, loaded)

	loaded, err = store.LoadChain("a:b")
	require.NoError(t, err)
	require.Equal(t, []Block{ab}, loaded)
}

func TestStoreLedgerSnapshots(t *testing.T) {
	store, err := OpenStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	_, ok, err := store.LatestRound()
	require.NoError(t, err)
	require.False(t, ok)

	_, err = store.LoadLedger(1)
	require.Error(t, err)

	ledger := NewReputationLedger(NodeIdentity{ID: "a", Stake: 2}, NodeIdentity{ID: "b", Stake: 3})
	ledger.Apply(map[string]bool{"b": true})
	require.NoError(t, store.SaveLedger(1, ledger.Entries()))
	ledger.Apply(nil)
	require.NoError(t, store.SaveLedger(12, ledger.Entries()))

	round, ok, err := store.LatestRound()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(12), round)

	entries, err := store.LoadLedger(1)
	require.NoError(t, err)
	require.Equal(t, []LedgerEntry{
		{NodeIdentity: NodeIdentity{ID: "a", Stake: 2, Reputation: 1}, Rounds: 1},
		{NodeIdentity: NodeIdentity{ID: "b", Stake: 3, Reputation: 0}, Rounds: 1, Detections: 1},
	}, entries)
}
