package p2p

import (
	"sort"

	"github.com/Artfain/triad-fedchain/core"
)

// Reconciliation compares the independently built chains of every peer. It is a
// read-only view; no chain is changed to match another.
type Reconciliation struct {
	Lengths map[string]int      `json:"lengths"`
	Union   int                 `json:"union"`
	Missing map[string][]string `json:"missing"`
	Ordered bool                `json:"ordered"`
}

// Snapshot returns a copy of every peer's chain keyed by peer id.
func (n *Network) Snapshot() map[string][]core.Block {
	out := make(map[string][]core.Block)
	for _, p := range n.Peers() {
		out[p.ID()] = p.Chain().Blocks()
	}
	return out
}

// Reconcile reports which block hashes each peer lacks relative to the union of all
// chains, and whether every peer holds the same blocks in the same order.
func (n *Network) Reconcile() Reconciliation {
	chains := n.Snapshot()
	r := Reconciliation{
		Lengths: make(map[string]int, len(chains)),
		Missing: make(map[string][]string),
		Ordered: true,
	}

	union := make(map[string]struct{})
	held := make(map[string]map[string]struct{}, len(chains))
	for id, blocks := range chains {
		r.Lengths[id] = len(blocks)
		held[id] = make(map[string]struct{}, len(blocks))
		for _, b := range blocks {
			union[b.Hash] = struct{}{}
			held[id][b.Hash] = struct{}{}
		}
	}
	r.Union = len(union)

	for id := range chains {
		for h := range union {
			if _, ok := held[id][h]; !ok {
				r.Missing[id] = append(r.Missing[id], h)
			}
		}
		sort.Strings(r.Missing[id])
	}

	var reference []core.Block
	first := true
	for _, blocks := range chains {
		if first {
			reference, first = blocks, false
			continue
		}
		if !sameOrder(reference, blocks) {
			r.Ordered = false
			break
		}
	}
	return r
}

func sameOrder(a, b []core.Block) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Hash != b[i].Hash {
			return false
		}
	}
	return true
}
