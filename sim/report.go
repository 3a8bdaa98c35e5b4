package sim

import (
	"github.com/Artfain/triad-fedchain/p2p"
)

// NodeReport is the final state of one node.
type NodeReport struct {
	ID            string  `json:"id"`
	Stake         float64 `json:"stake"`
	Reputation    float64 `json:"reputation"`
	Malicious     bool    `json:"malicious"`
	Detections    uint64  `json:"detections"`
	ChainLength   int     `json:"chain_length"`
	BlocksCreated int     `json:"blocks_created"`
	LinkIssues    int     `json:"link_issues"`
	Tail          string  `json:"tail"`
}

// Report summarises every node's chain and reputation after the last round.
type Report struct {
	Rounds         uint64             `json:"rounds"`
	Nodes          []NodeReport       `json:"nodes"`
	Reconciliation p2p.Reconciliation `json:"reconciliation"`
}

// Report builds the end-of-simulation report.
func (s *Simulation) Report() Report {
	r := Report{Rounds: s.Round(), Reconciliation: s.network.Reconcile()}
	for _, n := range s.nodes {
		entry, _ := s.ledger.Entry(n.ID())
		chain := n.Chain()
		created := 0
		for _, b := range chain.Blocks() {
			if b.Creator == n.ID() {
				created++
			}
		}
		r.Nodes = append(r.Nodes, NodeReport{
			ID:            n.ID(),
			Stake:         entry.Stake,
			Reputation:    entry.Reputation,
			Malicious:     n.Identity().Malicious,
			Detections:    entry.Detections,
			ChainLength:   chain.Len(),
			BlocksCreated: created,
			LinkIssues:    len(chain.Verify()),
			Tail:          chain.Tail(),
		})
	}
	return r
}
