package core

import (
	"fmt"
	"math"
	"sync"
)

const (
	// ReputationPenalty is subtracted from a detected node's reputation.
	ReputationPenalty = 2.0
	// ReputationReward is added to every undetected node's reputation.
	ReputationReward = 1.0
)

// Cohort is an immutable snapshot of every node taking part in a round, in a
// stable order. Election and reputation updates operate on a Cohort instead of
// reaching into live node objects.
type Cohort []NodeIdentity

// IDs returns the node ids in cohort order.
func (c Cohort) IDs() []string {
	ids := make([]string, len(c))
	for i, n := range c {
		ids[i] = n.ID
	}
	return ids
}

// Get returns the identity with the given id.
func (c Cohort) Get(id string) (NodeIdentity, bool) {
	for _, n := range c {
		if n.ID == id {
			return n, true
		}
	}
	return NodeIdentity{}, false
}

// UpdateReputations applies one round of the reputation policy and returns the new
// snapshot: detected nodes lose ReputationPenalty (floored at 0), every other node
// gains ReputationReward.
func UpdateReputations(cohort Cohort, detected map[string]bool) Cohort {
	out := make(Cohort, len(cohort))
	for i, n := range cohort {
		if detected[n.ID] {
			n.Reputation = math.Max(0, n.Reputation-ReputationPenalty)
		} else {
			n.Reputation += ReputationReward
		}
		out[i] = n
	}
	return out
}

// LedgerEntry is a node's live record in the ReputationLedger.
type LedgerEntry struct {
	NodeIdentity
	Rounds     uint64 `json:"rounds"`
	Detections uint64 `json:"detections"`
}

// ReputationLedger tracks stake and reputation for every known node. It is shared
// by all nodes for election reads and mutated once per round by Apply.
type ReputationLedger struct {
	entries map[string]*LedgerEntry
	order   []string
	mutex   sync.RWMutex
}

// NewReputationLedger creates a ledger seeded with the given nodes.
func NewReputationLedger(nodes ...NodeIdentity) *ReputationLedger {
	l := &ReputationLedger{entries: make(map[string]*LedgerEntry)}
	for _, n := range nodes {
		_ = l.AddNode(n)
	}
	return l
}

// AddNode registers a node. Reputation is clamped to the 0 floor.
func (l *ReputationLedger) AddNode(n NodeIdentity) error {
	if n.Stake < 0 {
		return fmt.Errorf("node %s: negative stake %v", n.ID, n.Stake)
	}
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if _, exists := l.entries[n.ID]; exists {
		return fmt.Errorf("node %s already registered", n.ID)
	}
	n.Reputation = math.Max(0, n.Reputation)
	l.entries[n.ID] = &LedgerEntry{NodeIdentity: n}
	l.order = append(l.order, n.ID)
	return nil
}

// RemoveNode drops a node from the ledger.
func (l *ReputationLedger) RemoveNode(id string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if _, exists := l.entries[id]; !exists {
		return
	}
	delete(l.entries, id)
	for i, o := range l.order {
		if o == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

// SetStake adjusts a node's stake from outside the round loop.
func (l *ReputationLedger) SetStake(id string, stake float64) error {
	if stake < 0 {
		return fmt.Errorf("node %s: negative stake %v", id, stake)
	}
	l.mutex.Lock()
	defer l.mutex.Unlock()
	e, exists := l.entries[id]
	if !exists {
		return fmt.Errorf("node %s not found", id)
	}
	e.Stake = stake
	return nil
}

// Entry returns a copy of a node's record.
func (l *ReputationLedger) Entry(id string) (LedgerEntry, bool) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	e, exists := l.entries[id]
	if !exists {
		return LedgerEntry{}, false
	}
	return *e, true
}

// Entries returns copies of every record in registration order.
func (l *ReputationLedger) Entries() []LedgerEntry {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	out := make([]LedgerEntry, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, *l.entries[id])
	}
	return out
}

// Snapshot returns the current cohort in registration order.
func (l *ReputationLedger) Snapshot() Cohort {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	c := make(Cohort, 0, len(l.order))
	for _, id := range l.order {
		c = append(c, l.entries[id].NodeIdentity)
	}
	return c
}

// Apply runs UpdateReputations over the whole ledger and stores the result.
func (l *ReputationLedger) Apply(detected map[string]bool) Cohort {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	c := make(Cohort, 0, len(l.order))
	for _, id := range l.order {
		c = append(c, l.entries[id].NodeIdentity)
	}
	updated := UpdateReputations(c, detected)
	for _, n := range updated {
		e := l.entries[n.ID]
		e.Reputation = n.Reputation
		e.Rounds++
		if detected[n.ID] {
			e.Detections++
		}
	}
	return updated
}
