package fl

import (
	"fmt"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/Artfain/triad-fedchain/core"
	"github.com/Artfain/triad-fedchain/logging"
)

// ModelReceiver accepts a new global parameter snapshot.
type ModelReceiver interface {
	SetGlobalModel(p core.Parameters)
}

// FedAvg collects masked updates for a round and averages them into the global
// model. Updates are averaged exactly as received; offsets are not removed.
type FedAvg struct {
	global    core.Parameters
	updates   map[string]core.MaskedUpdate
	receivers []ModelReceiver
	mutex     sync.Mutex
}

// NewFedAvg creates an aggregator starting from initial.
func NewFedAvg(initial core.Parameters) *FedAvg {
	return &FedAvg{
		global:  initial.Clone(),
		updates: make(map[string]core.MaskedUpdate),
	}
}

// Register adds a node to be notified after every Close.
func (a *FedAvg) Register(r ModelReceiver) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.receivers = append(a.receivers, r)
}

// ReceiveUpdate records a node's masked update for the current round.
func (a *FedAvg) ReceiveUpdate(nodeID string, update core.MaskedUpdate) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if _, exists := a.updates[nodeID]; exists {
		return fmt.Errorf("duplicate update from %s", nodeID)
	}
	cp := make(core.MaskedUpdate, len(update))
	for name, v := range update {
		cp[name] = append([]float64(nil), v...)
	}
	a.updates[nodeID] = cp
	return nil
}

// Updates returns a copy of the updates received so far this round.
func (a *FedAvg) Updates() map[string]core.MaskedUpdate {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	out := make(map[string]core.MaskedUpdate, len(a.updates))
	for id, u := range a.updates {
		out[id] = u
	}
	return out
}

// Global returns a copy of the current global model.
func (a *FedAvg) Global() core.Parameters {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.global.Clone()
}

// Close averages the round's updates into the global model, resets the round and
// pushes the new model to every registered receiver. A round with no updates
// leaves the model unchanged.
func (a *FedAvg) Close() core.Parameters {
	a.mutex.Lock()
	ids := make([]string, 0, len(a.updates))
	for id := range a.updates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	sums := make(map[string][]float64)
	counts := make(map[string]int)
	for _, id := range ids {
		for name, v := range a.updates[id] {
			if g, ok := a.global[name]; ok && len(g.Data) != len(v) {
				logging.Warn("Skipping update with wrong length", logging.Training, "node", id, "param", name, "want", len(g.Data), "got", len(v))
				continue
			}
			if _, ok := sums[name]; !ok {
				sums[name] = make([]float64, len(v))
			} else if len(sums[name]) != len(v) {
				logging.Warn("Skipping update with wrong length", logging.Training, "node", id, "param", name, "want", len(sums[name]), "got", len(v))
				continue
			}
			floats.Add(sums[name], v)
			counts[name]++
		}
	}

	for name, sum := range sums {
		floats.Scale(1/float64(counts[name]), sum)
		g, ok := a.global[name]
		if !ok {
			g = core.Tensor{Shape: []int{len(sum)}, Data: make([]float64, len(sum))}
		}
		floats.Add(g.Data, sum)
		a.global[name] = g
	}
	a.updates = make(map[string]core.MaskedUpdate)
	global := a.global.Clone()
	receivers := append([]ModelReceiver(nil), a.receivers...)
	a.mutex.Unlock()

	for _, r := range receivers {
		r.SetGlobalModel(global)
	}
	return global
}
