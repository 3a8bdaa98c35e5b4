// Package sim drives rounds over a cohort of consensus nodes and enforces the
// round barrier between them.
package sim

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Artfain/triad-fedchain/config"
	"github.com/Artfain/triad-fedchain/core"
	"github.com/Artfain/triad-fedchain/fl"
	"github.com/Artfain/triad-fedchain/logging"
	"github.com/Artfain/triad-fedchain/p2p"
)

// Aggregator is the round-scoped side of the update aggregator.
type Aggregator interface {
	core.Aggregator
	Updates() map[string]core.MaskedUpdate
	Close() core.Parameters
}

// RoundSummary records the outcome of one completed round.
type RoundSummary struct {
	Round       uint64             `json:"round"`
	Proposers   []string           `json:"proposers"`
	Failed      map[string]string  `json:"failed,omitempty"`
	Detected    []string           `json:"detected"`
	Reputations map[string]float64 `json:"reputations"`
	Results     []core.RoundResult `json:"-"`
}

// Simulation owns the cohort, its network and the shared reputation ledger.
type Simulation struct {
	ledger     *core.ReputationLedger
	nodes      []*core.ConsensusNode
	network    *p2p.Network
	aggregator Aggregator
	detector   core.Detector
	store      *core.Store

	round    uint64
	history  []RoundSummary
	mutex    sync.Mutex
	runMutex sync.Mutex
}

// New wires already constructed nodes into a simulation. Every node is connected
// to the network and registered in the ledger.
func New(nodes []*core.ConsensusNode, aggregator Aggregator, detector core.Detector, store *core.Store) (*Simulation, error) {
	s := &Simulation{
		ledger:     core.NewReputationLedger(),
		network:    p2p.NewNetwork(),
		aggregator: aggregator,
		detector:   detector,
		store:      store,
	}
	if s.detector == nil {
		s.detector = fl.StaticDetector{}
	}
	for _, n := range nodes {
		if err := s.ledger.AddNode(n.Identity()); err != nil {
			return nil, err
		}
		if err := s.network.AddPeer(n); err != nil {
			return nil, err
		}
		n.SetBroadcaster(s.network)
		s.nodes = append(s.nodes, n)
	}
	return s, nil
}

// FromConfig builds a cohort of linear-regression nodes on synthetic data partitions.
func FromConfig(cfg config.Config) (*Simulation, error) {
	rng := rand.New(rand.NewSource(cfg.Seed))
	trueW := make([]float64, cfg.Trainer.Features)
	for i := range trueW {
		trueW[i] = rng.NormFloat64()
	}

	initial := core.Parameters{fl.WeightsParam: {Shape: []int{cfg.Trainer.Features}, Data: make([]float64, cfg.Trainer.Features)}}
	aggregator := fl.NewFedAvg(initial)
	pool := core.NewWorkerPool(cfg.Workers)

	nodes := make([]*core.ConsensusNode, 0, len(cfg.Nodes))
	for i, nc := range cfg.Nodes {
		seed := cfg.Seed + int64(i) + 1
		x, y := fl.GeneratePartition(rand.New(rand.NewSource(seed)), nc.Samples, trueW, cfg.Trainer.Noise)
		trainer := fl.NewLinearTrainer(x, y, cfg.Trainer.LearningRate, cfg.Trainer.Epochs, seed)
		trainer.DPSigma = cfg.Trainer.DPSigma

		identity := core.NodeIdentity{ID: nc.ID, Stake: nc.Stake, Malicious: nc.Malicious}
		node := core.NewConsensusNode(identity, trainer, aggregator,
			core.WithBlockParams(cfg.Block),
			core.WithWorkers(pool),
			core.WithSeed(seed),
		)
		node.SetGlobalModel(initial)
		aggregator.Register(node)
		nodes = append(nodes, node)
	}

	var detector core.Detector
	switch cfg.Detector.Kind {
	case "norm":
		detector = fl.NormDetector{Factor: cfg.Detector.Factor}
	case "static":
		flagged := fl.StaticDetector{}
		for _, id := range cfg.Detector.Flagged {
			flagged[id] = true
		}
		detector = flagged
	default:
		detector = fl.StaticDetector{}
	}

	var store *core.Store
	if cfg.Storage.Path != "" {
		var err error
		if store, err = core.OpenStore(cfg.Storage.Path); err != nil {
			return nil, err
		}
	}
	s, err := New(nodes, aggregator, detector, store)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}
	return s, nil
}

// Nodes returns the cohort's nodes in registration order.
func (s *Simulation) Nodes() []*core.ConsensusNode {
	return append([]*core.ConsensusNode(nil), s.nodes...)
}

// Network returns the block propagation network.
func (s *Simulation) Network() *p2p.Network {
	return s.network
}

// Ledger returns the shared reputation ledger.
func (s *Simulation) Ledger() *core.ReputationLedger {
	return s.ledger
}

// Round returns the number of completed rounds.
func (s *Simulation) Round() uint64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.round
}

// History returns the summaries of every completed round.
func (s *Simulation) History() []RoundSummary {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]RoundSummary(nil), s.history...)
}

// RunRound runs one round for every node against the same cohort snapshot. All
// node work, including block seals and deliveries, finishes before detection,
// aggregation and the reputation update; the next round cannot start earlier.
func (s *Simulation) RunRound(ctx context.Context) (RoundSummary, error) {
	s.runMutex.Lock()
	defer s.runMutex.Unlock()
	if err := ctx.Err(); err != nil {
		return RoundSummary{}, err
	}

	round := s.Round() + 1
	cohort := s.ledger.Snapshot()
	results := make([]core.RoundResult, len(s.nodes))

	var g errgroup.Group
	for i, n := range s.nodes {
		g.Go(func() error {
			results[i] = n.RunRound(ctx, round, cohort)
			return nil
		})
	}
	_ = g.Wait()

	summary := RoundSummary{Round: round, Results: results, Failed: make(map[string]string)}
	for _, r := range results {
		if r.Block != nil {
			summary.Proposers = append(summary.Proposers, r.NodeID)
		}
		if r.UpdateErr != nil {
			summary.Failed[r.NodeID] = r.UpdateErr.Error()
		}
	}

	var observations map[string]core.MaskedUpdate
	if s.aggregator != nil {
		observations = s.aggregator.Updates()
	}
	detected := s.detector.DetectMalicious(observations)
	if s.aggregator != nil {
		s.aggregator.Close()
	}
	updated := s.ledger.Apply(detected)

	summary.Reputations = make(map[string]float64, len(updated))
	for _, n := range updated {
		summary.Reputations[n.ID] = n.Reputation
		if detected[n.ID] {
			summary.Detected = append(summary.Detected, n.ID)
		}
	}
	sort.Strings(summary.Detected)

	if err := s.persist(round); err != nil {
		logging.Error("Failed to persist round", logging.Storage, "round", round, "error", err)
	}

	s.mutex.Lock()
	s.round = round
	s.history = append(s.history, summary)
	s.mutex.Unlock()
	logging.Info("Round complete", logging.Simulation, "round", round, "proposers", summary.Proposers, "detected", summary.Detected)
	return summary, nil
}

// Run executes rounds back to back.
func (s *Simulation) Run(ctx context.Context, rounds int) ([]RoundSummary, error) {
	out := make([]RoundSummary, 0, rounds)
	for i := 0; i < rounds; i++ {
		summary, err := s.RunRound(ctx)
		if err != nil {
			return out, fmt.Errorf("round %d: %w", s.Round()+1, err)
		}
		out = append(out, summary)
	}
	return out, nil
}

func (s *Simulation) persist(round uint64) error {
	if s.store == nil {
		return nil
	}
	for _, n := range s.nodes {
		if err := s.store.SaveChain(n.ID(), n.Chain().Blocks()); err != nil {
			return err
		}
	}
	return s.store.SaveLedger(round, s.ledger.Entries())
}

// Close releases the simulation's store.
func (s *Simulation) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}
