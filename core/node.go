package core

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/Artfain/triad-fedchain/logging"
)

// Broadcaster delivers a copy of a sealed block to every other node.
type Broadcaster interface {
	BroadcastBlock(ctx context.Context, from string, b Block)
}

// RoundResult reports what one node did during one round.
type RoundResult struct {
	NodeID      string
	Round       uint64
	Update      MaskedUpdate
	UpdateErr   error
	Elected     bool
	Probability float64
	Block       *Block
	BlockErr    error
}

// lockedRand makes a *rand.Rand safe for the node's concurrent round steps.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

// ConsensusNode runs one participant's side of every round: train, mask, submit,
// and, when elected, seal and broadcast a block.
type ConsensusNode struct {
	identity    NodeIdentity
	chain       *Chain
	masker      *UpdateMasker
	trainer     Trainer
	aggregator  Aggregator
	broadcaster Broadcaster
	workers     *WorkerPool
	params      BlockParams
	rng         *lockedRand

	global      Parameters
	globalMutex sync.RWMutex
}

// NodeOption configures a ConsensusNode.
type NodeOption func(*ConsensusNode)

// WithBlockParams sets the seal difficulty, VDF length and attempt cutoff.
func WithBlockParams(p BlockParams) NodeOption {
	return func(n *ConsensusNode) { n.params = p }
}

// WithWorkers shares a worker pool between nodes.
func WithWorkers(pool *WorkerPool) NodeOption {
	return func(n *ConsensusNode) { n.workers = pool }
}

// WithSeed makes the node's election draws, VDF seeds and mask offsets reproducible.
func WithSeed(seed int64) NodeOption {
	return func(n *ConsensusNode) { n.rng = &lockedRand{r: rand.New(rand.NewSource(seed))} }
}

// WithMasker overrides the node's update masker.
func WithMasker(m *UpdateMasker) NodeOption {
	return func(n *ConsensusNode) { n.masker = m }
}

// WithValidator sets the validator applied to received blocks.
func WithValidator(v BlockValidator) NodeOption {
	return func(n *ConsensusNode) { n.chain.SetValidator(v) }
}

// WithBroadcaster sets how sealed blocks reach the other nodes.
func WithBroadcaster(b Broadcaster) NodeOption {
	return func(n *ConsensusNode) { n.broadcaster = b }
}

// NewConsensusNode creates a node with an empty chain.
func NewConsensusNode(identity NodeIdentity, trainer Trainer, aggregator Aggregator, opts ...NodeOption) *ConsensusNode {
	n := &ConsensusNode{
		identity:   identity,
		chain:      NewChain(identity.ID, AcceptAll),
		trainer:    trainer,
		aggregator: aggregator,
		params:     DefaultBlockParams(),
		global:     Parameters{},
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.rng == nil {
		n.rng = &lockedRand{r: rand.New(rand.NewSource(time.Now().UnixNano()))}
	}
	if n.masker == nil {
		n.masker = NewUpdateMasker(n.rng)
	}
	if n.workers == nil {
		n.workers = NewWorkerPool(0)
	}
	return n
}

// ID returns the node id.
func (n *ConsensusNode) ID() string {
	return n.identity.ID
}

// Identity returns the node's static identity.
func (n *ConsensusNode) Identity() NodeIdentity {
	return n.identity
}

// Chain returns the node's local chain.
func (n *ConsensusNode) Chain() *Chain {
	return n.chain
}

// SetBroadcaster attaches the node to a network after construction.
func (n *ConsensusNode) SetBroadcaster(b Broadcaster) {
	n.broadcaster = b
}

// SetGlobalModel replaces the parameters used as the next training input.
func (n *ConsensusNode) SetGlobalModel(p Parameters) {
	n.globalMutex.Lock()
	defer n.globalMutex.Unlock()
	n.global = p.Clone()
}

// GlobalModel returns a copy of the current global parameters.
func (n *ConsensusNode) GlobalModel() Parameters {
	n.globalMutex.RLock()
	defer n.globalMutex.RUnlock()
	return n.global.Clone()
}

// ReceiveBlock validates and appends a block sent by another node.
func (n *ConsensusNode) ReceiveBlock(b Block) error {
	if err := n.chain.Receive(b); err != nil {
		logging.Warn("Rejected block", logging.Chain, "node", n.ID(), "creator", b.Creator, "error", err)
		return err
	}
	logging.Debug("Received block", logging.Chain, "node", n.ID(), "creator", b.Creator, "hash", b.Hash)
	return nil
}

// RunRound performs this node's part of a round against the cohort snapshot. The
// update path and the election path run concurrently; RunRound returns once both
// are done, including any block seal and broadcast.
func (n *ConsensusNode) RunRound(ctx context.Context, round uint64, cohort Cohort) RoundResult {
	res := RoundResult{NodeID: n.ID(), Round: round}

	var (
		wg        sync.WaitGroup
		update    MaskedUpdate
		updateErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		update, updateErr = n.Contribute(ctx)
	}()

	res.Elected, res.Probability = Elect(cohort, n.ID(), n.rng)
	if res.Elected {
		b, err := n.ProposeBlock(ctx)
		if err != nil {
			res.BlockErr = err
			logging.Warn("Block proposal failed", logging.Consensus, "node", n.ID(), "round", round, "error", err)
		} else {
			res.Block = &b
		}
	}

	wg.Wait()
	res.Update, res.UpdateErr = update, updateErr
	if updateErr != nil {
		logging.Warn("No update this round", logging.Training, "node", n.ID(), "round", round, "error", updateErr)
	}
	return res
}

// Contribute trains on the current global model, masks the delta and hands it to
// the aggregator.
func (n *ConsensusNode) Contribute(ctx context.Context) (MaskedUpdate, error) {
	delta, err := n.trainer.Train(ctx, n.GlobalModel())
	if err != nil {
		if !errors.Is(err, ErrTrainingFailed) {
			err = fmt.Errorf("%w: %v", ErrTrainingFailed, err)
		}
		return nil, err
	}
	masked, err := n.masker.Mask(delta, n.identity.Malicious)
	if err != nil {
		return nil, fmt.Errorf("mask update for %s: %w", n.ID(), err)
	}
	if n.aggregator != nil {
		if err := n.aggregator.ReceiveUpdate(n.ID(), masked); err != nil {
			return nil, fmt.Errorf("submit update for %s: %w", n.ID(), err)
		}
	}
	logging.Debug("Update submitted", logging.Masking, "node", n.ID(), "malicious", n.identity.Malicious, "params", len(masked))
	return masked, nil
}

// ProposeBlock seals a block on top of the node's own tail on a worker, appends
// it to the node's chain and broadcasts a copy.
func (n *ConsensusNode) ProposeBlock(ctx context.Context) (Block, error) {
	tail, err := n.chain.BeginSeal()
	if err != nil {
		return Block{}, err
	}
	seed := uint64(n.rng.Intn(VDFSeedMax + 1))
	params := n.params
	id := n.ID()

	start := time.Now()
	future := Dispatch(ctx, n.workers, func(ctx context.Context) (Block, error) {
		return SealBlock(ctx, id, tail, seed, params)
	})
	b, err := future.Await(ctx)
	if err != nil {
		n.chain.AbortSeal()
		return Block{}, err
	}
	n.chain.CommitSeal(b)
	logging.Info("Block sealed", logging.Consensus, "node", id, "hash", b.Hash, "nonce", b.Nonce, "previous", b.PreviousHash, "elapsed", time.Since(start))

	if n.broadcaster != nil {
		n.broadcaster.BroadcastBlock(ctx, id, b)
	}
	return b, nil
}
