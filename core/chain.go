package core

import (
	"fmt"
	"sync"
)

// BlockValidator decides whether a received block may be appended.
type BlockValidator func(Block) error

// AcceptAll is the default validator: every block is accepted.
func AcceptAll(Block) error { return nil }

// ProofValidator rejects blocks whose proof-of-work does not meet difficulty or
// whose hash is not the digest of the assembled block. It is not used by default.
func ProofValidator(difficulty int) BlockValidator {
	return func(b Block) error {
		if !VerifyPoW(b.Header(), b.Nonce, difficulty) {
			return fmt.Errorf("%w: proof-of-work from %s does not meet difficulty %d", ErrInvalidBlock, b.Creator, difficulty)
		}
		if !b.VerifyHash() {
			return fmt.Errorf("%w: hash mismatch for block from %s", ErrInvalidBlock, b.Creator)
		}
		return nil
	}
}

// Chain is one node's append-only log of every block it created or received,
// in the order they were appended. Blocks are never removed or reordered.
//
// While the owner is sealing its own block, received blocks are held back and
// appended right after the sealed block, so the sealed block always follows the
// tail it was built on. Receipt order is kept among received blocks only.
type Chain struct {
	owner     string
	blocks    []Block
	validator BlockValidator
	sealing   bool
	held      []Block
	mutex     sync.RWMutex
}

// NewChain creates an empty chain owned by owner. A nil validator means AcceptAll.
func NewChain(owner string, validator BlockValidator) *Chain {
	if validator == nil {
		validator = AcceptAll
	}
	return &Chain{owner: owner, validator: validator}
}

// Owner returns the id of the node owning the chain.
func (c *Chain) Owner() string {
	return c.owner
}

// SetValidator swaps the validator used for received blocks.
func (c *Chain) SetValidator(v BlockValidator) {
	if v == nil {
		v = AcceptAll
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.validator = v
}

// Receive validates a block from another node and appends it. During a seal the
// block is held and lands after the sealed block, still in receipt order.
func (c *Chain) Receive(b Block) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err := c.validator(b); err != nil {
		return err
	}
	if c.sealing {
		c.held = append(c.held, b.Clone())
		return nil
	}
	c.blocks = append(c.blocks, b.Clone())
	return nil
}

// BeginSeal marks the chain as sealing and returns the tail the new block must
// build on. Only one seal may be in progress at a time.
func (c *Chain) BeginSeal() (string, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.sealing {
		return "", fmt.Errorf("chain %s: seal already in progress", c.owner)
	}
	c.sealing = true
	return c.tailLocked(), nil
}

// CommitSeal appends the owner's sealed block followed by any held blocks.
func (c *Chain) CommitSeal(b Block) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.blocks = append(c.blocks, b.Clone())
	c.releaseLocked()
}

// AbortSeal ends a failed seal and appends any held blocks.
func (c *Chain) AbortSeal() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.releaseLocked()
}

func (c *Chain) releaseLocked() {
	c.blocks = append(c.blocks, c.held...)
	c.held = nil
	c.sealing = false
}

// Tail returns the hash of the latest block, or GenesisSentinel when empty.
func (c *Chain) Tail() string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.tailLocked()
}

func (c *Chain) tailLocked() string {
	if len(c.blocks) == 0 {
		return GenesisSentinel
	}
	return c.blocks[len(c.blocks)-1].Hash
}

// Len returns the number of appended blocks.
func (c *Chain) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.blocks)
}

// Blocks returns a copy of the chain.
func (c *Chain) Blocks() []Block {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	out := make([]Block, len(c.blocks))
	for i, b := range c.blocks {
		out[i] = b.Clone()
	}
	return out
}

// GetByIndex retrieves a block by position.
func (c *Chain) GetByIndex(index int) (Block, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	if index < 0 || index >= len(c.blocks) {
		return Block{}, fmt.Errorf("index %d out of range", index)
	}
	return c.blocks[index].Clone(), nil
}

// LinkIssue describes an own block whose previous hash is not its predecessor.
type LinkIssue struct {
	Index        int    `json:"index"`
	PreviousHash string `json:"previous_hash"`
	Expected     string `json:"expected"`
}

// Verify audits the owner's own blocks: each must link to the block directly
// before it in this chain, or to GenesisSentinel when first. Blocks created by
// other nodes are not checked, since their links refer to the creators' chains.
func (c *Chain) Verify() []LinkIssue {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	var issues []LinkIssue
	for i, b := range c.blocks {
		if b.Creator != c.owner {
			continue
		}
		expected := GenesisSentinel
		if i > 0 {
			expected = c.blocks[i-1].Hash
		}
		if b.PreviousHash != expected {
			issues = append(issues, LinkIssue{Index: i, PreviousHash: b.PreviousHash, Expected: expected})
		}
	}
	return issues
}
