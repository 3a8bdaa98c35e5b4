package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// DefaultDifficulty is the number of leading zero hex characters a block's
// proof-of-work digest must have.
const DefaultDifficulty = 4

// VDFSeedMax is the inclusive upper bound of the random VDF seed.
const VDFSeedMax = 1_000_000

// Block is one entry of a node's local chain. It is created once by its creator
// and copied by value to every other node.
type Block struct {
	Creator      string        `json:"creator"`
	VDFOutput    uint64        `json:"vdf_output"`
	Nonce        uint64        `json:"nonce"`
	Hash         string        `json:"hash"`
	Transactions []Transaction `json:"transactions"`
	PreviousHash string        `json:"previous_hash"`
}

// BlockParams controls the cost of sealing a block.
type BlockParams struct {
	Difficulty    int    `koanf:"difficulty" json:"difficulty"`
	VDFIterations int    `koanf:"vdf_iterations" json:"vdf_iterations"`
	MaxAttempts   uint64 `koanf:"max_attempts" json:"max_attempts"`
}

// DefaultBlockParams returns the reference block parameters with no attempt cutoff.
func DefaultBlockParams() BlockParams {
	return BlockParams{Difficulty: DefaultDifficulty, VDFIterations: DefaultVDFIterations}
}

// BlockHeader is the string the proof-of-work is computed over.
func BlockHeader(creator string, vdfOutput uint64, previousHash string) string {
	return creator + strconv.FormatUint(vdfOutput, 10) + previousHash
}

// Header returns the proof-of-work header of the block.
func (b Block) Header() string {
	return BlockHeader(b.Creator, b.VDFOutput, b.PreviousHash)
}

// Clone returns a copy that shares no slices with b.
func (b Block) Clone() Block {
	c := b
	c.Transactions = append([]Transaction{}, b.Transactions...)
	return c
}

// calculateHash digests the canonical JSON form of the block as it currently stands,
// including whatever is in Hash.
func (b Block) calculateHash() string {
	if b.Transactions == nil {
		b.Transactions = []Transaction{}
	}
	data, _ := json.Marshal(b)
	return Digest(data)
}

// ProofDigest recomputes the proof-of-work digest that the block was sealed with.
func (b Block) ProofDigest() string {
	return powDigest(b.Header(), b.Nonce)
}

// VerifyHash checks that Hash is the digest of the block assembled around its
// proof-of-work digest.
func (b Block) VerifyHash() bool {
	provisional := b
	provisional.Hash = b.ProofDigest()
	return provisional.calculateHash() == b.Hash
}

// SealBlock runs the VDF on seed, solves the proof-of-work over the resulting header
// and assembles the block on top of previousHash.
//
// The stored Hash is the digest of the assembled block, which replaces the
// proof-of-work digest; only the latter satisfies the difficulty predicate.
func SealBlock(ctx context.Context, creator, previousHash string, seed uint64, params BlockParams) (Block, error) {
	if previousHash == "" {
		previousHash = GenesisSentinel
	}
	vdfOutput := VDF(seed, params.VDFIterations)
	header := BlockHeader(creator, vdfOutput, previousHash)
	nonce, digest, err := Solve(ctx, header, params.Difficulty, params.MaxAttempts)
	if err != nil {
		return Block{}, fmt.Errorf("seal block for %s: %w", creator, err)
	}
	b := Block{
		Creator:      creator,
		VDFOutput:    vdfOutput,
		Nonce:        nonce,
		Hash:         digest,
		Transactions: []Transaction{},
		PreviousHash: previousHash,
	}
	b.Hash = b.calculateHash()
	return b, nil
}
