package core

import "errors"

// Errors surfaced by the consensus and masking pipeline. Each one is scoped to a
// single node's round and is never fatal to the simulation.
var (
	ErrShapeMismatch  = errors.New("tensor shape mismatch")
	ErrPuzzleUnsolved = errors.New("proof-of-work puzzle unsolved")
	ErrTrainingFailed = errors.New("local training failed")
	// ErrInvalidBlock is only returned by a non-default BlockValidator.
	ErrInvalidBlock = errors.New("invalid block")
)
