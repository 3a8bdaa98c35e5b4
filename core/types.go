package core

import (
	"context"
	"fmt"
	"math"
)

// GenesisSentinel is the previous hash of a block created on an empty chain.
const GenesisSentinel = "none"

// Tensor is a dense row-major tensor with a declared shape.
type Tensor struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// NewTensor creates a tensor and checks the shape against the data length.
func NewTensor(shape []int, data []float64) (Tensor, error) {
	t := Tensor{Shape: append([]int(nil), shape...), Data: append([]float64(nil), data...)}
	if err := t.check(); err != nil {
		return Tensor{}, err
	}
	return t, nil
}

// Len returns the element count implied by the shape, or -1 when the shape has a
// negative dimension or its product overflows int.
func (t Tensor) Len() int {
	n, ok := t.elements()
	if !ok {
		return -1
	}
	return n
}

func (t Tensor) elements() (int, bool) {
	zero := false
	for _, d := range t.Shape {
		if d < 0 {
			return 0, false
		}
		zero = zero || d == 0
	}
	if zero {
		return 0, true
	}
	n := 1
	for _, d := range t.Shape {
		if n > math.MaxInt/d {
			return 0, false
		}
		n *= d
	}
	return n, true
}

func (t Tensor) check() error {
	n, ok := t.elements()
	if !ok {
		return fmt.Errorf("%w: invalid shape %v", ErrShapeMismatch, t.Shape)
	}
	if n != len(t.Data) {
		return fmt.Errorf("%w: shape %v wants %d values, got %d", ErrShapeMismatch, t.Shape, n, len(t.Data))
	}
	return nil
}

// ParameterDelta is the change in model parameters produced by one local training round.
type ParameterDelta map[string]Tensor

// Parameters is a global model snapshot pushed back to nodes by the aggregator.
type Parameters map[string]Tensor

// Clone returns a deep copy of the snapshot.
func (p Parameters) Clone() Parameters {
	out := make(Parameters, len(p))
	for name, t := range p {
		out[name] = Tensor{Shape: append([]int(nil), t.Shape...), Data: append([]float64(nil), t.Data...)}
	}
	return out
}

// MaskedUpdate maps a parameter name to its flattened, masked values. Shape is discarded.
type MaskedUpdate map[string][]float64

// NodeIdentity describes one participant of the cohort.
type NodeIdentity struct {
	ID         string  `json:"id"`
	Stake      float64 `json:"stake"`
	Reputation float64 `json:"reputation"`
	Malicious  bool    `json:"malicious"`
}

// Transaction is reserved for future use; blocks in this core never carry any.
type Transaction struct{}

// Trainer produces a local parameter delta from the current global snapshot.
type Trainer interface {
	Train(ctx context.Context, global Parameters) (ParameterDelta, error)
}

// Aggregator accepts masked updates tagged with the sender's id.
type Aggregator interface {
	ReceiveUpdate(nodeID string, update MaskedUpdate) error
}

// Detector reports which nodes misbehaved during a round.
type Detector interface {
	DetectMalicious(observations map[string]MaskedUpdate) map[string]bool
}
