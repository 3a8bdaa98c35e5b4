// Package fl provides the federated-learning collaborators that drive the
// consensus core in simulations: a least-squares local trainer, a FedAvg
// aggregator and a norm-based detection oracle.
package fl

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/Artfain/triad-fedchain/core"
)

// WeightsParam is the name of the single parameter tensor of the linear model.
const WeightsParam = "w"

// LinearTrainer runs gradient descent for least-squares regression on a local
// data partition.
type LinearTrainer struct {
	X            *mat.Dense
	Y            *mat.VecDense
	LearningRate float64
	Epochs       int
	// DPSigma adds Gaussian noise with this standard deviation to the delta when > 0.
	DPSigma float64

	rng   *rand.Rand
	mutex sync.Mutex
}

// NewLinearTrainer creates a trainer over the rows of x and targets y.
func NewLinearTrainer(x *mat.Dense, y []float64, learningRate float64, epochs int, seed int64) *LinearTrainer {
	t := &LinearTrainer{
		X:            x,
		LearningRate: learningRate,
		Epochs:       epochs,
		rng:          rand.New(rand.NewSource(seed)),
	}
	if len(y) > 0 {
		t.Y = mat.NewVecDense(len(y), append([]float64(nil), y...))
	}
	return t
}

// Train starts from the global weights, runs the configured epochs and returns
// the change in weights.
func (t *LinearTrainer) Train(ctx context.Context, global core.Parameters) (core.ParameterDelta, error) {
	if t.X == nil || t.Y == nil {
		return nil, fmt.Errorf("%w: empty data partition", core.ErrTrainingFailed)
	}
	rows, cols := t.X.Dims()
	if rows == 0 || t.Y.Len() != rows {
		return nil, fmt.Errorf("%w: partition has %d rows and %d targets", core.ErrTrainingFailed, rows, t.Y.Len())
	}

	start := make([]float64, cols)
	if g, ok := global[WeightsParam]; ok {
		if len(g.Data) != cols {
			return nil, fmt.Errorf("%w: global weights have %d values, model has %d features", core.ErrTrainingFailed, len(g.Data), cols)
		}
		copy(start, g.Data)
	}

	w := mat.NewVecDense(cols, append([]float64(nil), start...))
	var residual, grad mat.VecDense
	for epoch := 0; epoch < t.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrTrainingFailed, err)
		}
		residual.MulVec(t.X, w)
		residual.SubVec(&residual, t.Y)
		grad.MulVec(t.X.T(), &residual)
		w.AddScaledVec(w, -t.LearningRate/float64(rows), &grad)
	}

	delta := make([]float64, cols)
	for i := range delta {
		delta[i] = w.AtVec(i) - start[i]
	}
	if t.DPSigma > 0 {
		t.mutex.Lock()
		GaussianNoise(t.rng, delta, t.DPSigma)
		t.mutex.Unlock()
	}
	return core.ParameterDelta{WeightsParam: {Shape: []int{cols}, Data: delta}}, nil
}

// GaussianNoise adds zero-mean Gaussian noise with standard deviation sigma to values.
func GaussianNoise(rng *rand.Rand, values []float64, sigma float64) {
	for i := range values {
		values[i] += rng.NormFloat64() * sigma
	}
}

// GeneratePartition builds a synthetic regression partition y = X*trueW + noise.
func GeneratePartition(rng *rand.Rand, rows int, trueW []float64, noise float64) (*mat.Dense, []float64) {
	cols := len(trueW)
	if rows <= 0 || cols == 0 {
		return nil, nil
	}
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = rng.Float64()*2 - 1
	}
	x := mat.NewDense(rows, cols, data)
	var y mat.VecDense
	y.MulVec(x, mat.NewVecDense(cols, append([]float64(nil), trueW...)))
	out := make([]float64, rows)
	for i := range out {
		out[i] = y.AtVec(i) + rng.NormFloat64()*noise
	}
	return x, out
}
