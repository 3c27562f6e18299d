// Package model implements the fraud-detection network behind the
// federated model adapter: a dense feed-forward classifier whose
// parameters travel between engine and institutions as one flat vector.
package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	randv2 "math/rand/v2"

	"github.com/absmach/fedsim/pkg/dataset"
	"github.com/absmach/fedsim/pkg/fl"
	"gonum.org/v1/gonum/mat"
)

const defaultLearningRate = 0.001

// ErrInvalidInput indicates feature rows or labels that do not match the
// network's expected shape.
var ErrInvalidInput = errors.New("invalid model input")

// Network is a dense feed-forward classifier with ReLU hidden layers and
// a sigmoid output, trained with Adam on class-weighted cross-entropy.
// A Network carries no mutable state, so one instance may train multiple
// partitions concurrently.
type Network struct {
	sizes []int
	lr    float64
	seed  int64
}

// New returns the standard fraud-detection architecture over the 29
// scaled transaction features.
func New(seed int64) *Network {
	return NewWithLayers(seed, dataset.FeatureDim, 64, 32, 16, 1)
}

// NewWithLayers builds a network with explicit layer widths, input first
// and output last. Fewer than two widths falls back to the standard
// architecture.
func NewWithLayers(seed int64, sizes ...int) *Network {
	if len(sizes) < 2 {
		return New(seed)
	}

	return &Network{sizes: sizes, lr: defaultLearningRate, seed: seed}
}

// ParamCount is the length of the flat weight vector: one weight matrix
// plus one bias vector per layer.
func (n *Network) ParamCount() int {
	var total int
	for l := 1; l < len(n.sizes); l++ {
		total += n.sizes[l]*n.sizes[l-1] + n.sizes[l]
	}

	return total
}

// InputDim is the expected feature-vector width.
func (n *Network) InputDim() int {
	return n.sizes[0]
}

// InitWeights draws Glorot-uniform weight matrices and zero biases,
// deterministic for the network's seed.
func (n *Network) InitWeights() fl.Weights {
	rng := randv2.New(randv2.NewPCG(uint64(n.seed), 1))
	w := make(fl.Weights, n.ParamCount())

	off := 0
	for l := 1; l < len(n.sizes); l++ {
		in, out := n.sizes[l-1], n.sizes[l]
		limit := math.Sqrt(6 / float64(in+out))
		for i := 0; i < out*in; i++ {
			w[off+i] = (2*rng.Float64() - 1) * limit
		}
		off += out*in + out
	}

	return w
}

// layers wraps a flat parameter vector with per-layer matrix and bias
// views. The views alias the vector, so writes through them update it.
type layers struct {
	w []*mat.Dense
	b [][]float64
}

func (n *Network) view(params []float64) (layers, error) {
	if len(params) != n.ParamCount() {
		return layers{}, fmt.Errorf("%w: got %d parameters, want %d",
			fl.ErrShapeMismatch, len(params), n.ParamCount())
	}

	lv := layers{
		w: make([]*mat.Dense, len(n.sizes)-1),
		b: make([][]float64, len(n.sizes)-1),
	}

	off := 0
	for l := 1; l < len(n.sizes); l++ {
		in, out := n.sizes[l-1], n.sizes[l]
		lv.w[l-1] = mat.NewDense(out, in, params[off:off+out*in])
		off += out * in
		lv.b[l-1] = params[off : off+out]
		off += out
	}

	return lv, nil
}

// forward runs the batch through every layer and returns all activations,
// input included. The final activation holds the sigmoid outputs.
func (n *Network) forward(lv layers, x *mat.Dense) []*mat.Dense {
	acts := make([]*mat.Dense, len(n.sizes))
	acts[0] = x

	for l := 0; l < len(lv.w); l++ {
		m, _ := acts[l].Dims()
		out := n.sizes[l+1]

		z := mat.NewDense(m, out, nil)
		z.Mul(acts[l], lv.w[l].T())

		last := l == len(lv.w)-1
		bias := lv.b[l]
		z.Apply(func(_, j int, v float64) float64 {
			v += bias[j]
			if last {
				return sigmoid(v)
			}

			return math.Max(0, v)
		}, z)

		acts[l+1] = z
	}

	return acts
}

// TrainLocal clones the incoming global weights, runs the configured
// number of mini-batch epochs over the partition, and returns the
// locally updated weights with the partition's sample count. The input
// vector is never mutated.
func (n *Network) TrainLocal(ctx context.Context, weights fl.Weights, p dataset.Partition, epochs, batchSize int) (fl.Weights, int, error) {
	if epochs <= 0 {
		return nil, 0, fmt.Errorf("%w: epochs must be positive, got %d", ErrInvalidInput, epochs)
	}
	if batchSize <= 0 {
		return nil, 0, fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidInput, batchSize)
	}
	samples := p.SampleCount()
	if samples == 0 {
		return nil, 0, fmt.Errorf("%w: partition %d is empty", ErrInvalidInput, p.ID)
	}
	if err := n.checkRows(p.Features); err != nil {
		return nil, 0, err
	}

	params := weights.Clone()
	lv, err := n.view(params)
	if err != nil {
		return nil, 0, err
	}

	grads := make([]float64, len(params))
	gv, _ := n.view(grads)

	w0, w1 := classWeights(p.Labels)
	opt := newAdam(n.lr, len(params))
	rng := randv2.New(randv2.NewPCG(uint64(n.seed), uint64(p.ID)+2))

	perm := make([]int, samples)
	for i := range perm {
		perm[i] = i
	}

	for epoch := 0; epoch < epochs; epoch++ {
		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		default:
		}

		rng.Shuffle(samples, func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })

		for start := 0; start < samples; start += batchSize {
			end := min(start+batchSize, samples)
			x, y := n.gather(p, perm[start:end])

			n.backprop(lv, gv, x, y, w0, w1)
			opt.step(params, grads)
		}
	}

	return params, samples, nil
}

// backprop fills the gradient views for one mini-batch.
func (n *Network) backprop(lv, gv layers, x *mat.Dense, y []float64, w0, w1 float64) {
	acts := n.forward(lv, x)
	m := len(y)

	// sigmoid plus cross-entropy collapses the output delta to (p - y),
	// scaled here by the class weight and batch size
	out := acts[len(acts)-1]
	delta := mat.NewDense(m, 1, nil)
	for i := 0; i < m; i++ {
		cw := w0
		if y[i] == 1 {
			cw = w1
		}
		delta.Set(i, 0, cw*(out.At(i, 0)-y[i])/float64(m))
	}

	for l := len(lv.w) - 1; l >= 0; l-- {
		gv.w[l].Mul(delta.T(), acts[l])

		bias := gv.b[l]
		for j := range bias {
			var sum float64
			for i := 0; i < m; i++ {
				sum += delta.At(i, j)
			}
			bias[j] = sum
		}

		if l == 0 {
			break
		}

		prev := mat.NewDense(m, n.sizes[l], nil)
		prev.Mul(delta, lv.w[l])
		act := acts[l]
		prev.Apply(func(i, j int, v float64) float64 {
			if act.At(i, j) <= 0 {
				return 0
			}

			return v
		}, prev)
		delta = prev
	}
}

// Predict scores already-scaled feature rows with fraud probabilities.
func (n *Network) Predict(weights fl.Weights, rows [][]float64) ([]float64, error) {
	lv, err := n.view(weights)
	if err != nil {
		return nil, err
	}
	if err := n.checkRows(rows); err != nil {
		return nil, err
	}

	x := rowsToDense(rows, n.sizes[0])
	acts := n.forward(lv, x)

	out := acts[len(acts)-1]
	probs := make([]float64, len(rows))
	for i := range probs {
		probs[i] = out.At(i, 0)
	}

	return probs, nil
}

func (n *Network) checkRows(rows [][]float64) error {
	for i, r := range rows {
		if len(r) != n.sizes[0] {
			return fmt.Errorf("%w: row %d has %d features, want %d",
				ErrInvalidInput, i, len(r), n.sizes[0])
		}
	}

	return nil
}

func (n *Network) gather(p dataset.Partition, idx []int) (*mat.Dense, []float64) {
	dim := n.sizes[0]
	data := make([]float64, len(idx)*dim)
	y := make([]float64, len(idx))
	for i, j := range idx {
		copy(data[i*dim:(i+1)*dim], p.Features[j])
		y[i] = p.Labels[j]
	}

	return mat.NewDense(len(idx), dim, data), y
}

// classWeights balances the loss so each class contributes half the
// total weight regardless of its frequency.
func classWeights(labels []float64) (w0, w1 float64) {
	var pos int
	for _, y := range labels {
		if y == 1 {
			pos++
		}
	}
	neg := len(labels) - pos
	if pos == 0 || neg == 0 {
		return 1, 1
	}

	half := float64(len(labels)) / 2
	return half / float64(neg), half / float64(pos)
}

func rowsToDense(rows [][]float64, dim int) *mat.Dense {
	data := make([]float64, len(rows)*dim)
	for i, r := range rows {
		copy(data[i*dim:(i+1)*dim], r)
	}

	return mat.NewDense(len(rows), dim, data)
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
