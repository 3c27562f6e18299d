package fl

import "gonum.org/v1/gonum/floats"

// Weights is a flat parameter vector. Aggregation treats it as an opaque
// additive quantity; shape bookkeeping belongs to the model adapter.
type Weights []float64

func (w Weights) Clone() Weights {
	c := make(Weights, len(w))
	copy(c, w)

	return c
}

// Add returns w + o as a new vector.
func (w Weights) Add(o Weights) (Weights, error) {
	if len(w) != len(o) {
		return nil, ErrShapeMismatch
	}

	out := w.Clone()
	floats.Add(out, o)

	return out, nil
}

// Sub returns w - o as a new vector.
func (w Weights) Sub(o Weights) (Weights, error) {
	if len(w) != len(o) {
		return nil, ErrShapeMismatch
	}

	out := w.Clone()
	floats.Sub(out, o)

	return out, nil
}

// Scale returns alpha * w as a new vector.
func (w Weights) Scale(alpha float64) Weights {
	out := w.Clone()
	floats.Scale(alpha, out)

	return out
}

// Norm reports the L2 norm.
func (w Weights) Norm() float64 {
	return floats.Norm(w, 2)
}
