package model

import (
	"fmt"
	"math"

	"github.com/absmach/fedsim/pkg/fl"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// Metrics is the evaluation summary of one set of weights on one
// labeled dataset.
type Metrics struct {
	Accuracy  float64 `json:"accuracy"`
	AUC       float64 `json:"auc"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1_score"`
	Loss      float64 `json:"loss"`
}

// Evaluate scores the weights on a labeled dataset. Classification
// metrics use threshold 0.5; loss is unweighted binary cross-entropy.
func (n *Network) Evaluate(weights fl.Weights, features [][]float64, labels []float64) (Metrics, error) {
	if len(labels) == 0 || len(features) != len(labels) {
		return Metrics{}, fmt.Errorf("%w: %d feature rows against %d labels",
			ErrInvalidInput, len(features), len(labels))
	}

	probs, err := n.Predict(weights, features)
	if err != nil {
		return Metrics{}, err
	}

	var tp, fp, tn, fn int
	var loss float64
	for i, p := range probs {
		clamped := math.Min(math.Max(p, 1e-7), 1-1e-7)
		if labels[i] == 1 {
			loss -= math.Log(clamped)
			if p > 0.5 {
				tp++
			} else {
				fn++
			}
		} else {
			loss -= math.Log(1 - clamped)
			if p > 0.5 {
				fp++
			} else {
				tn++
			}
		}
	}

	m := Metrics{
		Accuracy: float64(tp+tn) / float64(len(labels)),
		AUC:      auc(probs, labels),
		Loss:     loss / float64(len(labels)),
	}
	if tp+fp > 0 {
		m.Precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		m.Recall = float64(tp) / float64(tp+fn)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}

	return m, nil
}

// auc integrates the ROC curve with the trapezoid rule. Degenerate
// single-class datasets score 0.5.
func auc(probs, labels []float64) float64 {
	var pos int
	for _, y := range labels {
		if y == 1 {
			pos++
		}
	}
	if pos == 0 || pos == len(labels) {
		return 0.5
	}

	scores := append([]float64(nil), probs...)
	classes := make([]bool, len(labels))
	for i, y := range labels {
		classes[i] = y == 1
	}

	stat.SortWeightedLabeled(scores, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, scores, classes, nil)

	return integrate.Trapezoidal(fpr, tpr)
}
