package dataset

import "gonum.org/v1/gonum/stat"

// Scaler standardizes feature columns to zero mean and unit variance.
// Fitted on the training portion only, then applied to every split so
// the held-out set never leaks into the statistics.
type Scaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// FitScaler computes per-column mean and standard deviation. Columns
// with zero variance scale by 1 to avoid dividing by zero.
func FitScaler(features [][]float64) *Scaler {
	if len(features) == 0 {
		return &Scaler{}
	}

	dim := len(features[0])
	s := &Scaler{
		Mean: make([]float64, dim),
		Std:  make([]float64, dim),
	}

	col := make([]float64, len(features))
	for j := 0; j < dim; j++ {
		for i, row := range features {
			col[i] = row[j]
		}
		s.Mean[j] = stat.Mean(col, nil)
		s.Std[j] = stat.StdDev(col, nil)
		if s.Std[j] == 0 {
			s.Std[j] = 1
		}
	}

	return s
}

// Transform returns a scaled copy of the feature matrix.
func (s *Scaler) Transform(features [][]float64) [][]float64 {
	out := make([][]float64, len(features))
	for i, row := range features {
		out[i] = s.TransformRow(row)
	}

	return out
}

// TransformRow scales a single raw feature row.
func (s *Scaler) TransformRow(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		if j < len(s.Mean) {
			out[j] = (v - s.Mean[j]) / s.Std[j]
		} else {
			out[j] = v
		}
	}

	return out
}
