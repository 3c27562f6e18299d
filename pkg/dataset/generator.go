package dataset

import (
	randv2 "math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// fraud signature columns, 1-based V indices
var (
	fraudHighV = map[int]bool{1: true, 3: true, 4: true, 10: true, 12: true, 14: true, 17: true}
	fraudLowV  = map[int]bool{2: true, 5: true, 11: true}
)

// Generate produces a synthetic credit-card transaction population with
// the configured size and fraud ratio. Legitimate rows cluster around the
// origin of the V-space; fraudulent rows shift a fixed set of indicator
// columns and draw larger amounts. Deterministic for a given seed.
func Generate(cfg Config) *Dataset {
	src := randv2.NewPCG(uint64(cfg.Seed), uint64(cfg.Seed)+1)
	rng := randv2.New(src)

	timeDist := distuv.Uniform{Min: 0, Max: 172800, Src: src}
	legitAmount := distuv.LogNormal{Mu: 3.5, Sigma: 1.2, Src: src}
	fraudAmount := distuv.LogNormal{Mu: 4.5, Sigma: 1.5, Src: src}

	fraudCount := int(float64(cfg.Samples) * cfg.FraudRatio)
	rows := make([]Row, 0, cfg.Samples)

	for i := 0; i < cfg.Samples-fraudCount; i++ {
		r := Row{Time: timeDist.Rand(), Amount: legitAmount.Rand(), Class: 0}
		for v := 1; v <= 28; v++ {
			std := 1.0
			if v > 14 {
				std = 0.8
			}
			r.V[v-1] = std * rng.NormFloat64()
		}
		rows = append(rows, r)
	}

	for i := 0; i < fraudCount; i++ {
		r := Row{Time: timeDist.Rand(), Amount: fraudAmount.Rand(), Class: 1}
		for v := 1; v <= 28; v++ {
			switch {
			case fraudHighV[v]:
				r.V[v-1] = 2.5 + 1.5*rng.NormFloat64()
			case fraudLowV[v]:
				r.V[v-1] = -2.0 + 1.2*rng.NormFloat64()
			default:
				r.V[v-1] = 1.5 * rng.NormFloat64()
			}
		}
		rows = append(rows, r)
	}

	rng.Shuffle(len(rows), func(i, j int) {
		rows[i], rows[j] = rows[j], rows[i]
	})

	return &Dataset{Rows: rows}
}
