package secagg

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"

	"github.com/absmach/fedsim/pkg/fl"
)

// thresholdScale is the fixed-point factor applied before field encoding.
const thresholdScale = 1 << 20

// ThresholdAggregator realizes a dropout-tolerant secure sum: every
// institution's scaled delta is split coordinate-wise into n Shamir shares
// over a prime field, one per relay. Shares are additive, so relays only
// ever hold shares of the running sum, and any t of them reconstruct it.
// Fewer than t surviving relays means the round is lost, never partially
// aggregated.
type ThresholdAggregator struct {
	n     int
	t     int
	prime *big.Int
}

func NewThresholdAggregator(institutions, threshold int) (*ThresholdAggregator, error) {
	if institutions < 2 {
		return nil, fmt.Errorf("%w: threshold aggregation needs at least 2 institutions, got %d",
			ErrInvalidConfig, institutions)
	}
	if threshold < 2 || threshold > institutions {
		return nil, fmt.Errorf("%w: threshold %d not in 2..%d",
			ErrInvalidConfig, threshold, institutions)
	}

	// 2^127 - 1, comfortably above any fixed-point sum this simulator produces
	prime := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))

	return &ThresholdAggregator{n: institutions, t: threshold, prime: prime}, nil
}

func (ta *ThresholdAggregator) Aggregate(updates []fl.Update) (fl.Weights, error) {
	if len(updates) == 0 {
		return nil, fl.ErrNoUpdates
	}
	if len(updates) != ta.n {
		return nil, fmt.Errorf("%w: got %d updates, want %d", ErrIncompleteRound, len(updates), ta.n)
	}

	dim := len(updates[0].Delta)
	relaySums := make(map[int][]*big.Int, ta.n)
	for x := 1; x <= ta.n; x++ {
		vec := make([]*big.Int, dim)
		for i := range vec {
			vec[i] = new(big.Int)
		}
		relaySums[x] = vec
	}

	var total int64
	for _, u := range updates {
		if len(u.Delta) != dim {
			return nil, fmt.Errorf("%w: institution %d sent %d parameters, want %d",
				fl.ErrShapeMismatch, u.InstitutionID, len(u.Delta), dim)
		}
		total += int64(u.NumSamples)

		shares, err := ta.Split(u.Delta.Scale(float64(u.NumSamples)))
		if err != nil {
			return nil, err
		}
		for x := 1; x <= ta.n; x++ {
			ta.addInto(relaySums[x], shares[x-1])
		}
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: total sample count is zero", fl.ErrAggregation)
	}

	// any t relays suffice; take the lowest-indexed survivors
	survivors := make(map[int][]*big.Int, ta.t)
	for x := 1; x <= ta.t; x++ {
		survivors[x] = relaySums[x]
	}

	sum, err := ta.Reconstruct(survivors, dim)
	if err != nil {
		return nil, err
	}

	return sum.Scale(1 / float64(total)), nil
}

// Split produces one share vector per relay x = 1..n for the given vector.
func (ta *ThresholdAggregator) Split(v fl.Weights) ([][]*big.Int, error) {
	shares := make([][]*big.Int, ta.n)
	for x := range shares {
		shares[x] = make([]*big.Int, len(v))
	}

	for i, val := range v {
		secret := ta.encode(val)

		coeffs := make([]*big.Int, ta.t-1)
		for c := range coeffs {
			r, err := rand.Int(rand.Reader, ta.prime)
			if err != nil {
				return nil, fmt.Errorf("failed to draw share coefficient: %w", err)
			}
			coeffs[c] = r
		}

		for x := 1; x <= ta.n; x++ {
			shares[x-1][i] = ta.evalPoly(secret, coeffs, int64(x))
		}
	}

	return shares, nil
}

// Reconstruct recovers a vector from at least t relay share vectors,
// interpolating each coordinate at zero.
func (ta *ThresholdAggregator) Reconstruct(shares map[int][]*big.Int, dim int) (fl.Weights, error) {
	if len(shares) < ta.t {
		return nil, fmt.Errorf("%w: %d relay shares available, need %d",
			ErrIncompleteRound, len(shares), ta.t)
	}

	xs := make([]int, 0, len(shares))
	for x := range shares {
		xs = append(xs, x)
	}
	sort.Ints(xs)
	xs = xs[:ta.t]

	// Lagrange basis at x = 0
	basis := make([]*big.Int, ta.t)
	for i, xi := range xs {
		num := big.NewInt(1)
		den := big.NewInt(1)
		for j, xj := range xs {
			if i == j {
				continue
			}
			num.Mul(num, big.NewInt(int64(xj)))
			num.Mod(num, ta.prime)
			d := big.NewInt(int64(xj - xi))
			d.Mod(d, ta.prime)
			den.Mul(den, d)
			den.Mod(den, ta.prime)
		}
		den.ModInverse(den, ta.prime)
		basis[i] = num.Mul(num, den).Mod(num, ta.prime)
	}

	out := make(fl.Weights, dim)
	acc := new(big.Int)
	term := new(big.Int)
	for c := 0; c < dim; c++ {
		acc.SetInt64(0)
		for i, x := range xs {
			term.Mul(basis[i], shares[x][c])
			term.Mod(term, ta.prime)
			acc.Add(acc, term)
			acc.Mod(acc, ta.prime)
		}
		out[c] = ta.decode(acc)
	}

	return out, nil
}

func (ta *ThresholdAggregator) addInto(dst, src []*big.Int) {
	for i := range dst {
		dst[i].Add(dst[i], src[i])
		dst[i].Mod(dst[i], ta.prime)
	}
}

func (ta *ThresholdAggregator) evalPoly(secret *big.Int, coeffs []*big.Int, x int64) *big.Int {
	result := new(big.Int).Set(secret)
	xBig := big.NewInt(x)
	xPow := big.NewInt(x)
	term := new(big.Int)

	for _, c := range coeffs {
		term.Mul(c, xPow)
		term.Mod(term, ta.prime)
		result.Add(result, term)
		result.Mod(result, ta.prime)

		xPow.Mul(xPow, xBig)
		xPow.Mod(xPow, ta.prime)
	}

	return result
}

// encode maps a float to the field with a centered fixed-point lift.
func (ta *ThresholdAggregator) encode(v float64) *big.Int {
	scaled := big.NewInt(int64(v * thresholdScale))

	return scaled.Mod(scaled, ta.prime)
}

func (ta *ThresholdAggregator) decode(y *big.Int) float64 {
	half := new(big.Int).Rsh(ta.prime, 1)
	centered := new(big.Int).Set(y)
	if centered.Cmp(half) > 0 {
		centered.Sub(centered, ta.prime)
	}

	f, _ := new(big.Float).SetInt(centered).Float64()

	return f / thresholdScale
}
