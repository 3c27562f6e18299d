package secagg

import (
	"fmt"

	"github.com/absmach/fedsim/pkg/fl"
	"github.com/tuneinsight/lattigo/v5/core/rlwe"
	"github.com/tuneinsight/lattigo/v5/he/hefloat"
)

// HEAggregator sums institution deltas under CKKS encryption. Institutions
// encrypt their sample-scaled deltas with a shared committee public key,
// the coordinator adds ciphertexts without seeing any plaintext update,
// and the committee decrypts only the aggregate once per round.
type HEAggregator struct {
	n         int
	params    hefloat.Parameters
	encoder   *hefloat.Encoder
	encryptor *rlwe.Encryptor
	decryptor *rlwe.Decryptor
	evaluator *hefloat.Evaluator
}

func NewHEAggregator(institutions int) (*HEAggregator, error) {
	if institutions < 2 {
		return nil, fmt.Errorf("%w: homomorphic aggregation needs at least 2 institutions, got %d",
			ErrInvalidConfig, institutions)
	}

	params, err := hefloat.NewParametersFromLiteral(hefloat.ParametersLiteral{
		LogN:            12,
		LogQ:            []int{55, 40, 40},
		LogP:            []int{61},
		LogDefaultScale: 40,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize CKKS parameters: %w", err)
	}

	kgen := rlwe.NewKeyGenerator(params)
	sk, pk := kgen.GenKeyPairNew()

	return &HEAggregator{
		n:         institutions,
		params:    params,
		encoder:   hefloat.NewEncoder(params),
		encryptor: rlwe.NewEncryptor(params, pk),
		decryptor: rlwe.NewDecryptor(params, sk),
		evaluator: hefloat.NewEvaluator(params, nil),
	}, nil
}

func (ha *HEAggregator) Aggregate(updates []fl.Update) (fl.Weights, error) {
	if len(updates) == 0 {
		return nil, fl.ErrNoUpdates
	}
	if len(updates) != ha.n {
		return nil, fmt.Errorf("%w: got %d updates, want %d", ErrIncompleteRound, len(updates), ha.n)
	}

	dim := len(updates[0].Delta)
	slots := ha.params.MaxSlots()
	chunks := (dim + slots - 1) / slots

	var sums []*rlwe.Ciphertext
	var total int64
	for _, u := range updates {
		if len(u.Delta) != dim {
			return nil, fmt.Errorf("%w: institution %d sent %d parameters, want %d",
				fl.ErrShapeMismatch, u.InstitutionID, len(u.Delta), dim)
		}
		total += int64(u.NumSamples)

		cts, err := ha.encryptChunks(u.Delta.Scale(float64(u.NumSamples)), slots, chunks)
		if err != nil {
			return nil, err
		}
		if sums == nil {
			sums = cts
			continue
		}
		for c := range sums {
			if err := ha.evaluator.Add(sums[c], cts[c], sums[c]); err != nil {
				return nil, fmt.Errorf("failed to add ciphertexts: %w", err)
			}
		}
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: total sample count is zero", fl.ErrAggregation)
	}

	out := make(fl.Weights, dim)
	decoded := make([]float64, slots)
	for c, ct := range sums {
		pt := ha.decryptor.DecryptNew(ct)
		if err := ha.encoder.Decode(pt, decoded); err != nil {
			return nil, fmt.Errorf("failed to decode aggregate chunk %d: %w", c, err)
		}
		copy(out[c*slots:min((c+1)*slots, dim)], decoded)
	}

	return out.Scale(1 / float64(total)), nil
}

func (ha *HEAggregator) encryptChunks(v fl.Weights, slots, chunks int) ([]*rlwe.Ciphertext, error) {
	cts := make([]*rlwe.Ciphertext, chunks)
	for c := 0; c < chunks; c++ {
		chunk := make([]float64, slots)
		copy(chunk, v[c*slots:min((c+1)*slots, len(v))])

		pt := hefloat.NewPlaintext(ha.params, ha.params.MaxLevel())
		if err := ha.encoder.Encode(chunk, pt); err != nil {
			return nil, fmt.Errorf("failed to encode update chunk %d: %w", c, err)
		}
		ct, err := ha.encryptor.EncryptNew(pt)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt update chunk %d: %w", c, err)
		}
		cts[c] = ct
	}

	return cts, nil
}
