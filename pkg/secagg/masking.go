// Package secagg implements aggregation protocols that keep individual
// institution updates hidden from the coordinator: pairwise additive
// masking, Shamir threshold shares, and CKKS homomorphic summing.
package secagg

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"
	"gonum.org/v1/gonum/floats"

	"github.com/absmach/fedsim/pkg/fl"
)

const secretSize = 32

// NewSecret draws a fresh per-run masking secret.
func NewSecret() ([]byte, error) {
	secret := make([]byte, secretSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate masking secret: %w", err)
	}

	return secret, nil
}

// Masker derives pairwise masks from a per-run secret. Institutions are
// numbered 0..n-1; the unordered pair (i,j) shares one deterministic mask
// stream per round, so the lower-numbered side adds exactly what the
// higher-numbered side subtracts and the masks vanish from the sum.
type Masker struct {
	secret []byte
	n      int
}

func NewMasker(secret []byte, institutions int) (*Masker, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: empty secret", ErrInvalidConfig)
	}
	if institutions < 2 {
		return nil, fmt.Errorf("%w: masking needs at least 2 institutions, got %d",
			ErrInvalidConfig, institutions)
	}

	return &Masker{secret: secret, n: institutions}, nil
}

// Institutions reports the expected participant count per round.
func (m *Masker) Institutions() int {
	return m.n
}

// Mask applies every pairwise mask institution institutionID owes for
// roundID: added for higher-numbered peers, subtracted for lower-numbered
// ones. The input delta is not modified.
func (m *Masker) Mask(delta fl.Weights, institutionID, roundID int) (fl.Weights, error) {
	if institutionID < 0 || institutionID >= m.n {
		return nil, fmt.Errorf("%w: %d not in 0..%d", ErrInvalidInstitution, institutionID, m.n-1)
	}

	out := delta.Clone()
	for peer := 0; peer < m.n; peer++ {
		if peer == institutionID {
			continue
		}

		lo, hi := institutionID, peer
		if lo > hi {
			lo, hi = hi, lo
		}
		mask, err := m.pairMask(roundID, lo, hi, len(delta))
		if err != nil {
			return nil, err
		}

		if peer > institutionID {
			floats.Add(out, mask)
		} else {
			floats.Sub(out, mask)
		}
	}

	return out, nil
}

// UnmaskSum adds all masked deltas for one round, cancelling every pairwise
// mask. It refuses anything short of full participation: a missing,
// duplicate, or wrong-round update means this round's masks cannot cancel.
func (m *Masker) UnmaskSum(updates []fl.Update) (fl.Weights, error) {
	if len(updates) == 0 {
		return nil, fl.ErrNoUpdates
	}
	if len(updates) != m.n {
		return nil, fmt.Errorf("%w: got %d masked updates, want %d",
			ErrIncompleteRound, len(updates), m.n)
	}

	round := updates[0].RoundID
	dim := len(updates[0].Delta)
	seen := make(map[int]bool, m.n)
	sum := make(fl.Weights, dim)

	for _, u := range updates {
		if u.RoundID != round {
			return nil, fmt.Errorf("%w: update from round %d mixed into round %d",
				ErrIncompleteRound, u.RoundID, round)
		}
		if u.InstitutionID < 0 || u.InstitutionID >= m.n {
			return nil, fmt.Errorf("%w: %d not in 0..%d",
				ErrInvalidInstitution, u.InstitutionID, m.n-1)
		}
		if seen[u.InstitutionID] {
			return nil, fmt.Errorf("%w: duplicate update from institution %d",
				ErrIncompleteRound, u.InstitutionID)
		}
		if len(u.Delta) != dim {
			return nil, fmt.Errorf("%w: institution %d sent %d parameters, want %d",
				fl.ErrShapeMismatch, u.InstitutionID, len(u.Delta), dim)
		}
		seen[u.InstitutionID] = true

		floats.Add(sum, u.Delta)
	}

	return sum, nil
}

// pairMask generates dim mask values in [-1, 1) for the unordered pair
// (lo, hi) in roundID. Key and nonce come from HKDF over the run secret,
// the stream from ChaCha20, so both pair members produce identical values.
func (m *Masker) pairMask(roundID, lo, hi, dim int) ([]float64, error) {
	info := fmt.Sprintf("fedsim:mask:%d:%d:%d", roundID, lo, hi)
	kdf := hkdf.New(sha256.New, m.secret, nil, []byte(info))

	key := make([]byte, chacha20.KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive mask key: %w", err)
	}
	nonce := make([]byte, chacha20.NonceSize)
	if _, err := io.ReadFull(kdf, nonce); err != nil {
		return nil, fmt.Errorf("failed to derive mask nonce: %w", err)
	}

	stream, err := chacha20.NewUnauthenticatedCipher(key, nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mask stream: %w", err)
	}

	buf := make([]byte, dim*8)
	stream.XORKeyStream(buf, buf)

	mask := make([]float64, dim)
	for i := range mask {
		u := binary.LittleEndian.Uint64(buf[i*8:])
		// 53 uniform bits mapped onto [-1, 1)
		mask[i] = 2*(float64(u>>11)/float64(1<<53)) - 1
	}

	return mask, nil
}
