package institution_test

import (
	"testing"

	"github.com/absmach/fedsim/pkg/dataset"
	"github.com/absmach/fedsim/pkg/institution"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func partition(id, samples, fraud int) dataset.Partition {
	p := dataset.Partition{ID: id}
	for i := 0; i < samples; i++ {
		p.Features = append(p.Features, make([]float64, dataset.FeatureDim))
		label := 0.0
		if i < fraud {
			label = 1.0
		}
		p.Labels = append(p.Labels, label)
	}

	return p
}

func TestFromPartitions(t *testing.T) {
	t.Parallel()

	parts := []dataset.Partition{
		partition(0, 100, 20),
		partition(1, 80, 0),
		partition(2, 50, 50),
	}

	insts := institution.FromPartitions(parts)
	require.Len(t, insts, 3)

	for i, inst := range insts {
		assert.Equal(t, parts[i].ID, inst.ID)
		assert.NotEmpty(t, inst.Name)
		assert.Equal(t, parts[i].SampleCount(), inst.SampleCount)
		assert.Equal(t, parts[i].FraudCount(), inst.FraudCount)
	}

	assert.InDelta(t, 0.2, insts[0].FraudRatio, 1e-12)
	assert.InDelta(t, 0.0, insts[1].FraudRatio, 1e-12)
	assert.InDelta(t, 1.0, insts[2].FraudRatio, 1e-12)
}

func TestFromPartitionsEmpty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, institution.FromPartitions(nil))
}
