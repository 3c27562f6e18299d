package dataset_test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/absmach/fedsim/pkg/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPartitionsCoverPopulation(t *testing.T) {
	t.Parallel()

	cfg := dataset.Config{Samples: 500, FraudRatio: 0.2, TestFraction: 0.2, Seed: 3}
	split, err := dataset.Load(cfg, 3)
	require.NoError(t, err)
	require.Len(t, split.Partitions, 3)

	assert.Equal(t, 100, split.Test.SampleCount())

	var total int
	for i, p := range split.Partitions {
		assert.Equal(t, i, p.ID)
		assert.NotZero(t, p.SampleCount())
		total += p.SampleCount()
	}
	assert.Equal(t, 400, total, "partitions cover the full training population")

	// near-equal sizes
	assert.Equal(t, 134, split.Partitions[0].SampleCount())
	assert.Equal(t, 133, split.Partitions[1].SampleCount())
	assert.Equal(t, 133, split.Partitions[2].SampleCount())
}

func TestLoadDeterministic(t *testing.T) {
	t.Parallel()

	cfg := dataset.Config{Samples: 200, FraudRatio: 0.2, TestFraction: 0.2, Seed: 11}

	first, err := dataset.Load(cfg, 2)
	require.NoError(t, err)
	second, err := dataset.Load(cfg, 2)
	require.NoError(t, err)

	assert.Equal(t, first.Partitions[0].Features[0], second.Partitions[0].Features[0])
	assert.Equal(t, first.Test.Labels, second.Test.Labels)
	assert.Equal(t, first.Scaler.Mean, second.Scaler.Mean)
}

func TestLoadScalesFeatures(t *testing.T) {
	t.Parallel()

	split, err := dataset.Load(dataset.Config{Samples: 1000, FraudRatio: 0.2, TestFraction: 0.2, Seed: 5}, 2)
	require.NoError(t, err)

	// training features are standardized, so the grand mean sits near zero
	var sum float64
	var count int
	for _, p := range split.Partitions {
		for _, row := range p.Features {
			require.Len(t, row, dataset.FeatureDim)
			for _, v := range row {
				sum += v
				count++
			}
		}
	}
	assert.InDelta(t, 0.0, sum/float64(count), 0.05)
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		desc         string
		cfg          dataset.Config
		institutions int
	}{
		{
			desc:         "negative samples",
			cfg:          dataset.Config{Samples: -5, FraudRatio: 0.2, TestFraction: 0.2},
			institutions: 2,
		},
		{
			desc:         "fraud ratio above one",
			cfg:          dataset.Config{Samples: 100, FraudRatio: 1.2, TestFraction: 0.2},
			institutions: 2,
		},
		{
			desc:         "test fraction above one",
			cfg:          dataset.Config{Samples: 100, FraudRatio: 0.2, TestFraction: 1.2},
			institutions: 2,
		},
		{
			desc:         "zero institutions",
			cfg:          dataset.Config{Samples: 100, FraudRatio: 0.2, TestFraction: 0.2},
			institutions: 0,
		},
		{
			desc:         "more institutions than training rows",
			cfg:          dataset.Config{Samples: 10, FraudRatio: 0.2, TestFraction: 0.5},
			institutions: 20,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()

			_, err := dataset.Load(tc.cfg, tc.institutions)
			assert.ErrorIs(t, err, dataset.ErrInvalidConfig)
		})
	}
}

func writeCSV(t *testing.T, rows int) string {
	t.Helper()

	var b strings.Builder
	b.WriteString("Time")
	for v := 1; v <= 28; v++ {
		fmt.Fprintf(&b, ",V%d", v)
	}
	b.WriteString(",Amount,Class\n")

	for i := 0; i < rows; i++ {
		fmt.Fprintf(&b, "%d", i*100)
		for v := 1; v <= 28; v++ {
			fmt.Fprintf(&b, ",%.2f", float64(i)+float64(v)/10)
		}
		fmt.Fprintf(&b, ",%.2f,%d\n", 50.0+float64(i), i%2)
	}

	path := filepath.Join(t.TempDir(), "transactions.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))

	return path
}

func TestLoadCSVKaggleLayout(t *testing.T) {
	t.Parallel()

	path := writeCSV(t, 10)
	ds, err := dataset.LoadCSV(path)
	require.NoError(t, err)
	require.Len(t, ds.Rows, 10)

	assert.Equal(t, 0, ds.Rows[0].Class)
	assert.Equal(t, 1, ds.Rows[1].Class)
	assert.InDelta(t, 50.0, ds.Rows[0].Amount, 1e-9)
	assert.InDelta(t, 0.1, ds.Rows[0].V[0], 1e-9)
}

func TestLoadFromCSVPath(t *testing.T) {
	t.Parallel()

	cfg := dataset.Config{
		Samples:      100,
		FraudRatio:   0.2,
		TestFraction: 0.2,
		CSVPath:      writeCSV(t, 20),
		Seed:         1,
	}

	split, err := dataset.Load(cfg, 2)
	require.NoError(t, err)

	var total int
	for _, p := range split.Partitions {
		total += p.SampleCount()
	}
	assert.Equal(t, 16, total)
	assert.Equal(t, 4, split.Test.SampleCount())
}

func TestLoadCSVMalformed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	cases := []struct {
		desc    string
		content string
	}{
		{desc: "missing class column", content: "Time,Amount\n1,2\n"},
		{desc: "no data rows", content: headerLine()},
		{desc: "bad class value", content: headerLine() + dataLine("7")},
		{desc: "unparsable amount", content: strings.Replace(headerLine()+dataLine("1"), "50.0", "oops", 1)},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(dir, strings.ReplaceAll(tc.desc, " ", "_")+".csv")
			require.NoError(t, os.WriteFile(path, []byte(tc.content), 0o644))

			_, err := dataset.LoadCSV(path)
			assert.ErrorIs(t, err, dataset.ErrMalformedFile)
		})
	}
}

func TestLoadCSVMissingFile(t *testing.T) {
	t.Parallel()

	_, err := dataset.LoadCSV(filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}

func headerLine() string {
	var b strings.Builder
	b.WriteString("Time")
	for v := 1; v <= 28; v++ {
		fmt.Fprintf(&b, ",V%d", v)
	}
	b.WriteString(",Amount,Class\n")

	return b.String()
}

func dataLine(class string) string {
	var b strings.Builder
	b.WriteString("0")
	for v := 1; v <= 28; v++ {
		b.WriteString(",0.5")
	}
	b.WriteString(",50.0," + class + "\n")

	return b.String()
}
