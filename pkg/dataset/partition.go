package dataset

import (
	"fmt"
	randv2 "math/rand/v2"
)

// Split is the fully prepared input of one training run: disjoint
// per-institution partitions covering the training population, the
// held-out global test set, and the scaler fitted on the training rows.
type Split struct {
	Partitions []Partition
	Test       Partition
	Scaler     *Scaler
}

// Load builds the partitions for a run. The population comes from the
// configured CSV file when one is set, otherwise from the synthetic
// generator. Shuffling, the test split, and partition boundaries are all
// deterministic for a given seed.
func Load(cfg Config, institutions int) (*Split, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if institutions < 1 {
		return nil, fmt.Errorf("%w: institution count must be positive, got %d",
			ErrInvalidConfig, institutions)
	}

	var (
		ds  *Dataset
		err error
	)
	if cfg.CSVPath != "" {
		if ds, err = LoadCSV(cfg.CSVPath); err != nil {
			return nil, err
		}
	} else {
		ds = Generate(cfg)
	}

	features := ds.featureMatrix()
	labels := ds.labels()
	n := len(labels)

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	rng := randv2.New(randv2.NewPCG(uint64(cfg.Seed)+2, uint64(cfg.Seed)+3))
	rng.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

	testN := int(float64(n) * cfg.TestFraction)
	if testN < 1 {
		testN = 1
	}
	trainN := n - testN
	if trainN < institutions {
		return nil, fmt.Errorf("%w: %d training rows cannot cover %d institutions",
			ErrInvalidConfig, trainN, institutions)
	}

	testIdx, trainIdx := idx[:testN], idx[testN:]

	trainFeatures := make([][]float64, trainN)
	trainLabels := make([]float64, trainN)
	for i, j := range trainIdx {
		trainFeatures[i] = features[j]
		trainLabels[i] = labels[j]
	}

	scaler := FitScaler(trainFeatures)
	trainFeatures = scaler.Transform(trainFeatures)

	testFeatures := make([][]float64, testN)
	testLabels := make([]float64, testN)
	for i, j := range testIdx {
		testFeatures[i] = scaler.TransformRow(features[j])
		testLabels[i] = labels[j]
	}

	base := trainN / institutions
	extra := trainN % institutions
	partitions := make([]Partition, institutions)
	offset := 0
	for i := 0; i < institutions; i++ {
		size := base
		if i < extra {
			size++
		}
		partitions[i] = Partition{
			ID:       i,
			Features: trainFeatures[offset : offset+size],
			Labels:   trainLabels[offset : offset+size],
		}
		offset += size
	}

	return &Split{
		Partitions: partitions,
		Test:       Partition{ID: -1, Features: testFeatures, Labels: testLabels},
		Scaler:     scaler,
	}, nil
}
