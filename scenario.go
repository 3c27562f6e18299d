package fedsim

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml"
)

const scenarioFilePermission = 0o644

// Scenario is the on-disk description of a training run. The CLI turns
// it into a run via the coordinator API.
type Scenario struct {
	Name      string         `toml:"name"`
	Schedule  string         `toml:"schedule,omitempty"`
	Recurring bool           `toml:"recurring,omitempty"`
	Training  TrainingConfig `toml:"training"`
	Privacy   PrivacyConfig  `toml:"privacy"`
	Dataset   DatasetConfig  `toml:"dataset"`
}

type TrainingConfig struct {
	Institutions    int    `toml:"institutions"`
	Rounds          int    `toml:"rounds"`
	LocalEpochs     int    `toml:"local_epochs"`
	BatchSize       int    `toml:"batch_size"`
	Strategy        string `toml:"strategy,omitempty"`
	CompareBaseline bool   `toml:"compare_baseline,omitempty"`
}

type PrivacyConfig struct {
	DifferentialPrivacy bool    `toml:"differential_privacy"`
	SecureAggregation   bool    `toml:"secure_aggregation"`
	Threshold           int     `toml:"threshold,omitempty"`
	L2NormClip          float64 `toml:"l2_norm_clip,omitempty"`
	NoiseMultiplier     float64 `toml:"noise_multiplier,omitempty"`
	Delta               float64 `toml:"delta,omitempty"`
}

type DatasetConfig struct {
	Samples      int     `toml:"samples,omitempty"`
	FraudRatio   float64 `toml:"fraud_ratio,omitempty"`
	TestFraction float64 `toml:"test_fraction,omitempty"`
	CSVPath      string  `toml:"csv_path,omitempty"`
	Seed         int64   `toml:"seed,omitempty"`
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading scenario file: %w", err)
	}

	tree, err := toml.Load(string(data))
	if err != nil {
		return nil, fmt.Errorf("error parsing scenario file: %w", err)
	}

	var s Scenario
	if err := tree.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("error unmarshaling scenario: %w", err)
	}

	return &s, nil
}

func (s Scenario) Save(path string) error {
	data, err := toml.Marshal(s)
	if err != nil {
		return fmt.Errorf("error marshaling scenario: %w", err)
	}

	if err := os.WriteFile(path, data, scenarioFilePermission); err != nil {
		return fmt.Errorf("error writing scenario file: %w", err)
	}

	return nil
}
