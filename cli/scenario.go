package cli

import (
	"strconv"

	"github.com/absmach/fedsim"
	"github.com/absmach/fedsim/pkg/sdk"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

const defScenarioPath = "scenario.toml"

var scenarioWatch bool

func NewScenarioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenario [new|view|run]",
		Short: "Scenario manager",
		Long:  `Build, inspect and execute TOML scenario files.`,
	}

	newCmd := &cobra.Command{
		Use:   "new [path]",
		Short: "Build scenario",
		Long:  `Build a scenario file interactively and save it as TOML (default scenario.toml).`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) > 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}
			path := defScenarioPath
			if len(args) == 1 {
				path = args[0]
			}

			s, err := buildScenarioForm()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			if err := s.Save(path); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logSuccessCmd(*cmd, "Saved scenario to "+path)
			logJSONCmd(*cmd, s)
		},
	}

	viewCmd := &cobra.Command{
		Use:   "view <path>",
		Short: "View scenario",
		Long:  `View a scenario file.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			s, err := fedsim.LoadScenario(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, s)
		},
	}

	runCmd := &cobra.Command{
		Use:   "run <path>",
		Short: "Run scenario",
		Long:  `Create and start a run from a scenario file.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			s, err := fedsim.LoadScenario(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			r, err := fsdk.CreateRun(scenarioRun(*s))
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			if r.Schedule != "" {
				logSuccessCmd(*cmd, "Scheduled run "+r.ID)
				logJSONCmd(*cmd, r)

				return
			}

			if err := fsdk.StartRun(r.ID); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logSuccessCmd(*cmd, "Started run "+r.ID)

			if scenarioWatch {
				if err := watchRun(cmd, r.ID); err != nil {
					logErrorCmd(*cmd, err)
				}

				return
			}
			logJSONCmd(*cmd, r)
		},
	}

	runCmd.Flags().BoolVar(&scenarioWatch, "watch", false, "Follow the run until it finishes")
	runCmd.Flags().DurationVar(&watchInterval, "interval", watchInterval, "Polling interval when watching")

	cmd.AddCommand(newCmd)
	cmd.AddCommand(viewCmd)
	cmd.AddCommand(runCmd)

	return cmd
}

func buildScenarioForm() (fedsim.Scenario, error) {
	var (
		name         string
		strategy     string
		institutions string
		rounds       string
		localEpochs  string
		batchSize    string
		useDP        bool
		useSecAgg    bool
		baseline     bool
		samples      string
		fraudRatio   string
		seed         string
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Run name").
				Placeholder("hospital-consortium").
				Value(&name),
			huh.NewSelect[string]().
				Title("Aggregation strategy").
				Options(huh.NewOptions(
					"fedavg", "median", "adaptive", "mask", "threshold", "ckks",
				)...).
				Value(&strategy),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Institutions").
				Placeholder("5").
				Validate(validInt).
				Value(&institutions),
			huh.NewInput().
				Title("Rounds").
				Placeholder("10").
				Validate(validInt).
				Value(&rounds),
			huh.NewInput().
				Title("Local epochs per round").
				Placeholder("5").
				Validate(validInt).
				Value(&localEpochs),
			huh.NewInput().
				Title("Batch size").
				Placeholder("32").
				Validate(validInt).
				Value(&batchSize),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable differential privacy?").
				Value(&useDP),
			huh.NewConfirm().
				Title("Enable secure aggregation?").
				Value(&useSecAgg),
			huh.NewConfirm().
				Title("Train local baselines for comparison?").
				Value(&baseline),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Synthetic dataset size").
				Placeholder("5000").
				Validate(validInt).
				Value(&samples),
			huh.NewInput().
				Title("Fraud ratio").
				Placeholder("0.1").
				Validate(validFloat).
				Value(&fraudRatio),
			huh.NewInput().
				Title("Generation seed").
				Placeholder("0").
				Validate(validInt).
				Value(&seed),
		),
	)

	if err := form.Run(); err != nil {
		return fedsim.Scenario{}, err
	}

	return fedsim.Scenario{
		Name: name,
		Training: fedsim.TrainingConfig{
			Institutions:    atoi(institutions),
			Rounds:          atoi(rounds),
			LocalEpochs:     atoi(localEpochs),
			BatchSize:       atoi(batchSize),
			Strategy:        strategy,
			CompareBaseline: baseline,
		},
		Privacy: fedsim.PrivacyConfig{
			DifferentialPrivacy: useDP,
			SecureAggregation:   useSecAgg,
		},
		Dataset: fedsim.DatasetConfig{
			Samples:    atoi(samples),
			FraudRatio: atof(fraudRatio),
			Seed:       int64(atoi(seed)),
		},
	}, nil
}

func scenarioRun(s fedsim.Scenario) sdk.Run {
	return sdk.Run{
		Name:      s.Name,
		Schedule:  s.Schedule,
		Recurring: s.Recurring,
		Config: sdk.RunConfig{
			Institutions:    s.Training.Institutions,
			Rounds:          s.Training.Rounds,
			LocalEpochs:     s.Training.LocalEpochs,
			BatchSize:       s.Training.BatchSize,
			Strategy:        s.Training.Strategy,
			CompareBaseline: s.Training.CompareBaseline,
			UseDP:           s.Privacy.DifferentialPrivacy,
			UseSecureAgg:    s.Privacy.SecureAggregation,
			Threshold:       s.Privacy.Threshold,
			L2NormClip:      s.Privacy.L2NormClip,
			NoiseMultiplier: s.Privacy.NoiseMultiplier,
			Delta:           s.Privacy.Delta,
			Dataset: sdk.DatasetConfig{
				Samples:      s.Dataset.Samples,
				FraudRatio:   s.Dataset.FraudRatio,
				TestFraction: s.Dataset.TestFraction,
				CSVPath:      s.Dataset.CSVPath,
				Seed:         s.Dataset.Seed,
			},
		},
	}
}

// Empty means "use the coordinator default".
func validInt(s string) error {
	if s == "" {
		return nil
	}
	_, err := strconv.Atoi(s)

	return err
}

func validFloat(s string) error {
	if s == "" {
		return nil
	}
	_, err := strconv.ParseFloat(s, 64)

	return err
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)

	return n
}

func atof(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)

	return f
}
