package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/absmach/fedsim/pkg/sdk"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	DefTLSVerification        = false
	DefCoordinatorURL         = "http://localhost:8080"
	defOffset          uint64 = 0
	defLimit           uint64 = 10
)

var (
	runInstitutions    int
	runRounds          int
	runLocalEpochs     int
	runBatchSize       int
	runStrategy        string
	runThreshold       int
	runUseDP           bool
	runUseSecureAgg    bool
	runL2NormClip      float64
	runNoiseMultiplier float64
	runDelta           float64
	runBaseline        bool
	runSamples         int
	runFraudRatio      float64
	runCSVPath         string
	runSeed            int64
	runSchedule        string
	runRecurring       bool
	runName            string
	watchInterval      time.Duration
)

var fsdk sdk.SDK

func SetSDK(s sdk.SDK) {
	fsdk = s
}

func NewRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs [create|view|list|update|delete|start|stop|status|history|budget|institutions|attacks|predict|watch]",
		Short: "Runs manager",
		Long:  `Create, inspect and drive federated training runs.`,
	}

	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create run",
		Long: `Create a training run. Unset knobs fall back to coordinator defaults.

Examples:
  # Create a basic run
  fedsim-cli runs create my-run

  # Five hospitals, secure aggregation and differential privacy
  fedsim-cli runs create hospitals --institutions=5 --rounds=20 --dp --secure-agg

  # Recurring nightly retrain
  fedsim-cli runs create nightly --schedule="0 2 * * *" --recurring`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			r, err := fsdk.CreateRun(sdk.Run{
				Name:      args[0],
				Schedule:  runSchedule,
				Recurring: runRecurring,
				Config: sdk.RunConfig{
					Institutions:    runInstitutions,
					Rounds:          runRounds,
					LocalEpochs:     runLocalEpochs,
					BatchSize:       runBatchSize,
					UseDP:           runUseDP,
					UseSecureAgg:    runUseSecureAgg,
					Strategy:        runStrategy,
					Threshold:       runThreshold,
					L2NormClip:      runL2NormClip,
					NoiseMultiplier: runNoiseMultiplier,
					Delta:           runDelta,
					CompareBaseline: runBaseline,
					Dataset: sdk.DatasetConfig{
						Samples:    runSamples,
						FraudRatio: runFraudRatio,
						CSVPath:    runCSVPath,
						Seed:       runSeed,
					},
				},
			})
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, r)
		},
	}

	createCmd.Flags().IntVar(&runInstitutions, "institutions", 0, "Number of participating institutions")
	createCmd.Flags().IntVar(&runRounds, "rounds", 0, "Number of federated rounds")
	createCmd.Flags().IntVar(&runLocalEpochs, "local-epochs", 0, "Local epochs per round")
	createCmd.Flags().IntVar(&runBatchSize, "batch-size", 0, "Local training batch size")
	createCmd.Flags().StringVar(&runStrategy, "strategy", "", "Aggregation strategy (fedavg|median|adaptive|mask|threshold|ckks)")
	createCmd.Flags().IntVar(&runThreshold, "threshold", 0, "Share-recovery threshold for the threshold strategy")
	createCmd.Flags().BoolVar(&runUseDP, "dp", false, "Enable differential privacy")
	createCmd.Flags().BoolVar(&runUseSecureAgg, "secure-agg", false, "Enable secure aggregation")
	createCmd.Flags().Float64Var(&runL2NormClip, "l2-norm-clip", 0, "Update clipping bound")
	createCmd.Flags().Float64Var(&runNoiseMultiplier, "noise-multiplier", 0, "Gaussian noise multiplier")
	createCmd.Flags().Float64Var(&runDelta, "delta", 0, "Privacy delta target")
	createCmd.Flags().BoolVar(&runBaseline, "baseline", false, "Train per-institution local baselines for comparison")
	createCmd.Flags().IntVar(&runSamples, "samples", 0, "Synthetic dataset size")
	createCmd.Flags().Float64Var(&runFraudRatio, "fraud-ratio", 0, "Synthetic fraud ratio")
	createCmd.Flags().StringVar(&runCSVPath, "csv", "", "Load transactions from a CSV file instead of generating them")
	createCmd.Flags().Int64Var(&runSeed, "seed", 0, "Dataset generation seed")
	createCmd.Flags().StringVar(&runSchedule, "schedule", "", "Cron expression for scheduled activation")
	createCmd.Flags().BoolVar(&runRecurring, "recurring", false, "Re-arm the schedule after each activation")

	viewCmd := &cobra.Command{
		Use:   "view <id>",
		Short: "View run",
		Long:  `View run.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			r, err := fsdk.GetRun(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, r)
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		Long:  `List runs.`,
		Run: func(cmd *cobra.Command, _ []string) {
			p, err := fsdk.ListRuns(defOffset, defLimit)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, p)
		},
	}

	updateCmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update run",
		Long:  `Update a run's name or schedule. Only set flags are sent.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			r, err := fsdk.UpdateRun(sdk.Run{
				ID:        args[0],
				Name:      runName,
				Schedule:  runSchedule,
				Recurring: runRecurring,
			})
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, r)
		},
	}

	updateCmd.Flags().StringVar(&runName, "name", "", "New run name")
	updateCmd.Flags().StringVar(&runSchedule, "schedule", "", "Cron expression for scheduled activation")
	updateCmd.Flags().BoolVar(&runRecurring, "recurring", false, "Re-arm the schedule after each activation")

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete run",
		Long:  `Delete run.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			if err := fsdk.DeleteRun(args[0]); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logOKCmd(*cmd)
		},
	}

	startCmd := &cobra.Command{
		Use:   "start <id>",
		Short: "Start run",
		Long:  `Start run.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			if err := fsdk.StartRun(args[0]); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logOKCmd(*cmd)
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop <id>",
		Short: "Stop run",
		Long:  `Stop run.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			if err := fsdk.StopRun(args[0]); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logOKCmd(*cmd)
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Run status",
		Long:  `Show the training status of a run.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			s, err := fsdk.Status(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logSuccessCmd(*cmd, s)
		},
	}

	historyCmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Round history",
		Long:  `Show per-round metrics, budget and communication cost.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			h, err := fsdk.History(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, h)
		},
	}

	budgetCmd := &cobra.Command{
		Use:   "budget <id>",
		Short: "Privacy budget",
		Long:  `Show the accumulated privacy budget of a run.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			b, err := fsdk.Budget(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, b)
		},
	}

	institutionsCmd := &cobra.Command{
		Use:   "institutions <id>",
		Short: "Run institutions",
		Long:  `Show the participating institutions and their partition statistics.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			ins, err := fsdk.Institutions(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, ins)
		},
	}

	attacksCmd := &cobra.Command{
		Use:   "attacks <id>",
		Short: "Evaluate attacks",
		Long:  `Run membership-inference and model-inversion attacks against a completed run.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			rep, err := fsdk.EvaluateAttacks(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, rep)
		},
	}

	predictCmd := &cobra.Command{
		Use:   "predict <id> <features.json>",
		Short: "Score transactions",
		Long: `Score transactions with the global model of a completed run.

The features file holds a JSON array of feature rows:
  [[0.1, 0.2, ...], [0.3, 0.4, ...]]`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 2 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			data, err := os.ReadFile(args[1])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			var rows [][]float64
			if err := json.Unmarshal(data, &rows); err != nil {
				logErrorCmd(*cmd, fmt.Errorf("invalid features file: %w", err))

				return
			}

			preds, err := fsdk.Predict(args[0], rows)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, preds)
		},
	}

	watchCmd := &cobra.Command{
		Use:   "watch <id>",
		Short: "Watch run progress",
		Long:  `Follow a running training until it completes or fails.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			if err := watchRun(cmd, args[0]); err != nil {
				logErrorCmd(*cmd, err)
			}
		},
	}

	watchCmd.Flags().DurationVar(&watchInterval, "interval", 2*time.Second, "Polling interval")

	cmd.AddCommand(createCmd)
	cmd.AddCommand(viewCmd)
	cmd.AddCommand(listCmd)
	cmd.AddCommand(updateCmd)
	cmd.AddCommand(deleteCmd)
	cmd.AddCommand(startCmd)
	cmd.AddCommand(stopCmd)
	cmd.AddCommand(statusCmd)
	cmd.AddCommand(historyCmd)
	cmd.AddCommand(budgetCmd)
	cmd.AddCommand(institutionsCmd)
	cmd.AddCommand(attacksCmd)
	cmd.AddCommand(predictCmd)
	cmd.AddCommand(watchCmd)

	cmd.PersistentFlags().Uint64VarP(
		&defOffset,
		"offset",
		"o",
		defOffset,
		"Offset",
	)

	cmd.PersistentFlags().Uint64VarP(
		&defLimit,
		"limit",
		"l",
		defLimit,
		"Limit",
	)

	return cmd
}

func watchRun(cmd *cobra.Command, id string) error {
	r, err := fsdk.GetRun(id)
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions(r.Config.Rounds,
		progressbar.OptionSetDescription(r.Name),
		progressbar.OptionSetWriter(cmd.OutOrStdout()),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(cmd.OutOrStdout())
		}),
	)
	if err := bar.Set(r.Round); err != nil {
		return err
	}

	for {
		switch {
		case r.Status == "completed":
			if err := bar.Finish(); err != nil {
				return err
			}
			logSuccessCmd(*cmd, "completed")
			if r.FinalMetrics != nil {
				logJSONCmd(*cmd, r.FinalMetrics)
			}

			return nil
		case strings.HasPrefix(r.Status, "failed"):
			return fmt.Errorf("run %s: %s", id, r.Status)
		}

		time.Sleep(watchInterval)

		r, err = fsdk.GetRun(id)
		if err != nil {
			return err
		}
		if err := bar.Set(r.Round); err != nil {
			return err
		}
	}
}
