package main

import (
	"log"

	"github.com/absmach/fedsim/cli"
	"github.com/absmach/fedsim/pkg/sdk"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fedsim-cli",
		Short: "Fedsim CLI",
		Long:  `Fedsim CLI is a command line interface for driving the federated training coordinator.`,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			sdkConf := sdk.Config{
				CoordinatorURL:  cli.DefCoordinatorURL,
				TLSVerification: cli.DefTLSVerification,
			}
			s := sdk.NewSDK(sdkConf)
			cli.SetSDK(s)
		},
	}

	rootCmd.PersistentFlags().StringVarP(
		&cli.DefCoordinatorURL,
		"coordinator-url",
		"c",
		cli.DefCoordinatorURL,
		"Coordinator URL",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&cli.DefTLSVerification,
		"tls-verification",
		"v",
		cli.DefTLSVerification,
		"TLS Verification",
	)

	runsCmd := cli.NewRunsCmd()
	scenarioCmd := cli.NewScenarioCmd()

	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(scenarioCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
