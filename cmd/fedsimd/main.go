package main

import (
	"log"

	"github.com/absmach/fedsim/fedsimd"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fedsimd",
		Short: "Fedsim Daemon",
		Long:  `Fedsim Daemon manages the lifecycle of the federated training coordinator.`,
	}

	coordinatorCmd := fedsimd.NewCoordinatorCmd()

	rootCmd.AddCommand(coordinatorCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
