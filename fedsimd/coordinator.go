package fedsimd

import (
	"context"
	"time"

	"github.com/absmach/supermq/pkg/server"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/absmach/fedsim/pkg/storage"
)

var (
	logLevel          = "info"
	instanceID        = uuid.NewString()
	httpPort          = "8080"
	storageType       = "memory"
	sqlitePath        = "./fedsim.db"
	badgerPath        = "./data/badger"
	resultsDir        = "./results"
	modelsDir         = "./models"
	mqttAddress       = ""
	mqttTimeout       = 30 * time.Second
	cronCheckInterval = time.Minute
	inversionSteps    = 100
)

var coordinatorCmd = []cobra.Command{
	{
		Use:   "start",
		Short: "Start coordinator",
		Long:  `Start coordinator.`,
		Run: func(cmd *cobra.Command, _ []string) {
			cfg := Config{
				LogLevel:          logLevel,
				InstanceID:        instanceID,
				ResultsDir:        resultsDir,
				ModelsDir:         modelsDir,
				MQTTAddress:       mqttAddress,
				MQTTQoS:           2,
				MQTTTimeout:       mqttTimeout,
				CronCheckInterval: cronCheckInterval,
				InversionSteps:    inversionSteps,
				Storage: storage.Config{
					Type:       storageType,
					SQLitePath: sqlitePath,
					BadgerPath: badgerPath,
				},
				Server: server.Config{
					Port: httpPort,
				},
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			if err := StartCoordinator(ctx, cancel, cfg); err != nil {
				cmd.PrintErrf("failed to start coordinator: %s", err.Error())
			}
			cancel()
		},
	},
}

func NewCoordinatorCmd() *cobra.Command {
	cmd := cobra.Command{
		Use:   "coordinator [start]",
		Short: "Coordinator management",
		Long:  `Start the federated training coordinator.`,
	}

	for i := range coordinatorCmd {
		cmd.AddCommand(&coordinatorCmd[i])
	}

	cmd.PersistentFlags().StringVarP(
		&logLevel,
		"log-level",
		"l",
		logLevel,
		"Log level",
	)

	cmd.PersistentFlags().StringVarP(
		&instanceID,
		"instance-id",
		"i",
		instanceID,
		"Instance ID",
	)

	cmd.PersistentFlags().StringVarP(
		&httpPort,
		"http-port",
		"p",
		httpPort,
		"HTTP server port",
	)

	cmd.PersistentFlags().StringVarP(
		&storageType,
		"storage",
		"s",
		storageType,
		"Storage backend (memory|sqlite|badger|postgres)",
	)

	cmd.PersistentFlags().StringVar(
		&sqlitePath,
		"sqlite-path",
		sqlitePath,
		"SQLite database path",
	)

	cmd.PersistentFlags().StringVar(
		&badgerPath,
		"badger-path",
		badgerPath,
		"Badger database directory",
	)

	cmd.PersistentFlags().StringVar(
		&resultsDir,
		"results-dir",
		resultsDir,
		"Results artifact directory",
	)

	cmd.PersistentFlags().StringVar(
		&modelsDir,
		"models-dir",
		modelsDir,
		"Model snapshot directory",
	)

	cmd.PersistentFlags().StringVarP(
		&mqttAddress,
		"mqtt-address",
		"m",
		mqttAddress,
		"MQTT broker address (empty disables run events)",
	)

	cmd.PersistentFlags().DurationVar(
		&cronCheckInterval,
		"cron-interval",
		cronCheckInterval,
		"Scheduled run check interval",
	)

	return &cmd
}
