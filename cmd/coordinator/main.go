package main

import (
	"context"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/absmach/supermq/pkg/server"
	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/absmach/fedsim/fedsimd"
	"github.com/absmach/fedsim/pkg/storage"
)

const (
	defHTTPPort   = "8080"
	envPrefixHTTP = "COORDINATOR_HTTP_"
	pathEnv       = ".env"
)

type envConfig struct {
	LogLevel          string        `env:"COORDINATOR_LOG_LEVEL"           envDefault:"info"`
	InstanceID        string        `env:"COORDINATOR_INSTANCE_ID"`
	ResultsDir        string        `env:"COORDINATOR_RESULTS_DIR"         envDefault:"./results"`
	ModelsDir         string        `env:"COORDINATOR_MODELS_DIR"          envDefault:"./models"`
	MQTTAddress       string        `env:"COORDINATOR_MQTT_ADDRESS"`
	MQTTUsername      string        `env:"COORDINATOR_MQTT_USERNAME"`
	MQTTPassword      string        `env:"COORDINATOR_MQTT_PASSWORD"`
	MQTTQoS           uint8         `env:"COORDINATOR_MQTT_QOS"            envDefault:"2"`
	MQTTTimeout       time.Duration `env:"COORDINATOR_MQTT_TIMEOUT"        envDefault:"30s"`
	CronCheckInterval time.Duration `env:"COORDINATOR_CRON_CHECK_INTERVAL" envDefault:"1m"`
	InversionSteps    int           `env:"COORDINATOR_INVERSION_STEPS"     envDefault:"100"`
	OTELURL           url.URL       `env:"COORDINATOR_OTEL_URL"`
	TraceRatio        float64       `env:"COORDINATOR_TRACE_RATIO"         envDefault:"0"`
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := os.Stat(pathEnv); err == nil {
		_ = godotenv.Load(pathEnv)
	}

	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load configuration : %s", err.Error())
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	storageConfig := storage.Config{}
	if err := env.Parse(&storageConfig); err != nil {
		log.Fatalf("failed to load storage configuration : %s", err.Error())
	}

	httpServerConfig := server.Config{Port: defHTTPPort}
	if err := env.ParseWithOptions(&httpServerConfig, env.Options{Prefix: envPrefixHTTP}); err != nil {
		log.Fatalf("failed to load HTTP server configuration : %s", err.Error())
	}

	if err := fedsimd.StartCoordinator(ctx, cancel, fedsimd.Config{
		LogLevel:          cfg.LogLevel,
		InstanceID:        cfg.InstanceID,
		ResultsDir:        cfg.ResultsDir,
		ModelsDir:         cfg.ModelsDir,
		MQTTAddress:       cfg.MQTTAddress,
		MQTTUsername:      cfg.MQTTUsername,
		MQTTPassword:      cfg.MQTTPassword,
		MQTTQoS:           cfg.MQTTQoS,
		MQTTTimeout:       cfg.MQTTTimeout,
		CronCheckInterval: cfg.CronCheckInterval,
		InversionSteps:    cfg.InversionSteps,
		Storage:           storageConfig,
		Server:            httpServerConfig,
		OTELURL:           cfg.OTELURL,
		TraceRatio:        cfg.TraceRatio,
	}); err != nil {
		log.Fatalf("coordinator exited : %s", err.Error())
	}
}
