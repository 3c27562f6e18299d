package fedsimd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/absmach/supermq/pkg/jaeger"
	"github.com/absmach/supermq/pkg/prometheus"
	"github.com/absmach/supermq/pkg/server"
	httpserver "github.com/absmach/supermq/pkg/server/http"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/absmach/fedsim/coordinator"
	"github.com/absmach/fedsim/coordinator/api"
	"github.com/absmach/fedsim/coordinator/middleware"
	"github.com/absmach/fedsim/pkg/mqtt"
	"github.com/absmach/fedsim/pkg/results"
	"github.com/absmach/fedsim/pkg/storage"
)

const svcName = "coordinator"

type Config struct {
	LogLevel   string
	InstanceID string

	ResultsDir string
	ModelsDir  string

	MQTTAddress  string
	MQTTUsername string
	MQTTPassword string
	MQTTQoS      uint8
	MQTTTimeout  time.Duration

	CronCheckInterval time.Duration
	InversionSteps    int

	Storage    storage.Config
	Server     server.Config
	OTELURL    url.URL
	TraceRatio float64
}

// StartCoordinator wires the coordinator service and blocks until the
// context is cancelled or a server fails.
func StartCoordinator(ctx context.Context, cancel context.CancelFunc, cfg Config) error {
	g, ctx := errgroup.WithContext(ctx)

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return fmt.Errorf("failed to parse log level: %s", err.Error())
	}
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	var tp trace.TracerProvider
	switch {
	case cfg.OTELURL == (url.URL{}):
		tp = noop.NewTracerProvider()
	default:
		sdktp, err := jaeger.NewProvider(ctx, svcName, cfg.OTELURL, cfg.InstanceID, cfg.TraceRatio)
		if err != nil {
			return fmt.Errorf("failed to initialize opentelemetry: %s", err.Error())
		}
		defer func() {
			if err := sdktp.Shutdown(ctx); err != nil {
				slog.Error("error shutting down tracer provider", slog.Any("error", err))
			}
		}()
		tp = sdktp
	}
	tracer := tp.Tracer(svcName)

	var pubsub mqtt.PubSub
	if cfg.MQTTAddress == "" {
		logger.Info("mqtt address not set, run events disabled")
		pubsub = mqtt.NewNoopPubSub()
	} else {
		ps, err := mqtt.NewPubSub(cfg.MQTTAddress, cfg.MQTTQoS, cfg.InstanceID, cfg.MQTTUsername, cfg.MQTTPassword, cfg.MQTTTimeout, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize mqtt pubsub: %s", err.Error())
		}
		pubsub = ps
	}

	repos, err := storage.NewRepositories(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %s", err.Error())
	}
	if repos.Closer != nil {
		defer func() {
			if err := repos.Closer.Close(); err != nil {
				logger.Error("error closing storage", slog.Any("error", err))
			}
		}()
	}

	store, err := results.NewStore(cfg.ResultsDir, cfg.ModelsDir)
	if err != nil {
		return fmt.Errorf("failed to initialize results store: %s", err.Error())
	}

	svc := coordinator.NewService(
		repos.Runs,
		store,
		pubsub,
		coordinator.Engine{InversionSteps: cfg.InversionSteps},
		logger,
	)
	svc = middleware.Logging(logger, svc)
	svc = middleware.Tracing(tracer, svc)
	counter, latency := prometheus.MakeMetrics(svcName, "api")
	svc = middleware.Metrics(counter, latency, svc)

	cs := coordinator.NewCronScheduler(repos.Runs, svc, cfg.CronCheckInterval, logger)
	g.Go(func() error {
		if err := cs.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}

		return nil
	})

	hs := httpserver.NewServer(ctx, cancel, svcName, cfg.Server, api.MakeHandler(svc, logger, cfg.InstanceID), logger)

	g.Go(func() error {
		return hs.Start()
	})

	g.Go(func() error {
		return server.StopSignalHandler(ctx, cancel, logger, svcName, hs)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("%s service exited with error: %s", svcName, err))
	}

	return nil
}
