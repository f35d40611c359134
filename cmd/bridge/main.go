package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"heating-mqtt-bridge/internal/config"
	bridgeerrors "heating-mqtt-bridge/internal/errors"
	"heating-mqtt-bridge/internal/health"
	"heating-mqtt-bridge/internal/logger"
	"heating-mqtt-bridge/internal/metrics"
	"heating-mqtt-bridge/internal/pipeline"
	"heating-mqtt-bridge/internal/store"
	"heating-mqtt-bridge/internal/transport"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := pflag.StringP("config", "c", "", "path to config.yaml (default: /etc/heating-bridge or working directory)")
	simulate := pflag.Bool("simulate", false, "poll an in-process simulated device and keep readings in memory")
	showVersion := pflag.BoolP("version", "v", false, "print version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	if err := run(*configPath, *simulate); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode logs the error that ended run and maps it to its diagnostic code
func exitCode(err error) int {
	if !bridgeerrors.IsRecoverable(err) {
		logger.LogError("🔴 Unrecoverable error, fix the configuration and restart: %v", err)
	} else {
		logger.LogError("❌ %v", err)
	}
	return bridgeerrors.GetDiagnosticCode(err)
}

func run(configPath string, simulate bool) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}

	closeLog, err := logger.Setup(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()
	logger.LogStartup("🔧 Logging initialized with level: %s", cfg.Logging.Level)
	logger.LogStartup("🚀 Heating bridge %s starting", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		collector   metrics.MetricsCollector = metrics.NewNullMetrics()
		metricsHTTP http.Handler
	)
	if cfg.Metrics.Port > 0 {
		prom := metrics.NewPrometheusMetrics()
		prom.Registry().MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		collector = prom
		metricsHTTP = prom.Handler()
	}

	sink, err := openSink(ctx, cfg, simulate)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := sink.Close(closeCtx); err != nil {
			logger.LogWarn("⚠️ Error closing store: %v", err)
		}
	}()

	tr, err := openTransport(ctx, cfg, simulate, collector)
	if err != nil {
		return err
	}

	settings, err := pipeline.NewSettings(cfg)
	if err != nil {
		return err
	}
	p, err := pipeline.New(settings, pipeline.Deps{
		Transport: tr,
		Sink:      sink,
		Logger:    logger.NewStandardLogger("pipeline"),
		Metrics:   collector,
	})
	if err != nil {
		_ = tr.Close()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.Run(gctx, shutdownTimeout)
	})
	if cfg.Metrics.Port > 0 {
		hh := health.NewHealthHandler(p, staleAfter(settings.Polling), version)
		g.Go(func() error {
			return health.Serve(gctx, cfg.Metrics.Port, health.NewMux(hh, metricsHTTP))
		})
	}

	err = g.Wait()
	logger.LogInfo("✅ Heating bridge stopped")
	return err
}

func openSink(ctx context.Context, cfg *config.Config, simulate bool) (store.Sink, error) {
	if simulate {
		logger.LogInfo("🧪 Simulation mode: readings are kept in memory")
		return store.NewMemorySink(), nil
	}
	return store.New(ctx, config.NewStorageSettings(cfg))
}

func openTransport(ctx context.Context, cfg *config.Config, simulate bool, collector metrics.MetricsCollector) (transport.Transport, error) {
	if simulate {
		mem := transport.NewMemoryTransport(cfg.MQTT.InboundBuffer)
		mem.SetResponder(newSimulator(config.NewTopicSettings(cfg), time.Now).Respond)
		return mem, nil
	}

	mqttTransport := transport.NewMQTTTransport(config.NewMQTTSettings(cfg), collector)
	if err := mqttTransport.Connect(ctx); err != nil {
		return nil, fmt.Errorf("error connecting to broker: %w", err)
	}
	return mqttTransport, nil
}

// staleAfter allows three missed polls of the slower cadence before health degrades
func staleAfter(p config.PollingSettings) time.Duration {
	slowest := p.HeaterInterval
	if p.RoomInterval > slowest {
		slowest = p.RoomInterval
	}
	return 3 * slowest
}
