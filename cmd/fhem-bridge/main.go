// Package main implements the FHEM event bridge. It subscribes to the
// event stream of one FHEM server and republishes every event to NATS
// subjects and MQTT topics, with optional Prometheus metrics.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/c360/gofhem"
	"github.com/c360/gofhem/event"
	"github.com/c360/gofhem/health"
	"github.com/c360/gofhem/metric"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "fhem-bridge"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Bridge failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, logger, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := loadBridgeConfig(cliCfg.ConfigPath)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	registry, monitor, stopMetrics := setupMetrics(cfg, logger)
	defer stopMetrics()

	publishers, err := setupPublishers(cfg, logger)
	if err != nil {
		return err
	}
	defer closeAll(publishers)
	for _, p := range publishers {
		monitor.SetHealthy(p.Name(), "connected")
	}

	queue, err := setupQueue(cfg, registry, logger)
	if err != nil {
		return err
	}

	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := queue.Start(signalCtx); err != nil {
		return fmt.Errorf("start event stream: %w", err)
	}
	monitor.SetHealthy("stream", "listening")

	b := &bridge{
		queue:      queue,
		publishers: publishers,
		metrics:    bridgeMetrics(registry),
		health:     monitor,
		logger:     logger,
		source:     cfg.FHEM.Server,
	}

	slog.Info("Bridge running", "sinks", sinkNames(publishers), "filters", len(cfg.Filters))
	runErr := b.run(signalCtx)

	if err := queue.Stop(cliCfg.ShutdownTimeout); err != nil {
		logger.Warn("Event stream did not stop in time", "error", err)
	}
	if runErr != nil {
		return fmt.Errorf("event stream died: %w", runErr)
	}

	slog.Info("Bridge shutdown complete")
	return nil
}

// initializeCLI parses flags and sets up logging
func initializeCLI() (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting FHEM bridge",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, logger, false, nil
}

// setupMetrics starts the Prometheus endpoint when enabled and hangs a
// health monitor off its /health path. Both return values are nil when
// metrics are off, which the library treats as a no-op.
func setupMetrics(cfg *BridgeConfig, logger *slog.Logger) (*metric.MetricsRegistry, *health.Monitor, func()) {
	if !cfg.Metrics.Enabled {
		return nil, nil, func() {}
	}

	registry := metric.NewMetricsRegistry()
	monitor := health.NewMonitor()

	server := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)
	server.SetHealthHandler(health.Handler(monitor, appName))
	go func() {
		if err := server.Start(); err != nil {
			logger.Error("Metrics server failed", "error", err)
		}
	}()

	logger.Info("Metrics endpoint up", "address", server.Address())
	return registry, monitor, func() { _ = server.Stop() }
}

// setupPublishers connects the enabled sinks. A sink that cannot
// connect aborts startup; the bridge never runs half-configured.
func setupPublishers(cfg *BridgeConfig, logger *slog.Logger) ([]publisher, error) {
	var publishers []publisher

	if cfg.NATS.Enabled {
		p, err := newNATSPublisher(cfg.NATS, logger)
		if err != nil {
			closeAll(publishers)
			return nil, err
		}
		publishers = append(publishers, p)
	}

	if cfg.MQTT.Enabled {
		p, err := newMQTTPublisher(cfg.MQTT, logger)
		if err != nil {
			closeAll(publishers)
			return nil, err
		}
		publishers = append(publishers, p)
	}

	return publishers, nil
}

// setupQueue builds the event queue from the bridge config.
func setupQueue(cfg *BridgeConfig, registry *metric.MetricsRegistry, logger *slog.Logger) (*gofhem.EventQueue, error) {
	opts := []gofhem.EventQueueOption{gofhem.WithQueueLogger(logger)}

	if len(cfg.Filters) > 0 {
		filters := make([]event.Filter, 0, len(cfg.Filters))
		for _, f := range cfg.Filters {
			filters = append(filters, event.Filter(f))
		}
		fl, err := event.NewFilterList(filters...)
		if err != nil {
			return nil, fmt.Errorf("build filters: %w", err)
		}
		opts = append(opts, gofhem.WithFilters(fl))
	}
	if cfg.FHEM.ServerRegex != "" {
		opts = append(opts, gofhem.WithServerRegex(cfg.FHEM.ServerRegex))
	}
	if cfg.FHEM.RawValues {
		opts = append(opts, gofhem.WithRawValues())
	}
	if registry != nil {
		opts = append(opts, gofhem.WithMetrics(registry))
	}

	return gofhem.NewEventQueue(cfg.fhemConfig(), opts...)
}

func bridgeMetrics(registry *metric.MetricsRegistry) *metric.Metrics {
	if registry == nil {
		return nil
	}
	return registry.Metrics
}

func closeAll(publishers []publisher) {
	for _, p := range publishers {
		p.Close()
	}
}

func sinkNames(publishers []publisher) []string {
	names := make([]string, 0, len(publishers))
	for _, p := range publishers {
		names = append(names, p.Name())
	}
	return names
}
