// Package main implements dvlbridge, which reads the Water Linked DVL A50
// JSON stream and republishes it on NATS as raw frames and velocity reports.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/c360/dvlstreams/component"
	"github.com/c360/dvlstreams/config"
	"github.com/c360/dvlstreams/health"
	"github.com/c360/dvlstreams/input/sensor"
	"github.com/c360/dvlstreams/metric"
	"github.com/c360/dvlstreams/natsclient"
	"github.com/c360/dvlstreams/output/natspub"
	"github.com/c360/dvlstreams/output/shadow"
	"github.com/c360/dvlstreams/output/websocket"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "dvlbridge"
)

const observeInterval = 5 * time.Second

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	cliCfg, err := parseFlags(fs, args)
	if err != nil {
		if err == flag.ErrHelp {
			return nil
		}
		return fmt.Errorf("parse flags: %w", err)
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp(fs)
		return nil
	}

	logger := setupLogger(os.Stdout, cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := loadConfig(cliCfg)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		fmt.Println(cfg.String())
		slog.Info("Configuration is valid")
		return nil
	}

	slog.Info("Starting dvlbridge",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath,
		"sensor", cfg.Sensor.Address(),
		"transport", cfg.Sensor.Transport,
		"do_log_raw_data", cfg.Sensor.DoLogRawData)

	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	return runBridge(signalCtx, cfg, cliCfg.ShutdownTimeout, logger)
}

// loadConfig layers the optional file, DVL_* environment and CLI flags, in
// that order, and validates the result.
func loadConfig(cliCfg *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	if cliCfg.ConfigPath != "" {
		loader.AddLayer(cliCfg.ConfigPath)
	}
	// flags are applied after loading, so validate once at the end
	loader.EnableValidation(false)

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cliCfg.applyOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// runBridge wires the components and blocks until ctx is cancelled or the
// sensor input stops on a fatal error.
func runBridge(ctx context.Context, cfg *config.Config, shutdownTimeout time.Duration, logger *slog.Logger) error {
	registry := metric.NewMetricsRegistry()
	core := registry.CoreMetrics()

	natsClient, err := newNATSClient(cfg.NATS, core, logger)
	if err != nil {
		return err
	}
	if err := connectToNATS(ctx, natsClient); err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := natsClient.Close(closeCtx); err != nil {
			slog.Warn("NATS close failed", "error", err)
		}
	}()

	sink, err := natspub.NewSink(natspub.SinkDeps{
		Publisher:       natsClient,
		Config:          cfg.Publish,
		MetricsRegistry: registry,
		Logger:          logger.With("component", "natspub"),
	})
	if err != nil {
		return fmt.Errorf("create publisher: %w", err)
	}

	var reports sensor.ReportSink = sink
	store, err := shadow.New(ctx, cfg.Shadow, natsClient, logger.With("component", "shadow"))
	if err != nil {
		return fmt.Errorf("open shadow store: %w", err)
	}
	if store != nil {
		defer func() {
			if err := store.Close(); err != nil {
				slog.Warn("Shadow store close failed", "error", err)
			}
		}()
		reports = natspub.Fanout{sink, store}
		slog.Info("Shadow store enabled", "backend", cfg.Shadow.Backend, "key", cfg.Shadow.Key)
	}

	input := sensor.NewInput(sensor.InputDeps{
		Config:          cfg.Sensor,
		Raw:             sink,
		Report:          reports,
		MetricsRegistry: registry,
		Logger:          logger.With("component", "dvl-input"),
	})

	manager := component.NewManager(logger)
	if err := manager.Add(input); err != nil {
		return err
	}
	if cfg.WebSocket.Enabled {
		out := websocket.NewOutput(websocket.OutputDeps{
			Config:          cfg.WebSocket,
			Subject:         cfg.WebSocketSubject(),
			Encoding:        cfg.Publish.Encoding,
			NATSClient:      natsClient,
			MetricsRegistry: registry,
			Logger:          logger.With("component", "websocket-output"),
		})
		if err := manager.Add(out); err != nil {
			return err
		}
	}

	if err := manager.Initialize(); err != nil {
		return fmt.Errorf("initialize components: %w", err)
	}
	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("start components: %w", err)
	}

	monitor := health.NewMonitor()
	obs := &observer{
		manager:    manager,
		nats:       natsClient,
		core:       core,
		monitor:    monitor,
		staleAfter: cfg.Metrics.StaleAfter,
	}
	obs.observe()

	serverErr := make(chan error, 1)
	if cfg.Metrics.Enabled {
		server := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry, obs.healthStatus)
		go func() { serverErr <- server.Start() }()
		defer func() { _ = server.Stop() }()
		slog.Info("Metrics server listening", "address", server.Address())
	}

	go obs.loop(ctx)

	slog.Info("dvlbridge started")

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("Received shutdown signal")
	case <-input.Done():
		runErr = input.Err()
		if runErr != nil {
			slog.Error("DVL input stopped", "error", runErr)
		}
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("metrics server: %w", err)
		}
	}

	if err := manager.Stop(shutdownTimeout); err != nil {
		slog.Error("Error stopping components", "error", err)
		if runErr == nil {
			runErr = fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	slog.Info("dvlbridge shutdown complete",
		"reports", input.Reports())
	return runErr
}

func newNATSClient(cfg config.NATSConfig, core *metric.Metrics, logger *slog.Logger) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithMaxReconnects(cfg.MaxReconnects),
		natsclient.WithReconnectWait(cfg.ReconnectWait),
		natsclient.WithLogger(logger.With("component", "natsclient")),
		natsclient.WithReconnectCallback(core.RecordNATSReconnect),
		natsclient.WithHealthChangeCallback(core.RecordNATSStatus),
	}
	if cfg.ClientName != "" {
		opts = append(opts, natsclient.WithName(cfg.ClientName))
	}
	if cfg.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.Token))
	}

	// nats.Connect accepts a comma separated server list
	client, err := natsclient.NewClient(strings.Join(cfg.URLs, ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}
	return client, nil
}

// connectToNATS establishes NATS connection and waits for it to be ready
func connectToNATS(ctx context.Context, natsClient *natsclient.Client) error {
	slog.Info("Connecting to NATS", "url", natsClient.URL())
	if err := natsClient.Connect(ctx); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := natsClient.WaitForConnection(connCtx); err != nil {
		return fmt.Errorf("NATS connection timeout: %w", err)
	}
	return nil
}
