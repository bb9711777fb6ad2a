// Servo Bridge - MQTT control plane for a fleet of servo devices.
//
// The bridge subscribes to device status over MQTT, keeps an in-memory
// picture of the fleet, and turns operator HTTP requests into device
// commands. A small dashboard is served from the same HTTP listener.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/nerrad567/servo-bridge/internal/api"
	"github.com/nerrad567/servo-bridge/internal/command"
	"github.com/nerrad567/servo-bridge/internal/fleet"
	"github.com/nerrad567/servo-bridge/internal/infrastructure/config"
	"github.com/nerrad567/servo-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/servo-bridge/internal/infrastructure/metrics"
	"github.com/nerrad567/servo-bridge/internal/ingest"
	"github.com/nerrad567/servo-bridge/internal/supervisor"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// healthCheckTimeout bounds the startup health check.
const healthCheckTimeout = 5 * time.Second

// configEnvVar overrides the config path when --config is not given.
const configEnvVar = "SERVOBRIDGE_CONFIG"

// options holds parsed command-line flags.
type options struct {
	configPath  string
	showVersion bool
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if opts.showVersion {
		fmt.Printf("servobridge %s (commit %s, built %s)\n", version, commit, date)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts.configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags parses args into options. The config path falls back to
// SERVOBRIDGE_CONFIG and then to defaultConfigPath.
func parseFlags(args []string) (options, error) {
	var opts options

	flagSet := pflag.NewFlagSet("servobridge", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "path to the YAML configuration file")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version and exit")

	if err := flagSet.Parse(args); err != nil {
		return options{}, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return options{}, fmt.Errorf("unexpected argument: %s", rest[0])
	}

	if opts.configPath == "" {
		opts.configPath = getConfigPath()
	}
	return opts, nil
}

// run wires the bridge together and blocks until ctx is cancelled.
//
// Startup order:
//  1. Configuration and logging
//  2. Fleet registry, WebSocket hub and ingestion queue
//  3. Supervisor (ingestion consumer plus broker session, degraded if the broker is down)
//  4. Command dispatcher and HTTP API
//
// Shutdown runs in reverse.
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting servo bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, found, err := config.LoadOptional(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if found {
		log.Info("configuration loaded", "path", configPath)
	} else {
		log.Info("configuration file not found, using defaults", "path", configPath)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	m := metrics.New()

	registry := fleet.NewRegistry()
	registry.SetLogger(log)

	hub := api.NewHub(cfg.WebSocket, log)

	ingestor := ingest.New(registry, ingest.Options{
		QueueSize: cfg.Ingest.QueueSize,
		Logger:    log,
		Metrics:   m,
		Notifier:  hub,
	})

	sup := supervisor.New(cfg.MQTT, ingestor, supervisor.MQTTDialer(log), log, m)
	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("starting supervisor: %w", err)
	}
	defer func() {
		log.Info("stopping supervisor")
		if stopErr := sup.Stop(); stopErr != nil {
			log.Error("error stopping supervisor", "error", stopErr)
		}
	}()

	dispatcher := command.NewDispatcher(registry, sup, command.Options{
		QoS:        byte(cfg.MQTT.QoS),
		MoveSpeed:  cfg.Commands.MoveSpeed,
		SweepSpeed: cfg.Commands.SweepSpeed,
		Logger:     log,
		Metrics:    m,
	})

	server, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Logger:     log,
		Registry:   registry,
		Dispatcher: dispatcher,
		Discovery:  ingestor,
		Transport:  sup,
		Metrics:    m,
		Hub:        hub,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	healthCtx, healthCancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer healthCancel()
	if err := healthCheck(healthCtx, server, sup, log); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	log.Info("servo bridge started",
		"api", cfg.API.Address(),
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"mqtt_connected", sup.IsConnected(),
	)

	<-ctx.Done()
	log.Info("shutdown signal received")

	return nil
}

// healthChecker is satisfied by the API server and the supervisor.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// healthCheck verifies the bridge came up. The API must be serving; an
// unreachable broker is only logged because the bridge runs degraded and
// keeps retrying in the background.
func healthCheck(ctx context.Context, server, broker healthChecker, log *logging.Logger) error {
	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	if err := broker.HealthCheck(ctx); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		log.Warn("MQTT broker not reachable, running degraded", "error", err)
	}

	return nil
}

// getConfigPath returns the configuration file path.
// Checks SERVOBRIDGE_CONFIG environment variable first, then uses default.
func getConfigPath() string {
	if path := os.Getenv(configEnvVar); path != "" {
		return path
	}
	return defaultConfigPath
}
