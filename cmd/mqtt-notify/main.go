// mqtt-notify raises desktop notifications for MQTT messages.
//
// It subscribes to the topics named in its configuration file, picks the
// notification text for each message from per-topic rules and shows it
// through the freedesktop notification service.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/nerrad567/mqtt-notify/internal/bridge"
	"github.com/nerrad567/mqtt-notify/internal/infrastructure/config"
	"github.com/nerrad567/mqtt-notify/internal/infrastructure/influxdb"
	"github.com/nerrad567/mqtt-notify/internal/infrastructure/logging"
	"github.com/nerrad567/mqtt-notify/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqtt-notify/internal/notify"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

const (
	// defaultConfigPath is used when neither --config nor the env var is set.
	defaultConfigPath = "config.yaml"

	// configEnvVar names the config file when --config is not given.
	configEnvVar = config.EnvPrefix + "CONFIG"
)

// flags holds the global command-line options.
type flags struct {
	configPath string
	verbose    bool
	debug      bool
	trace      bool
}

func main() {
	// Cancel on Ctrl+C and SIGTERM for a clean shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

// newApp builds the command tree. Running without a command starts the bridge.
func newApp() *cli.Command {
	f := &flags{}

	return &cli.Command{
		Name:      "mqtt-notify",
		Usage:     "Show desktop notifications for MQTT messages",
		UsageText: "mqtt-notify [global options] [command]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file (YAML, or TOML with a .toml extension)",
				Sources:     cli.EnvVars(configEnvVar),
				Value:       defaultConfigPath,
				Destination: &f.configPath,
			},
			&cli.BoolFlag{
				Name:        "verbose",
				Aliases:     []string{"v"},
				Usage:       "log at info level",
				Destination: &f.verbose,
			},
			&cli.BoolFlag{
				Name:        "debug",
				Aliases:     []string{"d"},
				Usage:       "log at debug level",
				Destination: &f.debug,
			},
			&cli.BoolFlag{
				Name:        "trace",
				Aliases:     []string{"t"},
				Usage:       "log at trace level",
				Destination: &f.trace,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() > 0 {
				return fmt.Errorf("unknown command %q. Run 'mqtt-notify --help' for usage", c.Args().First())
			}
			return runBridge(ctx, f)
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Connect to the broker and show notifications (default)",
				Action: func(ctx context.Context, _ *cli.Command) error {
					return runBridge(ctx, f)
				},
			},
			{
				Name:  "verify-config",
				Usage: "Load and validate the config file, then print a summary",
				Action: func(_ context.Context, c *cli.Command) error {
					return verifyConfig(f, c.Root().Writer)
				},
			},
			{
				Name:  "version",
				Usage: "Print version information",
				Action: func(_ context.Context, c *cli.Command) error {
					_, err := fmt.Fprintf(c.Root().Writer, "mqtt-notify %s (%s) %s\n", version, commit, date)
					return err
				},
			},
		},
	}
}

// loadConfig loads the config file and applies the verbosity flags.
func loadConfig(f *flags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	applyVerbosity(cfg, f)
	return cfg, nil
}

// applyVerbosity overrides logging.level from the command line.
// The most verbose flag wins; without flags the configured level is kept.
func applyVerbosity(cfg *config.Config, f *flags) {
	switch {
	case f.trace:
		cfg.Logging.Level = "trace"
	case f.debug:
		cfg.Logging.Level = "debug"
	case f.verbose:
		cfg.Logging.Level = "info"
	}
}

// runBridge wires the components together and runs until ctx is cancelled
// or a fatal error occurs.
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func runBridge(ctx context.Context, f *flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	log := logging.New(cfg.Logging, version)
	log.Info("starting mqtt-notify",
		"version", version,
		"commit", commit,
		"build_date", date,
	)
	log.Debug("configuration loaded", "path", f.configPath, "mappings", len(cfg.Rules))

	// Telemetry is optional; a nil Recorder disables it.
	var recorder bridge.Recorder
	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Warn("InfluxDB write error", "error", err)
		})
		recorder = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	sender, err := notify.NewDBusSender()
	if err != nil {
		return fmt.Errorf("connecting to notification service: %w", err)
	}
	dispatcher := notify.NewDispatcher(sender, log.With("component", "notify"), cfg.Notification.RateLimit)
	defer dispatcher.Wait()

	mqttLog := log.With("component", "mqtt")
	b, err := bridge.New(bridge.Options{
		Config: cfg,
		Connect: func(ctx context.Context) (bridge.Session, error) {
			client, err := mqtt.Connect(ctx, cfg.MQTT, mqttLog)
			if err != nil {
				return nil, err
			}
			log.Info("MQTT connected",
				"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			)
			return client, nil
		},
		Notifier: dispatcher,
		Recorder: recorder,
		Logger:   log.With("component", "bridge"),
	})
	if err != nil {
		return err
	}

	if err := b.Run(ctx); err != nil {
		log.Error("bridge terminated", "error", err)
		return err
	}

	log.Info("mqtt-notify stopped")
	return nil
}

// verifyConfig validates the config file and prints what it contains.
func verifyConfig(f *flags, w io.Writer) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "config:    %s (ok)\n", f.configPath)
	fmt.Fprintf(w, "broker:    %s:%d (tls: %t)\n", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port, cfg.MQTT.Broker.TLS)
	fmt.Fprintf(w, "auth:      %t\n", cfg.MQTT.HasCredentials())
	fmt.Fprintf(w, "reconnect: every %v, at most %d times\n", cfg.MQTT.ReconnectDelay(), cfg.MQTT.Reconnect.MaxAttempts)
	fmt.Fprintf(w, "retained:  ignored=%t\n", cfg.MQTT.IgnoreRetained)
	fmt.Fprintf(w, "influxdb:  enabled=%t\n", cfg.InfluxDB.Enabled)
	fmt.Fprintf(w, "mappings:  %d\n", len(cfg.Rules))
	for _, m := range cfg.Rules {
		fmt.Fprintf(w, "  %s (%d actions)\n", m.Topic, len(m.Actions))
	}

	return nil
}
