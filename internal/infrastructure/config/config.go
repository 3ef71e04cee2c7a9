package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/nerrad567/mqtt-notify/internal/rules"
)

// EnvPrefix is prepended to every environment variable override.
const EnvPrefix = "MQTT_NOTIFY_"

// Config is the root configuration structure for mqtt-notify.
// All configuration is loaded from YAML or TOML and can be overridden by
// environment variables. A Config returned by Load is never modified again.
type Config struct {
	MQTT         MQTTConfig         `yaml:"mqtt" toml:"mqtt"`
	Notification NotificationConfig `yaml:"notification" toml:"notification"`
	Logging      LoggingConfig      `yaml:"logging" toml:"logging"`
	InfluxDB     InfluxDBConfig     `yaml:"influxdb" toml:"influxdb"`
	Mappings     []MappingConfig    `yaml:"mappings" toml:"mappings"`

	// Rules is the normalised form of Mappings, populated by Load.
	Rules []rules.Mapping `yaml:"-" toml:"-"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker MQTTBrokerConfig `yaml:"broker" toml:"broker"`
	Auth   MQTTAuthConfig   `yaml:"auth" toml:"auth"`

	// SessionExpiryInterval is the keep-alive interval in seconds.
	// It governs broker-level liveness detection only.
	SessionExpiryInterval int `yaml:"session_expiry_interval" toml:"session_expiry_interval"`

	// IgnoreRetained drops messages the broker flags as retained.
	IgnoreRetained bool `yaml:"ignore_retained" toml:"ignore_retained"`

	Reconnect MQTTReconnectConfig `yaml:"reconnect" toml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host" toml:"host"`
	Port     int    `yaml:"port" toml:"port"`
	TLS      bool   `yaml:"tls" toml:"tls"`
	ClientID string `yaml:"client_id" toml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
// Username and Password are either both set or both empty.
type MQTTAuthConfig struct {
	Username string `yaml:"username" toml:"username"`
	Password string `yaml:"password" toml:"password"`
}

// MQTTReconnectConfig contains the reconnection policy.
type MQTTReconnectConfig struct {
	// Delay is the fixed wait in seconds before each reconnect attempt.
	Delay int `yaml:"delay" toml:"delay"`

	// MaxAttempts is the number of reconnects allowed over the whole process
	// lifetime. The counter is never reset.
	MaxAttempts int `yaml:"max_attempts" toml:"max_attempts"`
}

// NotificationConfig contains desktop notification settings.
type NotificationConfig struct {
	// TimeoutMillis is passed verbatim to the notification service, where 0
	// means the alert never expires.
	TimeoutMillis int `yaml:"timeout_millis" toml:"timeout_millis"`

	// NotifyOnStartup, when set, is shown once after the first connection.
	NotifyOnStartup string `yaml:"notify_on_startup" toml:"notify_on_startup"`

	// RateLimit caps notifications per second. 0 disables limiting.
	RateLimit int `yaml:"rate_limit" toml:"rate_limit"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	Output string `yaml:"output" toml:"output"`
}

// InfluxDBConfig contains InfluxDB connection settings for notification telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled" toml:"enabled"`
	URL           string `yaml:"url" toml:"url"`
	Token         string `yaml:"token" toml:"token"`
	Org           string `yaml:"org" toml:"org"`
	Bucket        string `yaml:"bucket" toml:"bucket"`
	BatchSize     int    `yaml:"batch_size" toml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval" toml:"flush_interval"`
}

// envOverrides lists the settings that can be supplied through the environment.
type envOverrides struct {
	MQTTHost      string `env:"MQTT_HOST"`
	MQTTPort      int    `env:"MQTT_PORT"`
	MQTTUsername  string `env:"MQTT_USERNAME"`
	MQTTPassword  string `env:"MQTT_PASSWORD"`
	InfluxDBToken string `env:"INFLUXDB_TOKEN"`
	LogLevel      string `env:"LOG_LEVEL"`
}

// Load reads configuration from a YAML or TOML file and applies environment
// variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. File values (override defaults); ".toml" files are read as TOML,
//     everything else as YAML
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: MQTT_NOTIFY_SECTION_KEY
// For example: MQTT_NOTIFY_MQTT_HOST, MQTT_NOTIFY_MQTT_PASSWORD
//
// Parameters:
//   - path: Path to the configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration with Rules populated
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := decode(path, data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	// Validate already proved the mappings convert cleanly.
	cfg.Rules, _ = buildRules(cfg.Mappings)

	return cfg, nil
}

// decode unmarshals data according to the file extension of path.
//
// Unknown keys are rejected so that a misspelt or outdated setting (for
// example the flat mqtt_broker_uri layout) fails loudly instead of leaving
// the default in place.
func decode(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err := dec.Decode(cfg)

		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			keys := make([]string, 0, len(strict.Errors))
			for i := range strict.Errors {
				keys = append(keys, strings.Join(strict.Errors[i].Key(), "."))
			}
			return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
		}
		return err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			SessionExpiryInterval: 60,
			Reconnect: MQTTReconnectConfig{
				Delay:       60,
				MaxAttempts: 10,
			},
		},
		Notification: NotificationConfig{
			TimeoutMillis: 5000,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
			Output: "stderr",
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MQTT_NOTIFY_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	var o envOverrides
	if err := env.ParseWithOptions(&o, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parsing environment overrides: %w", err)
	}

	// MQTT
	if o.MQTTHost != "" {
		cfg.MQTT.Broker.Host = o.MQTTHost
	}
	if o.MQTTPort != 0 {
		cfg.MQTT.Broker.Port = o.MQTTPort
	}
	if o.MQTTUsername != "" {
		cfg.MQTT.Auth.Username = o.MQTTUsername
	}
	if o.MQTTPassword != "" {
		cfg.MQTT.Auth.Password = o.MQTTPassword
	}

	// InfluxDB
	if o.InfluxDBToken != "" {
		cfg.InfluxDB.Token = o.InfluxDBToken
	}

	// Logging
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}

	return nil
}

// Validate checks the configuration for errors.
//
// All problems are collected and reported together.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.SessionExpiryInterval < 0 || c.MQTT.SessionExpiryInterval > math.MaxUint16 {
		errs = append(errs, "mqtt.session_expiry_interval must be between 0 and 65535")
	}
	if (c.MQTT.Auth.Username == "") != (c.MQTT.Auth.Password == "") {
		errs = append(errs, "mqtt.auth.username and mqtt.auth.password must be set together")
	}
	if c.MQTT.Reconnect.Delay < 0 {
		errs = append(errs, "mqtt.reconnect.delay must not be negative")
	}
	if c.MQTT.Reconnect.MaxAttempts < 0 {
		errs = append(errs, "mqtt.reconnect.max_attempts must not be negative")
	}

	// Notification validation
	if c.Notification.TimeoutMillis < 0 || c.Notification.TimeoutMillis > math.MaxInt32 {
		errs = append(errs, "notification.timeout_millis must be between 0 and 2147483647")
	}
	if c.Notification.RateLimit < 0 {
		errs = append(errs, "notification.rate_limit must not be negative")
	}

	// InfluxDB validation (only when enabled)
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" {
			errs = append(errs, "influxdb.org is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	// Mapping validation
	if len(c.Mappings) == 0 {
		errs = append(errs, "mappings must contain at least one entry")
	}
	if _, err := buildRules(c.Mappings); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// KeepAlive returns the broker keep-alive interval as a Duration.
func (c MQTTConfig) KeepAlive() time.Duration {
	return time.Duration(c.SessionExpiryInterval) * time.Second
}

// ReconnectDelay returns the fixed reconnect delay as a Duration.
func (c MQTTConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.Reconnect.Delay) * time.Second
}

// HasCredentials reports whether username and password are configured.
func (c MQTTConfig) HasCredentials() bool {
	return c.Auth.Username != "" && c.Auth.Password != ""
}

// Timeout returns the notification display timeout as a Duration.
func (c NotificationConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMillis) * time.Millisecond
}
