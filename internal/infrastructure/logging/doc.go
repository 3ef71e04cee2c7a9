// Package logging provides structured logging for mqtt-notify.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the application.
//
// # Features
//
//   - Text output for desktop use, JSON when piped into a collector
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (trace, debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Configuration
//
//	logging:
//	  level: "warn"      # trace, debug, info, warn, error
//	  format: "text"     # text, json
//	  output: "stderr"   # stderr, stdout
//
// The --verbose, --debug and --trace flags override the configured level.
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("MQTT connected", "broker", addr)
//	logger.Trace("skipping retained message", "topic", topic)
//
// Never log broker passwords or InfluxDB tokens.
package logging
