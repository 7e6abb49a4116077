// Package logging provides structured logging for twinprov.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for automation (machine-parsable)
//   - Text output for interactive runs (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Configuration
//
// Logging is configured via the LoggingConfig in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("provisioning entity", "device_id", id)
//	logger.Error("request failed", "error", err)
//
// # Security
//
// Never log secrets, tokens, passwords, or API keys. The platform token in
// particular grants write access to the whole subservice.
package logging
