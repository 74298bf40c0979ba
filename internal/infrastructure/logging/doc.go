// Package logging provides structured logging for the SyncSign bridge.
//
// It wraps log/slog with default fields (service, version) and a
// config-driven handler choice:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("entry ready", "entry_id", id)
//
// # Security
//
// API keys are part of every SyncSign request URL. Never log them; use
// RedactKey when a hint is needed.
package logging
