// Package logging provides structured logging with per-module log level configuration.
//
// The logging system uses Go's slog package with automatic output routing:
//   - Logs to systemd journal when available (Linux systems with journald)
//   - Logs to stdout when a terminal, pipe, or file is connected
//   - Always mirrors entries into an in-memory ring buffer served by the logs API
//
// Initialize the logging system once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",      // Global log level: debug, info, warn, error
//		Format: "text",      // Output format: text or json
//		Modules: map[string]string{
//			"relay":      "debug", // Per-module overrides
//			"transcoder": "warn",
//		},
//	})
//
// Get a logger for your module:
//
//	logger := logging.GetLogger("relay")
//	logger.Info("Session opened", "session_id", id)
//
// Module-specific levels override the global level for that module only and
// can be changed at runtime via SetModuleLevel (used by the config watcher).
//
// When running under systemd, logs carry the "relaynode" syslog identifier:
//
//	journalctl -t relaynode -f
//	journalctl -t relaynode MODULE=relay
package logging
