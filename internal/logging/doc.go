// Package logging provides structured logging with per-module log level
// configuration.
//
// The logging system uses Go's slog package with automatic output routing:
// the systemd journal when available, stdout when a terminal, pipe, or file
// is connected, and both when both are available.
//
// Initialize once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"matrix":  "debug",
//			"sampler": "warn",
//		},
//	})
//
// Get a logger for your module:
//
//	logger := logging.GetLogger("matrix")
//	logger.Info("job finished", "job", name, "state", state)
//
// Module-specific levels override the global level for that module only.
// When running under systemd, logs can be filtered with:
//
//	journalctl -t cam-tests MODULE=matrix
package logging
