// Package logging provides slog loggers with per-module levels.
//
// Records go to stdout (text or JSON), to the systemd journal when journald
// is listening, and to an in-memory History served by the HTTP API.
//
//	logging.Initialize(logging.Config{
//		Level:   "info",
//		Format:  "text",
//		Modules: map[string]string{"capture": "debug"},
//	})
//	log := logging.GetLogger("capture")
//	log.Info("ring ready", "buffers", 8)
//
// Loggers handed out before Initialize are rebuilt in place, so packages
// may call GetLogger from init-time code. Journal fields are the upper-case
// attribute keys:
//
//	journalctl -t iidcnode MODULE=capture
package logging
