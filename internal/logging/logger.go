package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

const historySize = 1000

// Config is the [logging] section of the config file.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

var (
	mu      sync.RWMutex
	cfg     Config
	ready   bool
	loggers = make(map[string]*slog.Logger)
	levels  = make(map[string]*slog.LevelVar)
	rootLvl = &slog.LevelVar{}
	history = NewHistory(historySize)
)

// Initialize applies cfg to the default logger and to every module logger
// handed out so far. Loggers obtained earlier keep working; only their
// levels and handler chain change.
func Initialize(c Config) {
	mu.Lock()
	defer mu.Unlock()

	cfg = c
	ready = true

	rootLvl.Set(levelOr(c.Level, slog.LevelInfo))
	for module, lv := range levels {
		lv.Set(moduleLevel(module))
		loggers[module] = slog.New(newHandler(c.Format, lv)).With("module", module)
	}
	slog.SetDefault(slog.New(newHandler(c.Format, rootLvl)))
}

// GetLogger returns the logger for module, creating it on first use.
func GetLogger(module string) *slog.Logger {
	mu.RLock()
	l, ok := loggers[module]
	mu.RUnlock()
	if ok {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[module]; ok {
		return l
	}
	lv := &slog.LevelVar{}
	lv.Set(moduleLevel(module))
	format := "text"
	if ready {
		format = cfg.Format
	}
	l = slog.New(newHandler(format, lv)).With("module", module)
	loggers[module] = l
	levels[module] = lv
	return l
}

// SetLevel changes the level of one module at runtime. An empty module
// changes the default logger.
func SetLevel(module, level string) bool {
	l, ok := parseLevel(level)
	if !ok {
		return false
	}
	mu.Lock()
	defer mu.Unlock()
	if module == "" {
		rootLvl.Set(l)
		return true
	}
	lv, exists := levels[module]
	if !exists {
		return false
	}
	lv.Set(l)
	return true
}

// Recent returns the buffered log history, oldest first.
func Recent() *History {
	return history
}

// moduleLevel must be called with mu held.
func moduleLevel(module string) slog.Level {
	if !ready {
		return slog.LevelInfo
	}
	if s, ok := cfg.Modules[module]; ok {
		if l, ok := parseLevel(s); ok {
			return l
		}
	}
	return levelOr(cfg.Level, slog.LevelInfo)
}

// newHandler routes records to stdout, the journal when present, and the
// in-memory history.
func newHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	var out slog.Handler
	if format == "json" {
		out = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		out = slog.NewTextHandler(os.Stdout, opts)
	}

	var hs []slog.Handler
	if stdoutUsable() {
		hs = append(hs, out)
	}
	if JournalAvailable() {
		hs = append(hs, NewJournalHandler(level))
	}
	hs = append(hs, NewHistoryHandler(history, level))
	if len(hs) == 1 {
		return hs[0]
	}
	return NewFanout(hs...)
}

// stdoutUsable is false when stdout is /dev/null or closed.
func stdoutUsable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	m := fi.Mode()
	return m&os.ModeCharDevice != 0 || m&os.ModeNamedPipe != 0 || m&os.ModeSocket != 0 || m.IsRegular()
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return 0, false
}

func levelOr(s string, def slog.Level) slog.Level {
	if l, ok := parseLevel(s); ok {
		return l
	}
	return def
}
