// Package logging configures log/slog for the whole process: a text or
// JSON handler on stderr, a journald handler when running under systemd,
// and one logger per module whose level can be changed at runtime.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Config is the [logging] section of the configuration file. Modules maps
// a module name to its level.
type Config struct {
	Level   string            `toml:"level" env:"LOG_LEVEL"`
	Format  string            `toml:"format" env:"LOG_FORMAT"`
	Modules map[string]string `toml:"modules"`
}

// DefaultConfig logs at info in text format.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "text"}
}

var (
	mu          sync.RWMutex
	cfg                   = DefaultConfig()
	output      io.Writer = os.Stderr
	globalLevel           = &slog.LevelVar{}
	levels                = make(map[string]*slog.LevelVar)
	loggers               = make(map[string]*slog.Logger)
)

// SetOutput redirects the text or JSON handler. Loggers created afterwards
// use the new writer.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// Initialize applies c and installs the default logger. It may be called
// again, for example after the configuration file changed; module loggers
// handed out earlier pick up the new levels.
func Initialize(c Config) {
	mu.Lock()
	defer mu.Unlock()

	cfg = c
	globalLevel.Set(ParseLevel(c.Level, slog.LevelInfo))
	for module, lv := range levels {
		lv.Set(moduleLevel(module))
		loggers[module] = slog.New(newHandler(c.Format, lv)).With("module", module)
	}
	slog.SetDefault(slog.New(newHandler(c.Format, globalLevel)))
}

// GetLogger returns the logger of module, creating it on first use.
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
	l = slog.New(newHandler(cfg.Format, lv)).With("module", module)
	levels[module] = lv
	loggers[module] = l
	return l
}

// SetLevel changes the level of one module at runtime. An empty module
// changes the default logger.
func SetLevel(module string, level slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	if module == "" {
		globalLevel.Set(level)
		return
	}
	lv, ok := levels[module]
	if !ok {
		lv = &slog.LevelVar{}
		levels[module] = lv
		loggers[module] = slog.New(newHandler(cfg.Format, lv)).With("module", module)
	}
	lv.Set(level)
}

// Level returns the current level of module.
func Level(module string) slog.Level {
	mu.RLock()
	defer mu.RUnlock()
	if lv, ok := levels[module]; ok {
		return lv.Level()
	}
	return globalLevel.Level()
}

// moduleLevel must be called with mu held.
func moduleLevel(module string) slog.Level {
	global := ParseLevel(cfg.Level, slog.LevelInfo)
	if s, ok := cfg.Modules[module]; ok {
		return ParseLevel(s, global)
	}
	return global
}

// newHandler must be called with mu held.
func newHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(output, opts)
	} else {
		h = slog.NewTextHandler(output, opts)
	}
	if output == os.Stderr && JournalAvailable() {
		return NewMultiHandler(h, NewJournalHandler(level))
	}
	return h
}

// ParseLevel converts a level name to a slog.Level, returning def for an
// unknown name.
func ParseLevel(s string, def slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return def
}

// ValidLevel reports whether s names a level.
func ValidLevel(s string) bool {
	return ParseLevel(s, slog.Level(-100)) != slog.Level(-100)
}
