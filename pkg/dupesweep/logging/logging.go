// Package logging provides component loggers for dupesweep. The CLI and the
// daemon share it; output goes to a size-rotated file and optionally stderr.
//
//	if err := logging.Init(logging.Config{Level: "info"}); err != nil {
//	    return err
//	}
//	defer logging.Close()
//
//	logger := logging.Get("pipeline")
//	logger.Info("hashing started", "files", 120)
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
)

// Level is a logging severity.
type Level int

// Levels from least to most severe.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

func (l Level) charm() log.Level {
	switch l {
	case LevelDebug:
		return log.DebugLevel
	case LevelWarn:
		return log.WarnLevel
	case LevelError:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// ErrInvalidLevel is returned for unknown level names.
var ErrInvalidLevel = errors.New("invalid log level")

// ParseLevel parses a level name.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("%w: %s", ErrInvalidLevel, s)
	}
}

// Config configures the logging system.
type Config struct {
	// Level is the default level.
	Level string

	// Path is the log file. Empty uses DefaultLogPath.
	Path string

	// MaxSize is the rotation threshold in bytes. Zero uses 10 MiB.
	MaxSize int64

	// MaxBackups is how many rotated files to keep. Zero keeps 3.
	MaxBackups int

	// Components overrides the level per component name.
	Components map[string]string

	// ConsoleLevel mirrors records at or above this level to stderr.
	// Empty disables console output.
	ConsoleLevel string
}

// Logger is a component logger.
type Logger struct {
	file      *log.Logger
	console   *log.Logger
	component string
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, kv ...interface{}) { l.emit(LevelDebug, msg, kv...) }

// Info logs at info level.
func (l *Logger) Info(msg string, kv ...interface{}) { l.emit(LevelInfo, msg, kv...) }

// Warn logs at warn level.
func (l *Logger) Warn(msg string, kv ...interface{}) { l.emit(LevelWarn, msg, kv...) }

// Error logs at error level.
func (l *Logger) Error(msg string, kv ...interface{}) { l.emit(LevelError, msg, kv...) }

// With returns a logger that always includes the given key/value pairs.
func (l *Logger) With(kv ...interface{}) *Logger {
	out := &Logger{file: l.file.With(kv...), component: l.component}
	if l.console != nil {
		out.console = l.console.With(kv...)
	}
	return out
}

func (l *Logger) emit(level Level, msg string, kv ...interface{}) {
	write(l.file, level, msg, kv...)
	if l.console != nil {
		write(l.console, level, msg, kv...)
	}
}

func write(dst *log.Logger, level Level, msg string, kv ...interface{}) {
	switch level {
	case LevelDebug:
		dst.Debug(msg, kv...)
	case LevelInfo:
		dst.Info(msg, kv...)
	case LevelWarn:
		dst.Warn(msg, kv...)
	case LevelError:
		dst.Error(msg, kv...)
	}
}

type registry struct {
	mu         sync.Mutex
	ready      bool
	writer     *RotatingWriter
	level      Level
	console    bool
	consoleLvl Level
	components map[string]Level
	loggers    map[string]*Logger
}

var global = &registry{
	components: make(map[string]Level),
	loggers:    make(map[string]*Logger),
}

// Init configures logging. Loggers obtained before Init are rebuilt in
// place so package-level loggers pick up the configuration.
func Init(cfg Config) error {
	global.mu.Lock()
	defer global.mu.Unlock()

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}

	components := make(map[string]Level, len(cfg.Components))
	for name, lvl := range cfg.Components {
		parsed, err := ParseLevel(lvl)
		if err != nil {
			return fmt.Errorf("parsing level for component %s: %w", name, err)
		}
		components[name] = parsed
	}

	console := false
	consoleLvl := LevelWarn
	if cfg.ConsoleLevel != "" {
		if consoleLvl, err = ParseLevel(cfg.ConsoleLevel); err != nil {
			return fmt.Errorf("parsing console level: %w", err)
		}
		console = true
	}

	path := cfg.Path
	if path == "" {
		path = DefaultLogPath()
	}
	writer, err := NewRotatingWriter(path, cfg.MaxSize, cfg.MaxBackups)
	if err != nil {
		return fmt.Errorf("creating log writer: %w", err)
	}

	if global.writer != nil {
		_ = global.writer.Close()
	}

	global.writer = writer
	global.level = level
	global.components = components
	global.console = console
	global.consoleLvl = consoleLvl
	global.ready = true

	for name, l := range global.loggers {
		*l = *global.build(name)
	}
	return nil
}

// Get returns the logger for component, creating it on first use.
func Get(component string) *Logger {
	global.mu.Lock()
	defer global.mu.Unlock()

	if l, ok := global.loggers[component]; ok {
		return l
	}
	l := global.build(component)
	global.loggers[component] = l
	return l
}

// build must be called with mu held.
func (r *registry) build(component string) *Logger {
	level := r.level
	if lvl, ok := r.components[component]; ok {
		level = lvl
	}

	var out io.Writer = io.Discard
	if r.ready {
		out = r.writer
	}

	l := &Logger{
		component: component,
		file: log.NewWithOptions(out, log.Options{
			Level:           level.charm(),
			ReportTimestamp: r.ready,
			TimeFormat:      time.RFC3339,
			Prefix:          component,
		}),
	}

	if r.ready && r.console {
		l.console = log.NewWithOptions(os.Stderr, log.Options{
			Level:           r.consoleLvl.charm(),
			ReportTimestamp: true,
			TimeFormat:      "15:04:05",
			Prefix:          component,
		})
	}
	return l
}

// Close flushes and closes the log file. Loggers go silent afterwards.
func Close() error {
	global.mu.Lock()
	defer global.mu.Unlock()

	if !global.ready {
		return nil
	}
	global.ready = false

	err := global.writer.Close()
	global.writer = nil
	for name, l := range global.loggers {
		*l = *global.build(name)
	}
	if err != nil {
		return fmt.Errorf("closing log writer: %w", err)
	}
	return nil
}

// DefaultLogPath returns $XDG_STATE_HOME/dupesweep/dupesweep.log.
func DefaultLogPath() string {
	return filepath.Join(xdg.StateHome, "dupesweep", "dupesweep.log")
}
