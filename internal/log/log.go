// Package log provides category-based structured logging for svcreg.
// Logging is disabled until Init or InitWriter is called.
package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zjrosen/svcreg/internal/pubsub"
)

// Level represents log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l Level) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel parses a level name such as "debug" or "WARN".
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
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Category groups related log messages.
type Category string

const (
	CatRegistry Category = "registry" // Registration lifecycle and lookups
	CatFilter   Category = "filter"   // Filter compilation
	CatEvents   Category = "events"   // Listener dispatch
	CatConfig   Category = "config"   // Configuration loading/saving
	CatCache    Category = "cache"    // cache operations
	CatScenario Category = "scenario" // Scenario replay
	CatWatcher  Category = "watcher"  // File watcher events
	CatTrace    Category = "trace"    // Tracing provider
	CatHistory  Category = "history"  // Replay history store
)

// Logger provides structured logging.
type Logger struct {
	mu       sync.Mutex
	writer   io.Writer
	enabled  bool
	minLevel Level
	broker   *pubsub.Broker[string] // Pub/sub for log events
}

var defaultLogger atomic.Pointer[Logger]

// Init opens path for appending and makes it the global log destination.
// Returns a cleanup function to close the log file.
func Init(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644) //nolint:gosec // G304: path is user-controlled log path
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	install(newLogger(f))
	return func() { _ = f.Close() }, nil
}

// InitWriter sends log output to w. Passing nil keeps the broker fan-out
// but writes nowhere.
func InitWriter(w io.Writer) {
	install(newLogger(w))
}

// Reset disables logging and closes the current broker.
func Reset() {
	if old := defaultLogger.Swap(nil); old != nil && old.broker != nil {
		old.broker.Close()
	}
}

func install(l *Logger) {
	if old := defaultLogger.Swap(l); old != nil && old.broker != nil {
		old.broker.Close()
	}
}

func newLogger(w io.Writer) *Logger {
	return &Logger{
		writer:   w,
		enabled:  true,
		minLevel: LevelDebug,
		broker:   pubsub.NewBroker[string](),
	}
}

// SetEnabled toggles logging on/off.
func SetEnabled(enabled bool) {
	if l := defaultLogger.Load(); l != nil {
		l.mu.Lock()
		l.enabled = enabled
		l.mu.Unlock()
	}
}

// SetMinLevel sets the minimum log level.
func SetMinLevel(level Level) {
	if l := defaultLogger.Load(); l != nil {
		l.mu.Lock()
		l.minLevel = level
		l.mu.Unlock()
	}
}

// Debug logs at debug level.
func Debug(cat Category, msg string, fields ...any) {
	log(LevelDebug, cat, msg, fields...)
}

// Info logs at info level.
func Info(cat Category, msg string, fields ...any) {
	log(LevelInfo, cat, msg, fields...)
}

// Warn logs at warning level.
func Warn(cat Category, msg string, fields ...any) {
	log(LevelWarn, cat, msg, fields...)
}

// Error logs at error level.
func Error(cat Category, msg string, fields ...any) {
	log(LevelError, cat, msg, fields...)
}

// ErrorErr logs an error with the error value.
func ErrorErr(cat Category, msg string, err error, fields ...any) {
	text := "<nil>"
	if err != nil {
		text = err.Error()
	}
	log(LevelError, cat, msg, append(fields, "error", text)...)
}

func log(level Level, cat Category, msg string, fields ...any) {
	l := defaultLogger.Load()
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled || level < l.minLevel {
		return
	}

	line := formatLine(time.Now(), level, cat, msg, fields)
	if l.writer != nil {
		_, _ = io.WriteString(l.writer, line)
	}
	l.broker.Publish(pubsub.LogEvent, line)
}

// formatLine renders one entry as
//
//	2006-01-02T15:04:05 [WARN] [registry] message key=value
//
// An unpaired trailing key is written with the value <missing>.
func formatLine(at time.Time, level Level, cat Category, msg string, fields []any) string {
	var sb strings.Builder
	sb.WriteString(at.Format("2006-01-02T15:04:05"))
	fmt.Fprintf(&sb, " [%s] [%s] %s", level, cat, msg)
	for len(fields) >= 2 {
		fmt.Fprintf(&sb, " %v=%v", fields[0], fields[1])
		fields = fields[2:]
	}
	if len(fields) == 1 {
		fmt.Fprintf(&sb, " %v=<missing>", fields[0])
	}
	sb.WriteByte('\n')
	return sb.String()
}

// Entry is a pubsub event containing a log line.
type Entry = pubsub.Event[string]

// Listener receives log lines as they are written.
type Listener = pubsub.Listener[string]

// NewListener creates a new log listener. It returns nil when logging has
// not been initialized. The subscription ends when ctx is cancelled.
func NewListener(ctx context.Context) *Listener {
	l := defaultLogger.Load()
	if l == nil {
		return nil
	}
	return pubsub.NewListener(ctx, l.broker)
}
