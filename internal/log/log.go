// Package log provides structured logging for osgi-utils.
// Entries carry a level, a category and key=value fields. Logging is off until
// Init or InitWithTeaLog is called, which the CLI does for --debug or
// OSGI_UTILS_DEBUG.
package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/szhem/osgi-utils/internal/pubsub"
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

// ParseLevel maps a config value such as "warn" to a Level. An empty value
// is debug.
func ParseLevel(s string) (Level, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch s {
	case "":
		return LevelDebug, nil
	case "WARNING":
		return LevelWarn, nil
	}
	for i, name := range levelNames {
		if name == s {
			return Level(i), nil
		}
	}
	return LevelDebug, fmt.Errorf("unknown log level %q", strings.ToLower(s))
}

// Category groups related log messages.
type Category string

const (
	CatFilter   Category = "filter"   // Filter parsing and compilation
	CatRegistry Category = "registry" // Publish, withdraw and event dispatch
	CatTracker  Category = "tracker"  // Tracking collection lifecycle and events
	CatProxy    Category = "proxy"    // Proxy construction
	CatResolver Category = "resolver" // Type and resource resolution
	CatDB       Category = "db"       // Publication store
	CatConfig   Category = "config"   // Configuration loading
	CatWatcher  Category = "watcher"  // File watcher events
	CatCache    Category = "cache"    // cache operations
	CatUI       Category = "ui"       // Live view updates
)

// Logger writes entries to a file and republishes them to subscribers.
type Logger struct {
	mu       sync.Mutex
	out      io.WriteCloser
	enabled  bool
	minLevel Level
	feed     *pubsub.Broker[string]
}

var current atomic.Pointer[Logger]

// Init appends log entries to the file at path. A logger installed earlier
// is closed. The returned cleanup closes the file and turns logging off.
func Init(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G304: user-chosen log path
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return install(f), nil
}

// InitWithTeaLog is Init through tea.LogToFile, which also routes the
// standard library logger to path. The live view uses it so nothing is
// written to the terminal it draws on.
func InitWithTeaLog(path, prefix string) (func(), error) {
	f, err := tea.LogToFile(path, prefix)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return install(f), nil
}

func install(out io.WriteCloser) func() {
	l := &Logger{
		out:      out,
		enabled:  true,
		minLevel: LevelDebug,
		feed:     pubsub.New[string](pubsub.WithName("log")),
	}
	if prev := current.Swap(l); prev != nil {
		prev.close()
	}
	return func() {
		current.CompareAndSwap(l, nil)
		l.close()
	}
}

func (l *Logger) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.out == nil {
		return
	}
	_ = l.out.Close()
	l.out = nil
	l.feed.Close()
}

// SetEnabled toggles logging on/off.
func SetEnabled(enabled bool) {
	if l := current.Load(); l != nil {
		l.mu.Lock()
		l.enabled = enabled
		l.mu.Unlock()
	}
}

// SetMinLevel sets the minimum log level.
func SetMinLevel(level Level) {
	if l := current.Load(); l != nil {
		l.mu.Lock()
		l.minLevel = level
		l.mu.Unlock()
	}
}

// Debug logs at debug level.
func Debug(cat Category, msg string, fields ...any) {
	write(LevelDebug, cat, msg, fields)
}

// Info logs at info level.
func Info(cat Category, msg string, fields ...any) {
	write(LevelInfo, cat, msg, fields)
}

// Warn logs at warning level.
func Warn(cat Category, msg string, fields ...any) {
	write(LevelWarn, cat, msg, fields)
}

// Error logs at error level.
func Error(cat Category, msg string, fields ...any) {
	write(LevelError, cat, msg, fields)
}

// ErrorErr logs at error level with err under the "error" key.
func ErrorErr(cat Category, msg string, err error, fields ...any) {
	var text any = "<nil>"
	if err != nil {
		text = err.Error()
	}
	write(LevelError, cat, msg, append(fields, "error", text))
}

// format renders one entry:
//
//	2025-12-06T10:45:00 [ERROR] [tracker] message key=value key2=value2
func format(now time.Time, level Level, cat Category, msg string, fields []any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] [%s] %s", now.Format("2006-01-02T15:04:05"), level, cat, msg)
	for len(fields) >= 2 {
		fmt.Fprintf(&b, " %v=%v", fields[0], fields[1])
		fields = fields[2:]
	}
	if len(fields) == 1 {
		fmt.Fprintf(&b, " %v=<missing>", fields[0])
	}
	b.WriteByte('\n')
	return b.String()
}

func write(level Level, cat Category, msg string, fields []any) {
	l := current.Load()
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled || level < l.minLevel || l.out == nil {
		return
	}

	entry := format(time.Now(), level, cat, msg, fields)
	_, _ = io.WriteString(l.out, entry)
	l.feed.Publish(pubsub.CreatedEvent, entry)
}

// LogEvent is a pubsub event containing a log entry.
type LogEvent = pubsub.Event[string]

// Subscribe returns a channel of formatted log lines. It returns nil when
// logging has not been initialized.
func Subscribe(ctx context.Context) <-chan LogEvent {
	l := current.Load()
	if l == nil {
		return nil
	}
	return l.feed.Subscribe(ctx)
}

// SafeGo runs fn in a goroutine and logs, instead of crashing on, a panic.
func SafeGo(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				Error(CatTracker, "goroutine panicked", "name", name, "panic", r, "stack", string(debug.Stack()))
			}
		}()
		fn()
	}()
}
