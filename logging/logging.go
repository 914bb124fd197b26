// Package logging provides the levelled line logger used by strand for run
// diagnostics. Output is one line per entry:
//
//	LEVEL TIMESTAMP [component] message key=value ...
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ParseLevel converts a case-insensitive level name. Unknown names yield an error.
func ParseLevel(name string) (Level, error) {
	level := Level(strings.ToUpper(strings.TrimSpace(name)))
	if _, ok := levelPriority[level]; !ok {
		return "", fmt.Errorf("logging: unknown level %q", name)
	}
	return level, nil
}

// Fields are key/value pairs attached to a log entry.
type Fields map[string]interface{}

// Logger writes levelled entries to an io.Writer. A Logger and the loggers
// derived from it share the same output lock. The zero Logger behaves like
// New: INFO and above to stdout.
type Logger struct {
	mu        *sync.Mutex
	output    io.Writer
	minLevel  Level
	component string
	traceID   string
}

// New creates a Logger writing INFO and above to stdout.
func New() *Logger {
	return &Logger{
		mu:       &sync.Mutex{},
		output:   os.Stdout,
		minLevel: LevelInfo,
	}
}

// Discard returns a Logger that drops everything.
func Discard() *Logger {
	l := New()
	l.output = io.Discard
	l.minLevel = LevelError
	return l
}

// zeroMu serialises loggers that were not built by New.
var zeroMu sync.Mutex

func (l *Logger) lock() *sync.Mutex {
	if l.mu == nil {
		return &zeroMu
	}
	return l.mu
}

func (l *Logger) clone() *Logger {
	mu := l.lock()
	mu.Lock()
	defer mu.Unlock()
	return &Logger{
		mu:        l.mu,
		output:    l.output,
		minLevel:  l.minLevel,
		component: l.component,
		traceID:   l.traceID,
	}
}

// WithComponent returns a new logger with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	c := l.clone()
	c.component = component
	return c
}

// WithTraceID returns a new logger that stamps every entry with trace=id.
func (l *Logger) WithTraceID(traceID string) *Logger {
	c := l.clone()
	c.traceID = traceID
	return c
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	mu := l.lock()
	mu.Lock()
	l.minLevel = level
	mu.Unlock()
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	mu := l.lock()
	mu.Lock()
	l.output = w
	mu.Unlock()
}

// Enabled reports whether entries at level would be written.
func (l *Logger) Enabled(level Level) bool {
	mu := l.lock()
	mu.Lock()
	defer mu.Unlock()
	floor := l.minLevel
	if floor == "" {
		floor = LevelInfo
	}
	return levelPriority[level] >= levelPriority[floor]
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...Fields) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...Fields) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...Fields) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...Fields) {
	l.log(LevelError, msg, fields...)
}

// formatFields renders fields as key=value pairs sorted by key.
func formatFields(fields Fields) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	return b.String()
}

func (l *Logger) log(level Level, msg string, fields ...Fields) {
	if !l.Enabled(level) {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	merged := Fields{}
	for _, f := range fields {
		for k, v := range f {
			merged[k] = v
		}
	}
	if l.traceID != "" {
		merged["trace"] = l.traceID
	}
	fieldStr := formatFields(merged)

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	mu := l.lock()
	mu.Lock()
	defer mu.Unlock()
	out := l.output
	if out == nil {
		out = os.Stdout
	}
	_, _ = io.WriteString(out, line)
}
