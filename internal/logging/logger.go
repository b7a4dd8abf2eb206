package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Level represents a log severity level.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// core is shared between a logger and every component logger derived from it,
// so that SetLevel on the root applies everywhere.
type core struct {
	mu    sync.Mutex
	level Level
	inner *log.Logger
}

// Logger provides leveled logging with an optional component prefix.
type Logger struct {
	c      *core
	prefix string
}

var defaultLogger = New(os.Stderr, INFO)

// Default returns the package-level default logger.
func Default() *Logger {
	return defaultLogger
}

// New creates a root logger writing to w at the given minimum level.
func New(w io.Writer, level Level) *Logger {
	return &Logger{c: &core{level: level, inner: log.New(w, "", log.LstdFlags)}}
}

// Named returns a logger that tags every line with the component name.
// The returned logger shares level and output with its parent.
func (l *Logger) Named(component string) *Logger {
	p := component
	if l.prefix != "" {
		p = l.prefix + "." + component
	}
	return &Logger{c: l.c, prefix: p}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.c.mu.Lock()
	defer l.c.mu.Unlock()
	l.c.level = level
}

// Level returns the current minimum log level.
func (l *Logger) Level() Level {
	l.c.mu.Lock()
	defer l.c.mu.Unlock()
	return l.c.level
}

// SetOutput redirects the logger (and all component loggers sharing it).
func (l *Logger) SetOutput(w io.Writer) {
	l.c.mu.Lock()
	defer l.c.mu.Unlock()
	l.c.inner.SetOutput(w)
}

// Debug logs a message at DEBUG level.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(DEBUG, format, args...)
}

// Info logs a message at INFO level.
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(INFO, format, args...)
}

// Warn logs a message at WARN level.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(WARN, format, args...)
}

// Error logs a message at ERROR level.
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(ERROR, format, args...)
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	if level < l.Level() {
		return
	}

	msg := fmt.Sprintf(format, args...)
	if l.prefix != "" {
		l.c.inner.Printf("[%s] %s: %s", level, l.prefix, msg)
		return
	}
	l.c.inner.Printf("[%s] %s", level, msg)
}

// ParseLevel converts a string to a Level. Unknown names map to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}
