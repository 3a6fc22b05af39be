// Package logging defines the logging interface shared by zigvm's
// persistence and orchestration components.
package logging

import (
	"fmt"
	"io"
	"strings"
)

// Logger provides structured logging for zigvm operations.
// This interface allows callers to plug in their own logging implementation.
type Logger interface {
	// Debug logs debug-level messages with optional key-value pairs.
	Debug(msg string, keysAndValues ...interface{})

	// Info logs info-level messages with optional key-value pairs.
	Info(msg string, keysAndValues ...interface{})

	// Warn logs warning-level messages with optional key-value pairs.
	Warn(msg string, keysAndValues ...interface{})

	// Error logs error-level messages with optional key-value pairs.
	Error(msg string, keysAndValues ...interface{})
}

// nopLogger is a Logger implementation that does nothing.
// This is the default logger used when none is provided.
type nopLogger struct{}

func (n *nopLogger) Debug(msg string, keysAndValues ...interface{}) {}
func (n *nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (n *nopLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (n *nopLogger) Error(msg string, keysAndValues ...interface{}) {}

// Nop returns the default no-op logger.
func Nop() Logger {
	return &nopLogger{}
}

// writerLogger writes level-prefixed lines to an io.Writer.
// Debug messages are suppressed unless verbose is set.
type writerLogger struct {
	w       io.Writer
	verbose bool
}

// NewWriterLogger returns a Logger writing human-readable lines to w.
func NewWriterLogger(w io.Writer, verbose bool) Logger {
	return &writerLogger{w: w, verbose: verbose}
}

func (l *writerLogger) Debug(msg string, kv ...interface{}) {
	if l.verbose {
		l.log("DEBUG", msg, kv)
	}
}

func (l *writerLogger) Info(msg string, kv ...interface{})  { l.log("INFO", msg, kv) }
func (l *writerLogger) Warn(msg string, kv ...interface{})  { l.log("WARN", msg, kv) }
func (l *writerLogger) Error(msg string, kv ...interface{}) { l.log("ERROR", msg, kv) }

func (l *writerLogger) log(level, msg string, kv []interface{}) {
	var b strings.Builder
	b.WriteString(level)
	b.WriteString(": ")
	b.WriteString(msg)
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	if len(kv)%2 == 1 {
		fmt.Fprintf(&b, " %v", kv[len(kv)-1])
	}
	fmt.Fprintln(l.w, b.String())
}
