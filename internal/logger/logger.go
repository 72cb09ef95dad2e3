// Package logger provides the process-wide structured logger.
// All internal packages log through these helpers rather than holding
// their own logger instances.
package logger

import (
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	defaultLogger zerolog.Logger
	once          sync.Once
)

// Init initializes the default logger writing JSON to stderr.
// The level defaults to info; pass "debug", "warn" or "error" to change it.
// Subsequent calls are no-ops.
func Init(level string) {
	once.Do(func() {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		defaultLogger = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(parseLevel(level))
	})
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Get returns the initialized default logger, initializing it at info
// level if Init was never called.
func Get() *zerolog.Logger {
	Init("info")
	return &defaultLogger
}

// Info logs an informational message with alternating key/value args.
func Info(msg string, args ...any) {
	event(Get().Info(), args).Msg(msg)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	event(Get().Warn(), args).Msg(msg)
}

// Error logs an error message, attaching err when non-nil.
func Error(msg string, err error, args ...any) {
	e := Get().Error()
	if err != nil {
		e = e.Err(err)
	}
	event(e, args).Msg(msg)
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	event(Get().Debug(), args).Msg(msg)
}

func event(e *zerolog.Event, args []any) *zerolog.Event {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, args[i+1])
	}
	return e
}
