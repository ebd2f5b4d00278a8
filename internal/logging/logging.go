// Package logging holds the process-wide zerolog logger and the helpers used
// to derive per-subsystem loggers from it.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	defaultLogger     zerolog.Logger
	defaultLoggerOnce sync.Once
	defaultLoggerMu   sync.RWMutex
)

func initDefaultLogger() {
	defaultLoggerOnce.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339Nano
		level := zerolog.InfoLevel
		if env := os.Getenv("LOG_LEVEL"); env != "" {
			if parsed, err := zerolog.ParseLevel(strings.ToLower(env)); err == nil {
				level = parsed
			}
		}
		defaultLogger = zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	})
}

// GetDefaultLogger returns the root logger.
func GetDefaultLogger() *zerolog.Logger {
	initDefaultLogger()
	defaultLoggerMu.RLock()
	defer defaultLoggerMu.RUnlock()
	l := defaultLogger
	return &l
}

// GetSubsystemLogger returns a child of the root logger tagged with the
// given component name.
func GetSubsystemLogger(component string) *zerolog.Logger {
	l := GetDefaultLogger().With().Str("component", component).Logger()
	return &l
}

// SetLevel changes the root logger level. Unknown levels are ignored.
func SetLevel(level string) {
	initDefaultLogger()
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return
	}
	defaultLoggerMu.Lock()
	defaultLogger = defaultLogger.Level(parsed)
	defaultLoggerMu.Unlock()
}

// SetOutput redirects the root logger, e.g. to a console writer in
// development or io.Discard in tests.
func SetOutput(w io.Writer) {
	initDefaultLogger()
	defaultLoggerMu.Lock()
	defaultLogger = defaultLogger.Output(w)
	defaultLoggerMu.Unlock()
}

// NewConsoleWriter returns a human readable writer for interactive runs.
func NewConsoleWriter() io.Writer {
	return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
}
