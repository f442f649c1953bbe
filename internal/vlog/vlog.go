// Package vlog generalizes the teacher's terminal progress/log calls
// (internal/tile/progress.go, plain log.Printf scattered through cmd/*)
// into a single structured logger shared by every package, backed by
// zerolog instead of the stdlib log package — see SPEC_FULL.md §1 for why.
package vlog

import (
	"io"
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var (
	verbose atomic.Bool
	logger  = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).With().Timestamp().Logger()
)

// SetVerbose toggles debug-level output; mirrors the teacher's --verbose flag.
func SetVerbose(v bool) {
	verbose.Store(v)
	if v {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}
}

// SetOutput redirects log output, e.g. for tests or embedding in a server.
func SetOutput(w io.Writer) {
	logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}).With().Timestamp().Logger()
}

// Debugf logs a debug-level message, shown only when verbose is set.
func Debugf(format string, args ...any) {
	logger.Debug().Msgf(format, args...)
}

// Infof logs an info-level message.
func Infof(format string, args ...any) {
	logger.Info().Msgf(format, args...)
}

// Warnf logs a warning-level message (§7 partial-failure surface).
func Warnf(format string, args ...any) {
	logger.Warn().Msgf(format, args...)
}

// Errorf logs an error-level message.
func Errorf(format string, args ...any) {
	logger.Error().Msgf(format, args...)
}

// Verbose reports whether debug-level logging is enabled.
func Verbose() bool {
	return verbose.Load()
}
