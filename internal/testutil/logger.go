// Package testutil provides shared test helpers for storefront packages.
package testutil

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/HerbHall/storefront/internal/logging"
)

// Logger returns a debug-level console logger on stderr, matching what the
// CLI prints for one-shot commands.
func Logger() *zap.Logger {
	return logging.Stderr(os.Stderr, zapcore.DebugLevel)
}

// ObservedLogger returns a logger that records entries at level and above
// for assertions.
func ObservedLogger(level zapcore.Level) (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return zap.New(core), logs
}
