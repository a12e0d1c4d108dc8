// Package logging builds the zap-backed logr.Logger used by the commands and
// the API server.
package logging

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ParseLevel maps a level name, or a logr verbosity number, to a zap level.
// logr V(n) is zap level -n, so "debug" enables V(1) and "2" enables V(2).
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
	return zapcore.Level(-n), nil
}

// New returns a logger at the given level. development switches to the
// console encoder with caller and stack annotations.
func New(level string, development bool) (logr.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return logr.Discard(), err
	}
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	zl, err := cfg.Build()
	if err != nil {
		return logr.Discard(), err
	}
	return zapr.NewLogger(zl), nil
}

// FromCore wraps an existing zap core; tests use it with zaptest/observer.
func FromCore(core zapcore.Core) logr.Logger {
	return zapr.NewLogger(zap.New(core))
}
