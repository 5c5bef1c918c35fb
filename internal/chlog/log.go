// Package chlog centralizes zap logger construction so every layer logs
// with the same encoder/level configuration instead of each constructing
// its own.
package chlog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-style JSON logger at the given level name
// ("debug", "info", "warn", "error"). An unrecognized level falls back to
// info.
func New(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	return cfg.Build()
}

// Nop returns a logger that discards everything, the default for
// configurations that don't supply one.
func Nop() *zap.Logger { return zap.NewNop() }
