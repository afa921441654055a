// Package logging builds the service logger: ectologger on the call sites, zap as the sink.
package logging

import (
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the zap encoder and level
type Config struct {
	Level       string // debug, info, warn, error
	Development bool   // console encoder when true, JSON otherwise
}

// New returns an ectologger.Logger that writes every entry through zap, plus
// the zap logger itself so the caller can Sync it on shutdown.
func New(cfg Config) (ectologger.Logger, *zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}

	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zapCfg.Level.SetLevel(level)
	}

	zl, err := zapCfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build zap logger: %w", err)
	}

	return ectologger.NewEctoLogger(Sink(zl)), zl, nil
}

// Sink forwards ectologger messages to zap
func Sink(zl *zap.Logger) func(ectologger.EctoLogMessage) {
	return func(msg ectologger.EctoLogMessage) {
		zl.Info("log", zap.Any("entry", msg))
	}
}

// Discard returns a logger that drops everything, for tests and quiet CLI runs
func Discard() ectologger.Logger {
	return ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
}
