package driver

import (
	"context"

	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewContext returns ctx carrying the console logger of the command line
// tools. Only warnings and errors are shown unless verbose is set.
func NewContext(ctx context.Context, verbose bool) (context.Context, func(), error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.DisableStacktrace = !verbose
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	l, err := cfg.Build()
	if err != nil {
		return nil, nil, err
	}
	return logctx.NewContext(ctx, l), func() { _ = l.Sync() }, nil
}
