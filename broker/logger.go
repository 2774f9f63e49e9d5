package broker

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	defaultLoggerOnce sync.Once
	defaultLoggerInst *zap.Logger
)

// defaultLogger prints Info and above: errors, warnings and every
// info-level line (notice-level events are logged as info too). Hand in
// your own logger via WithLogger to change sink, encoding or levels.
func defaultLogger() *zap.Logger {
	defaultLoggerOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		logger, err := cfg.Build()
		if err != nil {
			logger = zap.NewNop()
		}
		defaultLoggerInst = logger
	})
	return defaultLoggerInst
}

// componentLogger scopes a logger to one participant instance.
func componentLogger(base *zap.Logger, component, instance string) *zap.Logger {
	return base.With(
		zap.String("component", component),
		zap.String("instance", instance),
	)
}
