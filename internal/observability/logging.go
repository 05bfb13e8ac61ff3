// Package observability builds the SDK logger and its Prometheus metrics.
package observability

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cory-johannsen/roomlink/internal/config"
)

// SDKName tags every log line written through NewLogger.
const SDKName = "roomlink"

// NewLogger creates the SDK logger. Every entry carries the sdk name and the
// configured transport kind, plus app_id when one is configured, so that logs
// from several applications sharing a collector stay separable. opts are
// applied to the underlying zap logger before those fields are attached.
//
// Precondition: cfg.Logging.Level must be one of "debug", "info", "warn", "error".
// Precondition: cfg.Logging.Format must be "json" or "console".
// Postcondition: Returns a configured zap.Logger or a non-nil error.
func NewLogger(cfg config.Config, opts ...zap.Option) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", cfg.Logging.Level, err)
	}

	var zapCfg zap.Config
	switch cfg.Logging.Format {
	case "json":
		zapCfg = zap.NewProductionConfig()
	case "console":
		zapCfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Logging.Format)
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build(opts...)
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	fields := []zap.Field{zap.String("sdk", SDKName)}
	if cfg.Transport.Kind != "" {
		fields = append(fields, zap.String("transport", cfg.Transport.Kind))
	}
	if cfg.Service.AppID != "" {
		fields = append(fields, zap.String("app_id", cfg.Service.AppID))
	}
	return logger.With(fields...), nil
}
