package logging

import (
	"go.uber.org/zap"
)

// NewLogger builds a production ready structured logger. Verbose lowers the
// level to debug.
func NewLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

// WithOperation enriches the logger with operation and request identifiers.
func WithOperation(logger *zap.Logger, operation, requestID string) *zap.Logger {
	fields := []zap.Field{zap.String("operation", operation)}
	if requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	return logger.With(fields...)
}

// WithAttempt is WithOperation plus the monotonic scan attempt id.
func WithAttempt(logger *zap.Logger, operation, requestID string, attemptID uint64) *zap.Logger {
	return WithOperation(logger, operation, requestID).With(zap.Uint64("attempt_id", attemptID))
}
