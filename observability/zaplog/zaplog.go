// Package zaplog adapts a *zap.Logger to core.Logger.
package zaplog

import (
	"github.com/Swind/go-attach-pool/core"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger forwards core.Logger calls to zap.
type Logger struct {
	z *zap.Logger
}

var _ core.Logger = (*Logger)(nil)

// New wraps z. A nil z yields a no-op logger.
func New(z *zap.Logger) *Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &Logger{z: z}
}

// NewProduction builds a JSON logger at the given level ("debug", "info", ...).
func NewProduction(level string) (*Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return New(z), nil
}

func (l *Logger) Debug(msg string, fields ...core.Field) { l.z.Debug(msg, convert(fields)...) }
func (l *Logger) Info(msg string, fields ...core.Field)  { l.z.Info(msg, convert(fields)...) }
func (l *Logger) Warn(msg string, fields ...core.Field)  { l.z.Warn(msg, convert(fields)...) }
func (l *Logger) Error(msg string, fields ...core.Field) { l.z.Error(msg, convert(fields)...) }

// Sync flushes buffered entries.
func (l *Logger) Sync() error { return l.z.Sync() }

// Zap returns the underlying logger.
func (l *Logger) Zap() *zap.Logger { return l.z }

func convert(fields []core.Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		if err, ok := f.Value.(error); ok {
			out[i] = zap.NamedError(f.Key, err)
			continue
		}
		out[i] = zap.Any(f.Key, f.Value)
	}
	return out
}
