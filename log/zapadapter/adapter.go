// Package zapadapter provides a logger that writes to a go.uber.org/zap.Logger.
package zapadapter

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	loonypg "github.com/loony-js/loony-postgres"
)

type Logger struct {
	logger *zap.Logger
}

func NewLogger(logger *zap.Logger) *Logger {
	return &Logger{logger: logger.WithOptions(zap.AddCallerSkip(1))}
}

func (pl *Logger) Log(ctx context.Context, level loonypg.LogLevel, msg string, data map[string]interface{}) {
	fields := make([]zapcore.Field, len(data))
	i := 0
	for k, v := range data {
		fields[i] = zap.Any(k, v)
		i++
	}

	switch level {
	case loonypg.LogLevelTrace:
		pl.logger.Debug(msg, append(fields, zap.Stringer("LOONYPG_LOG_LEVEL", level))...)
	case loonypg.LogLevelDebug:
		pl.logger.Debug(msg, fields...)
	case loonypg.LogLevelInfo:
		pl.logger.Info(msg, fields...)
	case loonypg.LogLevelWarn:
		pl.logger.Warn(msg, fields...)
	case loonypg.LogLevelError:
		pl.logger.Error(msg, fields...)
	default:
		pl.logger.Error(msg, append(fields, zap.Stringer("INVALID_LOONYPG_LOG_LEVEL", level))...)
	}
}
