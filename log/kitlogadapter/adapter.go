package kitlogadapter

import (
	"context"

	"github.com/go-kit/log"
	kitlevel "github.com/go-kit/log/level"

	loonypg "github.com/loony-js/loony-postgres"
)

type Logger struct {
	l log.Logger
}

func NewLogger(l log.Logger) *Logger {
	return &Logger{l: l}
}

func (l *Logger) Log(ctx context.Context, level loonypg.LogLevel, msg string, data map[string]interface{}) {
	logger := l.l
	for k, v := range data {
		logger = log.With(logger, k, v)
	}

	switch level {
	case loonypg.LogLevelTrace:
		logger.Log("LOONYPG_LOG_LEVEL", level, "msg", msg)
	case loonypg.LogLevelDebug:
		kitlevel.Debug(logger).Log("msg", msg)
	case loonypg.LogLevelInfo:
		kitlevel.Info(logger).Log("msg", msg)
	case loonypg.LogLevelWarn:
		kitlevel.Warn(logger).Log("msg", msg)
	case loonypg.LogLevelError:
		kitlevel.Error(logger).Log("msg", msg)
	default:
		logger.Log("INVALID_LOONYPG_LOG_LEVEL", level, "error", msg)
	}
}
