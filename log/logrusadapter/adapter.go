// Package logrusadapter provides a logger that writes to a github.com/sirupsen/logrus.Logger
// log.
package logrusadapter

import (
	"context"

	"github.com/sirupsen/logrus"

	loonypg "github.com/loony-js/loony-postgres"
)

type Logger struct {
	l logrus.FieldLogger
}

func NewLogger(l logrus.FieldLogger) *Logger {
	return &Logger{l: l}
}

func (l *Logger) Log(ctx context.Context, level loonypg.LogLevel, msg string, data map[string]interface{}) {
	var logger logrus.FieldLogger
	if data != nil {
		logger = l.l.WithFields(data)
	} else {
		logger = l.l
	}

	switch level {
	case loonypg.LogLevelTrace:
		logger.WithField("LOONYPG_LOG_LEVEL", level).Debug(msg)
	case loonypg.LogLevelDebug:
		logger.Debug(msg)
	case loonypg.LogLevelInfo:
		logger.Info(msg)
	case loonypg.LogLevelWarn:
		logger.Warn(msg)
	case loonypg.LogLevelError:
		logger.Error(msg)
	default:
		logger.WithField("INVALID_LOONYPG_LOG_LEVEL", level).Error(msg)
	}
}
