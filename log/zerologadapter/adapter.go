// Package zerologadapter provides a logger that writes to a github.com/rs/zerolog.
package zerologadapter

import (
	"context"

	"github.com/rs/zerolog"

	loonypg "github.com/loony-js/loony-postgres"
)

type Logger struct {
	logger zerolog.Logger
}

// NewLogger accepts a zerolog.Logger as input and returns a new custom
// loonypg logging facade as output.
func NewLogger(logger zerolog.Logger) *Logger {
	return &Logger{
		logger: logger.With().Str("module", "loonypg").Logger(),
	}
}

func (pl *Logger) Log(ctx context.Context, level loonypg.LogLevel, msg string, data map[string]interface{}) {
	var zlevel zerolog.Level
	switch level {
	case loonypg.LogLevelNone:
		zlevel = zerolog.NoLevel
	case loonypg.LogLevelError:
		zlevel = zerolog.ErrorLevel
	case loonypg.LogLevelWarn:
		zlevel = zerolog.WarnLevel
	case loonypg.LogLevelInfo:
		zlevel = zerolog.InfoLevel
	default:
		zlevel = zerolog.DebugLevel
	}

	pglog := pl.logger.With().Fields(data).Logger()
	pglog.WithLevel(zlevel).Msg(msg)
}
