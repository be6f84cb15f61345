// Package log15 adapts a github.com/inconshreveable/log15.Logger to the
// github.com/riverrpc/river/log.Logger interface. It is the one logging
// backend river ships (a session with no Logger set logs nowhere);
// internals never import log15 directly, only this
// adapter and the river/log seam, so a caller can swap in any other
// backend that satisfies log.Logger.
package log15

import (
	"context"

	"github.com/inconshreveable/log15"

	"github.com/riverrpc/river/log"
)

// Logger wraps a log15.Logger to add the river logging interface.
// It also embeds the log15.Logger directly so it can be downcast back to
// log15.Logger by callers that want it.
type Logger struct {
	log15.Logger
}

func New(l log15.Logger) *Logger {
	return &Logger{l}
}

// Discard returns a log15.Logger whose output goes nowhere, for use as a
// default when the caller supplies no logger.
func Discard() log15.Logger {
	l := log15.New()
	l.SetHandler(log15.DiscardHandler())
	return l
}

func (l *Logger) Log(ctx context.Context, level log.LogLevel, msg string, data map[string]interface{}) {
	logArgs := make([]interface{}, 0, len(data)*2)
	for k, v := range data {
		logArgs = append(logArgs, k, v)
	}

	switch level {
	case log.LogLevelTrace:
		l.Debug(msg, append(logArgs, "river_level", "trace")...)
	case log.LogLevelDebug:
		l.Debug(msg, logArgs...)
	case log.LogLevelInfo:
		l.Info(msg, logArgs...)
	case log.LogLevelWarn:
		l.Warn(msg, logArgs...)
	case log.LogLevelError:
		l.Error(msg, logArgs...)
	default:
		l.Error(msg, append(logArgs, "invalid_level", level)...)
	}
}
