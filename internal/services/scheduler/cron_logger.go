package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// cronLogger routes robfig/cron's internal logging to arbor
type cronLogger struct {
	logger arbor.ILogger
}

var _ cron.Logger = (*cronLogger)(nil)

func newCronLogger(logger arbor.ILogger) *cronLogger {
	return &cronLogger{logger: logger}
}

// Info logs routine cron activity at trace level
func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Trace().Str("fields", formatKeysAndValues(keysAndValues)).Msg("cron: " + msg)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Str("fields", formatKeysAndValues(keysAndValues)).Msg("cron: " + msg)
}

func formatKeysAndValues(keysAndValues []interface{}) string {
	out := ""
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if out != "" {
			out += " "
		}
		out += fmt.Sprintf("%v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	return out
}
