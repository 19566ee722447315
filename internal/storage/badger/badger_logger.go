package badger

import (
	"fmt"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
)

// badgerLogger routes Badger's internal logging through arbor.
// Info and debug chatter is demoted to trace.
type badgerLogger struct {
	logger arbor.ILogger
}

var _ badgerdb.Logger = (*badgerLogger)(nil)

func newBadgerLogger(logger arbor.ILogger) *badgerLogger {
	return &badgerLogger{logger: logger}
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Str("component", "badger").Msg(formatBadger(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn().Str("component", "badger").Msg(formatBadger(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Trace().Str("component", "badger").Msg(formatBadger(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Trace().Str("component", "badger").Msg(formatBadger(format, args...))
}

func formatBadger(format string, args ...interface{}) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}
