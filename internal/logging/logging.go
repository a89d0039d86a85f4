// Package logging builds the loggers of the bookexport command.
package logging

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/simp-lee/bookexport"
)

// New returns a text logger writing to out, without timestamps. Debug
// messages are emitted only when debug is set.
func New(out io.Writer, debug bool) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
		DisableColors:    true,
	})
	l.SetLevel(logrus.InfoLevel)
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// StatusLogger is a bookexport.StatusSink that logs each new status message
// with the export's progress. Counter-only updates are logged at debug level.
//
// A StatusLogger tracks the previous update of a single export and is not
// safe for concurrent use by multiple goroutines.
type StatusLogger struct {
	Log logrus.FieldLogger

	lastMessage string
	lastState   bookexport.State
}

// Update implements bookexport.StatusSink.
func (s *StatusLogger) Update(u bookexport.StatusUpdate) {
	entry := s.Log.WithFields(logrus.Fields{
		"book_id":   u.BookID,
		"state":     u.State,
		"completed": u.ItemsCountCompleted,
		"total":     u.ItemsCount,
	})

	switch {
	case u.State == bookexport.StateFailed && s.lastState != bookexport.StateFailed:
		entry.Error(u.Message)
	case u.State == bookexport.StateComplete && s.lastState != bookexport.StateComplete:
		entry.Info("export complete")
	case u.Message != s.lastMessage && u.Message != "":
		entry.Info(u.Message)
	default:
		entry.Debug("progress")
	}
	s.lastMessage = u.Message
	s.lastState = u.State
}
