package common

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

// TestLogLevel is the level used by package tests. Bump it to DebugLevel when
// chasing a failure.
const TestLogLevel = logrus.InfoLevel

// tbWriter forwards log lines to t.Log so they only show for failing tests.
type tbWriter struct {
	t testing.TB
}

func (w tbWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}

// NewTestLogger returns a logrus Logger that writes through t.Log.
func NewTestLogger(t testing.TB, level logrus.Level) *logrus.Logger {
	logger := logrus.New()
	logger.Out = tbWriter{t: t}
	logger.Level = level
	return logger
}

// NewTestEntry returns a logrus Entry built on NewTestLogger.
func NewTestEntry(t testing.TB, level logrus.Level) *logrus.Entry {
	return logrus.NewEntry(NewTestLogger(t, level))
}
