package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

// testAppender writes formatted lines to a testing.TB so they show up under the test that logged
// them, in local time.
type testAppender struct {
	tb testing.TB
}

// NewTestAppender returns an appender that logs through tb.Log.
func NewTestAppender(tb testing.TB) Appender {
	return &testAppender{tb}
}

func (tapp *testAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	// Helper keeps testing from prefixing this file's location to every line.
	tapp.tb.Helper()
	line, err := formatEntry(entry, fields)
	tapp.tb.Log(line)
	return err
}

func (tapp *testAppender) Sync() error {
	return nil
}
