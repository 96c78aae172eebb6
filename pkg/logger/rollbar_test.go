package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type reportedEntry struct {
	level  zapcore.Level
	msg    string
	extras map[string]interface{}
}

type recordingReporter struct {
	entries []reportedEntry
	flushed bool
}

func (r *recordingReporter) Report(level zapcore.Level, msg string, extras map[string]interface{}) {
	r.entries = append(r.entries, reportedEntry{level: level, msg: msg, extras: extras})
}

func (r *recordingReporter) Flush() { r.flushed = true }

func TestReportingCoreForwardsErrorsOnly(t *testing.T) {
	reporter := &recordingReporter{}
	log := zap.New(NewReportingCore(zapcore.ErrorLevel, reporter)).With(zap.String("component", "credits"))

	log.Info("granted")
	log.Warn("near expiry")
	log.Error("consume failed", zap.Error(errors.New("boom")), zap.String("transaction_id", "tx-1"))
	require.NoError(t, log.Sync())

	require.Len(t, reporter.entries, 1)
	entry := reporter.entries[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.level)
	assert.Equal(t, "consume failed", entry.msg)
	assert.Equal(t, "credits", entry.extras["component"])
	assert.Equal(t, "tx-1", entry.extras["transaction_id"])
	assert.Equal(t, "boom", entry.extras["error"])
	assert.True(t, reporter.flushed)
}
