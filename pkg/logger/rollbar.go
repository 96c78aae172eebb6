package logger

import (
	"github.com/rollbar/rollbar-go"
	"go.uber.org/zap/zapcore"
)

// Reporter ships a single log entry to an external error tracker.
type Reporter interface {
	Report(level zapcore.Level, msg string, extras map[string]interface{})
	Flush()
}

type rollbarReporter struct{}

// NewRollbarReporter configures the global rollbar client.
func NewRollbarReporter(token, env, codeVersion string) Reporter {
	rollbar.SetToken(token)
	rollbar.SetEnvironment(env)
	rollbar.SetCodeVersion(codeVersion)
	return rollbarReporter{}
}

func (rollbarReporter) Report(level zapcore.Level, msg string, extras map[string]interface{}) {
	rollbarLevel := rollbar.ERR
	if level >= zapcore.DPanicLevel {
		rollbarLevel = rollbar.CRIT
	}
	rollbar.Log(rollbarLevel, msg, extras)
}

func (rollbarReporter) Flush() {
	rollbar.Wait()
}

// reportingCore forwards entries at or above a level to a Reporter.
type reportingCore struct {
	zapcore.LevelEnabler
	reporter Reporter
	fields   []zapcore.Field
}

// NewReportingCore builds a zapcore.Core that forwards entries to reporter.
func NewReportingCore(level zapcore.LevelEnabler, reporter Reporter) zapcore.Core {
	return &reportingCore{LevelEnabler: level, reporter: reporter}
}

func (c *reportingCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &reportingCore{LevelEnabler: c.LevelEnabler, reporter: c.reporter, fields: merged}
}

func (c *reportingCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *reportingCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}
	if entry.LoggerName != "" {
		enc.Fields["logger"] = entry.LoggerName
	}
	if entry.Caller.Defined {
		enc.Fields["caller"] = entry.Caller.TrimmedPath()
	}
	c.reporter.Report(entry.Level, entry.Message, enc.Fields)
	return nil
}

func (c *reportingCore) Sync() error {
	c.reporter.Flush()
	return nil
}
