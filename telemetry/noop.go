package telemetry

import (
	"context"

	"goa.design/agenttrace/trace"
)

type (
	// NoopLogger is a Logger that discards all messages.
	NoopLogger struct{}

	// NoopSink is a Sink that discards all events.
	NoopSink struct{}
)

// NewNoopLogger constructs a Logger that discards all log messages. Use this
// for testing or when logging is not required.
func NewNoopLogger() Logger {
	return NoopLogger{}
}

// NewNoopSink constructs a Sink that discards all events. It is the default
// sink when no external provider is configured.
func NewNoopSink() Sink {
	return NoopSink{}
}

// Debug discards the log message.
func (NoopLogger) Debug(context.Context, string, ...any) {}

// Info discards the log message.
func (NoopLogger) Info(context.Context, string, ...any) {}

// Warn discards the log message.
func (NoopLogger) Warn(context.Context, string, ...any) {}

// Error discards the log message.
func (NoopLogger) Error(context.Context, string, ...any) {}

// RunStarted discards the event.
func (NoopSink) RunStarted(context.Context, *trace.Run) error { return nil }

// InvocationRecorded discards the event.
func (NoopSink) InvocationRecorded(context.Context, *trace.Invocation) error { return nil }

// HandoffRecorded discards the event.
func (NoopSink) HandoffRecorded(context.Context, *trace.Handoff) error { return nil }

// RunCompleted discards the event.
func (NoopSink) RunCompleted(context.Context, *trace.Run) error { return nil }
