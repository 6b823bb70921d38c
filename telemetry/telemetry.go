// Package telemetry defines the observability seams for the tracer: a
// structured Logger and an optional secondary Sink that mirrors trace events
// into an external provider.
//
// Mirroring is strictly best-effort diagnostics. The registry invokes sinks
// on its primary call path but catches every sink error and panic, logs it,
// and continues; a broken exporter must never fail or slow the run being
// traced. Implementations therefore should not block.
package telemetry

import (
	"context"

	"goa.design/agenttrace/trace"
)

type (
	// Logger emits structured log messages with alternating key-value pairs.
	Logger interface {
		// Debug emits a debug-level log message.
		Debug(ctx context.Context, msg string, keyvals ...any)
		// Info emits an info-level log message.
		Info(ctx context.Context, msg string, keyvals ...any)
		// Warn emits a warning-level log message.
		Warn(ctx context.Context, msg string, keyvals ...any)
		// Error emits an error-level log message.
		Error(ctx context.Context, msg string, keyvals ...any)
	}

	// Sink receives a copy of every recorded trace event. Returned errors
	// are logged by the caller and never propagated to the traced code.
	Sink interface {
		// RunStarted mirrors the creation of a run.
		RunStarted(ctx context.Context, run *trace.Run) error
		// InvocationRecorded mirrors a sealed invocation.
		InvocationRecorded(ctx context.Context, inv *trace.Invocation) error
		// HandoffRecorded mirrors a recorded handoff.
		HandoffRecorded(ctx context.Context, h *trace.Handoff) error
		// RunCompleted mirrors a finalized run.
		RunCompleted(ctx context.Context, run *trace.Run) error
	}
)

// Emit invokes fn and contains any failure: errors are logged through logger
// and panics are recovered. It is the single choke point through which the
// registry talks to a sink.
func Emit(ctx context.Context, logger Logger, event string, fn func() error) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Warn(ctx, "telemetry sink panicked", "event", event, "panic", rec)
		}
	}()
	if err := fn(); err != nil {
		logger.Warn(ctx, "telemetry sink failed", "event", event, "err", err.Error())
	}
}
