package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	oteltrace "go.opentelemetry.io/otel/trace"

	"goa.design/agenttrace/trace"
)

const instrumentationName = "goa.design/agenttrace"

// OTELSink mirrors trace events into OpenTelemetry. Invocations become spans
// with explicit start and end timestamps, run lifecycle transitions become
// events on the caller's current span, and every event increments a counter.
// Uses the global Tracer/Meter providers; configure them before recording
// (typically via clue.ConfigureOpenTelemetry or OTEL_EXPORTER_OTLP_ENDPOINT).
type OTELSink struct {
	tracer oteltrace.Tracer
	meter  metric.Meter
}

// NewOTELSink constructs a Sink backed by the global OpenTelemetry
// providers.
func NewOTELSink() *OTELSink {
	return &OTELSink{
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}
}

// RunStarted records a run-start event and counter increment.
func (s *OTELSink) RunStarted(ctx context.Context, run *trace.Run) error {
	oteltrace.SpanFromContext(ctx).AddEvent("agenttrace.run.started",
		oteltrace.WithAttributes(
			attribute.String("run_id", run.RunID),
			attribute.String("subject", run.Subject),
		))
	return s.add(ctx, "agenttrace.runs.started", attribute.String("subject", run.Subject))
}

// InvocationRecorded emits one span per sealed invocation, back-dated to the
// invocation's own start and end timestamps.
func (s *OTELSink) InvocationRecorded(ctx context.Context, inv *trace.Invocation) error {
	_, span := s.tracer.Start(ctx, inv.Name,
		oteltrace.WithTimestamp(inv.StartedAt),
		oteltrace.WithAttributes(
			attribute.String("run_id", inv.RunID),
			attribute.Int64("sequence", inv.Sequence),
			attribute.Int("depth", inv.Depth),
			attribute.Bool("success", inv.Success),
		))
	if !inv.Success {
		span.SetStatus(codes.Error, inv.Error)
	}
	span.End(oteltrace.WithTimestamp(inv.EndedAt))

	if err := s.add(ctx, "agenttrace.invocations", attribute.Bool("success", inv.Success)); err != nil {
		return err
	}
	hist, err := s.meter.Float64Histogram("agenttrace.invocation.duration")
	if err != nil {
		return err
	}
	hist.Record(ctx, inv.Duration.Seconds(), metric.WithAttributes(attribute.String("name", inv.Name)))
	return nil
}

// HandoffRecorded records a handoff event and counter increment.
func (s *OTELSink) HandoffRecorded(ctx context.Context, h *trace.Handoff) error {
	oteltrace.SpanFromContext(ctx).AddEvent("agenttrace.handoff",
		oteltrace.WithAttributes(
			attribute.String("run_id", h.RunID),
			attribute.String("from", h.From),
			attribute.String("to", h.To),
			attribute.Int64("sequence", h.Sequence),
		))
	return s.add(ctx, "agenttrace.handoffs",
		attribute.String("from", h.From), attribute.String("to", h.To))
}

// RunCompleted records a run-completion event with the derived metrics.
func (s *OTELSink) RunCompleted(ctx context.Context, run *trace.Run) error {
	attrs := []attribute.KeyValue{
		attribute.String("run_id", run.RunID),
		attribute.String("status", string(run.Status)),
	}
	if run.Metrics != nil {
		attrs = append(attrs,
			attribute.Int("success_rate", run.Metrics.SuccessRate),
			attribute.Float64("avg_duration_s", run.Metrics.AvgDuration.Seconds()),
		)
	}
	oteltrace.SpanFromContext(ctx).AddEvent("agenttrace.run.completed",
		oteltrace.WithAttributes(attrs...))
	return s.add(ctx, "agenttrace.runs.completed", attribute.String("status", string(run.Status)))
}

func (s *OTELSink) add(ctx context.Context, name string, attrs ...attribute.KeyValue) error {
	counter, err := s.meter.Int64Counter(name)
	if err != nil {
		return err
	}
	counter.Add(ctx, 1, metric.WithAttributes(attrs...))
	return nil
}
