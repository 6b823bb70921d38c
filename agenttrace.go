// Package agenttrace is an in-process execution-tracing and metrics engine
// for multi-step agent pipelines. It records nested function invocations and
// inter-agent handoffs with a single total order, derives aggregate
// performance metrics when a run ends, and can persist completed runs as
// JSON for offline inspection.
//
// Tracer is the only surface calling agents use. It holds no run state of
// its own and delegates entirely to a registry.Registry:
//
//	tracer := agenttrace.New()
//	id := tracer.StartTrace(ctx, "ContentAgent", "wf-1", nil)
//	out, err := tracer.WrapFunction(ctx, id, "generate", inputs, unit)
//	tracer.RecordHandoff(ctx, id, "ContentAgent", "ReviewAgent", payload)
//	run, err := tracer.EndTrace(ctx, id, err == nil, err)
//	path, err := tracer.ExportTrace(ctx, id, "")
//
// The tracer has no scheduler and no timeouts of its own; it wraps timing
// and bookkeeping around caller-supplied units of work and suspends exactly
// as long as they do.
package agenttrace

import (
	"context"
	"fmt"
	"strings"
	"time"

	"goa.design/agenttrace/export"
	"goa.design/agenttrace/registry"
	"goa.design/agenttrace/telemetry"
	"goa.design/agenttrace/trace"
)

type (
	// Tracer is the facade over the trace registry and exporter.
	Tracer struct {
		reg *registry.Registry
		exp *export.Exporter
	}

	// Option configures a Tracer.
	Option func(*options)

	options struct {
		registry *registry.Registry
		exporter *export.Exporter
		sink     telemetry.Sink
		logger   telemetry.Logger
	}
)

// New constructs a Tracer. With no options it owns a fresh registry with a
// no-op sink and logger and an exporter writing under ./logs.
func New(opts ...Option) *Tracer {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		var ropts []registry.Option
		if o.sink != nil {
			ropts = append(ropts, registry.WithSink(o.sink))
		}
		if o.logger != nil {
			ropts = append(ropts, registry.WithLogger(o.logger))
		}
		o.registry = registry.New(ropts...)
	}
	if o.exporter == nil {
		var eopts []export.Option
		if o.logger != nil {
			eopts = append(eopts, export.WithLogger(o.logger))
		}
		o.exporter = export.New(eopts...)
	}
	return &Tracer{reg: o.registry, exp: o.exporter}
}

// WithRegistry uses the given registry instead of constructing one. Sink and
// logger options are ignored for a caller-provided registry.
func WithRegistry(r *registry.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithExporter uses the given exporter instead of constructing one.
func WithExporter(e *export.Exporter) Option {
	return func(o *options) { o.exporter = e }
}

// WithSink mirrors recorded events into the given secondary sink on the
// constructed registry.
func WithSink(s telemetry.Sink) Option {
	return func(o *options) { o.sink = s }
}

// WithLogger sets the logger on the constructed registry and exporter.
func WithLogger(l telemetry.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Registry returns the underlying registry for direct use.
func (t *Tracer) Registry() *registry.Registry {
	return t.reg
}

// StartTrace begins a new run for the given subject and returns its ID.
func (t *Tracer) StartTrace(ctx context.Context, subject, workflowID string, metadata map[string]any, opts ...registry.StartOption) string {
	return t.reg.Start(ctx, subject, workflowID, metadata, opts...)
}

// WrapFunction times and records one named unit of work on the run. The
// unit's result and error are returned unchanged; see registry.Wrap.
func (t *Tracer) WrapFunction(ctx context.Context, runID, name string, inputs any, fn registry.UnitOfWork, opts ...registry.WrapOption) (any, error) {
	return t.reg.Wrap(ctx, runID, name, inputs, fn, opts...)
}

// RecordHandoff records a transfer between two named agents on the run and
// returns the generated handoff ID.
func (t *Tracer) RecordHandoff(ctx context.Context, runID, from, to string, payload any, opts ...registry.HandoffOption) (string, error) {
	return t.reg.RecordHandoff(ctx, runID, from, to, payload, opts...)
}

// EndTrace finalizes the run and returns the sealed snapshot including its
// derived performance metrics.
func (t *Tracer) EndTrace(ctx context.Context, runID string, success bool, err error) (*trace.Run, error) {
	return t.reg.Finalize(ctx, runID, success, err)
}

// ExportTrace persists the run's current snapshot as JSON and returns the
// path written. An empty path selects the exporter's default location.
func (t *Tracer) ExportTrace(ctx context.Context, runID, path string) (string, error) {
	run, err := t.reg.Get(ctx, runID)
	if err != nil {
		return "", err
	}
	return t.exp.Export(ctx, run, path)
}

// CurrentTrace returns a deep snapshot of the run.
func (t *Tracer) CurrentTrace(ctx context.Context, runID string) (*trace.Run, error) {
	return t.reg.Get(ctx, runID)
}

// FunctionHistory returns the run's invocations as compact summary rows in
// sequence order.
func (t *Tracer) FunctionHistory(ctx context.Context, runID string) ([]trace.InvocationSummary, error) {
	run, err := t.reg.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	rows := make([]trace.InvocationSummary, len(run.Invocations))
	for i, inv := range run.Invocations {
		rows[i] = trace.InvocationSummary{
			Sequence:  inv.Sequence,
			Name:      inv.Name,
			Depth:     inv.Depth,
			Duration:  inv.Duration,
			Success:   inv.Success,
			Timestamp: inv.StartedAt,
			Error:     inv.Error,
		}
	}
	return rows, nil
}

// HandoffHistory returns the run's handoffs as compact summary rows in
// sequence order.
func (t *Tracer) HandoffHistory(ctx context.Context, runID string) ([]trace.HandoffSummary, error) {
	run, err := t.reg.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	rows := make([]trace.HandoffSummary, len(run.Handoffs))
	for i, h := range run.Handoffs {
		rows[i] = trace.HandoffSummary{
			Sequence:  h.Sequence,
			From:      h.From,
			To:        h.To,
			Timestamp: h.Timestamp,
			Success:   h.Success,
		}
	}
	return rows, nil
}

// Summary renders a human-readable execution report for the run: lifecycle
// line, invocations indented by re-entrancy depth, and handoffs, all in
// sequence order.
func (t *Tracer) Summary(ctx context.Context, runID string) (string, error) {
	run, err := t.reg.Get(ctx, runID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "run %s subject=%s status=%s", run.RunID, run.Subject, run.Status)
	if run.WorkflowID != "" {
		fmt.Fprintf(&b, " workflow=%s", run.WorkflowID)
	}
	if run.Finalized() {
		fmt.Fprintf(&b, " duration=%s", run.Duration)
	}
	b.WriteByte('\n')

	if m := run.Metrics; m != nil {
		fmt.Fprintf(&b, "metrics: avg=%s success=%d%% error=%d%%", m.AvgDuration, m.SuccessRate, m.ErrorRate)
		if m.Slowest != "" {
			fmt.Fprintf(&b, " slowest=%s fastest=%s", m.Slowest, m.Fastest)
		}
		b.WriteByte('\n')
	}

	fmt.Fprintf(&b, "invocations (%d):\n", len(run.Invocations))
	for _, inv := range run.Invocations {
		status := "ok"
		if !inv.Success {
			status = "failed: " + inv.Error
		}
		if inv.EndedAt.IsZero() {
			status = "open"
		}
		indent := strings.Repeat("  ", inv.Depth+1)
		fmt.Fprintf(&b, "%s[%d] %s %s (%s)\n", indent, inv.Sequence, inv.Name, status, inv.Duration.Round(time.Microsecond))
	}

	fmt.Fprintf(&b, "handoffs (%d):\n", len(run.Handoffs))
	for _, h := range run.Handoffs {
		fmt.Fprintf(&b, "  [%d] %s -> %s", h.Sequence, h.From, h.To)
		if h.Validation != "" {
			fmt.Fprintf(&b, " (%s)", h.Validation)
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}
