package agenttrace_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/agenttrace"
	"goa.design/agenttrace/export"
	"goa.design/agenttrace/telemetry"
	"goa.design/agenttrace/trace"
)

// recordingSink captures mirrored events for assertions. failWith, when set,
// is returned from every method to exercise the best-effort policy.
type recordingSink struct {
	mu       sync.Mutex
	events   []string
	failWith error
}

func (s *recordingSink) record(event string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.failWith
}

func (s *recordingSink) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

func (s *recordingSink) RunStarted(_ context.Context, run *trace.Run) error {
	return s.record("started:" + run.Subject)
}

func (s *recordingSink) InvocationRecorded(_ context.Context, inv *trace.Invocation) error {
	return s.record("invocation:" + inv.Name)
}

func (s *recordingSink) HandoffRecorded(_ context.Context, h *trace.Handoff) error {
	return s.record("handoff:" + h.From + ">" + h.To)
}

func (s *recordingSink) RunCompleted(_ context.Context, run *trace.Run) error {
	return s.record("completed:" + string(run.Status))
}

func TestSuccessfulRunEndToEnd(t *testing.T) {
	t.Parallel()

	tracer := agenttrace.New()
	ctx := context.Background()

	id := tracer.StartTrace(ctx, "ContentAgent", "wf-1", map[string]any{})
	result, err := tracer.WrapFunction(ctx, id, "generate", map[string]any{"topic": "sale"},
		func(context.Context) (any, error) { return "ok", nil })
	require.NoError(t, err)
	require.Equal(t, "ok", result)

	run, err := tracer.EndTrace(ctx, id, true, nil)
	require.NoError(t, err)
	require.Equal(t, trace.StatusSucceeded, run.Status)
	require.Len(t, run.Invocations, 1)
	require.NotNil(t, run.Metrics)
	require.Equal(t, 100, run.Metrics.SuccessRate)
}

func TestWrapFunctionUnknownRun(t *testing.T) {
	t.Parallel()

	tracer := agenttrace.New()
	_, err := tracer.WrapFunction(context.Background(), "unknown", "fn", nil,
		func(context.Context) (any, error) { return nil, nil })
	require.ErrorIs(t, err, trace.ErrRunNotFound)
}

func TestWrapFunctionFailurePropagates(t *testing.T) {
	t.Parallel()

	tracer := agenttrace.New()
	ctx := context.Background()
	id := tracer.StartTrace(ctx, "A", "wf", nil)

	boom := errors.New("boom")
	_, err := tracer.WrapFunction(ctx, id, "explode", nil,
		func(context.Context) (any, error) { return nil, boom })
	require.Same(t, boom, err)

	history, err := tracer.FunctionHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.False(t, history[0].Success)
	require.Equal(t, "boom", history[0].Error)
}

func TestHandoffHistory(t *testing.T) {
	t.Parallel()

	tracer := agenttrace.New()
	ctx := context.Background()
	id := tracer.StartTrace(ctx, "A", "wf", nil)

	hid, err := tracer.RecordHandoff(ctx, id, "A", "B", map[string]any{"x": 1})
	require.NoError(t, err)
	require.NotEmpty(t, hid)

	history, err := tracer.HandoffHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "A", history[0].From)
	require.Equal(t, "B", history[0].To)
	require.True(t, history[0].Success)
	require.False(t, history[0].Timestamp.IsZero())
}

func TestExportMatchesInMemoryRun(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tracer := agenttrace.New(agenttrace.WithExporter(export.New(export.WithDir(dir))))
	ctx := context.Background()

	id := tracer.StartTrace(ctx, "ContentAgent", "wf-1", nil)
	_, err := tracer.WrapFunction(ctx, id, "generate", map[string]any{"topic": "sale"},
		func(context.Context) (any, error) { return "ok", nil })
	require.NoError(t, err)
	_, err = tracer.RecordHandoff(ctx, id, "ContentAgent", "ReviewAgent", map[string]any{"draft": 1})
	require.NoError(t, err)
	inMemory, err := tracer.EndTrace(ctx, id, true, nil)
	require.NoError(t, err)

	path, err := tracer.ExportTrace(ctx, id, "")
	require.NoError(t, err)
	require.Equal(t, dir, filepath.Dir(path))

	loaded, err := export.Load(path)
	require.NoError(t, err)
	require.Equal(t, inMemory.RunID, loaded.RunID)
	require.Equal(t, inMemory.Status, loaded.Status)
	require.Equal(t, inMemory.Metrics, loaded.Metrics)
	require.Len(t, loaded.Invocations, 1)
	require.Len(t, loaded.Handoffs, 1)
	require.Equal(t, inMemory.Invocations[0].Sequence, loaded.Invocations[0].Sequence)
	require.Equal(t, inMemory.Handoffs[0].Sequence, loaded.Handoffs[0].Sequence)
}

func TestExportTraceUnknownRun(t *testing.T) {
	t.Parallel()

	tracer := agenttrace.New()
	_, err := tracer.ExportTrace(context.Background(), "unknown", "")
	require.ErrorIs(t, err, trace.ErrRunNotFound)
}

func TestEndTraceTwiceRejected(t *testing.T) {
	t.Parallel()

	tracer := agenttrace.New()
	ctx := context.Background()
	id := tracer.StartTrace(ctx, "A", "wf", nil)

	_, err := tracer.EndTrace(ctx, id, false, errors.New("failed step"))
	require.NoError(t, err)
	_, err = tracer.EndTrace(ctx, id, true, nil)
	require.ErrorIs(t, err, trace.ErrRunFinalized)
}

func TestSinkMirrorsEvents(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	tracer := agenttrace.New(agenttrace.WithSink(sink))
	ctx := context.Background()

	id := tracer.StartTrace(ctx, "A", "wf", nil)
	_, err := tracer.WrapFunction(ctx, id, "step", nil,
		func(context.Context) (any, error) { return nil, nil })
	require.NoError(t, err)
	_, err = tracer.RecordHandoff(ctx, id, "A", "B", nil)
	require.NoError(t, err)
	_, err = tracer.EndTrace(ctx, id, true, nil)
	require.NoError(t, err)

	require.Equal(t, []string{"started:A", "invocation:step", "handoff:A>B", "completed:succeeded"}, sink.recorded())
}

func TestSinkFailuresNeverPropagate(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{failWith: errors.New("collector down")}
	tracer := agenttrace.New(agenttrace.WithSink(sink), agenttrace.WithLogger(telemetry.NewNoopLogger()))
	ctx := context.Background()

	id := tracer.StartTrace(ctx, "A", "wf", nil)
	result, err := tracer.WrapFunction(ctx, id, "step", nil,
		func(context.Context) (any, error) { return 42, nil })
	require.NoError(t, err, "a broken sink must not fail the traced call")
	require.Equal(t, 42, result)
	_, err = tracer.EndTrace(ctx, id, true, nil)
	require.NoError(t, err)
}

func TestCurrentTraceReflectsLiveRun(t *testing.T) {
	t.Parallel()

	tracer := agenttrace.New()
	ctx := context.Background()
	id := tracer.StartTrace(ctx, "A", "wf", nil)

	run, err := tracer.CurrentTrace(ctx, id)
	require.NoError(t, err)
	require.Equal(t, trace.StatusRunning, run.Status)
	require.Nil(t, run.Metrics)
}

func TestSummaryRendersRun(t *testing.T) {
	t.Parallel()

	tracer := agenttrace.New()
	ctx := context.Background()

	id := tracer.StartTrace(ctx, "ContentAgent", "wf-1", nil)
	_, err := tracer.WrapFunction(ctx, id, "generate", nil,
		func(context.Context) (any, error) { return "ok", nil })
	require.NoError(t, err)
	_, err = tracer.WrapFunction(ctx, id, "upload", nil,
		func(context.Context) (any, error) { return nil, errors.New("quota exceeded") })
	require.Error(t, err)
	_, err = tracer.RecordHandoff(ctx, id, "ContentAgent", "AssetAgent", nil)
	require.NoError(t, err)
	_, err = tracer.EndTrace(ctx, id, true, nil)
	require.NoError(t, err)

	summary, err := tracer.Summary(ctx, id)
	require.NoError(t, err)
	require.Contains(t, summary, "subject=ContentAgent")
	require.Contains(t, summary, "status=succeeded")
	require.Contains(t, summary, "invocations (2)")
	require.Contains(t, summary, "generate ok")
	require.Contains(t, summary, "upload failed: quota exceeded")
	require.Contains(t, summary, "handoffs (1)")
	require.Contains(t, summary, "ContentAgent -> AssetAgent")
	require.Contains(t, summary, "success=50%")
}

func TestSummaryUnknownRun(t *testing.T) {
	t.Parallel()

	tracer := agenttrace.New()
	_, err := tracer.Summary(context.Background(), "unknown")
	require.ErrorIs(t, err, trace.ErrRunNotFound)
}
