// Package registry implements the owner of all trace runs. A Registry
// creates runs, records invocations and handoffs into them, finalizes them
// with derived metrics, and hands out deep snapshots for inspection.
//
// Construct a Registry explicitly and pass it by reference to callers; there
// is no package-level instance. One registry owns one sequence allocator, so
// every event it records, invocation or handoff, on any run, carries a
// unique position in a single total order.
//
// Locking discipline: the run map is guarded by an RWMutex and supports
// concurrent operations on distinct runs. Each run's event lists and depth
// counters are guarded by that run's own mutex, which serializes appends and
// keeps both lists in sequence-number order. Wrapped units of work always
// execute outside both locks.
package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"goa.design/agenttrace/metrics"
	"goa.design/agenttrace/telemetry"
	"goa.design/agenttrace/trace"
)

type (
	// Registry owns every run for its full lifetime: create, record,
	// finalize, export, evict.
	Registry struct {
		seq    *trace.Sequence
		sink   telemetry.Sink
		logger telemetry.Logger
		now    func() time.Time

		mu   sync.RWMutex
		runs map[string]*runState
	}

	// runState is the live aggregate for one run: the mutable record plus
	// the per-name open-invocation counters used by the depth policy.
	runState struct {
		mu sync.Mutex
		// run is the registry's own copy; callers only ever see clones.
		run *trace.Run
		// open counts currently open invocations per function name.
		open map[string]int
	}

	// Option configures a Registry.
	Option func(*Registry)

	// StartOption configures optional fields on a run at creation time.
	StartOption func(*trace.Run)
)

// New constructs an empty Registry ready for use.
func New(opts ...Option) *Registry {
	r := &Registry{
		seq:    trace.NewSequence(),
		sink:   telemetry.NewNoopSink(),
		logger: telemetry.NewNoopLogger(),
		now:    time.Now,
		runs:   make(map[string]*runState),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithSink mirrors every recorded event into the given secondary sink.
// Sink failures are logged and never propagated.
func WithSink(s telemetry.Sink) Option {
	return func(r *Registry) { r.sink = s }
}

// WithLogger sets the logger used for sink failures and other best-effort
// diagnostics.
func WithLogger(l telemetry.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithSubjectID sets the agent instance identifier on the created run.
func WithSubjectID(id string) StartOption {
	return func(run *trace.Run) { run.SubjectID = id }
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) StartOption {
	return func(run *trace.Run) { run.RunID = id }
}

// Start creates a new running run for the given subject and returns its ID.
// Start never fails; an empty subject is recorded as-is.
func (r *Registry) Start(ctx context.Context, subject, workflowID string, metadata map[string]any, opts ...StartOption) string {
	run := &trace.Run{
		RunID:       generateRunID(subject),
		Subject:     subject,
		WorkflowID:  workflowID,
		Status:      trace.StatusRunning,
		StartedAt:   r.now(),
		Metadata:    cloneMetadata(metadata),
		Invocations: []*trace.Invocation{},
		Handoffs:    []*trace.Handoff{},
	}
	for _, opt := range opts {
		opt(run)
	}

	r.mu.Lock()
	r.runs[run.RunID] = &runState{run: run, open: make(map[string]int)}
	r.mu.Unlock()

	snapshot := run.Clone()
	telemetry.Emit(ctx, r.logger, "run_started", func() error {
		return r.sink.RunStarted(ctx, snapshot)
	})
	return run.RunID
}

// Get returns a deep snapshot of the run, or trace.ErrRunNotFound.
func (r *Registry) Get(_ context.Context, runID string) (*trace.Run, error) {
	state, err := r.lookup(runID)
	if err != nil {
		return nil, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.run.Clone(), nil
}

// Finalize seals the run: sets its end time, status and error, computes the
// performance metrics, and returns the sealed snapshot. Finalizing an
// unknown run returns trace.ErrRunNotFound; finalizing twice returns
// trace.ErrRunFinalized.
func (r *Registry) Finalize(ctx context.Context, runID string, success bool, runErr error) (*trace.Run, error) {
	state, err := r.lookup(runID)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	run := state.run
	if run.Finalized() {
		state.mu.Unlock()
		return nil, fmt.Errorf("finalize %q: %w", runID, trace.ErrRunFinalized)
	}
	run.EndedAt = r.now()
	run.Duration = run.EndedAt.Sub(run.StartedAt)
	if success {
		run.Status = trace.StatusSucceeded
	} else {
		run.Status = trace.StatusFailed
		if runErr != nil {
			run.Error = runErr.Error()
		}
	}
	m := metrics.Compute(run)
	run.Metrics = &m
	snapshot := run.Clone()
	state.mu.Unlock()

	telemetry.Emit(ctx, r.logger, "run_completed", func() error {
		return r.sink.RunCompleted(ctx, snapshot)
	})
	return snapshot, nil
}

// Evict removes a finalized run from the registry, completing its ownership
// lifecycle. Evicting an unknown run returns trace.ErrRunNotFound; evicting
// a run that is still running returns trace.ErrRunActive.
func (r *Registry) Evict(_ context.Context, runID string) error {
	state, err := r.lookup(runID)
	if err != nil {
		return err
	}
	state.mu.Lock()
	finalized := state.run.Finalized()
	state.mu.Unlock()
	if !finalized {
		return fmt.Errorf("evict %q: %w", runID, trace.ErrRunActive)
	}

	r.mu.Lock()
	delete(r.runs, runID)
	r.mu.Unlock()
	return nil
}

// Len returns the number of runs currently owned by the registry, live and
// finalized.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs)
}

// Sequence exposes the registry's allocator. Intended for diagnostics and
// tests.
func (r *Registry) Sequence() *trace.Sequence {
	return r.seq
}

func (r *Registry) lookup(runID string) (*runState, error) {
	r.mu.RLock()
	state, ok := r.runs[runID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("run %q: %w", runID, trace.ErrRunNotFound)
	}
	return state, nil
}

// generateRunID returns a unique run identifier prefixed with the normalized
// subject name to keep logs and exported filenames readable without
// sacrificing uniqueness.
func generateRunID(subject string) string {
	prefix := strings.ToLower(subject)
	prefix = strings.NewReplacer(".", "-", " ", "-", "/", "-").Replace(prefix)
	if prefix == "" {
		prefix = "run"
	}
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

func cloneMetadata(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
