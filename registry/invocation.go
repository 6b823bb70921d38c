package registry

import (
	"context"
	"fmt"

	"goa.design/agenttrace/sanitize"
	"goa.design/agenttrace/telemetry"
	"goa.design/agenttrace/trace"
)

// UnitOfWork is the caller-supplied function timed by Wrap. It receives the
// caller's context unchanged and returns a result or an error.
type UnitOfWork func(ctx context.Context) (any, error)

// WrapOption configures optional fields on a recorded invocation.
type WrapOption func(*trace.Invocation)

// WithInvocationMetadata attaches caller metadata to the recorded invocation.
func WithInvocationMetadata(meta map[string]any) WrapOption {
	return func(inv *trace.Invocation) { inv.Metadata = cloneMetadata(meta) }
}

// Wrap times and records one named unit of work on the given run.
//
// The invocation is created open at call start with a freshly allocated
// sequence number, its depth, and the sanitized inputs, and is appended to
// the run's list immediately so the list stays in allocation order. The unit
// then executes outside all locks. On return the invocation is sealed in
// place with its end time, duration and sanitized output or error message,
// and the unit's result and error are returned to the caller unchanged: the
// recorder never swallows, wraps or replaces the unit's failure, including
// context cancellation, which is sealed as an ordinary failure. If the unit
// panics the invocation is sealed as failed and the panic is re-raised.
//
// Depth tracks re-entrancy of the same function name on the same run, not
// call-stack nesting: the Nth concurrently open call to a name observes
// depth N-1, and the counter is decremented, floored at zero, only when that
// call completes.
//
// Wrap fails with trace.ErrRunNotFound for an unknown run and with
// trace.ErrRunFinalized when the run has already been finalized.
func (r *Registry) Wrap(ctx context.Context, runID, name string, inputs any, fn UnitOfWork, opts ...WrapOption) (any, error) {
	state, err := r.lookup(runID)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	if state.run.Finalized() {
		state.mu.Unlock()
		return nil, fmt.Errorf("wrap %q on run %q: %w", name, runID, trace.ErrRunFinalized)
	}
	inv := &trace.Invocation{
		Sequence:  r.seq.Next(),
		RunID:     runID,
		Name:      name,
		Depth:     state.open[name],
		StartedAt: r.now(),
		Inputs:    sanitize.Capture(inputs),
	}
	for _, opt := range opts {
		opt(inv)
	}
	state.open[name]++
	state.run.Invocations = append(state.run.Invocations, inv)
	state.mu.Unlock()

	sealed := false
	defer func() {
		if !sealed {
			// The unit panicked; seal so the invocation is never left open,
			// then let the panic continue to the caller.
			r.seal(ctx, state, inv, nil, fmt.Errorf("panic in %s", name))
		}
	}()

	result, err := fn(ctx)
	sealed = true
	r.seal(ctx, state, inv, result, err)
	return result, err
}

// seal closes the open invocation under the run lock, maintains the depth
// counter, and mirrors the sealed record to the sink.
func (r *Registry) seal(ctx context.Context, state *runState, inv *trace.Invocation, result any, err error) {
	state.mu.Lock()
	inv.EndedAt = r.now()
	inv.Duration = inv.EndedAt.Sub(inv.StartedAt)
	if err != nil {
		inv.Success = false
		inv.Error = err.Error()
	} else {
		inv.Success = true
		inv.Output = sanitize.Capture(result)
	}
	if state.open[inv.Name] > 0 {
		state.open[inv.Name]--
	}
	snapshot := *inv
	state.mu.Unlock()

	telemetry.Emit(ctx, r.logger, "invocation_recorded", func() error {
		return r.sink.InvocationRecorded(ctx, &snapshot)
	})
}
