// Package trace defines the core data model for agent execution tracing.
//
// A Run is the complete record of one top-level agent invocation: the timed,
// named units of work executed on its behalf (Invocations) and the transfers
// of control or data between agents (Handoffs), all stamped with sequence
// numbers drawn from a single process-wide allocator so that every recorded
// event has a total order. Runs are owned by a registry.Registry for their
// full lifetime; the types here are the snapshot and wire forms handed to
// callers and to the JSON exporter.
package trace

import (
	"encoding/json"
	"errors"
	"time"
)

// Typed error sentinels for invalid trace operations.
var (
	// ErrRunNotFound reports an operation against an unknown run ID. It
	// always signals a caller bug and is never swallowed.
	ErrRunNotFound = errors.New("trace: run not found")
	// ErrRunFinalized reports a mutation (wrap, handoff, finalize) against a
	// run that has already been finalized.
	ErrRunFinalized = errors.New("trace: run already finalized")
	// ErrRunActive reports an eviction attempt against a run that is still
	// running.
	ErrRunActive = errors.New("trace: run still active")
)

type (
	// Status is the lifecycle state of a run.
	Status string

	// Run captures one top-level agent execution: identity, lifecycle
	// timestamps, the ordered event lists, and the metrics derived at
	// finalize time. Runs returned by the registry are deep snapshots;
	// mutating them does not affect the registry's copy.
	Run struct {
		// RunID uniquely identifies the run.
		RunID string `json:"run_id"`
		// Subject is the agent type that owns the run (e.g. "ContentAgent").
		Subject string `json:"subject"`
		// SubjectID identifies the agent instance when the caller provides one.
		SubjectID string `json:"subject_id,omitempty"`
		// WorkflowID groups related runs into a workflow or session.
		WorkflowID string `json:"workflow_id,omitempty"`
		// Status is the current lifecycle state.
		Status Status `json:"status"`
		// StartedAt records when the run began.
		StartedAt time.Time `json:"started_at"`
		// EndedAt records when the run was finalized. Zero while running.
		EndedAt time.Time `json:"ended_at,omitzero"`
		// Duration is EndedAt - StartedAt once finalized.
		Duration time.Duration `json:"duration_ns,omitempty"`
		// Error is the failure message when Status is StatusFailed.
		Error string `json:"error,omitempty"`
		// Metadata stores caller-provided metadata.
		Metadata map[string]any `json:"metadata,omitempty"`
		// Invocations are the recorded units of work, in sequence order.
		Invocations []*Invocation `json:"invocations"`
		// Handoffs are the recorded agent-to-agent transfers, in sequence order.
		Handoffs []*Handoff `json:"handoffs"`
		// Metrics holds the aggregate statistics computed at finalize time.
		// Nil while the run is still running.
		Metrics *PerformanceMetrics `json:"metrics,omitempty"`
	}

	// Invocation is one timed, named unit of work recorded within a run. It
	// is created open when the unit starts and sealed exactly once when the
	// unit completes; sealed invocations are immutable.
	Invocation struct {
		// Sequence is the process-wide event sequence number, assigned at
		// call start.
		Sequence int64 `json:"sequence"`
		// RunID is the non-owning back-reference to the enclosing run.
		RunID string `json:"run_id"`
		// Name is the function name supplied by the caller.
		Name string `json:"name"`
		// Depth counts concurrently open invocations of the same Name on the
		// same run at call start. It tracks re-entrancy for display
		// indentation, not call-stack depth.
		Depth int `json:"depth"`
		// StartedAt is the timestamp taken immediately before the unit ran.
		StartedAt time.Time `json:"started_at"`
		// EndedAt is the timestamp taken immediately after the unit returned.
		// Zero while the invocation is open.
		EndedAt time.Time `json:"ended_at,omitzero"`
		// Duration is EndedAt - StartedAt once sealed.
		Duration time.Duration `json:"duration_ns"`
		// Success reports whether the unit returned without error.
		Success bool `json:"success"`
		// Error is the unit's failure message. Empty iff Success.
		Error string `json:"error,omitempty"`
		// Inputs is the sanitized snapshot of the unit's inputs.
		Inputs json.RawMessage `json:"inputs,omitempty"`
		// Output is the sanitized snapshot of the unit's result. Present iff
		// Success.
		Output json.RawMessage `json:"output,omitempty"`
		// Metadata stores caller-provided per-invocation metadata.
		Metadata map[string]any `json:"metadata,omitempty"`
	}

	// Handoff records a transfer of control or data between two named agents
	// within a run. Handoffs are immutable on creation; Success is always
	// true for a created handoff (only the run lookup can fail).
	Handoff struct {
		// HandoffID uniquely identifies the handoff.
		HandoffID string `json:"handoff_id"`
		// Sequence is the process-wide event sequence number.
		Sequence int64 `json:"sequence"`
		// RunID is the non-owning back-reference to the enclosing run.
		RunID string `json:"run_id"`
		// From names the agent handing off.
		From string `json:"from"`
		// To names the agent receiving the handoff.
		To string `json:"to"`
		// Timestamp is the handoff time.
		Timestamp time.Time `json:"timestamp"`
		// Payload is the sanitized handoff payload.
		Payload json.RawMessage `json:"payload,omitempty"`
		// Validation carries the optional validation annotation, either a
		// caller-provided note or the outcome of schema validation.
		Validation string `json:"validation,omitempty"`
		// Success reports whether the handoff was recorded.
		Success bool `json:"success"`
	}

	// PerformanceMetrics are the aggregate statistics derived from a run's
	// invocation list at finalize time. They are computed once and never
	// updated incrementally.
	PerformanceMetrics struct {
		// AvgDuration is the mean invocation duration. Open invocations
		// contribute zero.
		AvgDuration time.Duration `json:"avg_duration_ns"`
		// Slowest is the name of the invocation with the longest duration.
		// Empty when the run recorded no invocations.
		Slowest string `json:"slowest"`
		// Fastest is the name of the invocation with the shortest duration.
		Fastest string `json:"fastest"`
		// SuccessRate is the rounded percentage of successful invocations.
		// 100 when the run recorded no invocations.
		SuccessRate int `json:"success_rate"`
		// ErrorRate is 100 - SuccessRate.
		ErrorRate int `json:"error_rate"`
	}

	// InvocationSummary is the compact row returned by function history
	// accessors, ordered by sequence number.
	InvocationSummary struct {
		// Sequence is the event sequence number.
		Sequence int64 `json:"sequence"`
		// Name is the invoked function name.
		Name string `json:"name"`
		// Depth is the re-entrancy depth at call start.
		Depth int `json:"depth"`
		// Duration is the sealed invocation duration.
		Duration time.Duration `json:"duration_ns"`
		// Success reports whether the unit completed without error.
		Success bool `json:"success"`
		// Timestamp is the invocation start time.
		Timestamp time.Time `json:"timestamp"`
		// Error is the failure message when Success is false.
		Error string `json:"error,omitempty"`
	}

	// HandoffSummary is the compact row returned by handoff history
	// accessors, ordered by sequence number.
	HandoffSummary struct {
		// Sequence is the event sequence number.
		Sequence int64 `json:"sequence"`
		// From names the agent handing off.
		From string `json:"from"`
		// To names the agent receiving the handoff.
		To string `json:"to"`
		// Timestamp is the handoff time.
		Timestamp time.Time `json:"timestamp"`
		// Success reports whether the handoff was recorded.
		Success bool `json:"success"`
	}
)

const (
	// StatusRunning indicates the run is actively executing.
	StatusRunning Status = "running"
	// StatusSucceeded indicates the run was finalized successfully.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the run was finalized with a failure.
	StatusFailed Status = "failed"
)

// Finalized reports whether the run reached a terminal status.
func (r *Run) Finalized() bool {
	return r.Status == StatusSucceeded || r.Status == StatusFailed
}

// Clone returns a deep copy of the run. Invocations and handoffs are copied
// element-wise so callers can hold the snapshot without racing registry
// mutation.
func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}
	dup := *r
	dup.Metadata = cloneMetadata(r.Metadata)
	if r.Metrics != nil {
		m := *r.Metrics
		dup.Metrics = &m
	}
	dup.Invocations = make([]*Invocation, len(r.Invocations))
	for i, inv := range r.Invocations {
		c := *inv
		c.Metadata = cloneMetadata(inv.Metadata)
		dup.Invocations[i] = &c
	}
	dup.Handoffs = make([]*Handoff, len(r.Handoffs))
	for i, h := range r.Handoffs {
		c := *h
		dup.Handoffs[i] = &c
	}
	return &dup
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
