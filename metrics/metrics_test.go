package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"goa.design/agenttrace/trace"
)

func TestComputeEmptyRun(t *testing.T) {
	t.Parallel()

	want := trace.PerformanceMetrics{SuccessRate: 100, ErrorRate: 0}
	require.Equal(t, want, Compute(nil))
	require.Equal(t, want, Compute(&trace.Run{}))
}

func TestComputeMixedOutcomes(t *testing.T) {
	t.Parallel()

	run := &trace.Run{Invocations: []*trace.Invocation{
		{Name: "fetch", Duration: 10 * time.Millisecond, Success: true},
		{Name: "render", Duration: 20 * time.Millisecond, Success: true},
		{Name: "upload", Duration: 30 * time.Millisecond, Success: false},
	}}

	m := Compute(run)
	require.Equal(t, 20*time.Millisecond, m.AvgDuration)
	require.Equal(t, "upload", m.Slowest)
	require.Equal(t, "fetch", m.Fastest)
	require.Equal(t, 67, m.SuccessRate)
	require.Equal(t, 33, m.ErrorRate)
}

func TestComputeTiesFavorFirstEncountered(t *testing.T) {
	t.Parallel()

	run := &trace.Run{Invocations: []*trace.Invocation{
		{Name: "first", Duration: 5 * time.Millisecond, Success: true},
		{Name: "second", Duration: 5 * time.Millisecond, Success: true},
	}}

	m := Compute(run)
	require.Equal(t, "first", m.Slowest)
	require.Equal(t, "first", m.Fastest)
}

func TestComputeOpenInvocationCountsAsZeroDuration(t *testing.T) {
	t.Parallel()

	run := &trace.Run{Invocations: []*trace.Invocation{
		{Name: "done", Duration: 30 * time.Millisecond, Success: true},
		{Name: "open"}, // still running, no duration yet
	}}

	m := Compute(run)
	require.Equal(t, 15*time.Millisecond, m.AvgDuration)
	require.Equal(t, "done", m.Slowest)
	require.Equal(t, "open", m.Fastest)
	require.Equal(t, 50, m.SuccessRate)
	require.Equal(t, 50, m.ErrorRate)
}

func TestComputeAllSucceeded(t *testing.T) {
	t.Parallel()

	run := &trace.Run{Invocations: []*trace.Invocation{
		{Name: "only", Duration: time.Millisecond, Success: true},
	}}

	m := Compute(run)
	require.Equal(t, 100, m.SuccessRate)
	require.Equal(t, 0, m.ErrorRate)
	require.Equal(t, "only", m.Slowest)
	require.Equal(t, "only", m.Fastest)
}
