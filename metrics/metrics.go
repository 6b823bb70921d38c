// Package metrics derives aggregate performance statistics from a run's
// invocation list. Compute is pure: it reads the run and returns a value,
// with no side effects, so it can be called on snapshots as well as live
// aggregates.
package metrics

import (
	"math"
	"time"

	"goa.design/agenttrace/trace"
)

// Compute returns the performance metrics for the run's invocations.
//
// A run with no invocations yields zero durations, empty slowest/fastest
// names and a 100% success rate. Otherwise the average is the mean duration
// with open invocations contributing zero, slowest and fastest are the names
// of the maximum and minimum duration invocations with ties resolved in
// favor of the first-encountered entry, and the success rate is the rounded
// percentage of successful invocations. ErrorRate is always the complement
// of SuccessRate.
func Compute(run *trace.Run) trace.PerformanceMetrics {
	if run == nil || len(run.Invocations) == 0 {
		return trace.PerformanceMetrics{SuccessRate: 100, ErrorRate: 0}
	}

	var total time.Duration
	var succ int
	slowest, fastest := run.Invocations[0], run.Invocations[0]
	for _, inv := range run.Invocations {
		total += inv.Duration
		if inv.Success {
			succ++
		}
		if inv.Duration > slowest.Duration {
			slowest = inv
		}
		if inv.Duration < fastest.Duration {
			fastest = inv
		}
	}

	n := len(run.Invocations)
	rate := int(math.Round(100 * float64(succ) / float64(n)))
	return trace.PerformanceMetrics{
		AvgDuration: total / time.Duration(n),
		Slowest:     slowest.Name,
		Fastest:     fastest.Name,
		SuccessRate: rate,
		ErrorRate:   100 - rate,
	}
}
