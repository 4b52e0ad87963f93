package bench

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMeasure_RunsEveryIterationAndReportsStats(t *testing.T) {
	cfg := Config{Iterations: 5, Runs: 3, WarmupIterations: 2, WarmupRuns: 1}
	calls := 0

	result := Measure("noop", cfg, func() { calls++ })

	require.Equal(t, "noop", result.Name)
	require.EqualValues(t, 5, result.Iterations)
	require.Equal(t, 3, result.Runs)
	require.GreaterOrEqual(t, result.NsPerOp, 0.0)
	require.GreaterOrEqual(t, result.Mean, 0.0)
	require.GreaterOrEqual(t, result.P99, result.P50)
	// warmup (1*2) + measured (3*5)
	require.Equal(t, 17, calls)
}

func TestMeasure_EmptyRunsYieldsZeroResult(t *testing.T) {
	cfg := Config{Iterations: 5, Runs: 0}
	result := Measure("empty", cfg, func() { t.Fatal("fn must not run with zero configured runs") })
	require.Zero(t, result.Mean)
	require.Zero(t, result.NsPerOp)
}
