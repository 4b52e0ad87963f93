package bench

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Config mirrors original_source's bench::config: a warmup phase that is
// never measured, followed by Runs measured runs of Iterations calls each.
type Config struct {
	Iterations       uint64
	Runs             int
	WarmupIterations uint64
	WarmupRuns       int
}

// DefaultConfig gives a config cheap enough to run inside `emel bench`
// without a dedicated benchmarking flag for iteration count.
func DefaultConfig() Config {
	return Config{Iterations: 100, Runs: 20, WarmupIterations: 10, WarmupRuns: 2}
}

// Result is one named case's timing summary. NsPerOp is the median
// run (matching original_source's measure_case); Mean/Stddev/P50/P90/P99
// are computed over the same per-run ns/op samples via gonum/stat.
type Result struct {
	Name       string
	Iterations uint64
	Runs       int

	NsPerOp float64
	Mean    float64
	Stddev  float64
	P50     float64
	P90     float64
	P99     float64
}

// Measure runs fn cfg.WarmupRuns*cfg.WarmupIterations times unmeasured,
// then cfg.Runs times measured, each measured run executing fn
// cfg.Iterations times and recording ns/op for that run.
func Measure(name string, cfg Config, fn func()) Result {
	for r := 0; r < cfg.WarmupRuns; r++ {
		for i := uint64(0); i < cfg.WarmupIterations; i++ {
			fn()
		}
	}

	samples := make([]float64, 0, cfg.Runs)
	for r := 0; r < cfg.Runs; r++ {
		start := time.Now()
		for i := uint64(0); i < cfg.Iterations; i++ {
			fn()
		}
		elapsed := time.Since(start)
		nsPerOp := float64(elapsed.Nanoseconds())
		if cfg.Iterations > 0 {
			nsPerOp /= float64(cfg.Iterations)
		}
		samples = append(samples, nsPerOp)
	}

	return summarize(name, cfg, samples)
}

func summarize(name string, cfg Config, samples []float64) Result {
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	result := Result{Name: name, Iterations: cfg.Iterations, Runs: cfg.Runs}
	if len(sorted) == 0 {
		return result
	}

	result.NsPerOp = sorted[len(sorted)/2]
	result.Mean = stat.Mean(sorted, nil)
	result.Stddev = stat.StdDev(sorted, nil)
	result.P50 = stat.Quantile(0.50, stat.Empirical, sorted, nil)
	result.P90 = stat.Quantile(0.90, stat.Empirical, sorted, nil)
	result.P99 = stat.Quantile(0.99, stat.Empirical, sorted, nil)
	return result
}
