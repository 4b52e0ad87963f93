package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/emelcore/emel/internal/bench"
)

// benchStdout is where printResult writes; overridable in tests.
var benchStdout io.Writer = os.Stdout

var (
	benchIterations uint64
	benchRuns       int
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run the reference benchmark harness",
}

var benchDecodeCmd = &cobra.Command{
	Use:   "decode",
	Short: "Time the full decode pipeline over a set of synthetic request shapes",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := bench.Config{
			Iterations:       benchIterations,
			Runs:             benchRuns,
			WarmupIterations: benchIterations / 10,
			WarmupRuns:       1,
		}
		for _, dc := range bench.DefaultDecodeCases() {
			result := bench.RunDecodeCase(dc, cfg)
			printResult(result)
		}
	},
}

var benchAllocateCmd = &cobra.Command{
	Use:   "allocate",
	Short: "Stress-test the tensor allocator's partitioning",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := bench.Config{
			Iterations:       benchIterations,
			Runs:             benchRuns,
			WarmupIterations: benchIterations / 10,
			WarmupRuns:       1,
		}
		for _, ac := range bench.DefaultAllocateCases() {
			result, report := bench.RunAllocateCase(ac, cfg)
			printResult(result)
			logrus.WithFields(logrus.Fields{
				"chunks":      report.ChunkCount,
				"total_bytes": report.TotalBytes,
			}).Infof("%s: partition report", ac.Name)
		}
	},
}

func printResult(r bench.Result) {
	fmt.Fprintf(benchStdout, "%-24s %10.1f ns/op  mean=%8.1f  p50=%8.1f  p90=%8.1f  p99=%8.1f  (runs=%d, iterations=%d)\n",
		r.Name, r.NsPerOp, r.Mean, r.P50, r.P90, r.P99, r.Runs, r.Iterations)
}

func init() {
	benchCmd.PersistentFlags().Uint64Var(&benchIterations, "iterations", 100, "Iterations per measured run")
	benchCmd.PersistentFlags().IntVar(&benchRuns, "runs", 20, "Number of measured runs")

	benchCmd.AddCommand(benchDecodeCmd)
	benchCmd.AddCommand(benchAllocateCmd)
}
