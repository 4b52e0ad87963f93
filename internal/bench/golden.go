package bench

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// GoldenCase is one recorded bench run's expected shape, used by bench
// round-trip tests to catch accidental changes to partition/output counts
// without pinning exact timings.
type GoldenCase struct {
	Name          string `json:"name"`
	NTokens       int    `json:"n_tokens"`
	NUbatch       int64  `json:"n_ubatch"`
	ExpectUbatchN int    `json:"expect_ubatch_count"`
	ExpectOutputs int64  `json:"expect_total_outputs"`
}

// GoldenDataset mirrors sim/internal/testutil/golden.go's top-level
// {"tests": [...]} envelope.
type GoldenDataset struct {
	Tests []GoldenCase `json:"tests"`
}

// LoadGolden loads name (relative to internal/bench/testdata/) and decodes
// it into a GoldenDataset. Path resolution mirrors
// sim/internal/testutil/golden.go's runtime.Caller(0) trick so the loader
// works regardless of the caller's working directory.
func LoadGolden(t *testing.T, name string) *GoldenDataset {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("bench: failed to resolve caller for golden fixture path")
	}
	path := filepath.Join(filepath.Dir(thisFile), "testdata", name)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("bench: failed to read golden fixture %s: %v", path, err)
	}

	var dataset GoldenDataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		t.Fatalf("bench: failed to parse golden fixture %s: %v", path, err)
	}
	return &dataset
}
