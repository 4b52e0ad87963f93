package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/emelcore/emel/internal/bench"
)

func TestPrintResult_FormatsNameAndTimings(t *testing.T) {
	r := bench.Result{Name: "decode/single_token", NsPerOp: 123.4, Mean: 120, P50: 118, P90: 130, P99: 140, Runs: 20, Iterations: 100}

	old := benchStdout
	buf := &bytes.Buffer{}
	benchStdout = buf
	defer func() { benchStdout = old }()

	printResult(r)

	assert.Contains(t, buf.String(), "decode/single_token")
	assert.Contains(t, buf.String(), "runs=20")
}

func TestBenchCmd_RegistersDecodeAndAllocateSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range benchCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["decode"])
	assert.True(t, names["allocate"])
}
