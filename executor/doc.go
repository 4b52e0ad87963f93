// Package executor implements the micro-batch executor: it drives one
// ubatch through validate, memory preparation, KV application, the
// compute backend, output extraction, and a single rollback attempt on
// failure.
//
// # Reading Guide
//
//   - executor.go: ComputeFuncs, Input/Result, Run (the six-stage
//     pipeline and its rollback-once contract).
package executor
