// Package bench is the reference benchmark harness (spec §2: "Tests and a
// reference benchmark harness are additional"). It times repeated calls
// into the decode core and reduces the samples to summary statistics, the
// Go-idiomatic analogue of original_source/tools/bench's
// config/result/measure_case trio.
//
// # Reading Guide
//
//   - measure.go: Config/Result, Measure (the timing loop).
//   - decode_bench.go: decoder-focused case, grounded on
//     original_source/tools/bench/batch_splitter_bench.cpp.
//   - allocate_bench.go: allocator-focused case plus chunk-count
//     telemetry, grounded on
//     original_source/tools/bench/buffer_allocator_bench.cpp.
//   - golden.go: JSON golden-fixture loader, grounded on
//     sim/internal/testutil/golden.go.
package bench
