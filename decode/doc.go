// Package decode implements the decoder: the top-level pipeline that
// turns a decode request into a sequence of micro-batches, drives each
// through the memory coordinator, KV cache, and executor, and reports
// the outcome to the caller's owner dispatch callback.
//
// # Reading Guide
//
//   - decoder.go: Request/Result/Event types, Decoder, the nine-step
//     pipeline and its single-retry-on-failed_prepare contract.
package decode
