// Package batch implements the batch splitter: it carves an input of N
// tokens into a sequence of model-sized micro-batches honoring a maximum
// size, one of three partition modes, an optional sequence grouping, and an
// optional output mask.
//
// # Reading Guide
//
//   - splitter.go: Input/Plan types, mode dispatch, output counting.
//   - Modes: simple (contiguous runs), equal (same-sequence runs, for
//     recurrent models), seq (group by full sequence-mask equality).
package batch
