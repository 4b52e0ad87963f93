// Package kv implements the key/value cache: per-stream rings of cells
// that track which sequences reference each position, plus the planning
// and mutation operations the executor and decoder drive it through.
//
// # Reading Guide
//
//   - cache.go: Cache struct, phase tracking, constants.
//   - plan.go: prepare/apply_ubatch/rollback (the slot-planning lifecycle).
//   - seqops.go: seq_remove/seq_copy/seq_keep/seq_add/seq_div, pending
//     cross-stream copies, apply_updates.
//   - validate.go: the validation predicates each operation runs before
//     any side effect (spec: "all validated before any side effect").
package kv
