// Package memory implements the memory coordinator: the single entry
// point that adapts three request kinds (update, batch, full) to one
// validate/prepare/apply/publish pipeline, delegating each phase to a
// caller-supplied backend.
//
// # Reading Guide
//
//   - coordinator.go: Kind/Status/Request/Backend types, the pipeline,
//     and the three public entry points.
package memory
