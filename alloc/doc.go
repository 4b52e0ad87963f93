// Package alloc implements the tensor allocator: it partitions a list of
// tensor descriptors into chunks bounded by a maximum buffer size, binds
// byte offsets with strict alignment, and allocates the backing storage.
//
// # Reading Guide
//
//   - allocator.go: the Allocator type, its phase state machine, and the
//     validate → scan → partition → allocate → initialize → assemble pipeline.
//   - config.go: Config and alignment/size validation helpers.
//
// The algorithm is ported from a boost::sml compile-time state machine (see
// DESIGN.md); here it is a plain phase enum plus a sequence of private step
// methods, each one a guard+action pair in the source's terms.
package alloc
