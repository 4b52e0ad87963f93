// Package seq defines the sequence/stream primitives shared by the batch
// splitter and the KV cache (spec §3): sequence ids, stream ids, and the
// fixed-width sequence bitmask used for the splitter's "seq" mode and the
// KV cache's membership tracking.
package seq

import "math/bits"

// MaxSeq is the compile-time bound on concurrently live sequence ids
// (spec §6 key numeric constants).
const MaxSeq = 64

// Words is the number of 64-bit words needed to represent a MaxSeq-wide
// bitmask (ceil(MaxSeq/64)).
const Words = (MaxSeq + 63) / 64

// ID identifies a sequence in [0, MaxSeq).
type ID int32

// StreamID identifies a KV stream in [0, MaxStreams).
type StreamID int32

// Mask is a bit set over sequence ids, represented as a fixed-length array
// of 64-bit words.
type Mask [Words]uint64

// NewMask returns a Mask with the given sequence ids set.
func NewMask(ids ...ID) Mask {
	var m Mask
	for _, id := range ids {
		m.Set(id)
	}
	return m
}

// Set marks id as a member. Out-of-range ids are ignored (caller-validated
// at the boundary; spec treats this as an invariant, not a per-call check).
func (m *Mask) Set(id ID) {
	if id < 0 || int(id) >= MaxSeq {
		return
	}
	m[id/64] |= 1 << (uint(id) % 64)
}

// Clear removes id from the set.
func (m *Mask) Clear(id ID) {
	if id < 0 || int(id) >= MaxSeq {
		return
	}
	m[id/64] &^= 1 << (uint(id) % 64)
}

// Test reports whether id is a member.
func (m Mask) Test(id ID) bool {
	if id < 0 || int(id) >= MaxSeq {
		return false
	}
	return m[id/64]&(1<<(uint(id)%64)) != 0
}

// Equal reports whether m and other have identical membership.
func (m Mask) Equal(other Mask) bool {
	return m == other
}

// Subset reports whether every member of m is also a member of other.
func (m Mask) Subset(other Mask) bool {
	for i := range m {
		if m[i]&^other[i] != 0 {
			return false
		}
	}
	return true
}

// Popcount returns the number of member sequence ids.
func (m Mask) Popcount() int {
	n := 0
	for _, w := range m {
		n += bits.OnesCount64(w)
	}
	return n
}

// PopcountGTOne reports whether more than one sequence id is a member —
// used to detect cells shared across sequences (spec §3 KV cache cell).
func (m Mask) PopcountGTOne() bool {
	n := 0
	for _, w := range m {
		n += bits.OnesCount64(w)
		if n > 1 {
			return true
		}
	}
	return false
}

// Empty reports whether no sequence id is a member.
func (m Mask) Empty() bool {
	for _, w := range m {
		if w != 0 {
			return false
		}
	}
	return true
}
