package kv

import (
	"github.com/emelcore/emel/errs"
	"github.com/emelcore/emel/seq"
)

// Prepare computes slot offsets for a batch of planned micro-batches
// (spec §4.3 prepare). Offsets are assigned as a per-stream running
// total within this call — each stream bump-allocates from zero, so two
// ubatches routed to different streams may share the same numeric
// offset without violating I3 (disjointness is defined per stream).
func (c *Cache) Prepare(sizes []int32, streamIDs []seq.StreamID, seqIDs []seq.ID, requestedCapacity int32) *errs.Error {
	if err := c.validatePrepare(sizes, streamIDs, seqIDs, requestedCapacity); err != nil {
		return c.fail("prepare", err)
	}

	n := len(sizes)
	plans := make([]UbatchPlan, n)
	cursor := make(map[seq.StreamID]int32, n)
	for i := 0; i < n; i++ {
		offset := cursor[streamIDs[i]]
		plans[i] = UbatchPlan{
			Size:       sizes[i],
			StreamID:   streamIDs[i],
			PrimarySeq: seqIDs[i],
			SlotOffset: offset,
		}
		cursor[streamIDs[i]] = offset + sizes[i]
	}

	c.planned = plans
	c.plannedCount = int32(n)
	c.appliedUbatches = 0
	c.succeed()
	return nil
}

// SlotOffsets returns the planned slot offset for each ubatch, in
// planning order.
func (c *Cache) SlotOffsets() []int32 {
	out := make([]int32, len(c.planned))
	for i, p := range c.planned {
		out[i] = p.SlotOffset
	}
	return out
}

// ApplyUbatch marks the cells planned for ubatchIndex as occupied by its
// primary sequence, at the given per-token positions (or at their slot
// index if positions is nil), and advances applied_ubatches (spec §4.3
// apply_ubatch).
func (c *Cache) ApplyUbatch(ubatchIndex int32, positions []int32) *errs.Error {
	if err := c.validateApplyUbatch(ubatchIndex); err != nil {
		return c.fail("apply_ubatch", err)
	}
	plan := c.planned[ubatchIndex]
	if positions != nil && int32(len(positions)) < plan.Size {
		err := errs.InPhase("apply_step_validating", errs.InvalidArgument, "positions shorter than ubatch size")
		return c.fail("apply_ubatch", err)
	}

	stream := &c.Streams[plan.StreamID]
	for j := int32(0); j < plan.Size; j++ {
		cell := &stream.Cells[plan.SlotOffset+j]
		cell.Seqs.Set(plan.PrimarySeq)
		if positions != nil {
			cell.Pos = positions[j]
		} else {
			cell.Pos = plan.SlotOffset + j
		}
	}

	c.appliedUbatches = ubatchIndex + 1
	c.kvTokens += plan.Size
	c.succeed()
	return nil
}

// Rollback frees cells applied by ubatches [fromIndex, applied_ubatches)
// in reverse order and decrements applied_ubatches to fromIndex (spec
// §4.3 rollback, invariant I5).
func (c *Cache) Rollback(fromIndex int32) *errs.Error {
	if err := c.validateRollback(fromIndex); err != nil {
		return c.fail("rollback", err)
	}

	for i := c.appliedUbatches - 1; i >= fromIndex; i-- {
		plan := c.planned[i]
		stream := &c.Streams[plan.StreamID]
		for j := int32(0); j < plan.Size; j++ {
			cell := &stream.Cells[plan.SlotOffset+j]
			cell.Seqs.Clear(plan.PrimarySeq)
			cell.Pos = 0
			cell.Shift = false
		}
		c.kvTokens -= plan.Size
	}
	c.appliedUbatches = fromIndex
	c.succeed()
	return nil
}
