package kv

import (
	"github.com/emelcore/emel/errs"
	"github.com/emelcore/emel/seq"
)

// Validation predicates, one per operation (spec §4.3: "all validated
// before any side effect"). Ported from original_source's guard lambdas
// in kv/cache/guards.hpp, collapsed into ordinary functions rather than
// boost::sml guard objects (spec §9 design note).

func (c *Cache) validatePrepare(sizes []int32, streamIDs []seq.StreamID, seqIDs []seq.ID, requestedCapacity int32) *errs.Error {
	n := len(sizes)
	if n <= 0 || n > MaxUbatches {
		return errs.InPhase("validating_prepare", errs.InvalidArgument, "ubatch_count out of range")
	}
	if len(streamIDs) != n || len(seqIDs) != n {
		return errs.InPhase("validating_prepare", errs.InvalidArgument, "stream_ids/seq_ids length mismatch")
	}
	if requestedCapacity > MaxKVCells {
		return errs.InPhase("validating_prepare", errs.InvalidArgument, "requested_capacity exceeds MaxKVCells")
	}
	if c.NStream <= 0 || c.NStream > MaxStreams {
		return errs.InPhase("validating_prepare", errs.InvalidArgument, "n_stream out of range")
	}

	kvSize := c.KVSize
	if requestedCapacity > kvSize {
		kvSize = requestedCapacity
	}
	if kvSize <= 0 || kvSize > MaxKVCells {
		return errs.InPhase("validating_prepare", errs.InvalidArgument, "effective kv_size out of range")
	}

	perStreamTotal := make(map[seq.StreamID]int32, n)
	for i := 0; i < n; i++ {
		size := sizes[i]
		if size <= 0 || size > kvSize {
			return errs.InPhase("validating_prepare", errs.InvalidArgument, "ubatch size out of range")
		}
		if !c.validStreamID(streamIDs[i]) {
			return errs.InPhase("validating_prepare", errs.InvalidArgument, "invalid stream_id")
		}
		if !validSeqID(seqIDs[i]) {
			return errs.InPhase("validating_prepare", errs.InvalidArgument, "invalid seq_id")
		}
		if c.SeqToStream[seqIDs[i]] != streamIDs[i] {
			return errs.InPhase("validating_prepare", errs.InvalidArgument, "seq_id not bound to claimed stream_id")
		}
		perStreamTotal[streamIDs[i]] += size
		if perStreamTotal[streamIDs[i]] > kvSize {
			return errs.InPhase("validating_prepare", errs.InvalidArgument, "planned sizes exceed kv_size for stream")
		}
	}
	return nil
}

func (c *Cache) validateApplyUbatch(index int32) *errs.Error {
	if c.plannedCount <= 0 || index < 0 || index >= c.plannedCount {
		return errs.InPhase("validating_apply", errs.InvalidArgument, "ubatch_index out of planned range")
	}
	if index != c.appliedUbatches {
		return errs.InPhase("validating_apply", errs.InvalidArgument, "ubatch_index is not strictly monotonic")
	}
	plan := c.planned[index]
	if plan.Size <= 0 || plan.SlotOffset < 0 || int(plan.SlotOffset)+int(plan.Size) > len(c.Streams[plan.StreamID].Cells) {
		return errs.InPhase("validating_apply", errs.InvalidArgument, "planned slot range out of bounds")
	}
	if !c.validStreamID(plan.StreamID) || !validSeqID(plan.PrimarySeq) {
		return errs.InPhase("validating_apply", errs.InvalidArgument, "invalid stream_id or seq_id in plan")
	}
	return nil
}

func (c *Cache) validateRollback(fromIndex int32) *errs.Error {
	if fromIndex < 0 || fromIndex > c.appliedUbatches || fromIndex > c.plannedCount {
		return errs.InPhase("validating_rollback", errs.InvalidArgument, "from_ubatch_index out of range")
	}
	return nil
}

func (c *Cache) validateSeqRemove(seqID int32, pos0, pos1 int32) *errs.Error {
	if seqID != NoSeq {
		if !validSeqID(seq.ID(seqID)) {
			return errs.InPhase("validating_seq_remove", errs.InvalidArgument, "invalid seq_id")
		}
		if !c.validStreamID(c.SeqToStream[seqID]) {
			return errs.InPhase("validating_seq_remove", errs.InvalidArgument, "seq_id not bound to a stream")
		}
	}
	if !validPosRange(pos0, pos1) {
		return errs.InPhase("validating_seq_remove", errs.InvalidArgument, "invalid position range")
	}
	return nil
}

func (c *Cache) validateSeqCopy(src, dst seq.ID, pos0, pos1 int32) *errs.Error {
	if !validSeqID(src) || !validSeqID(dst) {
		return errs.InPhase("validating_seq_copy", errs.InvalidArgument, "invalid seq_id")
	}
	srcStream, dstStream := c.SeqToStream[src], c.SeqToStream[dst]
	if !c.validStreamID(srcStream) || !c.validStreamID(dstStream) {
		return errs.InPhase("validating_seq_copy", errs.InvalidArgument, "seq_id not bound to a stream")
	}
	if !validPosRange(pos0, pos1) {
		return errs.InPhase("validating_seq_copy", errs.InvalidArgument, "invalid position range")
	}
	if srcStream == dstStream {
		return nil
	}
	if !isFullCopyRange(pos0, pos1, c.KVSize) {
		return errs.InPhase("validating_seq_copy", errs.InvalidArgument, "cross-stream copy requires the entire ring")
	}
	hasPair := false
	for _, p := range c.pendingCopies {
		if p.Src == srcStream && p.Dst == dstStream {
			hasPair = true
			break
		}
	}
	if !hasPair && len(c.pendingCopies) >= MaxStreamCopy {
		return errs.InPhase("validating_seq_copy", errs.InvalidArgument, "pending stream copy capacity exceeded")
	}
	return nil
}

func (c *Cache) validateSeqKeep(seqID seq.ID) *errs.Error {
	if !validSeqID(seqID) {
		return errs.InPhase("validating_seq_keep", errs.InvalidArgument, "invalid seq_id")
	}
	if !c.validStreamID(c.SeqToStream[seqID]) {
		return errs.InPhase("validating_seq_keep", errs.InvalidArgument, "seq_id not bound to a stream")
	}
	return nil
}

func (c *Cache) validateSeqAdd(seqID seq.ID, pos0, pos1 int32) *errs.Error {
	if !validSeqID(seqID) {
		return errs.InPhase("validating_seq_add", errs.InvalidArgument, "invalid seq_id")
	}
	if !c.validStreamID(c.SeqToStream[seqID]) {
		return errs.InPhase("validating_seq_add", errs.InvalidArgument, "seq_id not bound to a stream")
	}
	if !validPosRange(pos0, pos1) {
		return errs.InPhase("validating_seq_add", errs.InvalidArgument, "invalid position range")
	}
	return nil
}

func (c *Cache) validateSeqDiv(seqID seq.ID, pos0, pos1, divisor int32) *errs.Error {
	if !validSeqID(seqID) {
		return errs.InPhase("validating_seq_div", errs.InvalidArgument, "invalid seq_id")
	}
	if !c.validStreamID(c.SeqToStream[seqID]) {
		return errs.InPhase("validating_seq_div", errs.InvalidArgument, "seq_id not bound to a stream")
	}
	if divisor <= 0 {
		return errs.InPhase("validating_seq_div", errs.InvalidArgument, "divisor must be positive")
	}
	if !validPosRange(pos0, pos1) {
		return errs.InPhase("validating_seq_div", errs.InvalidArgument, "invalid position range")
	}
	return nil
}

func (c *Cache) validateApplyUpdates(haveStreamCopyCB, haveApplyShiftCB bool) *errs.Error {
	if len(c.pendingCopies) > 0 && !haveStreamCopyCB {
		return errs.InPhase("validating_updates", errs.InvalidArgument, "pending copies require a stream_copy callback")
	}
	for i := range c.Streams {
		if c.Streams[i].HasShift && !haveApplyShiftCB {
			return errs.InPhase("validating_updates", errs.InvalidArgument, "pending shift requires an apply_shift callback")
		}
	}
	return nil
}
