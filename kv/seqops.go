package kv

import (
	"math"

	"github.com/emelcore/emel/errs"
	"github.com/emelcore/emel/seq"
)

// StreamCopyFunc is invoked once per drained pending stream copy
// (spec §4.3 apply_updates).
type StreamCopyFunc func(src, dst seq.StreamID) *errs.Error

// ApplyShiftFunc is invoked once per stream with a pending shift flag.
type ApplyShiftFunc func(stream seq.StreamID) *errs.Error

// SeqRemove drops seqID's membership in [pos0, pos1] across its bound
// stream, or every stream when seqID == NoSeq (spec §4.3 seq_remove).
func (c *Cache) SeqRemove(seqID int32, pos0, pos1 int32) *errs.Error {
	if err := c.validateSeqRemove(seqID, pos0, pos1); err != nil {
		return c.fail("seq_remove", err)
	}

	if seqID == NoSeq {
		for si := range c.Streams {
			forEachCellInRange(&c.Streams[si], pos0, pos1, func(cell *Cell) {
				cell.Seqs = seq.Mask{}
			})
		}
	} else {
		stream := &c.Streams[c.SeqToStream[seqID]]
		forEachCellInRange(stream, pos0, pos1, func(cell *Cell) {
			cell.Seqs.Clear(seq.ID(seqID))
		})
	}
	c.succeed()
	return nil
}

// SeqCopy copies seqIDSrc's membership onto seqIDDst within the given
// range. Same-stream copies apply immediately; cross-stream copies are
// only permitted for the entire ring and are deferred as a pending pair
// drained by ApplyUpdates (spec §4.3 seq_copy, invariant I6).
func (c *Cache) SeqCopy(seqIDSrc, seqIDDst seq.ID, pos0, pos1 int32) *errs.Error {
	if err := c.validateSeqCopy(seqIDSrc, seqIDDst, pos0, pos1); err != nil {
		return c.fail("seq_copy", err)
	}

	srcStream, dstStream := c.SeqToStream[seqIDSrc], c.SeqToStream[seqIDDst]
	if srcStream == dstStream {
		stream := &c.Streams[srcStream]
		forEachCellInRange(stream, pos0, pos1, func(cell *Cell) {
			if cell.Seqs.Test(seqIDSrc) {
				cell.Seqs.Set(seqIDDst)
			}
		})
		c.succeed()
		return nil
	}

	for _, p := range c.pendingCopies {
		if p.Src == srcStream && p.Dst == dstStream {
			c.succeed()
			return nil // duplicate pair is idempotent
		}
	}
	c.pendingCopies = append(c.pendingCopies, PendingCopy{Src: srcStream, Dst: dstStream})
	c.succeed()
	return nil
}

// SeqKeep drops every sequence but seqID from every cell in seqID's
// bound stream (spec §4.3 seq_keep).
func (c *Cache) SeqKeep(seqID seq.ID) *errs.Error {
	if err := c.validateSeqKeep(seqID); err != nil {
		return c.fail("seq_keep", err)
	}
	stream := &c.Streams[c.SeqToStream[seqID]]
	for i := range stream.Cells {
		cell := &stream.Cells[i]
		member := cell.Seqs.Test(seqID)
		cell.Seqs = seq.Mask{}
		if member {
			cell.Seqs.Set(seqID)
		}
	}
	c.succeed()
	return nil
}

// SeqAdd adds delta to the position of every cell containing seqID
// within [pos0, pos1], rejecting the call on int32 overflow (spec §4.3
// seq_add).
func (c *Cache) SeqAdd(seqID seq.ID, pos0, pos1, delta int32) *errs.Error {
	if err := c.validateSeqAdd(seqID, pos0, pos1); err != nil {
		return c.fail("seq_add", err)
	}
	stream := &c.Streams[c.SeqToStream[seqID]]
	var overflow bool
	forEachCellInRange(stream, pos0, pos1, func(cell *Cell) {
		if !cell.Seqs.Test(seqID) {
			return
		}
		sum := int64(cell.Pos) + int64(delta)
		if sum > math.MaxInt32 || sum < math.MinInt32 {
			overflow = true
			return
		}
		cell.Pos = int32(sum)
		cell.Shift = true
		stream.HasShift = true
	})
	if overflow {
		err := errs.InPhase("seq_add_step", errs.InvalidArgument, "position overflow")
		return c.fail("seq_add", err)
	}
	c.succeed()
	return nil
}

// SeqDiv divides the position of every cell containing seqID within
// [pos0, pos1] by divisor (spec §4.3 seq_div).
func (c *Cache) SeqDiv(seqID seq.ID, pos0, pos1, divisor int32) *errs.Error {
	if err := c.validateSeqDiv(seqID, pos0, pos1, divisor); err != nil {
		return c.fail("seq_div", err)
	}
	stream := &c.Streams[c.SeqToStream[seqID]]
	forEachCellInRange(stream, pos0, pos1, func(cell *Cell) {
		if !cell.Seqs.Test(seqID) {
			return
		}
		cell.Pos /= divisor
		cell.Shift = true
		stream.HasShift = true
	})
	c.succeed()
	return nil
}

// ApplyUpdates drains pending cross-stream copies and per-stream shift
// flags via the supplied callbacks (spec §4.3 apply_updates, cross-stream
// copy discipline).
func (c *Cache) ApplyUpdates(streamCopy StreamCopyFunc, applyShift ApplyShiftFunc) *errs.Error {
	if err := c.validateApplyUpdates(streamCopy != nil, applyShift != nil); err != nil {
		return c.fail("apply_updates", err)
	}

	for _, p := range c.pendingCopies {
		if err := streamCopy(p.Src, p.Dst); err != nil {
			return c.fail("apply_updates", err)
		}
	}
	c.pendingCopies = nil

	for i := range c.Streams {
		if !c.Streams[i].HasShift {
			continue
		}
		if err := applyShift(seq.StreamID(i)); err != nil {
			return c.fail("apply_updates", err)
		}
		c.Streams[i].HasShift = false
		for j := range c.Streams[i].Cells {
			c.Streams[i].Cells[j].Shift = false
		}
	}

	c.succeed()
	return nil
}

func forEachCellInRange(stream *Stream, pos0, pos1 int32, fn func(cell *Cell)) {
	for i := range stream.Cells {
		cell := &stream.Cells[i]
		if inRange(cell.Pos, pos0, pos1) {
			fn(cell)
		}
	}
}
