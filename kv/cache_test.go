package kv

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emelcore/emel/errs"
	"github.com/emelcore/emel/seq"
)

func freshCache(t *testing.T) *Cache {
	t.Helper()
	c := New(2, 16)
	c.BindSeq(0, 0)
	c.BindSeq(1, 0)
	c.BindSeq(2, 1)
	return c
}

func TestPrepare_ComputesSlotOffsetsPerStream(t *testing.T) {
	c := freshCache(t)
	err := c.Prepare(
		[]int32{4, 3, 2},
		[]seq.StreamID{0, 0, 1},
		[]seq.ID{0, 1, 2},
		0,
	)
	require.Nil(t, err)
	require.EqualValues(t, 3, c.PlannedUbatchCount())
	offsets := c.SlotOffsets()
	require.Equal(t, []int32{0, 4, 0}, offsets)
}

func TestPrepare_RejectsOversizedTotalForStream(t *testing.T) {
	c := freshCache(t)
	err := c.Prepare(
		[]int32{10, 10},
		[]seq.StreamID{0, 0},
		[]seq.ID{0, 1},
		0,
	)
	require.NotNil(t, err)
	require.Equal(t, errs.InvalidArgument, err.Kind)
}

func TestPrepare_RejectsUnboundSeqStreamMismatch(t *testing.T) {
	c := freshCache(t)
	err := c.Prepare([]int32{2}, []seq.StreamID{1}, []seq.ID{0}, 0)
	require.NotNil(t, err)
}

func TestApplyUbatch_MarksCellsAndAdvancesApplied(t *testing.T) {
	c := freshCache(t)
	require.Nil(t, c.Prepare([]int32{3}, []seq.StreamID{0}, []seq.ID{0}, 0))

	err := c.ApplyUbatch(0, nil)
	require.Nil(t, err)
	require.EqualValues(t, 1, c.AppliedUbatches())
	require.EqualValues(t, 3, c.KVTokens())

	for i := int32(0); i < 3; i++ {
		cell := c.Streams[0].Cells[i]
		require.True(t, cell.Seqs.Test(0))
		require.Equal(t, i, cell.Pos)
	}
}

func TestApplyUbatch_RejectsOutOfOrderIndex(t *testing.T) {
	c := freshCache(t)
	require.Nil(t, c.Prepare([]int32{2, 2}, []seq.StreamID{0, 0}, []seq.ID{0, 0}, 0))

	err := c.ApplyUbatch(1, nil) // must be 0 first
	require.NotNil(t, err)
	require.EqualValues(t, 0, c.AppliedUbatches())
}

func TestApplyUbatch_UsesExplicitPositions(t *testing.T) {
	c := freshCache(t)
	require.Nil(t, c.Prepare([]int32{2}, []seq.StreamID{0}, []seq.ID{0}, 0))
	require.Nil(t, c.ApplyUbatch(0, []int32{100, 101}))
	require.Equal(t, int32(100), c.Streams[0].Cells[0].Pos)
	require.Equal(t, int32(101), c.Streams[0].Cells[1].Pos)
}

func TestRollback_FreesCellsAndDecrementsApplied(t *testing.T) {
	c := freshCache(t)
	require.Nil(t, c.Prepare([]int32{2, 2, 2}, []seq.StreamID{0, 0, 0}, []seq.ID{0, 0, 0}, 0))
	require.Nil(t, c.ApplyUbatch(0, nil))
	require.Nil(t, c.ApplyUbatch(1, nil))
	require.Nil(t, c.ApplyUbatch(2, nil))
	require.EqualValues(t, 6, c.KVTokens())

	require.Nil(t, c.Rollback(1))
	require.EqualValues(t, 1, c.AppliedUbatches())
	require.EqualValues(t, 2, c.KVTokens())
	// cells from ubatch 1 and 2 must be cleared; ubatch 0's cells remain.
	require.True(t, c.Streams[0].Cells[0].Seqs.Test(0))
	require.True(t, c.Streams[0].Cells[1].Seqs.Test(0))
	require.False(t, c.Streams[0].Cells[2].Seqs.Test(0))
	require.False(t, c.Streams[0].Cells[4].Seqs.Test(0))
}

// TestRollback_RestoresPreApplyStateBitForBit covers the round-trip law
// directly: apply_ubatch(i) followed by rollback(i) must return the cache
// to exactly its pre-apply state, not just an unoccupied one.
func TestRollback_RestoresPreApplyStateBitForBit(t *testing.T) {
	c := freshCache(t)
	require.Nil(t, c.Prepare([]int32{2}, []seq.StreamID{0}, []seq.ID{0}, 0))

	before := append([]Cell(nil), c.Streams[0].Cells...)

	require.Nil(t, c.ApplyUbatch(0, []int32{100, 101}))
	require.Nil(t, c.Rollback(0))

	require.Equal(t, before, c.Streams[0].Cells)
}

// TestRollback_PartialThenReplay_Equivalence verifies that rolling back to
// index k and re-applying ubatches [k, N) produces the same cache state as
// never rolling back at all (spec §8 rollback/replay equivalence property).
func TestRollback_PartialThenReplay_Equivalence(t *testing.T) {
	build := func() *Cache {
		c := freshCache(t)
		require.Nil(t, c.Prepare([]int32{2, 2, 2}, []seq.StreamID{0, 0, 0}, []seq.ID{0, 0, 0}, 0))
		return c
	}

	baseline := build()
	require.Nil(t, baseline.ApplyUbatch(0, nil))
	require.Nil(t, baseline.ApplyUbatch(1, nil))
	require.Nil(t, baseline.ApplyUbatch(2, nil))

	replayed := build()
	require.Nil(t, replayed.ApplyUbatch(0, nil))
	require.Nil(t, replayed.ApplyUbatch(1, nil))
	require.Nil(t, replayed.ApplyUbatch(2, nil))
	require.Nil(t, replayed.Rollback(1))
	require.Nil(t, replayed.ApplyUbatch(1, nil))
	require.Nil(t, replayed.ApplyUbatch(2, nil))

	require.Equal(t, baseline.AppliedUbatches(), replayed.AppliedUbatches())
	require.Equal(t, baseline.KVTokens(), replayed.KVTokens())
	require.Equal(t, baseline.Streams[0].Cells, replayed.Streams[0].Cells)
}

func TestRollback_RejectsOutOfRangeIndex(t *testing.T) {
	c := freshCache(t)
	require.Nil(t, c.Prepare([]int32{2}, []seq.StreamID{0}, []seq.ID{0}, 0))
	require.Nil(t, c.ApplyUbatch(0, nil))

	err := c.Rollback(5)
	require.NotNil(t, err)
}

func TestSeqRemove_SingleSeqClearsOnlyItsMembership(t *testing.T) {
	c := freshCache(t)
	require.Nil(t, c.Prepare([]int32{2}, []seq.StreamID{0}, []seq.ID{0}, 0))
	require.Nil(t, c.ApplyUbatch(0, nil))
	require.Nil(t, c.SeqCopy(0, 1, 0, 1)) // same-stream copy
	require.True(t, c.Streams[0].Cells[0].Seqs.Test(1))

	require.Nil(t, c.SeqRemove(0, -1, -1))
	require.False(t, c.Streams[0].Cells[0].Seqs.Test(0))
	require.True(t, c.Streams[0].Cells[0].Seqs.Test(1))
}

func TestSeqRemove_AllClearsEveryStream(t *testing.T) {
	c := freshCache(t)
	require.Nil(t, c.Prepare([]int32{2, 2}, []seq.StreamID{0, 1}, []seq.ID{0, 2}, 0))
	require.Nil(t, c.ApplyUbatch(0, nil))
	require.Nil(t, c.ApplyUbatch(1, nil))

	require.Nil(t, c.SeqRemove(NoSeq, -1, -1))
	require.True(t, c.Streams[0].Cells[0].Seqs.Empty())
	require.True(t, c.Streams[1].Cells[0].Seqs.Empty())
}

func TestSeqCopy_CrossStreamRequiresFullRangeAndDefers(t *testing.T) {
	c := freshCache(t)
	err := c.SeqCopy(0, 2, 0, 5) // partial range, cross-stream
	require.NotNil(t, err)

	err = c.SeqCopy(0, 2, -1, -1) // full range
	require.Nil(t, err)
	require.Equal(t, 1, c.PendingCopyCount())

	// Duplicate pair is idempotent.
	require.Nil(t, c.SeqCopy(0, 2, -1, -1))
	require.Equal(t, 1, c.PendingCopyCount())
}

func TestSeqCopy_PendingBoundEnforced(t *testing.T) {
	// MaxStreams caps n_stream, so exhaust MaxStreamCopy distinct (src,dst)
	// pairs using one seq id per stream and a cyclic pairing (i -> i+1).
	c := New(MaxStreams, 4)
	for i := seq.ID(0); int(i) < MaxStreams; i++ {
		c.BindSeq(i, seq.StreamID(i))
	}
	for i := 0; i < MaxStreamCopy; i++ {
		src, dst := seq.ID(i), seq.ID((i+1)%MaxStreams)
		require.Nil(t, c.SeqCopy(src, dst, -1, -1))
	}
	require.Equal(t, MaxStreamCopy, c.PendingCopyCount())

	// At capacity a duplicate pair is still accepted (idempotent), while a
	// pair that is not yet pending, stream 0 -> stream 2, is rejected.
	require.Nil(t, c.SeqCopy(0, 1, -1, -1))
	require.NotNil(t, c.SeqCopy(0, 2, -1, -1))
	require.Equal(t, MaxStreamCopy, c.PendingCopyCount())
}

func TestSeqCopy_PendingBoundRejectsNewPairAtCapacity(t *testing.T) {
	c := New(4, 4)
	for i := seq.ID(0); int(i) < 4; i++ {
		c.BindSeq(i, seq.StreamID(i))
	}
	// Artificially saturate the pending-copy bound below MaxStreams so a
	// genuinely new pair can be rejected without needing MaxStreamCopy
	// distinct streams.
	for i := 0; i < MaxStreamCopy; i++ {
		c.pendingCopies = append(c.pendingCopies, PendingCopy{Src: 0, Dst: seq.StreamID(i % 4)})
	}
	require.Equal(t, MaxStreamCopy, c.PendingCopyCount())

	err := c.SeqCopy(2, 3, -1, -1) // stream pair (2,3) is not yet pending
	require.NotNil(t, err)
}

func TestSeqKeep_DropsOtherSequences(t *testing.T) {
	c := freshCache(t)
	require.Nil(t, c.Prepare([]int32{2}, []seq.StreamID{0}, []seq.ID{0}, 0))
	require.Nil(t, c.ApplyUbatch(0, nil))
	require.Nil(t, c.SeqCopy(0, 1, -1, -1))

	require.Nil(t, c.SeqKeep(1))
	require.False(t, c.Streams[0].Cells[0].Seqs.Test(0))
	require.True(t, c.Streams[0].Cells[0].Seqs.Test(1))
}

func TestSeqAdd_ShiftsPositionsAndSetsPendingShift(t *testing.T) {
	c := freshCache(t)
	require.Nil(t, c.Prepare([]int32{2}, []seq.StreamID{0}, []seq.ID{0}, 0))
	require.Nil(t, c.ApplyUbatch(0, nil))

	require.Nil(t, c.SeqAdd(0, -1, -1, 5))
	require.Equal(t, int32(5), c.Streams[0].Cells[0].Pos)
	require.Equal(t, int32(6), c.Streams[0].Cells[1].Pos)
	require.True(t, c.Streams[0].HasShift)
}

func TestSeqAdd_RejectsOverflow(t *testing.T) {
	c := freshCache(t)
	require.Nil(t, c.Prepare([]int32{1}, []seq.StreamID{0}, []seq.ID{0}, 0))
	require.Nil(t, c.ApplyUbatch(0, []int32{2147483647}))

	err := c.SeqAdd(0, -1, -1, 1)
	require.NotNil(t, err)
}

func TestSeqDiv_DividesPositions(t *testing.T) {
	c := freshCache(t)
	require.Nil(t, c.Prepare([]int32{1}, []seq.StreamID{0}, []seq.ID{0}, 0))
	require.Nil(t, c.ApplyUbatch(0, []int32{10}))

	require.Nil(t, c.SeqDiv(0, -1, -1, 2))
	require.Equal(t, int32(5), c.Streams[0].Cells[0].Pos)

	require.NotNil(t, c.SeqDiv(0, -1, -1, 0)) // divisor must be positive
}

func TestApplyUpdates_DrainsCopiesAndShifts(t *testing.T) {
	c := freshCache(t)
	require.Nil(t, c.Prepare([]int32{2}, []seq.StreamID{0}, []seq.ID{0}, 0))
	require.Nil(t, c.ApplyUbatch(0, nil))
	require.Nil(t, c.SeqAdd(0, -1, -1, 1))
	require.Nil(t, c.SeqCopy(0, 2, -1, -1))

	var copied []seq.StreamID
	var shifted []seq.StreamID
	err := c.ApplyUpdates(
		func(src, dst seq.StreamID) *errs.Error {
			copied = append(copied, src, dst)
			return nil
		},
		func(stream seq.StreamID) *errs.Error {
			shifted = append(shifted, stream)
			return nil
		},
	)
	require.Nil(t, err)
	require.Equal(t, []seq.StreamID{0, 1}, copied)
	require.Equal(t, []seq.StreamID{0}, shifted)
	require.Equal(t, 0, c.PendingCopyCount())
	require.False(t, c.Streams[0].HasShift)
}

func TestApplyUpdates_RejectsMissingCallbackWhenNeeded(t *testing.T) {
	c := freshCache(t)
	require.Nil(t, c.SeqCopy(0, 2, -1, -1))

	err := c.ApplyUpdates(nil, nil)
	require.NotNil(t, err)
	require.Equal(t, 1, c.PendingCopyCount()) // failed validation leaves pending copies untouched
}

func TestPrepare_PendingCopiesSurviveAPrepareWithoutApplyUpdates(t *testing.T) {
	c := freshCache(t)
	require.Nil(t, c.SeqCopy(0, 2, -1, -1))
	require.Equal(t, 1, c.PendingCopyCount())

	require.Nil(t, c.Prepare([]int32{1}, []seq.StreamID{0}, []seq.ID{0}, 0))
	require.Equal(t, 1, c.PendingCopyCount())
}
