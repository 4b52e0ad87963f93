package kv

import (
	"github.com/sirupsen/logrus"

	"github.com/emelcore/emel/errs"
	"github.com/emelcore/emel/seq"
)

// Bounds from spec §6 key numeric constants.
const (
	MaxUbatches   = 512
	MaxKVCells    = 262144
	MaxStreams    = 32
	MaxStreamCopy = 32
)

// NoSeq is the sentinel seq_id meaning "all sequences" for seq_remove.
const NoSeq int32 = -1

// phase tracks the cache's current request lifecycle (spec §4.3 state
// machine, collapsed to an enum + dispatch function rather than a literal
// port of the boost::sml transition table — see spec §9 design note).
type phase int

const (
	phaseInitialized phase = iota
	phasePrepared
	phaseErrored
)

func (p phase) String() string {
	switch p {
	case phaseInitialized:
		return "initialized"
	case phasePrepared:
		return "prepared"
	case phaseErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Cell is one ring position in one stream: the sequences currently
// referencing it, the position value, and a pending-shift flag (spec §3
// "KV cache cell").
type Cell struct {
	Seqs  seq.Mask
	Pos   int32
	Shift bool
}

// Stream owns one contiguous ring of KVSize cells.
type Stream struct {
	Cells    []Cell
	HasShift bool
}

// PendingCopy is an unordered (src, dst) stream pair recorded at seq_copy
// time and drained at apply_updates (spec §3 "Pending stream copy").
type PendingCopy struct {
	Src, Dst seq.StreamID
}

// UbatchPlan is one planned micro-batch's placement (spec §3 "Ubatch
// descriptor").
type UbatchPlan struct {
	Size       int32
	StreamID   seq.StreamID
	PrimarySeq seq.ID
	SlotOffset int32
}

// Cache is the KV cache state machine. It is not safe for concurrent use
// (spec §5 single-machine-owner concurrency model).
type Cache struct {
	KVSize      int32
	NStream     int32
	SeqToStream [seq.MaxSeq]seq.StreamID
	seqBound    [seq.MaxSeq]bool // whether SeqToStream[i] has been assigned

	Streams []Stream

	phase     phase
	lastError *errs.Error

	planned         []UbatchPlan
	plannedCount    int32
	appliedUbatches int32

	pendingCopies []PendingCopy
	kvTokens      int32
}

// New returns a Cache with nStream rings of kvSize cells each.
func New(nStream, kvSize int32) *Cache {
	c := &Cache{
		KVSize:  kvSize,
		NStream: nStream,
		Streams: make([]Stream, nStream),
		phase:   phaseInitialized,
	}
	for i := range c.Streams {
		c.Streams[i].Cells = make([]Cell, kvSize)
	}
	for i := range c.SeqToStream {
		c.SeqToStream[i] = -1
	}
	return c
}

// BindSeq associates seqID with streamID for the lifetime of the cache
// (spec §3: "each sequence is bound at batch time to exactly one stream").
func (c *Cache) BindSeq(id seq.ID, stream seq.StreamID) {
	c.SeqToStream[id] = stream
	c.seqBound[id] = true
}

func (c *Cache) Phase() string             { return c.phase.String() }
func (c *Cache) LastError() *errs.Error    { return c.lastError }
func (c *Cache) PlannedUbatchCount() int32 { return c.plannedCount }
func (c *Cache) AppliedUbatches() int32    { return c.appliedUbatches }
func (c *Cache) KVTokens() int32           { return c.kvTokens }

// PendingCopyCount reports the number of distinct pending (src,dst) pairs
// (spec invariant I6).
func (c *Cache) PendingCopyCount() int { return len(c.pendingCopies) }

func (c *Cache) fail(op string, err *errs.Error) *errs.Error {
	c.lastError = err
	c.phase = phaseErrored
	logrus.WithField("op", op).Warnf("kv cache rejected request: %v", err)
	c.phase = phasePrepared
	return err
}

func (c *Cache) succeed() {
	c.phase = phasePrepared
	c.lastError = nil
}

func validSeqID(id seq.ID) bool {
	return id >= 0 && int(id) < seq.MaxSeq
}

func (c *Cache) validStreamID(s seq.StreamID) bool {
	return s >= 0 && int32(s) < c.NStream
}

// validPosRange mirrors original_source's valid_pos_range: both negative
// means "entire range"; exactly one negative is tolerated (treated as
// unspecified on that side); otherwise pos0 <= pos1 is required.
func validPosRange(pos0, pos1 int32) bool {
	if pos0 < 0 && pos1 < 0 {
		return true
	}
	if pos0 < 0 || pos1 < 0 {
		return true
	}
	return pos0 <= pos1
}

// isFullCopyRange reports whether (pos0, pos1) spans the entire ring,
// required for cross-stream seq_copy (spec §4.3 cross-stream copy
// discipline).
func isFullCopyRange(pos0, pos1, kvSize int32) bool {
	if kvSize <= 0 {
		return false
	}
	full := true
	if pos0 > 0 && pos0+1 < kvSize {
		full = false
	}
	if pos1 > 0 && pos1+1 < kvSize {
		full = false
	}
	return full
}

func inRange(pos, pos0, pos1 int32) bool {
	if pos0 < 0 && pos1 < 0 {
		return true
	}
	lo, hi := pos0, pos1
	if lo < 0 {
		lo = 0
	}
	if hi < 0 {
		hi = 1<<31 - 1
	}
	return pos >= lo && pos <= hi
}
