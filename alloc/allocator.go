package alloc

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/emelcore/emel/errs"
)

// MaxTensors and MaxChunks bound the sizes the allocator will accept in one
// call (spec §6 key numeric constants).
const (
	MaxTensors   = 2048
	MaxChunks    = 64
	MinAlignment = 16
)

// NoViewSrc marks a TensorDesc that is not a view.
const NoViewSrc int32 = -1

// TensorDesc is one tensor to be placed by the allocator (spec §3).
type TensorDesc struct {
	ID              int32
	AllocSize       int64
	SrcTensorIDs    [4]int32 // unused slots set to NoViewSrc
	IsView          bool
	IsInput         bool
	IsOutput        bool
	HasExternalData bool
	ViewSrcID       int32 // NoViewSrc when !IsView
}

// Placement is the (chunk, offset, size) triple the allocator binds to a
// non-view, non-zero-size tensor (spec §3).
type Placement struct {
	ChunkID     int32
	Offset      int64
	AlignedSize int64
}

// Chunk is a contiguous owned byte region backing one or more placements.
type Chunk struct {
	Bytes   []byte
	MaxSize int64
	Used    int64
}

// Result is the output of a successful Allocate call.
type Result struct {
	Chunks     []*Chunk
	ChunkSizes []int64
	TotalBytes int64
	// Placements is keyed by tensor ID. Views and zero-effective-size
	// tensors have no entry (spec §4.1 tie-breaks).
	Placements map[int32]Placement
}

// phase names the allocator's current pipeline step, for logging and tests.
// It mirrors the boost::sml state names in the ported source 1:1.
type phase int

const (
	phaseIdle phase = iota
	phaseValidating
	phaseScanning
	phasePartitioning
	phaseAllocating
	phaseInitializing
	phaseAssembling
	phaseDone
	phaseFailed
	phaseReleasing
)

func (p phase) String() string {
	switch p {
	case phaseIdle:
		return "idle"
	case phaseValidating:
		return "validating"
	case phaseScanning:
		return "scanning"
	case phasePartitioning:
		return "partitioning"
	case phaseAllocating:
		return "allocating"
	case phaseInitializing:
		return "initializing"
	case phaseAssembling:
		return "assembling"
	case phaseDone:
		return "done"
	case phaseFailed:
		return "failed"
	case phaseReleasing:
		return "releasing"
	default:
		return "unknown"
	}
}

// Allocator owns the chunks it allocates. Release is the only path to free
// them. Not safe for concurrent use — one caller owns the whole lifecycle.
type Allocator struct {
	phase     phase
	chunks    []*Chunk
	lastError *errs.Error
}

// New returns an idle Allocator.
func New() *Allocator {
	return &Allocator{phase: phaseIdle}
}

// Phase reports the allocator's current pipeline step (for tests/observability).
func (a *Allocator) Phase() phase { return a.phase }

// LastError reports the error from the most recent failed Allocate call, if any.
func (a *Allocator) LastError() *errs.Error { return a.lastError }

// scanState carries per-tensor derived values between scan, partition and
// initialize steps.
type scanState struct {
	effective []int64
	knownIDs  map[int32]bool
}

// Allocate partitions descs into chunks of at most maxBufferSize bytes,
// allocates backing storage (unless noAlloc), and binds placements.
//
// On any failure, every chunk allocated during this call is released before
// the error is returned (spec §4.1 failure semantics); the Allocator is left
// holding no placements.
func (a *Allocator) Allocate(descs []TensorDesc, alignment int64, maxBufferSize int64, noAlloc bool) (*Result, error) {
	a.phase = phaseValidating
	if err := a.validate(descs, alignment, maxBufferSize); err != nil {
		return a.fail(err)
	}

	a.phase = phaseScanning
	st, err := a.scan(descs, alignment)
	if err != nil {
		return a.fail(err)
	}

	a.phase = phasePartitioning
	chunkSizes, placements, err := a.partition(descs, st, maxBufferSize)
	if err != nil {
		return a.fail(err)
	}

	a.phase = phaseAllocating
	chunks, err := a.allocateChunks(chunkSizes, noAlloc)
	if err != nil {
		return a.fail(err)
	}

	a.phase = phaseInitializing
	if err := a.initialize(descs, st, placements, chunkSizes); err != nil {
		a.releaseChunks(chunks)
		return a.fail(err)
	}

	a.phase = phaseAssembling
	result := &Result{
		Chunks:     chunks,
		ChunkSizes: chunkSizes,
		Placements: placements,
	}
	for _, sz := range chunkSizes {
		result.TotalBytes += sz
	}

	a.chunks = chunks
	a.phase = phaseDone
	return result, nil
}

func (a *Allocator) fail(err *errs.Error) (*Result, error) {
	logrus.WithField("phase", a.phase.String()).Warnf("tensor allocation failed: %v", err)
	a.lastError = err
	a.phase = phaseFailed
	a.phase = phaseIdle
	return nil, err
}

// validate rejects malformed alignment/buffer arguments before any scan.
func (a *Allocator) validate(descs []TensorDesc, alignment int64, maxBufferSize int64) *errs.Error {
	if len(descs) > MaxTensors {
		return errs.InPhase("validating", errs.InvalidArgument,
			"tensor count exceeds MaxTensors")
	}
	if alignment <= 0 || !isPowerOfTwo(alignment) {
		return errs.InPhase("validating", errs.InvalidArgument,
			"alignment must be a positive power of two")
	}
	if maxBufferSize <= 0 {
		return errs.InPhase("validating", errs.InvalidArgument,
			"max_buffer_size must be positive")
	}
	return nil
}

// scan computes effective_size per descriptor and detects duplicate ids and
// dangling view sources (spec §4.1 step 2).
func (a *Allocator) scan(descs []TensorDesc, alignment int64) (*scanState, *errs.Error) {
	st := &scanState{
		effective: make([]int64, len(descs)),
		knownIDs:  make(map[int32]bool, len(descs)),
	}
	for _, d := range descs {
		if d.ID < 0 {
			return nil, errs.InPhase("scanning", errs.InvalidArgument, "negative tensor id")
		}
		if st.knownIDs[d.ID] {
			return nil, errs.InPhase("scanning", errs.InvalidArgument, "duplicate tensor id")
		}
		st.knownIDs[d.ID] = true
	}
	for i, d := range descs {
		if d.IsView || d.HasExternalData || d.AllocSize == 0 {
			st.effective[i] = 0
			continue
		}
		if d.AllocSize < 0 {
			return nil, errs.InPhase("scanning", errs.InvalidArgument, "negative alloc_size")
		}
		st.effective[i] = alignUp(d.AllocSize, alignment)
	}
	for _, d := range descs {
		if d.IsView && !st.knownIDs[d.ViewSrcID] {
			return nil, errs.InPhase("scanning", errs.InvalidArgument, "view references unknown tensor id")
		}
	}
	return st, nil
}

// partition walks descriptors in input order, opening a new chunk whenever
// the current one would exceed maxBufferSize (spec §4.1 step 3).
func (a *Allocator) partition(descs []TensorDesc, st *scanState, maxBufferSize int64) ([]int64, map[int32]Placement, *errs.Error) {
	var chunkSizes []int64
	placements := make(map[int32]Placement)
	chunkID := int32(-1)
	var curSize int64

	for i, d := range descs {
		size := st.effective[i]
		if size == 0 {
			continue
		}
		if size > maxBufferSize {
			return nil, nil, errs.InPhase("partitioning", errs.InvalidArgument,
				"tensor larger than max_buffer_size")
		}
		if chunkID < 0 || curSize+size > maxBufferSize {
			chunkID++
			curSize = 0
			chunkSizes = append(chunkSizes, 0)
			if int(chunkID) >= MaxChunks {
				return nil, nil, errs.InPhase("partitioning", errs.InvalidArgument,
					"partition exceeds MaxChunks")
			}
		}
		placements[d.ID] = Placement{ChunkID: chunkID, Offset: curSize, AlignedSize: size}
		curSize += size
		chunkSizes[chunkID] = curSize
	}
	return chunkSizes, placements, nil
}

// allocateChunks allocates each chunk's exact backing buffer unless noAlloc.
// On partial failure every chunk allocated so far is released (spec §4.1
// step 4 / failure semantics).
func (a *Allocator) allocateChunks(chunkSizes []int64, noAlloc bool) ([]*Chunk, *errs.Error) {
	chunks := make([]*Chunk, len(chunkSizes))
	for i, size := range chunkSizes {
		c := &Chunk{MaxSize: size}
		if !noAlloc {
			buf, err := mallocChunk(size)
			if err != nil {
				a.releaseChunks(chunks[:i])
				return nil, errs.InPhase("allocating", errs.Backend,
					fmt.Sprintf("allocation_failed at chunk %d", i))
			}
			c.Bytes = buf
		}
		chunks[i] = c
	}
	return chunks, nil
}

// initialize verifies every placement fits its chunk and every view's
// source is known (spec §4.1 step 5).
func (a *Allocator) initialize(descs []TensorDesc, st *scanState, placements map[int32]Placement, chunkSizes []int64) *errs.Error {
	for i, d := range descs {
		size := st.effective[i]
		if size == 0 {
			continue
		}
		p, ok := placements[d.ID]
		if !ok {
			return errs.InPhase("initializing", errs.Backend, "missing placement for tensor")
		}
		if p.ChunkID < 0 || int(p.ChunkID) >= len(chunkSizes) {
			return errs.InPhase("initializing", errs.Backend, "chunk id out of range")
		}
		if p.Offset < 0 || p.Offset+size > chunkSizes[p.ChunkID] {
			return errs.InPhase("initializing", errs.Backend, "placement exceeds chunk bounds")
		}
	}
	for _, d := range descs {
		if d.IsView && !st.knownIDs[d.ViewSrcID] {
			return errs.InPhase("initializing", errs.InvalidArgument, "dangling view source")
		}
	}
	return nil
}

// Release frees every chunk this Allocator owns. Idempotent: calling it on
// an idle allocator (nothing allocated, or already released) is a no-op.
func (a *Allocator) Release() {
	a.phase = phaseReleasing
	a.releaseChunks(a.chunks)
	a.chunks = nil
	a.phase = phaseIdle
}

func (a *Allocator) releaseChunks(chunks []*Chunk) {
	for _, c := range chunks {
		if c != nil {
			c.Bytes = nil
			c.Used = 0
		}
	}
}

func isPowerOfTwo(v int64) bool {
	return v > 0 && v&(v-1) == 0
}

func alignUp(value, alignment int64) int64 {
	return (value + alignment - 1) &^ (alignment - 1)
}

func mallocChunk(size int64) ([]byte, error) {
	if size < 0 {
		return nil, errs.New(errs.Backend, "negative chunk size")
	}
	return make([]byte, size), nil
}
