package batch

import (
	"github.com/sirupsen/logrus"

	"github.com/emelcore/emel/errs"
	"github.com/emelcore/emel/seq"
)

// MaxUbatches bounds how many micro-batches one split may produce
// (spec §6 key numeric constants).
const MaxUbatches = 512

// Mode selects the splitter's partitioning strategy (spec §4.2).
type Mode int

const (
	ModeSimple Mode = iota
	ModeEqual
	ModeSeq
)

func (m Mode) String() string {
	switch m {
	case ModeSimple:
		return "simple"
	case ModeEqual:
		return "equal"
	case ModeSeq:
		return "seq"
	default:
		return "unknown"
	}
}

// Input carries everything the splitter needs for one call (spec §4.2).
type Input struct {
	NTokens int
	NUbatch int64 // 0 is interpreted as NTokens
	Mode    Mode

	// SeqIDs is the primary sequence id per token. Optional; required for
	// ModeEqual's same-sequence grouping. Length must equal NTokens if set.
	SeqIDs []seq.ID

	// SeqMasks is the full per-token sequence mask. Required for ModeSeq.
	// Length must equal NTokens if set.
	SeqMasks []seq.Mask

	// EqualSequential requires ModeEqual's runs to be strictly sequence-
	// consecutive (spec §9 open question 1; resolved as "never reorder" —
	// both true and false preserve input order, the flag only affects how
	// strictly consecutive-sequence runs are validated upstream of this
	// package and is accepted here for API parity).
	EqualSequential bool

	OutputAll  bool
	OutputMask []bool // optional; length must equal NTokens if set
}

// Plan is the result of a successful Split (spec §4.2 outputs).
type Plan struct {
	UbatchSizes        []int64
	UbatchCount        int
	TotalOutputs       int64
	TokenIndices       []int   // populated for ModeEqual/ModeSeq; nil for ModeSimple
	UbatchTokenOffsets []int64 // prefix sums of UbatchSizes

	// UbatchOutputCounts is how many of TotalOutputs fall inside each
	// ubatch, in plan order. A caller driving the executor per ubatch
	// uses this (not a flat 1-per-ubatch assumption) to know how many
	// positions that ubatch must extract, so the sum across all ubatches
	// always equals TotalOutputs.
	UbatchOutputCounts []int64
}

// DoneCallback and ErrorCallback decouple the splitter's result lifetime
// from its caller (spec §4.2).
type DoneCallback func(*Plan)
type ErrorCallback func(*errs.Error)

// Split validates in and, on success, invokes onDone with the plan; on
// failure it invokes onError instead. Exactly one of the two is called.
func Split(in Input, onDone DoneCallback, onError ErrorCallback) {
	if err := validate(in); err != nil {
		logrus.WithField("mode", in.Mode).Warnf("batch split rejected: %v", err)
		onError(err)
		return
	}

	nUbatch := in.NUbatch
	if nUbatch == 0 {
		nUbatch = int64(in.NTokens)
	}

	var order []int
	var sizes []int64
	var identity bool

	switch in.Mode {
	case ModeSimple:
		sizes = chunkSizes(in.NTokens, nUbatch)
		identity = true
	case ModeEqual:
		order, sizes = splitEqual(in, nUbatch)
	case ModeSeq:
		order, sizes = splitSeq(in, nUbatch)
	}

	if len(sizes) > MaxUbatches {
		err := errs.New(errs.InvalidArgument, "ubatch_count exceeds MaxUbatches")
		logrus.Warnf("batch split rejected: %v", err)
		onError(err)
		return
	}

	plan := &Plan{
		UbatchSizes:        sizes,
		UbatchCount:        len(sizes),
		UbatchTokenOffsets: prefixSums(sizes),
	}
	if !identity {
		plan.TokenIndices = order
	}
	plan.TotalOutputs = countOutputs(in)

	planOrder := order
	if planOrder == nil {
		planOrder = identityOrder(in.NTokens)
	}
	plan.UbatchOutputCounts = outputCountsPerUbatch(in, planOrder, sizes)

	onDone(plan)
}

func validate(in Input) *errs.Error {
	if in.NTokens <= 0 {
		return errs.InPhase("validating", errs.InvalidArgument, "n_tokens must be positive")
	}
	if in.NUbatch < 0 {
		return errs.InPhase("validating", errs.InvalidArgument, "n_ubatch must be non-negative")
	}
	if in.Mode != ModeSimple && in.Mode != ModeEqual && in.Mode != ModeSeq {
		return errs.InPhase("validating", errs.InvalidArgument, "unrecognized split mode")
	}
	if in.SeqIDs != nil && len(in.SeqIDs) != in.NTokens {
		return errs.InPhase("validating", errs.InvalidArgument, "seq_ids length mismatch")
	}
	if in.SeqMasks != nil && len(in.SeqMasks) != in.NTokens {
		return errs.InPhase("validating", errs.InvalidArgument, "seq_masks length mismatch")
	}
	if in.OutputMask != nil && len(in.OutputMask) != in.NTokens {
		return errs.InPhase("validating", errs.InvalidArgument, "output_mask length mismatch")
	}
	if in.Mode == ModeSeq && in.SeqMasks == nil {
		return errs.InPhase("validating", errs.InvalidArgument, "seq mode requires seq_masks")
	}
	return nil
}

// chunkSizes splits n tokens into contiguous groups of at most max tokens,
// preserving order (ModeSimple; spec §4.2).
func chunkSizes(n int, max int64) []int64 {
	var sizes []int64
	remaining := int64(n)
	for remaining > 0 {
		take := remaining
		if take > max {
			take = max
		}
		sizes = append(sizes, take)
		remaining -= take
	}
	return sizes
}

// splitEqual groups tokens into contiguous runs that (a) never exceed max
// and (b) never cross a primary-sequence-id boundary when SeqIDs is set.
// Order is always preserved (spec §9 open question 1 resolution).
func splitEqual(in Input, max int64) ([]int, []int64) {
	order := identityOrder(in.NTokens)
	if in.SeqIDs == nil {
		return order, chunkSizes(in.NTokens, max)
	}

	var sizes []int64
	start := 0
	for start < in.NTokens {
		end := start + 1
		for end < in.NTokens &&
			int64(end-start) < max &&
			in.SeqIDs[end] == in.SeqIDs[start] {
			end++
		}
		sizes = append(sizes, int64(end-start))
		start = end
	}
	return order, sizes
}

// splitSeq groups tokens by full sequence-mask equality, emitting one
// micro-batch per distinct mask in first-seen input order, further
// chunked by max (spec §4.2).
func splitSeq(in Input, max int64) ([]int, []int64) {
	var bucketOrder []seq.Mask
	seen := make(map[seq.Mask]int) // mask -> index into bucketOrder
	buckets := make(map[seq.Mask][]int)

	for i, m := range in.SeqMasks {
		if _, ok := seen[m]; !ok {
			seen[m] = len(bucketOrder)
			bucketOrder = append(bucketOrder, m)
		}
		buckets[m] = append(buckets[m], i)
	}

	var order []int
	var sizes []int64
	for _, m := range bucketOrder {
		idxs := buckets[m]
		for start := 0; start < len(idxs); {
			end := start + int(max)
			if end > len(idxs) {
				end = len(idxs)
			}
			order = append(order, idxs[start:end]...)
			sizes = append(sizes, int64(end-start))
			start = end
		}
	}
	return order, sizes
}

func identityOrder(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}

func prefixSums(sizes []int64) []int64 {
	offsets := make([]int64, len(sizes))
	var acc int64
	for i, s := range sizes {
		offsets[i] = acc
		acc += s
	}
	return offsets
}

// countOutputs implements the output-counting rule (spec §4.2): output_all
// counts every token; else output_mask sums non-zero entries; else only the
// last token of the original input counts.
func countOutputs(in Input) int64 {
	if in.OutputAll {
		return int64(in.NTokens)
	}
	if in.OutputMask != nil {
		var n int64
		for _, v := range in.OutputMask {
			if v {
				n++
			}
		}
		return n
	}
	return 1
}

// outputCountsPerUbatch buckets the output-counting rule from countOutputs
// by which ubatch each plan-order position lands in, using order to map a
// plan-order position back to its original token index.
func outputCountsPerUbatch(in Input, order []int, sizes []int64) []int64 {
	counts := make([]int64, len(sizes))
	pos := 0
	for ubatch, size := range sizes {
		for j := int64(0); j < size; j++ {
			if tokenIsOutput(in, order[pos]) {
				counts[ubatch]++
			}
			pos++
		}
	}
	return counts
}

// tokenIsOutput reports whether orig (an original token index) is an
// output position under the same rule countOutputs sums.
func tokenIsOutput(in Input, orig int) bool {
	if in.OutputAll {
		return true
	}
	if in.OutputMask != nil {
		return in.OutputMask[orig]
	}
	return orig == in.NTokens-1
}
