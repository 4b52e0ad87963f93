package decode

import (
	"github.com/sirupsen/logrus"

	"github.com/emelcore/emel/batch"
	"github.com/emelcore/emel/errs"
	"github.com/emelcore/emel/executor"
	"github.com/emelcore/emel/kv"
	"github.com/emelcore/emel/memory"
	"github.com/emelcore/emel/seq"
)

// EventKind distinguishes the two owner-dispatch shapes (spec §6 "Owner
// dispatch").
type EventKind int

const (
	EventDone EventKind = iota
	EventError
)

// Event is what Decode hands to the caller's dispatch callback, exactly
// once per call.
type Event struct {
	Kind    EventKind
	Outputs int32
	Err     *errs.Error
}

// DispatchFunc receives the terminal event for one decode call.
type DispatchFunc func(Event)

// Request is one decode call's input (spec §4.6 step 1). This decoder
// targets a single stream and a single primary sequence per call, which
// matches every end-to-end scenario in spec §8; multi-stream batches are
// out of scope here and belong to a caller that drives kv/batch directly.
type Request struct {
	TokenIDs []int32
	NUbatch  int64
	Mode     batch.Mode

	StreamID  seq.StreamID
	SeqID     seq.ID
	Positions []int32 // optional, sliced per ubatch and forwarded to kv.ApplyUbatch

	OutputAll  bool
	OutputMask []bool

	Dispatch DispatchFunc
}

// Result is returned directly from Decode, mirroring the Event handed to
// Dispatch so a caller that ignores the callback can still inspect the
// outcome.
type Result struct {
	OutputsProcessed int32
	OutputsTotal     int32
	// Retries counts how many retries the retryable-memory path consumed,
	// both the whole-batch prepare at step 4 and the per-ubatch runs at
	// step 6 (spec §4.6), for observability only.
	Retries int32
	Err     *errs.Error
}

// Decoder sequences the splitter, memory coordinator, KV cache, and
// executor into the top-level decode pipeline (spec §4.6). The executor
// already performs the KV rollback described in step 6 internally, so
// Decode never rolls back a second time.
type Decoder struct {
	KV     *kv.Cache
	Memory *memory.Coordinator
	// Compute returns the compute backend callbacks for one ubatch index.
	Compute func(ubatchIndex int32) executor.ComputeFuncs
}

// Decode runs the nine-step pipeline once and dispatches exactly one
// done/error event to req.Dispatch.
func (d *Decoder) Decode(req Request) Result {
	if err := validateRequest(req); err != nil { // step 1
		return d.fail(req, err, 0)
	}

	plan, err := d.splitBatch(req) // step 2
	if err != nil {
		return d.fail(req, err, 0)
	}

	if d.Memory != nil {
		if _, err := d.Memory.PrepareUpdate(false); err != nil { // step 3
			return d.fail(req, err, 0)
		}
	}

	var retries int32
	if d.Memory != nil {
		// Whole-batch feasibility check ahead of the per-ubatch loop.
		// Retried once on a retryable status, same single-retry budget
		// step 6 applies to the per-ubatch prepare_memory call.
		status, err := d.Memory.PrepareBatch(int32(len(req.TokenIDs)), int32(plan.UbatchCount)) // step 4
		if err != nil && status.Retryable() {
			retries++
			_, err = d.Memory.PrepareBatch(int32(len(req.TokenIDs)), int32(plan.UbatchCount))
		}
		if err != nil {
			return d.fail(req, err, retries)
		}
	}

	if err := d.prepareKV(req, plan); err != nil {
		return d.fail(req, err, retries)
	}

	var outputsProcessed int32
	outputsTotal := int32(plan.TotalOutputs)

	for i := 0; i < plan.UbatchCount; i++ { // step 5 + step 6
		produced, retried, err := d.runUbatch(req, plan, int32(i))
		retries += retried
		if err != nil {
			return d.fail(req, err, retries)
		}
		outputsProcessed += produced
	}

	if outputsProcessed != outputsTotal { // step 7
		err := errs.InPhase("finalizing", errs.Backend, "outputs_processed != outputs_total")
		return d.fail(req, err, retries)
	}

	if d.Memory != nil {
		if _, err := d.Memory.PrepareUpdate(true); err != nil { // step 8, best-effort
			logrus.Warnf("decode: best-effort memory optimize failed: %v", err)
		}
	}

	if req.Dispatch != nil { // step 9
		req.Dispatch(Event{Kind: EventDone, Outputs: outputsProcessed})
	}
	return Result{OutputsProcessed: outputsProcessed, OutputsTotal: outputsTotal, Retries: retries}
}

// runUbatch drives one ubatch through the executor, retrying exactly once
// when the failure came from a retryable memory-coordinator status (spec
// §4.6 step 6).
func (d *Decoder) runUbatch(req Request, plan *batch.Plan, ubatchIndex int32) (produced int32, retried int32, failure *errs.Error) {
	size := int32(plan.UbatchSizes[ubatchIndex])

	var compute executor.ComputeFuncs
	if d.Compute != nil {
		compute = d.Compute(ubatchIndex)
	}

	run := func() executor.Result {
		return executor.Run(executor.Input{
			UbatchIndex:     ubatchIndex,
			UbatchSize:      size,
			Positions:       positionsFor(req.Positions, plan, ubatchIndex),
			NUbatchesTotal:  int32(plan.UbatchCount),
			ExpectedOutputs: int32(plan.UbatchOutputCounts[ubatchIndex]),
			Memory:          d.Memory,
			KV:              d.KV,
			Compute:         compute,
		})
	}

	result := run()
	if result.Err != nil && result.MemoryRetryable {
		retried = 1
		result = run()
	}
	if result.Err != nil {
		return 0, retried, result.Err
	}
	return result.OutputsProduced, retried, nil
}

// splitBatch runs the batch splitter in the caller-requested mode,
// defaulting to simple as spec §4.6 step 2 requires.
func (d *Decoder) splitBatch(req Request) (*batch.Plan, *errs.Error) {
	var plan *batch.Plan
	var splitErr *errs.Error
	batch.Split(batch.Input{
		NTokens:    len(req.TokenIDs),
		NUbatch:    req.NUbatch,
		Mode:       req.Mode,
		OutputAll:  req.OutputAll,
		OutputMask: req.OutputMask,
	}, func(p *batch.Plan) { plan = p }, func(e *errs.Error) { splitErr = e })
	return plan, splitErr
}

// prepareKV plans slot offsets for every ubatch against the request's
// single stream/sequence (see Request's doc comment).
func (d *Decoder) prepareKV(req Request, plan *batch.Plan) *errs.Error {
	if d.KV == nil {
		return nil
	}
	n := plan.UbatchCount
	sizes := make([]int32, n)
	streamIDs := make([]seq.StreamID, n)
	seqIDs := make([]seq.ID, n)
	for i, s := range plan.UbatchSizes {
		sizes[i] = int32(s)
		streamIDs[i] = req.StreamID
		seqIDs[i] = req.SeqID
	}
	return d.KV.Prepare(sizes, streamIDs, seqIDs, 0)
}

func positionsFor(all []int32, plan *batch.Plan, ubatchIndex int32) []int32 {
	if all == nil {
		return nil
	}
	start := plan.UbatchTokenOffsets[ubatchIndex]
	size := plan.UbatchSizes[ubatchIndex]
	return all[start : start+size]
}

func validateRequest(req Request) *errs.Error {
	if len(req.TokenIDs) == 0 {
		return errs.InPhase("validating", errs.InvalidArgument, "token_ids must be non-empty")
	}
	if req.NUbatch < 0 {
		return errs.InPhase("validating", errs.InvalidArgument, "n_ubatch must be non-negative")
	}
	if req.Dispatch == nil {
		return errs.InPhase("validating", errs.InvalidArgument, "owner dispatch callback must be set")
	}
	return nil
}

func (d *Decoder) fail(req Request, err *errs.Error, retries int32) Result {
	logrus.WithField("retries", retries).Warnf("decode failed: %v", err)
	if req.Dispatch != nil {
		req.Dispatch(Event{Kind: EventError, Err: err})
	}
	return Result{Err: err, Retries: retries}
}
