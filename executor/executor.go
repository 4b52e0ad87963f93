package executor

import (
	"github.com/sirupsen/logrus"

	"github.com/emelcore/emel/errs"
	"github.com/emelcore/emel/kv"
	"github.com/emelcore/emel/memory"
)

// ComputeFuncs are the caller-provided compute-backend callbacks (spec
// §6 "Compute backend"). Validate and ExtractOutputs are their own
// pipeline stages; PrepareGraph/AllocGraph/BindInputs/RunBackend together
// form the run_compute stage.
type ComputeFuncs struct {
	Validate       func(ubatchIndex int32) *errs.Error
	PrepareGraph   func(ubatchIndex int32) (reused bool, err *errs.Error)
	AllocGraph     func(ubatchIndex int32) *errs.Error
	BindInputs     func(ubatchIndex int32) *errs.Error
	RunBackend     func(ubatchIndex int32) *errs.Error
	ExtractOutputs func(ubatchIndex int32) (outputsProduced int32, err *errs.Error)
}

// Input is one micro-batch's execution request (spec §4.5 contract).
type Input struct {
	UbatchIndex    int32
	UbatchSize     int32
	Positions      []int32 // optional; forwarded to kv.Cache.ApplyUbatch
	NUbatchesTotal int32

	// ExpectedOutputs is how many output positions this ubatch carries,
	// per the batch splitter's plan (batch.Plan.UbatchOutputCounts). A
	// ubatch with none skips extract_outputs entirely, so a caller summing
	// OutputsProduced across every ubatch lands on the splitter's
	// total_outputs instead of one-per-ubatch.
	ExpectedOutputs int32

	Memory  *memory.Coordinator
	KV      *kv.Cache
	Compute ComputeFuncs
}

// Result reports what the micro-batch execution produced or, on
// failure, whether a rollback was already attempted (spec §4.5 outputs).
type Result struct {
	OutputsProduced int32
	KVTokens        int32

	RollbackAttempted bool
	// MemoryRetryable reports whether Err came from the prepare_memory
	// stage with a retryable status, so the decoder knows it may retry
	// this same ubatch once (spec §4.4 status mapping, §4.6 step 6).
	MemoryRetryable bool
	Err             *errs.Error
}

// Run drives validate → prepare_memory → prepare_kv → run_compute →
// extract_outputs → publish. Once prepare_kv has applied the ubatch, any
// later failure triggers exactly one rollback step (spec invariant I7).
func Run(in Input) Result {
	if in.Compute.Validate != nil {
		if err := in.Compute.Validate(in.UbatchIndex); err != nil {
			return Result{Err: err}
		}
	}

	if in.Memory != nil {
		if status, err := in.Memory.PrepareBatch(in.UbatchSize, in.NUbatchesTotal); err != nil {
			return Result{Err: err, MemoryRetryable: status.Retryable()}
		}
	}

	if err := in.KV.ApplyUbatch(in.UbatchIndex, in.Positions); err != nil {
		return Result{Err: err}
	}

	if err := runCompute(in); err != nil {
		return rollbackAndReport(in, err)
	}

	var outputsProduced int32
	if in.Compute.ExtractOutputs != nil && in.ExpectedOutputs > 0 {
		produced, err := in.Compute.ExtractOutputs(in.UbatchIndex)
		if err != nil {
			return rollbackAndReport(in, err)
		}
		outputsProduced = produced
	}

	return Result{
		OutputsProduced: outputsProduced,
		KVTokens:        in.KV.KVTokens(),
	}
}

// runCompute chains prepare_graph/alloc_graph/bind_inputs/run_backend
// and applies the error-normalization rule from spec §4.5: a failed
// run_backend that reports INVALID_ARGUMENT is remapped to BACKEND, since
// the caller already validated its inputs before this stage ran.
func runCompute(in Input) *errs.Error {
	if in.Compute.PrepareGraph != nil {
		if _, err := in.Compute.PrepareGraph(in.UbatchIndex); err != nil {
			return err
		}
	}
	if in.Compute.AllocGraph != nil {
		if err := in.Compute.AllocGraph(in.UbatchIndex); err != nil {
			return err
		}
	}
	if in.Compute.BindInputs != nil {
		if err := in.Compute.BindInputs(in.UbatchIndex); err != nil {
			return err
		}
	}
	if in.Compute.RunBackend != nil {
		if err := in.Compute.RunBackend(in.UbatchIndex); err != nil {
			if err.Kind == errs.InvalidArgument {
				return errs.Wrap(errs.Backend, "run_compute", err)
			}
			return err
		}
	}
	return nil
}

func rollbackAndReport(in Input, failure *errs.Error) Result {
	from := in.UbatchIndex
	if from < 0 {
		from = 0
	}
	if rbErr := in.KV.Rollback(from); rbErr != nil {
		logrus.WithField("ubatch_index", in.UbatchIndex).Warnf("rollback after execution failure itself failed: %v", rbErr)
	}
	return Result{RollbackAttempted: true, Err: failure}
}
