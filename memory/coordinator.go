package memory

import (
	"github.com/sirupsen/logrus"

	"github.com/emelcore/emel/errs"
)

// Kind selects which of the three request shapes a Request carries
// (spec §4.4).
type Kind int

const (
	KindUpdate Kind = iota
	KindBatch
	KindFull
)

func (k Kind) String() string {
	switch k {
	case KindUpdate:
		return "update"
	case KindBatch:
		return "batch"
	case KindFull:
		return "full"
	default:
		return "unknown"
	}
}

// Status is the outcome of one coordinator pipeline run (spec §4.4
// memory_status).
type Status int

const (
	StatusSuccess Status = iota
	StatusNoUpdate
	StatusFailedPrepare
	StatusFailedCompute
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusNoUpdate:
		return "no_update"
	case StatusFailedPrepare:
		return "failed_prepare"
	case StatusFailedCompute:
		return "failed_compute"
	default:
		return "unknown"
	}
}

// Retryable reports whether the decoder may attempt one rollback and
// retry the current micro-batch for this status (spec §4.4 status
// mapping).
func (s Status) Retryable() bool { return s == StatusFailedPrepare }

// Request carries the parameters for whichever Kind it names; only the
// fields relevant to that Kind are meaningful.
type Request struct {
	Kind Kind

	// KindUpdate
	Optimize bool

	// KindBatch
	NUbatch        int32
	NUbatchesTotal int32
}

// Backend supplies the four pipeline phases (spec §4.4: "delegates to a
// caller-supplied backend via function-pointer callbacks"). Validate and
// Publish are optional (nil means "nothing to do"); Prepare is required.
// Apply is only invoked for KindUpdate requests whose Prepare reports
// StatusSuccess.
type Backend struct {
	Validate func(Request) *errs.Error
	Prepare  func(Request) (Status, *errs.Error)
	Apply    func(Request) *errs.Error
	Publish  func(Request) *errs.Error
}

// Coordinator runs the validate → prepare → apply (update only) →
// publish pipeline against a bound Backend (spec §4.4).
type Coordinator struct {
	backend   Backend
	lastError *errs.Error
}

func New(backend Backend) *Coordinator {
	if backend.Prepare == nil {
		panic("memory: Backend.Prepare must be set")
	}
	return &Coordinator{backend: backend}
}

func (c *Coordinator) LastError() *errs.Error { return c.lastError }

// PrepareUpdate runs the update pipeline; when optimize is true the
// backend is free to perform a best-effort defragmentation pass (spec
// §4.6 step 8, decoder's post-decode optimize call).
func (c *Coordinator) PrepareUpdate(optimize bool) (Status, *errs.Error) {
	return c.run(Request{Kind: KindUpdate, Optimize: optimize})
}

// PrepareBatch runs the per-micro-batch pipeline ahead of the executor
// loop (spec §4.6 step 4).
func (c *Coordinator) PrepareBatch(nUbatch, nUbatchesTotal int32) (Status, *errs.Error) {
	return c.run(Request{Kind: KindBatch, NUbatch: nUbatch, NUbatchesTotal: nUbatchesTotal})
}

// PrepareFull runs the whole-context pipeline (e.g. a context-shift or
// full-recompute request).
func (c *Coordinator) PrepareFull() (Status, *errs.Error) {
	return c.run(Request{Kind: KindFull})
}

// run implements the common pipeline, ordering guarantees: prepare
// strictly before apply, apply strictly before publish. no_update is
// never special-cased beyond skipping apply — it proceeds through
// publish exactly like success (spec §9 open question 2 resolution).
func (c *Coordinator) run(req Request) (Status, *errs.Error) {
	if c.backend.Validate != nil {
		if err := c.backend.Validate(req); err != nil {
			c.lastError = err
			logrus.WithField("kind", req.Kind).Warnf("memory coordinator validation failed: %v", err)
			return StatusFailedPrepare, err
		}
	}

	status, err := c.backend.Prepare(req)
	if err != nil {
		c.lastError = err
		logrus.WithField("kind", req.Kind).Warnf("memory coordinator prepare failed: %v", err)
		if status == StatusSuccess || status == StatusNoUpdate {
			status = StatusFailedPrepare
		}
		return status, err
	}
	if status == StatusFailedPrepare || status == StatusFailedCompute {
		c.lastError = errs.InPhase("preparing", errs.Backend, "memory backend reported "+status.String())
		return status, c.lastError
	}

	if status == StatusSuccess && req.Kind == KindUpdate {
		if c.backend.Apply != nil {
			if err := c.backend.Apply(req); err != nil {
				c.lastError = err
				logrus.WithField("kind", req.Kind).Warnf("memory coordinator apply failed: %v", err)
				return StatusFailedCompute, err
			}
		}
	}

	if c.backend.Publish != nil {
		if err := c.backend.Publish(req); err != nil {
			c.lastError = err
			logrus.WithField("kind", req.Kind).Warnf("memory coordinator publish failed: %v", err)
			return StatusFailedCompute, err
		}
	}

	c.lastError = nil
	return status, nil
}
