package memory

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emelcore/emel/errs"
)

func TestPrepareUpdate_SuccessRunsApplyThenPublish(t *testing.T) {
	var order []string
	backend := Backend{
		Validate: func(Request) *errs.Error { order = append(order, "validate"); return nil },
		Prepare: func(Request) (Status, *errs.Error) {
			order = append(order, "prepare")
			return StatusSuccess, nil
		},
		Apply: func(Request) *errs.Error { order = append(order, "apply"); return nil },
		Publish: func(Request) *errs.Error {
			order = append(order, "publish")
			return nil
		},
	}
	c := New(backend)
	status, err := c.PrepareUpdate(false)
	require.Nil(t, err)
	require.Equal(t, StatusSuccess, status)
	require.Equal(t, []string{"validate", "prepare", "apply", "publish"}, order)
}

func TestPrepareBatch_NeverCallsApply(t *testing.T) {
	applied := false
	backend := Backend{
		Prepare: func(Request) (Status, *errs.Error) { return StatusSuccess, nil },
		Apply:   func(Request) *errs.Error { applied = true; return nil },
		Publish: func(Request) *errs.Error { return nil },
	}
	c := New(backend)
	status, err := c.PrepareBatch(4, 10)
	require.Nil(t, err)
	require.Equal(t, StatusSuccess, status)
	require.False(t, applied, "apply must only run for KindUpdate")
}

func TestPrepareUpdate_NoUpdateSkipsApplyButPublishes(t *testing.T) {
	applied := false
	published := false
	backend := Backend{
		Prepare: func(Request) (Status, *errs.Error) { return StatusNoUpdate, nil },
		Apply:   func(Request) *errs.Error { applied = true; return nil },
		Publish: func(Request) *errs.Error { published = true; return nil },
	}
	c := New(backend)
	status, err := c.PrepareUpdate(true)
	require.Nil(t, err)
	require.Equal(t, StatusNoUpdate, status)
	require.False(t, applied)
	require.True(t, published)
}

func TestPrepareFull_ValidateFailureIsRetryable(t *testing.T) {
	backend := Backend{
		Validate: func(Request) *errs.Error {
			return errs.New(errs.InvalidArgument, "bad full-recompute request")
		},
		Prepare: func(Request) (Status, *errs.Error) { return StatusSuccess, nil },
	}
	c := New(backend)
	status, err := c.PrepareFull()
	require.NotNil(t, err)
	require.Equal(t, StatusFailedPrepare, status)
	require.True(t, status.Retryable())
}

func TestPrepare_FailedPrepareStatusIsRetryableAndSkipsApplyPublish(t *testing.T) {
	applied, published := false, false
	backend := Backend{
		Prepare: func(Request) (Status, *errs.Error) {
			return StatusFailedPrepare, errs.New(errs.Backend, "prepare backend unavailable")
		},
		Apply:   func(Request) *errs.Error { applied = true; return nil },
		Publish: func(Request) *errs.Error { published = true; return nil },
	}
	c := New(backend)
	status, err := c.PrepareUpdate(false)
	require.NotNil(t, err)
	require.Equal(t, StatusFailedPrepare, status)
	require.True(t, status.Retryable())
	require.False(t, applied)
	require.False(t, published)
}

func TestPrepare_FailedComputeStatusIsPermanent(t *testing.T) {
	backend := Backend{
		Prepare: func(Request) (Status, *errs.Error) {
			return StatusFailedCompute, errs.New(errs.Backend, "compute backend unavailable")
		},
	}
	c := New(backend)
	status, err := c.PrepareFull()
	require.NotNil(t, err)
	require.Equal(t, StatusFailedCompute, status)
	require.False(t, status.Retryable())
}

func TestApplyFailure_ReportsFailedCompute(t *testing.T) {
	backend := Backend{
		Prepare: func(Request) (Status, *errs.Error) { return StatusSuccess, nil },
		Apply: func(Request) *errs.Error {
			return errs.New(errs.Backend, "apply failed")
		},
	}
	c := New(backend)
	status, err := c.PrepareUpdate(false)
	require.NotNil(t, err)
	require.Equal(t, StatusFailedCompute, status)
}

func TestPublishFailure_ReportsFailedCompute(t *testing.T) {
	backend := Backend{
		Prepare: func(Request) (Status, *errs.Error) { return StatusSuccess, nil },
		Publish: func(Request) *errs.Error {
			return errs.New(errs.Backend, "publish failed")
		},
	}
	c := New(backend)
	status, err := c.PrepareBatch(1, 1)
	require.NotNil(t, err)
	require.Equal(t, StatusFailedCompute, status)
}

func TestNew_PanicsWithoutPrepare(t *testing.T) {
	require.Panics(t, func() { New(Backend{}) })
}
