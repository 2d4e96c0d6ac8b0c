package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-stages/pkg/pipeline/model"
)

func TestOutcomesEarliestStageWins(t *testing.T) {
	t.Parallel()

	o := newOutcomes(3)
	assert.Nil(t, o.firstFailure())
	assert.NoError(t, o.firstInterruption())

	third := &model.StageInfo{Name: "third", Index: 2}
	first := &model.StageInfo{Name: "first", Index: 0}

	o.fail(third, assert.AnError)
	o.fail(first, ErrWorkerPanic)
	o.fail(first, assert.AnError)

	failure := o.firstFailure()
	require.NotNil(t, failure)
	assert.Equal(t, 0, failure.StageIndex)
	assert.Equal(t, "first", failure.StageName)
	assert.ErrorIs(t, failure, ErrWorkerPanic, "the first failure of a stage is kept")

	o.fail(&model.StageInfo{Name: "source", Index: model.SourceIndex}, assert.AnError)
	assert.Equal(t, model.SourceIndex, o.firstFailure().StageIndex)
}

func TestOutcomesInterruption(t *testing.T) {
	t.Parallel()

	o := newOutcomes(2)
	o.interrupt(&model.StageInfo{Index: 1}, ErrChannelClosed)
	o.interrupt(&model.StageInfo{Index: 0}, context.Canceled)
	assert.ErrorIs(t, o.firstInterruption(), context.Canceled)
}

func TestErrorTypes(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		err      error
		expected string
	}{
		"worker failure": {
			err:      &WorkerFailure{StageIndex: 2, StageName: "resize", Cause: assert.AnError},
			expected: "stage 2 (resize): " + assert.AnError.Error(),
		},
		"misconfigured stage": {
			err:      &MisconfiguredStage{StageIndex: 0, StageName: "download", Cause: ErrInvalidConcurrency},
			expected: "stage 0 (download) is misconfigured: concurrency must be greater than 0",
		},
	}

	for name, tc := range tcs {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.EqualError(t, tc.err, tc.expected)
		})
	}

	assert.ErrorIs(t, tcs["worker failure"].err, assert.AnError)
	assert.ErrorIs(t, tcs["misconfigured stage"].err, ErrInvalidConcurrency)
}
