package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/askiada/go-stages/pkg/pipeline/model"
)

func newTestEnv(t *testing.T, stages int) *stageEnv {
	t.Helper()

	return &stageEnv{
		runID:    "test",
		logger:   zerolog.Nop(),
		tracer:   noop.NewTracerProvider().Tracer(tracerName),
		outcomes: newOutcomes(stages),
		start:    time.Now(),
	}
}

func newTestChannel[T any](t *testing.T, capacity int) *Channel[T] {
	t.Helper()
	c, err := NewChannel[T](capacity)
	require.NoError(t, err)

	return c
}

// fillChannel sends 0..total-1 then closes the channel.
func fillChannel(t *testing.T, c *Channel[int], total int) {
	t.Helper()
	go func() {
		defer c.Close()
		for i := 0; i < total; i++ {
			if c.Send(context.Background(), i) != nil {
				return
			}
		}
	}()
}

func drainChannel[T any](t *testing.T, c *Channel[T]) chan []T {
	t.Helper()
	got := make(chan []T, 1)
	go func() {
		var res []T
		for item := range c.Out() {
			res = append(res, item)
		}
		got <- res
	}()

	return got
}

func newTestStage[I, O any](t *testing.T, env *stageEnv, index int, policy Policy, in *Channel[I], out *Channel[O], fn WorkerFunc[I, O]) *stage[I, O] {
	t.Helper()

	return &stage[I, O]{
		env:    env,
		parent: model.StartStage,
		info: &model.StageInfo{
			Type:       model.NormalStageType,
			Name:       "test stage",
			Index:      index,
			Ordered:    policy.Ordered(),
			Concurrent: policy.Concurrency(),
		},
		policy: policy,
		fn: func(ctx context.Context, item I) (O, bool, error) {
			res, err := fn(ctx, item)

			return res, true, err
		},
		in:           in,
		out:          out,
		stopUpstream: func() {},
	}
}

func receiveWithin[T any](t *testing.T, c <-chan T, timeout time.Duration) T {
	t.Helper()
	select {
	case v := <-c:
		return v
	case <-time.After(timeout):
		require.FailNow(t, "timed out")
	}

	var zero T

	return zero
}
