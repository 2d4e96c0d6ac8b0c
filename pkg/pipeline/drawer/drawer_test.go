package drawer_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/dominikbraun/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-stages/pkg/pipeline"
	"github.com/askiada/go-stages/pkg/pipeline/drawer"
	"github.com/askiada/go-stages/pkg/pipeline/measure"
)

func TestDOTDrawer(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		withMeasure bool
	}{
		"without measure": {},
		"with measure":    {withMeasure: true},
	}

	for name, tc := range tcs {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			buf := &bytes.Buffer{}
			var hooks pipeline.Option
			if tc.withMeasure {
				m := measure.NewDefaultMeasure()
				hooks = pipeline.WithHooks(measure.PipelineMeasure(m), drawer.PipelineDrawer(drawer.NewDOTDrawer(buf), m))
			} else {
				hooks = pipeline.WithHooks(drawer.PipelineDrawer(drawer.NewDOTDrawer(buf), nil))
			}

			b := pipeline.FromSlice([]int{1, 2, 3}, hooks)
			b = pipeline.AddStage(b, "download", func(_ context.Context, item int) (int, error) {
				time.Sleep(time.Millisecond)

				return item, nil
			}, pipeline.Unordered(2))
			b = pipeline.AddStage(b, "resize", func(_ context.Context, item int) (int, error) {
				return item, nil
			}, pipeline.Ordered(3), pipeline.Backpressure(8))

			err := pipeline.Drain(context.Background(), b, func(context.Context, int) error { return nil })
			require.NoError(t, err)

			out := buf.String()
			assert.Contains(t, out, "strict digraph")
			assert.Contains(t, out, `rankdir="LR"`)
			assert.Contains(t, out, `"start" -> "source"`)
			assert.Contains(t, out, `"source" -> "download"`)
			assert.Contains(t, out, `"download" -> "resize"`)
			assert.Contains(t, out, `"resize" -> "sink"`)
			assert.Contains(t, out, `"sink" -> "end"`)
			assert.Contains(t, out, "unordered(2), buffer 2")
			assert.Contains(t, out, "ordered(3), buffer 8")
			if tc.withMeasure {
				assert.Contains(t, out, "fontcolor")
			} else {
				assert.NotContains(t, out, "fontcolor")
			}
		})
	}
}

func TestDOTDrawerDuplicatedStage(t *testing.T) {
	t.Parallel()

	b := pipeline.FromSlice([]int{1}, pipeline.WithHooks(drawer.PipelineDrawer(drawer.NewDOTDrawer(&bytes.Buffer{}), nil)))
	b = pipeline.AddStage(b, "same", func(_ context.Context, item int) (int, error) { return item, nil }, pipeline.Ordered(1))
	b = pipeline.AddStage(b, "same", func(_ context.Context, item int) (int, error) { return item, nil }, pipeline.Ordered(1))

	_, _, err := b.Build(context.Background())
	require.ErrorIs(t, err, graph.ErrVertexAlreadyExists)
}

func TestDOTDrawerSetTotalTimeUnknownStage(t *testing.T) {
	t.Parallel()

	d := drawer.NewDOTDrawer(&bytes.Buffer{})
	require.NoError(t, d.AddStage("known", ""))
	assert.NoError(t, d.SetTotalTime("known", time.Now()))
	assert.Error(t, d.SetTotalTime("unknown", time.Now()))
}
