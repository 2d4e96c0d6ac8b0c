package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/askiada/go-stages/pkg/pipeline"
)

const testTimeout = 10 * time.Second

func ints(total int) []int {
	res := make([]int, total)
	for i := range res {
		res[i] = i
	}

	return res
}

func identity[T any](_ context.Context, item T) (T, error) {
	return item, nil
}

// run builds the pipeline, collects every output item and waits for the run to end.
func run[T any](t *testing.T, b *pipeline.Builder[T]) ([]T, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	output, completion, err := b.Build(ctx)
	require.NoError(t, err)

	got, err := output.Collect(ctx)
	require.NoError(t, err)

	return got, wait(t, completion)
}

func wait(t *testing.T, completion *pipeline.Completion) error {
	t.Helper()

	select {
	case <-completion.Done():
		return completion.Wait()
	case <-time.After(testTimeout):
		require.FailNow(t, "pipeline did not end")
	}

	return nil
}
