package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func seqs[O any](res []outcome[O]) []uint64 {
	out := make([]uint64, 0, len(res))
	for _, r := range res {
		out = append(out, r.seq)
	}

	return out
}

func TestOrderedWindow(t *testing.T) {
	t.Parallel()

	win := newWindow[int](Ordered(3))
	for seq := range uint64(3) {
		win.admit(seq)
	}
	assert.Equal(t, 3, win.size())

	assert.Empty(t, win.complete(outcome[int]{seq: 2, val: 20, keep: true}))
	assert.Empty(t, win.complete(outcome[int]{seq: 1, val: 10, keep: true}))
	assert.Equal(t, 3, win.size(), "a completed item keeps its slot until it leaves the head")

	assert.Equal(t, []uint64{0, 1, 2}, seqs(win.complete(outcome[int]{seq: 0, val: 0, keep: true})))
	assert.Equal(t, 0, win.size())
	assert.NoError(t, win.failure())
}

func TestOrderedWindowDropsFilteredItems(t *testing.T) {
	t.Parallel()

	win := newWindow[int](Ordered(2))
	win.admit(0)
	win.admit(1)
	assert.Empty(t, win.complete(outcome[int]{seq: 0}))
	assert.Equal(t, 1, win.size())
	assert.Equal(t, []uint64{1}, seqs(win.complete(outcome[int]{seq: 1, keep: true})))
}

func TestOrderedWindowFailure(t *testing.T) {
	t.Parallel()

	win := newWindow[int](Ordered(4))
	for seq := range uint64(4) {
		win.admit(seq)
	}

	assert.Empty(t, win.complete(outcome[int]{seq: 3, keep: true}))

	failed := outcome[int]{seq: 2, err: assert.AnError}
	win.fail(failed)
	assert.Empty(t, win.complete(failed))

	assert.Equal(t, []uint64{0}, seqs(win.complete(outcome[int]{seq: 0, keep: true})))
	assert.Equal(t, []uint64{1}, seqs(win.complete(outcome[int]{seq: 1, keep: true})), "items before the failed one are emitted")
	assert.Equal(t, 0, win.size())
	assert.ErrorIs(t, win.failure(), assert.AnError)
}

func TestOrderedWindowKeepsLowestFailure(t *testing.T) {
	t.Parallel()

	errFirst := assert.AnError
	errLater := ErrWorkerPanic

	win := newWindow[int](Ordered(3))
	for seq := range uint64(3) {
		win.admit(seq)
	}
	later := outcome[int]{seq: 2, err: errLater}
	win.fail(later)
	win.complete(later)
	first := outcome[int]{seq: 1, err: errFirst}
	win.fail(first)
	win.complete(first)

	assert.Equal(t, []uint64{0}, seqs(win.complete(outcome[int]{seq: 0, keep: true})))
	assert.ErrorIs(t, win.failure(), errFirst)
}

func TestUnorderedWindow(t *testing.T) {
	t.Parallel()

	win := newWindow[string](Unordered(2))
	win.admit(0)
	win.admit(1)
	assert.Equal(t, 2, win.size())

	assert.Equal(t, []uint64{1}, seqs(win.complete(outcome[string]{seq: 1, keep: true})))
	assert.Equal(t, 1, win.size())
	assert.Empty(t, win.complete(outcome[string]{seq: 0}))
	assert.Equal(t, 0, win.size())

	win.admit(2)
	win.admit(3)
	failed := outcome[string]{seq: 2, err: assert.AnError}
	win.fail(failed)
	assert.Empty(t, win.complete(failed))
	assert.Empty(t, win.complete(outcome[string]{seq: 3, keep: true}), "nothing completed after a failure is emitted")
	assert.ErrorIs(t, win.failure(), assert.AnError)
}
