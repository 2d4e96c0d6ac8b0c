package pipeline

import "time"

// outcome is what a task hands back to the coordinator of its stage.
type outcome[O any] struct {
	seq      uint64
	val      O
	keep     bool
	err      error
	admitted time.Time
	elapsed  time.Duration
}

// window decides which completed tasks can leave the stage, and when a slot is free again.
type window[O any] interface {
	admit(seq uint64)
	// complete records a finished task and returns the outcomes to emit, in emission order.
	complete(res outcome[O]) []outcome[O]
	// fail records a failed task. Nothing observed as failed-after is emitted.
	fail(res outcome[O])
	failure() error
	// size is the number of occupied slots.
	size() int
}

func newWindow[O any](policy Policy) window[O] {
	if policy.Ordered() {
		return &orderedWindow[O]{ready: make(map[uint64]outcome[O], policy.concurrency)}
	}

	return &unorderedWindow[O]{}
}

// unorderedWindow emits in completion order. A slot is freed as soon as its task returns.
type unorderedWindow[O any] struct {
	running int
	err     error
}

func (w *unorderedWindow[O]) admit(uint64) {
	w.running++
}

func (w *unorderedWindow[O]) complete(res outcome[O]) []outcome[O] {
	w.running--
	if res.err != nil || w.err != nil || !res.keep {
		return nil
	}

	return []outcome[O]{res}
}

func (w *unorderedWindow[O]) fail(res outcome[O]) {
	if w.err == nil {
		w.err = res.err
	}
}

func (w *unorderedWindow[O]) failure() error { return w.err }

func (w *unorderedWindow[O]) size() int { return w.running }

// orderedWindow emits in admission order. A slot is freed only once its result has left the head
// of the window, so at most N items are between admission and emission.
type orderedWindow[O any] struct {
	head     uint64
	next     uint64
	ready    map[uint64]outcome[O]
	failed   bool
	failedAt uint64
	err      error
}

func (w *orderedWindow[O]) admit(seq uint64) {
	w.next = seq + 1
}

func (w *orderedWindow[O]) complete(res outcome[O]) []outcome[O] {
	w.ready[res.seq] = res
	var emit []outcome[O]
	for {
		r, ok := w.ready[w.head]
		if !ok {
			break
		}
		delete(w.ready, w.head)
		w.head++
		if r.err != nil || !r.keep || (w.failed && r.seq >= w.failedAt) {
			continue
		}
		emit = append(emit, r)
	}

	return emit
}

func (w *orderedWindow[O]) fail(res outcome[O]) {
	if !w.failed || res.seq < w.failedAt {
		w.failed = true
		w.failedAt = res.seq
		w.err = res.err
	}
}

func (w *orderedWindow[O]) failure() error { return w.err }

func (w *orderedWindow[O]) size() int { return int(w.next - w.head) }
