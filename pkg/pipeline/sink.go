package pipeline

import (
	"context"
	"iter"
)

// Output is the receive side of the last channel of a pipeline.
type Output[T any] struct {
	ch     *Channel[T]
	cancel context.CancelFunc
}

// Receive returns the next item. ok is false once the pipeline has ended and everything was
// received.
func (o *Output[T]) Receive(ctx context.Context) (item T, ok bool, err error) {
	return o.ch.Receive(ctx)
}

// C returns the channel of output items. It is closed at end of stream.
func (o *Output[T]) C() <-chan T {
	return o.ch.Out()
}

// All returns the output items as a sequence. The sequence can be ranged over once: a second
// range only sees what the first one left. Breaking out of the loop does not stop the pipeline,
// call Close for that.
func (o *Output[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for item := range o.ch.Out() {
			if !yield(item) {
				return
			}
		}
	}
}

// Collect receives every remaining item.
func (o *Output[T]) Collect(ctx context.Context) ([]T, error) {
	var res []T
	for {
		item, ok, err := o.Receive(ctx)
		if err != nil {
			return res, err
		}
		if !ok {
			return res, nil
		}
		res = append(res, item)
	}
}

// Len returns the number of items waiting to be received.
func (o *Output[T]) Len() int {
	return o.ch.Len()
}

// Close drops the output: every stage stops admitting items and buffered results are discarded.
func (o *Output[T]) Close() {
	o.cancel()
	o.ch.release()
}
