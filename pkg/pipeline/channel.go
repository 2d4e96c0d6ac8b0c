package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Unbounded is the capacity of a Channel whose Send never waits for the reader.
const Unbounded = -1

// Channel is a FIFO queue with one writer and one reader.
//
// Send waits while the buffer is full, Receive waits while it is empty. Close forbids further
// sends but everything already buffered can still be received. A capacity of 0 makes every Send
// wait for a matching Receive.
type Channel[T any] struct {
	capacity int
	in       chan T
	out      chan T

	mu          sync.RWMutex
	closed      bool
	closing     chan struct{}
	closeOnce   sync.Once
	released    chan struct{}
	releaseOnce sync.Once

	// buffered items of an unbounded channel
	pending atomic.Int64
}

// NewChannel creates a channel holding up to capacity items, or any number of items when capacity
// is Unbounded.
func NewChannel[T any](capacity int) (*Channel[T], error) {
	if capacity < Unbounded {
		return nil, errors.Wrapf(ErrInvalidCapacity, "got %d", capacity)
	}
	c := &Channel[T]{
		capacity: capacity,
		closing:  make(chan struct{}),
		released: make(chan struct{}),
	}
	if capacity == Unbounded {
		c.in = make(chan T)
		c.out = make(chan T)
		go c.pump()

		return c, nil
	}
	c.in = make(chan T, capacity)
	c.out = c.in

	return c, nil
}

// pump moves items from in to out through a slice that grows as needed.
func (c *Channel[T]) pump() {
	defer close(c.out)
	var queue []T
	in := c.in
	for in != nil || len(queue) > 0 {
		var (
			out  chan T
			head T
		)
		if len(queue) > 0 {
			out = c.out
			head = queue[0]
		}
		select {
		case item, ok := <-in:
			if !ok {
				in = nil

				continue
			}
			queue = append(queue, item)
			c.pending.Add(1)
		case out <- head:
			var zero T
			queue[0] = zero
			queue = queue[1:]
			c.pending.Add(-1)
		case <-c.released:
			return
		}
	}
}

// Send appends item to the channel.
func (c *Channel[T]) Send(ctx context.Context, item T) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrChannelClosed
	}
	select {
	case <-c.released:
		return ErrChannelClosed
	default:
	}
	select {
	case c.in <- item:
		return nil
	case <-c.closing:
		return ErrChannelClosed
	case <-c.released:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns the oldest item. ok is false once the channel is closed and drained.
func (c *Channel[T]) Receive(ctx context.Context) (item T, ok bool, err error) {
	select {
	case item, ok = <-c.out:
		return item, ok, nil
	case <-ctx.Done():
		return item, false, ctx.Err()
	}
}

// Out is the receive side of the channel. It is closed at end of stream.
func (c *Channel[T]) Out() <-chan T {
	return c.out
}

// Close forbids further sends. It is safe to call more than once.
func (c *Channel[T]) Close() {
	c.closeOnce.Do(func() {
		// unblock a pending Send before taking the write lock
		close(c.closing)
		c.mu.Lock()
		c.closed = true
		close(c.in)
		c.mu.Unlock()
	})
}

// release tells the writer the reader is gone. Buffered items are dropped.
func (c *Channel[T]) release() {
	c.releaseOnce.Do(func() {
		close(c.released)
	})
}

// Len returns the number of buffered items.
func (c *Channel[T]) Len() int {
	if c.capacity == Unbounded {
		return int(c.pending.Load())
	}

	return len(c.in)
}

// Cap returns the capacity the channel was created with.
func (c *Channel[T]) Cap() int {
	return c.capacity
}
