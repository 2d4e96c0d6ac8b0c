package pipeline

import (
	"fmt"

	"github.com/pkg/errors"
)

type ordering int

const (
	unordered ordering = iota
	ordered
)

// Policy sets how many items a stage works on at once and whether its output keeps the order of
// its input.
type Policy struct {
	ordering    ordering
	concurrency int
}

// Unordered runs up to n items at once and emits each result as soon as it is ready.
func Unordered(n int) Policy {
	return Policy{ordering: unordered, concurrency: n}
}

// Ordered runs up to n items at once and emits results in the order the items were received.
func Ordered(n int) Policy {
	return Policy{ordering: ordered, concurrency: n}
}

// Ordered reports whether results leave the stage in the order the items entered it.
func (p Policy) Ordered() bool { return p.ordering == ordered }

// Concurrency is the maximum number of items the stage works on at once.
func (p Policy) Concurrency() int { return p.concurrency }

// String returns the policy as it is written in code, e.g. "Ordered(4)".
func (p Policy) String() string {
	if p.Ordered() {
		return fmt.Sprintf("Ordered(%d)", p.concurrency)
	}

	return fmt.Sprintf("Unordered(%d)", p.concurrency)
}

func (p Policy) validate() error {
	if p.concurrency < 1 {
		return errors.Wrapf(ErrInvalidConcurrency, "got %d", p.concurrency)
	}

	return nil
}
