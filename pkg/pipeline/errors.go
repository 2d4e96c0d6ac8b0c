package pipeline

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/askiada/go-stages/pkg/pipeline/model"
)

var (
	ErrBuilderMustBeSet    = errors.New("builder must be set")
	ErrSourceMustBeSet     = errors.New("source must be set")
	ErrWorkerMustBeSet     = errors.New("worker function must be set")
	ErrInvalidConcurrency  = errors.New("concurrency must be greater than 0")
	ErrInvalidBackpressure = errors.New("backpressure must be greater than 0")
	ErrInvalidCapacity     = errors.New("capacity must be positive or Unbounded")
	ErrWorkerPanic         = errors.New("worker panicked")
	// ErrChannelClosed is returned by Send once the channel is closed or its reader has left.
	// The pipeline uses it to cascade shutdown; it never reaches Completion.Wait.
	ErrChannelClosed = errors.New("channel closed")
)

// WorkerFailure reports that the worker of a stage returned an error or panicked.
// StageIndex is model.SourceIndex when the source failed.
type WorkerFailure struct {
	StageIndex int
	StageName  string
	Cause      error
}

func (e *WorkerFailure) Error() string {
	return fmt.Sprintf("stage %d (%s): %v", e.StageIndex, e.StageName, e.Cause)
}

func (e *WorkerFailure) Unwrap() error { return e.Cause }

// MisconfiguredStage is returned by Build before anything starts.
type MisconfiguredStage struct {
	StageIndex int
	StageName  string
	Cause      error
}

func (e *MisconfiguredStage) Error() string {
	return fmt.Sprintf("stage %d (%s) is misconfigured: %v", e.StageIndex, e.StageName, e.Cause)
}

func (e *MisconfiguredStage) Unwrap() error { return e.Cause }

// outcomes keeps what each node of a run ended with, indexed by stage.
// Slot 0 belongs to the source.
type outcomes struct {
	mu          sync.Mutex
	failures    []*WorkerFailure
	interrupted []error
}

func newOutcomes(stages int) *outcomes {
	return &outcomes{
		failures:    make([]*WorkerFailure, stages+1),
		interrupted: make([]error, stages+1),
	}
}

func (o *outcomes) fail(info *model.StageInfo, cause error) *WorkerFailure {
	o.mu.Lock()
	defer o.mu.Unlock()
	slot := info.Index + 1
	if o.failures[slot] == nil {
		o.failures[slot] = &WorkerFailure{
			StageIndex: info.Index,
			StageName:  info.Name,
			Cause:      cause,
		}
	}

	return o.failures[slot]
}

func (o *outcomes) interrupt(info *model.StageInfo, cause error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	slot := info.Index + 1
	if o.interrupted[slot] == nil {
		o.interrupted[slot] = cause
	}
}

// firstFailure returns the failure of the earliest stage, the source first.
func (o *outcomes) firstFailure() *WorkerFailure {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, f := range o.failures {
		if f != nil {
			return f
		}
	}

	return nil
}

func (o *outcomes) firstInterruption() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, err := range o.interrupted {
		if err != nil {
			return err
		}
	}

	return nil
}
