package pipeline

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Completion reports how a pipeline run ended. It resolves once, after the source and every stage
// have returned.
type Completion struct {
	runID  string
	done   chan struct{}
	err    error
	cancel context.CancelFunc
	// stops release the context of every node once the run is over
	stops []context.CancelFunc
}

func newCompletion(runID string, cancel context.CancelFunc) *Completion {
	return &Completion{
		runID:  runID,
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// Wait blocks until the pipeline ends. It returns nil when every stage reached the end of its
// input, the *WorkerFailure of the earliest failed stage, or the cancellation cause when the
// pipeline was stopped early.
//
// Items delivered to the output before a failure stay delivered: drain the output and check Wait
// to know whether it was exhausted normally.
func (c *Completion) Wait() error {
	<-c.done

	return c.err
}

// Done is closed once the pipeline has ended.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Cancel asks every stage to stop admitting items. Running workers are not interrupted, their
// context is cancelled.
func (c *Completion) Cancel() {
	c.cancel()
}

// RunID identifies the run in logs and traces.
func (c *Completion) RunID() string {
	return c.runID
}

func (c *Completion) resolve(grp *errgroup.Group, env *stageEnv, span trace.Span) {
	defer close(c.done)
	defer span.End()
	defer func() {
		for _, stop := range c.stops {
			stop()
		}
		c.cancel()
	}()

	if grp.Wait() != nil {
		if failure := env.outcomes.firstFailure(); failure != nil {
			c.err = failure
		}
	}
	if c.err == nil {
		if cause := env.outcomes.firstInterruption(); cause != nil {
			c.err = errors.Wrap(cause, "pipeline interrupted")
		}
	}
	for _, opt := range env.hooks {
		err := opt.Finish()
		if err != nil && c.err == nil {
			c.err = errors.Wrap(err, "unable to finish pipeline option")
		}
	}

	if c.err != nil {
		span.RecordError(c.err)
		span.SetStatus(codes.Error, c.err.Error())
		env.logger.Error().Err(c.err).Msg("pipeline ended")

		return
	}
	env.logger.Debug().Msg("pipeline ended")
}
