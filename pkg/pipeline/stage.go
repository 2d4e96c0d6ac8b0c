package pipeline

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/askiada/go-stages/pkg/pipeline/model"
)

// WorkerFunc transforms one item. It only gets the item and what it captured when the stage was
// added; stages never share mutable state through the pipeline.
type WorkerFunc[I, O any] func(ctx context.Context, item I) (O, error)

// FilterFunc transforms one item, or drops it when keep is false.
type FilterFunc[I, O any] func(ctx context.Context, item I) (O, bool, error)

type transformFunc[I, O any] func(ctx context.Context, item I) (O, bool, error)

// stageEnv is shared by every node of a run.
type stageEnv struct {
	runID    string
	logger   zerolog.Logger
	tracer   trace.Tracer
	hooks    []model.PipelineOption
	outcomes *outcomes
	start    time.Time
}

type runner interface {
	start(ctx context.Context) error
}

// report is how a node ended.
type report struct {
	emitted     int
	failure     error
	interrupted error
}

func (e *stageEnv) startSpan(ctx context.Context, info *model.StageInfo, attrs ...attribute.KeyValue) (context.Context, trace.Span, zerolog.Logger) {
	attrs = append(attrs,
		attribute.String("pipeline.run_id", e.runID),
		attribute.String("pipeline.stage.name", info.Name),
		attribute.Int("pipeline.stage.index", info.Index),
	)
	ctx, span := e.tracer.Start(ctx, string(info.Type)+" "+info.Name, trace.WithAttributes(attrs...))
	logger := e.logger.With().Str("stage", info.Name).Int("index", info.Index).Logger()

	return ctx, span, logger
}

// finish records how a node ended. It returns the node failure, if any.
func (e *stageEnv) finish(info *model.StageInfo, span trace.Span, logger zerolog.Logger, rep report) error {
	defer span.End()
	span.SetAttributes(attribute.Int("pipeline.stage.emitted", rep.emitted))

	for _, opt := range e.hooks {
		err := opt.AfterStage(info, time.Since(e.start))
		if err != nil && rep.failure == nil {
			rep.failure = errors.Wrap(err, "unable to run after stage function")
		}
	}

	switch {
	case rep.failure != nil:
		failure := e.outcomes.fail(info, rep.failure)
		span.RecordError(rep.failure)
		span.SetStatus(codes.Error, rep.failure.Error())
		logger.Error().Err(rep.failure).Int("emitted", rep.emitted).Msg("stage failed")

		return failure
	case rep.interrupted != nil:
		e.outcomes.interrupt(info, rep.interrupted)
		logger.Debug().Err(rep.interrupted).Int("emitted", rep.emitted).Msg("stage interrupted")
	default:
		logger.Debug().Int("emitted", rep.emitted).Msg("stage finished")
	}

	return nil
}

type stage[I, O any] struct {
	env    *stageEnv
	parent *model.StageInfo
	info   *model.StageInfo
	policy Policy
	fn     transformFunc[I, O]
	in     *Channel[I]
	out    *Channel[O]
	// stopUpstream cancels every node before this one.
	stopUpstream context.CancelFunc
}

func (s *stage[I, O]) start(ctx context.Context) error {
	ctx, span, logger := s.env.startSpan(ctx, s.info, attribute.String("pipeline.stage.policy", s.policy.String()))
	logger.Debug().Stringer("policy", s.policy).Int("backpressure", s.out.Cap()).Msg("stage started")

	return s.env.finish(s.info, span, logger, s.run(ctx))
}

// run is the coordinator of the stage. It reacts to three events: an item is available upstream
// while a slot is free, a task completed, the stage is cancelled. Completed tasks are always
// handled before a new item is admitted.
//
// When a task fails the stage stops admitting, cancels upstream, waits for every running task and
// closes its output. An ordered stage still emits the results that precede the failed item.
func (s *stage[I, O]) run(ctx context.Context) (rep report) {
	var (
		done     = make(chan outcome[O], s.policy.concurrency)
		win      = newWindow[O](s.policy)
		input    = s.in.Out()
		stopping = ctx.Done()
		seq      uint64
		running  int
		drained  bool
		halted   bool
		hookErr  error
	)

	defer func() {
		s.out.Close()
		if !drained {
			s.in.release()
		}
	}()

	stop := func() {
		input = nil
		s.stopUpstream()
	}

	handle := func(res outcome[O]) {
		running--
		if res.err != nil && !cancelled(ctx, res.err) {
			win.fail(res)
			stop()
		}
		for _, r := range win.complete(res) {
			if halted {
				continue
			}
			err := s.out.Send(ctx, r.val)
			if err != nil {
				rep.interrupted = cause(ctx, err)
				halted = true
				stop()

				continue
			}
			rep.emitted++
			err = s.notify(r)
			if err != nil {
				hookErr = err
				halted = true
				stop()
			}
		}
	}

	for input != nil || running > 0 {
		select {
		case res := <-done:
			handle(res)

			continue
		default:
		}

		admit := input
		if win.size() >= s.policy.concurrency {
			admit = nil
		}

		select {
		case res := <-done:
			handle(res)
		case item, ok := <-admit:
			if !ok {
				input = nil
				drained = true

				continue
			}
			win.admit(seq)
			running++
			go s.runTask(ctx, seq, item, done)
			seq++
		case <-stopping:
			stopping = nil
			if rep.interrupted == nil {
				rep.interrupted = ctx.Err()
			}
			stop()
		}
	}

	rep.failure = win.failure()
	if rep.failure == nil {
		rep.failure = hookErr
	}

	return rep
}

func (s *stage[I, O]) runTask(ctx context.Context, seq uint64, item I, done chan<- outcome[O]) {
	res := outcome[O]{seq: seq, admitted: time.Now()}
	defer func() {
		if r := recover(); r != nil {
			res.err = errors.Wrapf(ErrWorkerPanic, "%v", r)
		}
		res.elapsed = time.Since(res.admitted)
		done <- res
	}()
	res.val, res.keep, res.err = s.fn(ctx, item)
}

func (s *stage[I, O]) notify(res outcome[O]) error {
	iteration := time.Since(res.admitted)
	for _, opt := range s.env.hooks {
		err := opt.OnStageOutput(s.parent, s.info, iteration, res.elapsed)
		if err != nil {
			return errors.Wrap(err, "unable to run on stage output function")
		}
	}

	return nil
}

// cause prefers the cancellation of ctx over the error it led to.
func cause(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	return err
}

// cancelled reports whether err is the cancellation of ctx reaching a worker. Any other error is a
// failure, even once the stage is stopping.
func cancelled(ctx context.Context, err error) bool {
	if ctx.Err() == nil {
		return false
	}

	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
