package pipeline

import (
	"context"
	"iter"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/go-stages/pkg/pipeline/model"
)

// Source produces the items of a pipeline. Next returns ok == false once the source is exhausted.
// If the source also has a Close() error method, it is called when the source stops.
type Source[T any] interface {
	Next(ctx context.Context) (item T, ok bool, err error)
}

// SourceFunc is a function implementing Source.
type SourceFunc[T any] func(ctx context.Context) (T, bool, error)

func (fn SourceFunc[T]) Next(ctx context.Context) (T, bool, error) {
	return fn(ctx)
}

// Emitter pushes one item into the pipeline. It fails once the pipeline no longer accepts items,
// and the producer is expected to return that error.
type Emitter[T any] func(item T) error

type produceFunc[T any] func(ctx context.Context, emit Emitter[T]) error

// From creates a pipeline fed by src.
func From[T any](src Source[T], opts ...Option) *Builder[T] {
	if src == nil {
		return newBuilder[T](nil, opts...)
	}

	return newBuilder(pull(src), opts...)
}

// FromSlice creates a pipeline fed by the items of a slice.
func FromSlice[T any](items []T, opts ...Option) *Builder[T] {
	return newBuilder(func(_ context.Context, emit Emitter[T]) error {
		for _, item := range items {
			err := emit(item)
			if err != nil {
				return err
			}
		}

		return nil
	}, opts...)
}

// FromSeq creates a pipeline fed by a sequence, finite or not.
func FromSeq[T any](seq iter.Seq[T], opts ...Option) *Builder[T] {
	if seq == nil {
		return newBuilder[T](nil, opts...)
	}

	return newBuilder(func(_ context.Context, emit Emitter[T]) error {
		for item := range seq {
			err := emit(item)
			if err != nil {
				return err
			}
		}

		return nil
	}, opts...)
}

// FromChan creates a pipeline fed by a channel. The source ends when ch is closed.
func FromChan[T any](ch <-chan T, opts ...Option) *Builder[T] {
	if ch == nil {
		return newBuilder[T](nil, opts...)
	}

	return newBuilder(func(ctx context.Context, emit Emitter[T]) error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case item, ok := <-ch:
				if !ok {
					return nil
				}
				err := emit(item)
				if err != nil {
					return err
				}
			}
		}
	}, opts...)
}

// FromGenerator creates a pipeline fed by a producer pushing items through emit.
// The source ends when the producer returns.
func FromGenerator[T any](producer func(ctx context.Context, emit Emitter[T]) error, opts ...Option) *Builder[T] {
	if producer == nil {
		return newBuilder[T](nil, opts...)
	}

	return newBuilder(produceFunc[T](producer), opts...)
}

func pull[T any](src Source[T]) produceFunc[T] {
	return func(ctx context.Context, emit Emitter[T]) (err error) {
		if closer, ok := src.(interface{ Close() error }); ok {
			defer func() {
				closeErr := closer.Close()
				if closeErr != nil && err == nil {
					err = errors.Wrap(closeErr, "unable to close source")
				}
			}()
		}
		for {
			item, ok, err := src.Next(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			err = emit(item)
			if err != nil {
				return err
			}
		}
	}
}

type sourceRunner[T any] struct {
	env     *stageEnv
	info    *model.StageInfo
	produce produceFunc[T]
	out     *Channel[T]
}

func (s *sourceRunner[T]) start(ctx context.Context) error {
	ctx, span, logger := s.env.startSpan(ctx, s.info)
	logger.Debug().Int("backpressure", s.out.Cap()).Msg("source started")

	return s.env.finish(s.info, span, logger, s.run(ctx))
}

func (s *sourceRunner[T]) run(ctx context.Context) (rep report) {
	var emitErr error

	defer s.out.Close()
	defer func() {
		if r := recover(); r != nil {
			rep.failure = errors.Wrapf(ErrWorkerPanic, "%v", r)
		}
	}()

	last := time.Now()
	emit := func(item T) error {
		if emitErr != nil {
			return emitErr
		}
		computation := time.Since(last)
		start := time.Now()
		emitErr = s.out.Send(ctx, item)
		if emitErr != nil {
			return emitErr
		}
		rep.emitted++
		for _, opt := range s.env.hooks {
			err := opt.OnStageOutput(model.StartStage, s.info, time.Since(start), computation)
			if err != nil {
				emitErr = errors.Wrap(err, "unable to run on stage output function")

				return emitErr
			}
		}
		last = time.Now()

		return nil
	}

	err := s.produce(ctx, emit)
	if err == nil {
		err = emitErr
	}
	switch {
	case err == nil:
	case errors.Is(err, ErrChannelClosed) || cancelled(ctx, err):
		rep.interrupted = cause(ctx, err)
	default:
		rep.failure = err
	}

	return rep
}
