package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/askiada/go-stages/pkg/pipeline/model"
)

// pipe is the untyped view of a Channel used to wire stages.
type pipe interface {
	Close()
	release()
	Len() int
	Cap() int
}

type stageDef struct {
	info            model.StageInfo
	policy          Policy
	hasWorker       bool
	backpressure    int
	backpressureSet bool
	newOutput       func(capacity int) (pipe, error)
	bind            func(env *stageEnv, parent, info *model.StageInfo, in, out pipe, stopUpstream context.CancelFunc) runner
}

type sourceDef struct {
	newOutput func(capacity int) (pipe, error)
	bind      func(env *stageEnv, info *model.StageInfo, out pipe) runner
}

// Builder accumulates the stages of a pipeline whose output items are of type T.
// Builders are values: adding a stage never changes the builder it was added to.
type Builder[T any] struct {
	cfg    *config
	source *sourceDef
	stages []*stageDef
	err    error
}

func newBuilder[T any](produce produceFunc[T], opts ...Option) *Builder[T] {
	b := &Builder[T]{cfg: newConfig(opts...)}
	if produce == nil {
		b.err = ErrSourceMustBeSet

		return b
	}
	b.source = &sourceDef{
		newOutput: func(capacity int) (pipe, error) {
			c, err := NewChannel[T](capacity)
			if err != nil {
				return nil, err
			}

			return c, nil
		},
		bind: func(env *stageEnv, info *model.StageInfo, out pipe) runner {
			return &sourceRunner[T]{env: env, info: info, produce: produce, out: out.(*Channel[T])}
		},
	}

	return b
}

// AddStage appends a stage running fn on every item under policy.
func AddStage[I, O any](b *Builder[I], name string, fn WorkerFunc[I, O], policy Policy, opts ...StageOption) *Builder[O] {
	var transform transformFunc[I, O]
	if fn != nil {
		transform = func(ctx context.Context, item I) (O, bool, error) {
			out, err := fn(ctx, item)

			return out, true, err
		}
	}

	return addStage(b, name, transform, policy, opts...)
}

// AddFilterStage appends a stage running fn on every item under policy, and forwarding only the
// results fn keeps.
func AddFilterStage[I, O any](b *Builder[I], name string, fn FilterFunc[I, O], policy Policy, opts ...StageOption) *Builder[O] {
	var transform transformFunc[I, O]
	if fn != nil {
		transform = transformFunc[I, O](fn)
	}

	return addStage(b, name, transform, policy, opts...)
}

func addStage[I, O any](b *Builder[I], name string, fn transformFunc[I, O], policy Policy, opts ...StageOption) *Builder[O] {
	if b == nil {
		return &Builder[O]{cfg: newConfig(), err: ErrBuilderMustBeSet}
	}
	index := len(b.stages)
	if name == "" {
		name = fmt.Sprintf("stage-%d", index)
	}
	def := &stageDef{
		info: model.StageInfo{
			Type:       model.NormalStageType,
			Name:       name,
			Index:      index,
			Ordered:    policy.Ordered(),
			Concurrent: policy.Concurrency(),
		},
		policy:    policy,
		hasWorker: fn != nil,
		newOutput: func(capacity int) (pipe, error) {
			c, err := NewChannel[O](capacity)
			if err != nil {
				return nil, err
			}

			return c, nil
		},
		bind: func(env *stageEnv, parent, info *model.StageInfo, in, out pipe, stopUpstream context.CancelFunc) runner {
			return &stage[I, O]{
				env:          env,
				parent:       parent,
				info:         info,
				policy:       policy,
				fn:           fn,
				in:           in.(*Channel[I]),
				out:          out.(*Channel[O]),
				stopUpstream: stopUpstream,
			}
		},
	}
	for _, opt := range opts {
		opt(def)
	}

	stages := make([]*stageDef, len(b.stages), len(b.stages)+1)
	copy(stages, b.stages)

	return &Builder[O]{
		cfg:    b.cfg,
		source: b.source,
		stages: append(stages, def),
		err:    b.err,
	}
}

// plan validates every stage and returns the info of each node, the source first.
func (b *Builder[T]) plan() ([]*model.StageInfo, error) {
	infos := make([]*model.StageInfo, 0, len(b.stages)+2)

	sourceBuffer := 1
	if len(b.stages) > 0 {
		sourceBuffer = max(b.stages[0].policy.Concurrency(), 1)
	}
	if b.cfg.sourceBufferSet {
		sourceBuffer = b.cfg.sourceBuffer
		if sourceBuffer < 1 && sourceBuffer != Unbounded {
			return nil, &MisconfiguredStage{
				StageIndex: model.SourceIndex,
				StageName:  string(model.SourceStageType),
				Cause:      errors.Wrapf(ErrInvalidBackpressure, "got %d", sourceBuffer),
			}
		}
	}
	infos = append(infos, &model.StageInfo{
		Type:       model.SourceStageType,
		Name:       string(model.SourceStageType),
		Index:      model.SourceIndex,
		Concurrent: 1,
		BufferSize: sourceBuffer,
	})

	for i, def := range b.stages {
		info := def.info
		misconfigured := func(cause error) error {
			return &MisconfiguredStage{StageIndex: i, StageName: info.Name, Cause: cause}
		}
		if !def.hasWorker {
			return nil, misconfigured(ErrWorkerMustBeSet)
		}
		err := def.policy.validate()
		if err != nil {
			return nil, misconfigured(err)
		}
		info.BufferSize = def.policy.Concurrency()
		if def.backpressureSet {
			if def.backpressure < 1 && def.backpressure != Unbounded {
				return nil, misconfigured(errors.Wrapf(ErrInvalidBackpressure, "got %d", def.backpressure))
			}
			info.BufferSize = def.backpressure
		}
		infos = append(infos, &info)
	}

	infos = append(infos, &model.StageInfo{
		Type:  model.SinkStageType,
		Name:  string(model.SinkStageType),
		Index: len(b.stages),
	})

	return infos, nil
}

func (b *Builder[T]) prepare(infos []*model.StageInfo) error {
	for _, opt := range b.cfg.hooks {
		err := opt.New()
		if err != nil {
			return errors.Wrap(err, "unable to apply pipeline option")
		}
	}
	parent := model.StartStage
	for _, info := range infos {
		for _, opt := range b.cfg.hooks {
			err := opt.PrepareStage(parent, info)
			if err != nil {
				return errors.Wrapf(err, "unable to prepare stage %s", info.Name)
			}
		}
		parent = info
	}

	return nil
}

// Build validates the pipeline, starts the source and every stage, and returns the output of the
// last stage with the handle reporting how the run ended. Nothing is started when Build fails.
//
// Cancelling ctx stops the whole pipeline.
func (b *Builder[T]) Build(ctx context.Context) (*Output[T], *Completion, error) {
	if b == nil {
		return nil, nil, ErrBuilderMustBeSet
	}
	if b.err != nil {
		return nil, nil, b.err
	}

	infos, err := b.plan()
	if err != nil {
		return nil, nil, err
	}
	err = b.prepare(infos)
	if err != nil {
		return nil, nil, err
	}

	pipes := make([]pipe, len(b.stages)+1)
	pipes[0], err = b.source.newOutput(infos[0].BufferSize)
	if err != nil {
		return nil, nil, errors.Wrap(err, "unable to create source channel")
	}
	for i, def := range b.stages {
		pipes[i+1], err = def.newOutput(infos[i+1].BufferSize)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "unable to create channel of stage %s", infos[i+1].Name)
		}
	}

	runID := uuid.NewString()
	tracer := b.cfg.tracerProvider.Tracer(tracerName)
	runCtx, span := tracer.Start(ctx, b.cfg.name+" run", trace.WithAttributes(
		attribute.String("pipeline.run_id", runID),
		attribute.Int("pipeline.stages", len(b.stages)),
	))
	runCtx, cancel := context.WithCancel(runCtx)

	env := &stageEnv{
		runID:    runID,
		logger:   b.cfg.logger.With().Str("pipeline", b.cfg.name).Str("run_id", runID).Logger(),
		tracer:   tracer,
		hooks:    b.cfg.hooks,
		outcomes: newOutcomes(len(b.stages)),
		start:    time.Now(),
	}

	// Each stage context is the parent of the one before it: a stage stopping its upstream
	// never cancels the stages after it.
	stageCtxs := make([]context.Context, len(b.stages))
	stageCancels := make([]context.CancelFunc, len(b.stages))
	parent := runCtx
	for i := len(b.stages) - 1; i >= 0; i-- {
		stageCtxs[i], stageCancels[i] = context.WithCancel(parent)
		parent = stageCtxs[i]
	}
	sourceCtx, cancelSource := context.WithCancel(parent)

	var grp errgroup.Group
	src := b.source.bind(env, infos[0], pipes[0])
	grp.Go(func() error {
		return src.start(sourceCtx)
	})
	for i, def := range b.stages {
		stopUpstream := cancelSource
		if i > 0 {
			stopUpstream = stageCancels[i-1]
		}
		r := def.bind(env, infos[i], infos[i+1], pipes[i], pipes[i+1], stopUpstream)
		stageCtx := stageCtxs[i]
		grp.Go(func() error {
			return r.start(stageCtx)
		})
	}

	env.logger.Debug().Int("stages", len(b.stages)).Msg("pipeline started")

	completion := newCompletion(runID, cancel)
	completion.stops = append(stageCancels, cancelSource)
	go completion.resolve(&grp, env, span)

	output := &Output[T]{
		ch:     pipes[len(pipes)-1].(*Channel[T]),
		cancel: cancel,
	}

	return output, completion, nil
}

// Drain builds the pipeline, hands every output item to sinkFn and waits for the pipeline to end.
// A sinkFn error stops the pipeline.
func Drain[T any](ctx context.Context, b *Builder[T], sinkFn func(ctx context.Context, item T) error) error {
	output, completion, err := b.Build(ctx)
	if err != nil {
		return err
	}
	defer output.Close()

	for item := range output.All() {
		err := sinkFn(ctx, item)
		if err != nil {
			output.Close()
			_ = completion.Wait()

			return errors.Wrap(err, "unable to run sink function")
		}
	}

	return completion.Wait()
}
