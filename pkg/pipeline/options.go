package pipeline

import (
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/askiada/go-stages/pkg/pipeline/model"
)

const tracerName = "github.com/askiada/go-stages/pkg/pipeline"

type config struct {
	name            string
	logger          zerolog.Logger
	tracerProvider  trace.TracerProvider
	hooks           []model.PipelineOption
	sourceBuffer    int
	sourceBufferSet bool
}

func newConfig(opts ...Option) *config {
	cfg := &config{
		name:           "pipeline",
		logger:         zerolog.Nop(),
		tracerProvider: noop.NewTracerProvider(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return cfg
}

// Option configures a pipeline.
type Option func(cfg *config)

// WithName names the pipeline in logs and traces.
func WithName(name string) Option {
	return func(cfg *config) {
		cfg.name = name
	}
}

// WithLogger sets the logger. Nothing is logged by default.
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}

// WithTracerProvider records a span per run and per stage.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(cfg *config) {
		if provider != nil {
			cfg.tracerProvider = provider
		}
	}
}

// WithHooks plugs measures, drawers or any other model.PipelineOption into the pipeline.
func WithHooks(hooks ...model.PipelineOption) Option {
	return func(cfg *config) {
		cfg.hooks = append(cfg.hooks, hooks...)
	}
}

// WithSourceBuffer sets the capacity of the channel between the source and the first stage.
// It defaults to the concurrency of the first stage.
func WithSourceBuffer(capacity int) Option {
	return func(cfg *config) {
		cfg.sourceBuffer = capacity
		cfg.sourceBufferSet = true
	}
}

// StageOption configures a single stage.
type StageOption func(def *stageDef)

// Backpressure sets how many results a stage may buffer before it waits for the next stage.
// It defaults to the concurrency of the stage policy. Unbounded is accepted but has to be asked
// for explicitly.
func Backpressure(capacity int) StageOption {
	return func(def *stageDef) {
		def.backpressure = capacity
		def.backpressureSet = true
	}
}
