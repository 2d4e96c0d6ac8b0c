package measure

import (
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/askiada/go-stages/pkg/pipeline/model"
)

// PrometheusHook exports the activity of every stage as Prometheus metrics.
type PrometheusHook struct {
	Items         *prometheus.CounterVec
	Computation   *prometheus.HistogramVec
	Iteration     *prometheus.HistogramVec
	StageDuration *prometheus.GaugeVec
	Concurrency   *prometheus.GaugeVec
	Runs          prometheus.Counter
}

// NewPrometheusHook creates the collectors and registers them on reg.
func NewPrometheusHook(reg prometheus.Registerer, namespace string) (*PrometheusHook, error) {
	hook := &PrometheusHook{
		Items: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "stage_items_total",
				Help:      "Total number of items emitted by a stage",
			},
			[]string{"stage"},
		),
		Computation: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "stage_computation_seconds",
				Help:      "Time spent in the worker function of a stage",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		Iteration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "stage_iteration_seconds",
				Help:      "Time between the admission of an item and the emission of its result",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage", "input"},
		),
		StageDuration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "stage_duration_seconds",
				Help:      "Time between the start of the pipeline and the end of a stage",
			},
			[]string{"stage"},
		),
		Concurrency: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "stage_concurrency",
				Help:      "Maximum number of items a stage works on at once",
			},
			[]string{"stage", "ordered"},
		),
		Runs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "runs_total",
				Help:      "Total number of finished pipeline runs",
			},
		),
	}

	for _, c := range []prometheus.Collector{hook.Items, hook.Computation, hook.Iteration, hook.StageDuration, hook.Concurrency, hook.Runs} {
		err := reg.Register(c)
		if err != nil {
			return nil, errors.Wrap(err, "unable to register collector")
		}
	}

	return hook, nil
}

func (h *PrometheusHook) New() error {
	return nil
}

func (h *PrometheusHook) PrepareStage(_, stage *model.StageInfo) error {
	if stage.Type != model.NormalStageType {
		return nil
	}
	h.Concurrency.WithLabelValues(stage.Name, strconv.FormatBool(stage.Ordered)).Set(float64(stage.Concurrent))

	return nil
}

func (h *PrometheusHook) OnStageOutput(parentStage, stage *model.StageInfo, iterationDuration, computationDuration time.Duration) error {
	h.Items.WithLabelValues(stage.Name).Inc()
	h.Computation.WithLabelValues(stage.Name).Observe(computationDuration.Seconds())
	h.Iteration.WithLabelValues(stage.Name, parentStage.Name).Observe(iterationDuration.Seconds())

	return nil
}

func (h *PrometheusHook) AfterStage(stage *model.StageInfo, totalDuration time.Duration) error {
	h.StageDuration.WithLabelValues(stage.Name).Set(totalDuration.Seconds())

	return nil
}

func (h *PrometheusHook) Finish() error {
	h.Runs.Inc()

	return nil
}

var _ model.PipelineOption = (*PrometheusHook)(nil)
