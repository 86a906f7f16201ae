// Package metrics exports pipeline progress as Prometheus instruments.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hibiki-ai/hibiki-go/pkg/core"
)

// Metrics groups all Prometheus instruments used by the pipeline.
//
// It implements core.Observer, so it can be passed to core.WithObserver.
type Metrics struct {
	StageDuration *prometheus.HistogramVec
	StageFailures *prometheus.CounterVec
	MemoryWrites  *prometheus.CounterVec
	PipelineRuns  *prometheus.CounterVec
}

// New registers the pipeline instruments on reg under namespace.
//
// A nil reg registers on prometheus.DefaultRegisterer.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of the store or model call of each pipeline stage.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"stage"}),
		StageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Pipeline stage failures by stage and kind.",
		}, []string{"stage", "kind"}),
		MemoryWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_writes_total",
			Help:      "Post-reply memory writes by result.",
		}, []string{"result"}),
		PipelineRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Finished pipeline runs by outcome.",
		}, []string{"outcome"}),
	}
}

// StateChanged counts runs reaching a terminal state.
func (m *Metrics) StateChanged(_ context.Context, t core.Transition) {
	if !t.To.Terminal() {
		return
	}

	outcome := string(t.To)
	if t.To == core.StateDone && t.Err != nil {
		outcome = "done_unremembered"
	}
	m.PipelineRuns.WithLabelValues(outcome).Inc()
}

// StageCompleted records the stage duration and failures.
func (m *Metrics) StageCompleted(_ context.Context, stage core.Stage, elapsed time.Duration, err error) {
	m.StageDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
	if err != nil {
		m.StageFailures.WithLabelValues(string(stage), core.KindName(err)).Inc()
	}
}

// MemoryWritten counts memory writes by result.
func (m *Metrics) MemoryWritten(_ context.Context, _ time.Duration, err error) {
	if err != nil {
		m.MemoryWrites.WithLabelValues("failed").Inc()
		m.StageFailures.WithLabelValues(string(core.StageResponse), core.KindName(err)).Inc()
		return
	}
	m.MemoryWrites.WithLabelValues("ok").Inc()
}

// Handler serves the metrics registered on gatherer.
//
// A nil gatherer serves prometheus.DefaultGatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var _ core.Observer = (*Metrics)(nil)
