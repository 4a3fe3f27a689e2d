package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pricing_worker"

// Pipeline holds the worker's collectors on a private registry.
type Pipeline struct {
	registry       *prometheus.Registry
	messages       *prometheus.CounterVec
	stageFailures  *prometheus.CounterVec
	oracleAttempts *prometheus.CounterVec
	sinkAttempts   *prometheus.CounterVec
	commits        *prometheus.CounterVec
	processing     prometheus.Histogram
}

// NewPipeline registers the pipeline collectors plus Go and process collectors.
func NewPipeline() *Pipeline {
	p := &Pipeline{
		registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Stream messages by final outcome.",
		}, []string{"outcome"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Per-message failures by pipeline stage and error kind.",
		}, []string{"stage", "kind"}),
		oracleAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_attempts_total",
			Help:      "Requests sent to the pricing endpoint.",
		}, []string{"result"}),
		sinkAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_attempts_total",
			Help:      "Insert attempts against charging_sessions.",
		}, []string{"result"}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offset_commits_total",
			Help:      "Offset commit calls by result.",
		}, []string{"result"}),
		processing: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "processing_seconds",
			Help:      "Time from receipt to final outcome of one message.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}

	p.registry.MustRegister(
		p.messages,
		p.stageFailures,
		p.oracleAttempts,
		p.sinkAttempts,
		p.commits,
		p.processing,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

// Handler serves the registry in Prometheus text format.
func (p *Pipeline) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// ObserveOutcome counts a finished message and its processing time.
func (p *Pipeline) ObserveOutcome(outcome string, elapsed time.Duration) {
	p.messages.WithLabelValues(outcome).Inc()
	p.processing.Observe(elapsed.Seconds())
}

// ObserveStageFailure counts a failure at stage classified as kind.
func (p *Pipeline) ObserveStageFailure(stage, kind string) {
	p.stageFailures.WithLabelValues(stage, kind).Inc()
}

// ObserveOracleAttempt implements clients.AttemptObserver.
func (p *Pipeline) ObserveOracleAttempt(err error) {
	p.oracleAttempts.WithLabelValues(result(err)).Inc()
}

// ObserveSinkAttempt counts one insert attempt.
func (p *Pipeline) ObserveSinkAttempt(err error) {
	p.sinkAttempts.WithLabelValues(result(err)).Inc()
}

// ObserveCommit counts one offset commit call.
func (p *Pipeline) ObserveCommit(err error) {
	p.commits.WithLabelValues(result(err)).Inc()
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
