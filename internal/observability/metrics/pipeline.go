package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stage labels for per-stage latency.
const (
	StageThemes   = "themes"
	StageRetrieve = "retrieve"
	StageVerify   = "verify"
	StageRewrite  = "rewrite"
	StagePass     = "pass"
)

// PipelineMetrics is the metrics sink for the evidence pipeline. All methods
// are safe on a nil receiver so tests can omit it.
type PipelineMetrics struct {
	registry *prometheus.Registry

	stageDuration  *prometheus.HistogramVec
	evidenceChunks *prometheus.CounterVec
	graphEvidence  *prometheus.CounterVec
	sourceFailures *prometheus.CounterVec
	verdicts       *prometheus.CounterVec
	judgeFallbacks prometheus.Counter
	rethinks       prometheus.Counter
	rewrites       prometheus.Counter
}

func NewPipelineMetrics(service string) *PipelineMetrics {
	registry := prometheus.NewRegistry()

	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "evidence",
			Subsystem:   "pipeline",
			Name:        "stage_duration_seconds",
			Help:        "Stage latency in seconds.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: prometheus.Labels{"service": service},
		},
		[]string{"stage"},
	)
	evidenceChunks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "evidence",
			Subsystem:   "pipeline",
			Name:        "chunks_retrieved_total",
			Help:        "Evidence chunks retained after dedup, by source.",
			ConstLabels: prometheus.Labels{"service": service},
		},
		[]string{"source"},
	)
	graphEvidence := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "evidence",
			Subsystem:   "pipeline",
			Name:        "graph_evidence_total",
			Help:        "Graph paths and triples retained after dedup.",
			ConstLabels: prometheus.Labels{"service": service},
		},
		[]string{"kind"},
	)
	sourceFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "evidence",
			Subsystem:   "pipeline",
			Name:        "source_failures_total",
			Help:        "Retrieval source failures degraded to empty results.",
			ConstLabels: prometheus.Labels{"service": service},
		},
		[]string{"source"},
	)
	verdicts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "evidence",
			Subsystem:   "pipeline",
			Name:        "verification_verdicts_total",
			Help:        "Per-answer verification verdicts by result and decider.",
			ConstLabels: prometheus.Labels{"service": service},
		},
		[]string{"result", "decided_by"},
	)
	judgeFallbacks := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "evidence",
			Subsystem:   "pipeline",
			Name:        "judge_fallbacks_total",
			Help:        "Judge calls that fell back to the keyword heuristic or gate-only result.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	rethinks := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "evidence",
			Subsystem:   "pipeline",
			Name:        "rethink_total",
			Help:        "Rewrite/re-retrieve cycles triggered by rejected passes.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	rewrites := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "evidence",
			Subsystem:   "pipeline",
			Name:        "subquestions_rewritten_total",
			Help:        "Sub-questions augmented by the query rewriter.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)

	registry.MustRegister(stageDuration, evidenceChunks, graphEvidence, sourceFailures, verdicts, judgeFallbacks, rethinks, rewrites)

	return &PipelineMetrics{
		registry:       registry,
		stageDuration:  stageDuration,
		evidenceChunks: evidenceChunks,
		graphEvidence:  graphEvidence,
		sourceFailures: sourceFailures,
		verdicts:       verdicts,
		judgeFallbacks: judgeFallbacks,
		rethinks:       rethinks,
		rewrites:       rewrites,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) ObserveStage(stage string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

func (m *PipelineMetrics) AddChunks(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evidenceChunks.WithLabelValues(source).Add(float64(n))
}

func (m *PipelineMetrics) AddGraphEvidence(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.graphEvidence.WithLabelValues(kind).Add(float64(n))
}

func (m *PipelineMetrics) SourceFailure(source string) {
	if m == nil {
		return
	}
	m.sourceFailures.WithLabelValues(source).Inc()
}

func (m *PipelineMetrics) ObserveVerdict(consistent bool, decidedBy string) {
	if m == nil {
		return
	}
	result := "consistent"
	if !consistent {
		result = "inconsistent"
	}
	m.verdicts.WithLabelValues(result, decidedBy).Inc()
}

func (m *PipelineMetrics) JudgeFallback() {
	if m == nil {
		return
	}
	m.judgeFallbacks.Inc()
}

func (m *PipelineMetrics) Rethink() {
	if m == nil {
		return
	}
	m.rethinks.Inc()
}

func (m *PipelineMetrics) AddRewritten(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.rewrites.Add(float64(n))
}
