// Package metrics exposes Prometheus counters for the case progression
// pipeline. A nil *Recorder is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Recorder struct {
	registry      *prometheus.Registry
	gate          *prometheus.CounterVec
	documents     *prometheus.CounterVec
	notifications *prometheus.CounterVec
	violations    *prometheus.CounterVec
	turns         *prometheus.CounterVec
	generation    *prometheus.HistogramVec
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		gate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "disputehub",
			Name:      "gate_executions_total",
			Help:      "Decision gate invocations by outcome.",
		}, []string{"outcome"}),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "disputehub",
			Name:      "documents_total",
			Help:      "Document generation attempts by document type and status.",
		}, []string{"type", "status"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "disputehub",
			Name:      "notifications_total",
			Help:      "Notification deliveries by channel and outcome.",
		}, []string{"channel", "outcome"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "disputehub",
			Name:      "response_violations_total",
			Help:      "Agent responses blocked by rule kind.",
		}, []string{"kind"}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "disputehub",
			Name:      "turns_total",
			Help:      "Conversation turns by classified chat state.",
		}, []string{"state"}),
		generation: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "disputehub",
			Name:      "document_generation_seconds",
			Help:      "Time spent generating one document.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"provider"}),
	}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.gate, r.documents, r.notifications, r.violations, r.turns, r.generation,
	)
	return r
}

func (r *Recorder) Gate(outcome string) {
	if r == nil {
		return
	}
	r.gate.WithLabelValues(outcome).Inc()
}

func (r *Recorder) Document(docType, status string) {
	if r == nil {
		return
	}
	r.documents.WithLabelValues(docType, status).Inc()
}

func (r *Recorder) Notification(channel, outcome string) {
	if r == nil {
		return
	}
	r.notifications.WithLabelValues(channel, outcome).Inc()
}

func (r *Recorder) Violation(kind string) {
	if r == nil {
		return
	}
	r.violations.WithLabelValues(kind).Inc()
}

func (r *Recorder) Turn(state string) {
	if r == nil {
		return
	}
	r.turns.WithLabelValues(state).Inc()
}

func (r *Recorder) GenerationSeconds(provider string, seconds float64) {
	if r == nil {
		return
	}
	r.generation.WithLabelValues(provider).Observe(seconds)
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

