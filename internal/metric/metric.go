// Package metric holds the Prometheus collectors of the compiler pipeline and
// the SiLA server runtime.
package metric

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "silac"

// Metrics are the collectors recorded by silac components. A nil *Metrics
// records nothing.
type Metrics struct {
	Compilations    *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
	CacheLookups    *prometheus.CounterVec
	Calls           *prometheus.CounterVec
	CallDuration    *prometheus.HistogramVec
	ActiveExecution *prometheus.GaugeVec
}

// NewMetrics creates unregistered collectors
func NewMetrics() *Metrics {
	return &Metrics{
		Compilations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "compiler",
				Name:      "compilations_total",
				Help:      "Feature definitions compiled, by result.",
			},
			[]string{"result"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "compiler",
				Name:      "stage_duration_seconds",
				Help:      "Duration of compiler pipeline stages.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
			},
			[]string{"stage"},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "compiler",
				Name:      "binding_cache_lookups_total",
				Help:      "Binding cache lookups, by result.",
			},
			[]string{"result"},
		),
		Calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "server",
				Name:      "calls_total",
				Help:      "SiLA calls handled, by feature, method and outcome.",
			},
			[]string{"feature", "method", "outcome"},
		),
		CallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "server",
				Name:      "call_duration_seconds",
				Help:      "Duration of SiLA calls.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"feature", "method"},
		),
		ActiveExecution: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "server",
				Name:      "active_executions",
				Help:      "Observable command executions that have not finished.",
			},
			[]string{"feature", "command"},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.Compilations, m.StageDuration, m.CacheLookups, m.Calls, m.CallDuration, m.ActiveExecution}
}

// ObserveCompilation counts a finished compilation
func (m *Metrics) ObserveCompilation(result string) {
	if m == nil {
		return
	}
	m.Compilations.WithLabelValues(result).Inc()
}

// ObserveStage records the duration of a pipeline stage
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveCacheLookup counts a binding cache lookup
func (m *Metrics) ObserveCacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// ObserveCall counts a finished call and records its duration
func (m *Metrics) ObserveCall(feature, method, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Calls.WithLabelValues(feature, method, outcome).Inc()
	m.CallDuration.WithLabelValues(feature, method).Observe(d.Seconds())
}

// ExecutionStarted tracks a new observable command execution
func (m *Metrics) ExecutionStarted(feature, command string) {
	if m == nil {
		return
	}
	m.ActiveExecution.WithLabelValues(feature, command).Inc()
}

// ExecutionFinished untracks an observable command execution
func (m *Metrics) ExecutionFinished(feature, command string) {
	if m == nil {
		return
	}
	m.ActiveExecution.WithLabelValues(feature, command).Dec()
}

// Registry owns a Prometheus registry with the silac collectors and the Go
// runtime collectors registered
type Registry struct {
	registry *prometheus.Registry
	Metrics  *Metrics
}

// NewRegistry creates a registry with every collector registered
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		Metrics:  NewMetrics(),
	}
	r.registry.MustRegister(r.Metrics.collectors()...)
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Prometheus returns the underlying Prometheus registry
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
