// Package metrics records agent invocation and routing outcomes in Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the metrics surface used by the agent client, invoker and router.
type Recorder interface {
	ObservePoll(role, status string)
	ObserveCall(role, stage, errorCode string, duration time.Duration)
	ObserveRoute(category, outcome string, fallback bool)
}

// Nop discards every observation.
type Nop struct{}

func (Nop) ObservePoll(string, string)                        {}
func (Nop) ObserveCall(string, string, string, time.Duration) {}
func (Nop) ObserveRoute(string, string, bool)                 {}

// OrNop returns r, or Nop when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop{}
	}
	return r
}

// PrometheusRecorder implements Recorder on a private registry.
type PrometheusRecorder struct {
	registry     *prometheus.Registry
	pollsTotal   *prometheus.CounterVec
	callsTotal   *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	routesTotal  *prometheus.CounterVec
}

// NewPrometheusRecorder creates a recorder with its own registry, including
// the Go runtime and process collectors.
func NewPrometheusRecorder() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	p := &PrometheusRecorder{
		registry: reg,
		pollsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_polls_total",
				Help: "Total get_answer polls by agent role and reported status",
			},
			[]string{"role", "status"},
		),
		callsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_calls_total",
				Help: "Total agent invocations by role, failing stage and error code",
			},
			[]string{"role", "stage", "error_code"},
		),
		callDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_call_duration_seconds",
				Help:    "Duration of full create+poll agent invocations",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"role"},
		),
		routesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "router_queries_total",
				Help: "Total routed queries by category, outcome and fallback flag",
			},
			[]string{"category", "outcome", "fallback"},
		),
	}
	reg.MustRegister(
		p.pollsTotal, p.callsTotal, p.callDuration, p.routesTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

// ObservePoll counts one poll response.
func (p *PrometheusRecorder) ObservePoll(role, status string) {
	p.pollsTotal.WithLabelValues(role, status).Inc()
}

// ObserveCall records a finished invocation. stage is "done" on success,
// otherwise the stage that failed ("start" or "poll").
func (p *PrometheusRecorder) ObserveCall(role, stage, errorCode string, duration time.Duration) {
	if errorCode == "" {
		errorCode = "none"
	}
	p.callsTotal.WithLabelValues(role, stage, errorCode).Inc()
	p.callDuration.WithLabelValues(role).Observe(duration.Seconds())
}

// ObserveRoute records one routed query.
func (p *PrometheusRecorder) ObserveRoute(category, outcome string, fallback bool) {
	fb := "false"
	if fallback {
		fb = "true"
	}
	p.routesTotal.WithLabelValues(category, outcome, fb).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (p *PrometheusRecorder) Registry() *prometheus.Registry { return p.registry }

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
