// Package metrics exposes Prometheus counters and a latency histogram for
// every dispatch-surface operation, adapted from the teacher's
// observability.ModuleMetrics lazy sync.Once registry pattern.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type registry struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	once sync.Once
	reg  *registry
)

// Operations returns the lazily-initialized operation metrics registry.
func Operations() *registry {
	once.Do(func() {
		reg = &registry{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "guildcore",
				Subsystem: "engine",
				Name:      "requests_total",
				Help:      "Total engine operation invocations segmented by component, operation, and outcome.",
			}, []string{"component", "operation", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "guildcore",
				Subsystem: "engine",
				Name:      "errors_total",
				Help:      "Total engine operation errors segmented by component, operation, and error class.",
			}, []string{"component", "operation", "error_class"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "guildcore",
				Subsystem: "engine",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for engine operation invocations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"component", "operation"}),
		}
		prometheus.MustRegister(reg.requests, reg.errors, reg.latency)
	})
	return reg
}

// Observe records the outcome of a single operation invocation.
func (r *registry) Observe(component, operation string, err error, duration time.Duration) {
	if r == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		r.errors.WithLabelValues(component, operation, errorClass(err)).Inc()
	}
	r.requests.WithLabelValues(component, operation, outcome).Inc()
	r.latency.WithLabelValues(component, operation).Observe(duration.Seconds())
}

func errorClass(err error) string {
	if err == nil {
		return ""
	}
	return "engine_error"
}
