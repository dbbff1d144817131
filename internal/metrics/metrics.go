// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package metrics exposes Prometheus collectors for the account service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "accounts"

// Metrics owns a private registry so tests can create as many as they like.
type Metrics struct {
	registry          *prometheus.Registry
	events            *prometheus.CounterVec
	requests          *prometheus.CounterVec
	duration          *prometheus.HistogramVec
	challengesCleared prometheus.Counter
}

// New registers every collector. withRuntime adds the Go and process collectors.
func New(withRuntime bool) (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_events_total",
			Help:      "Account lifecycle operations by result.",
		}, []string{"operation", "result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		challengesCleared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expired_challenges_cleared_total",
			Help:      "Expired challenges removed by the maintenance sweeper.",
		}),
	}

	cs := []prometheus.Collector{m.events, m.requests, m.duration, m.challengesCleared}
	if withRuntime {
		cs = append(cs,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	for _, c := range cs {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Record counts one lifecycle event.
func (m *Metrics) Record(operation, result string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(operation, result).Inc()
}

// ObserveRequest records a finished HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ChallengesCleared adds n to the sweeper counter.
func (m *Metrics) ChallengesCleared(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.challengesCleared.Add(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
