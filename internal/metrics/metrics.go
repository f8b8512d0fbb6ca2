// Package metrics exposes Prometheus collectors for mutations and HTTP
// traffic.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"madrasah/internal/optimistic"
)

// Metrics groups the collectors registered by New.
type Metrics struct {
	Mutations        *prometheus.CounterVec
	MutationDuration *prometheus.HistogramVec
	Requests         *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
}

var _ optimistic.Observer = (*Metrics)(nil)

// New creates the collectors and registers them on reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "madrasah",
			Name:      "mutations_total",
			Help:      "Mutations by entity, action and outcome.",
		}, []string{"entity", "action", "outcome"}),
		MutationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "madrasah",
			Name:      "mutation_duration_seconds",
			Help:      "Time from dispatch to settlement.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"entity", "action"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "madrasah",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "madrasah",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	if reg != nil {
		reg.MustRegister(m.Mutations, m.MutationDuration, m.Requests, m.RequestDuration)
	}
	return m
}

// ObserveMutation records one settled mutation.
func (m *Metrics) ObserveMutation(entity, action string, state optimistic.State, elapsed time.Duration) {
	m.Mutations.WithLabelValues(entity, action, state.String()).Inc()
	m.MutationDuration.WithLabelValues(entity, action).Observe(elapsed.Seconds())
}

// GinMiddleware records request counts and latency per matched route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.Requests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.RequestDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}
