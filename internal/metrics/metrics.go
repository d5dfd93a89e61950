// Package metrics holds the Prometheus collectors shared by the API and the
// worker.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "swiftletter"

type Metrics struct {
	registry *prometheus.Registry

	Requests      *prometheus.CounterVec
	Duration      *prometheus.HistogramVec
	RateLimited   *prometheus.CounterVec
	FunctionCalls *prometheus.CounterVec
	Events        *prometheus.CounterVec
	StatsRefresh  *prometheus.CounterVec
}

// New registers every collector on a private registry so tests can build as
// many instances as they like.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by a per-IP limiter.",
		}, []string{"limiter"}),
		FunctionCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "function_calls_total",
			Help:      "Edge function invocations by outcome.",
		}, []string{"function", "outcome"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_events_total",
			Help:      "Usage events consumed by the worker.",
		}, []string{"type"}),
		StatsRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stats_refresh_total",
			Help:      "app_stats refresh attempts by outcome.",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Requests, m.Duration, m.RateLimited, m.FunctionCalls, m.Events, m.StatsRefresh,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records every request under its route pattern, not the raw
// path, to keep label cardinality bounded.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else if s, ok := err.(interface{ Status() int }); ok {
				status = s.Status()
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		route := c.Route().Path
		m.Requests.WithLabelValues(route, c.Method(), strconv.Itoa(status)).Inc()
		m.Duration.WithLabelValues(route, c.Method()).Observe(time.Since(start).Seconds())
		return err
	}
}

// FunctionOutcome labels a function call for FunctionCalls.
func FunctionOutcome(status int, err error) string {
	switch {
	case err != nil:
		return "error"
	case status >= 200 && status < 300:
		return "ok"
	default:
		return "upstream_" + strconv.Itoa(status)
	}
}
