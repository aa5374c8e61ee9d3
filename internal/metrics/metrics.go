// Package metrics exposes Prometheus collectors for HTTP traffic, realtime subscribers and
// scheduled jobs.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	promcollectors "github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "taskboard"

// Collectors groups the service's metrics on one registry.
type Collectors struct {
	registry *prometheus.Registry

	RequestDuration     *prometheus.HistogramVec
	BoardEvents         *prometheus.CounterVec
	RealtimeSubscribers prometheus.Gauge
	JobRuns             *prometheus.CounterVec
}

// New registers the collectors, together with the Go and process collectors, on a fresh registry.
func New() *Collectors {
	registry := prometheus.NewRegistry()
	collectors := &Collectors{
		registry: registry,
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by route and status",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		BoardEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "board_events_total",
				Help:      "Realtime board events published by type",
			},
			[]string{"event"},
		),
		RealtimeSubscribers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "realtime_subscribers",
				Help:      "Open realtime event streams",
			},
		),
		JobRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheduled_job_runs_total",
				Help:      "Scheduled job executions by job and result",
			},
			[]string{"job", "result"},
		),
	}
	registry.MustRegister(
		promcollectors.NewGoCollector(),
		promcollectors.NewProcessCollector(promcollectors.ProcessCollectorOpts{}),
		collectors.RequestDuration,
		collectors.BoardEvents,
		collectors.RealtimeSubscribers,
		collectors.JobRuns,
	)
	return collectors
}

// Registry exposes the underlying registry for tests and custom gatherers.
func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Middleware records request latency per matched route.
func (c *Collectors) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(ctx.Writer.Status())
		c.RequestDuration.WithLabelValues(ctx.Request.Method, route, status).Observe(time.Since(start).Seconds())
	}
}

// ObserveJob counts one scheduled job run.
func (c *Collectors) ObserveJob(job string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	c.JobRuns.WithLabelValues(job, result).Inc()
}

// ObserveBoardEvent counts one published board event.
func (c *Collectors) ObserveBoardEvent(eventType string) {
	c.BoardEvents.WithLabelValues(eventType).Inc()
}

// SubscriberOpened and SubscriberClosed track open realtime streams.
func (c *Collectors) SubscriberOpened() {
	c.RealtimeSubscribers.Inc()
}

func (c *Collectors) SubscriberClosed() {
	c.RealtimeSubscribers.Dec()
}
