package server

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "unionboard"

// Metrics holds the prometheus collectors of the server.
type Metrics struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	writes    *prometheus.CounterVec
	uploads   *prometheus.CounterVec
	listeners *prometheus.GaugeVec
}

// NewMetrics returns the metrics of a server registered on their own registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Number of HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_writes_total",
			Help:      "Number of committed record writes by collection and type.",
		}, []string{"collection", "type"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "object_uploads_total",
			Help:      "Number of stored objects by bucket.",
		}, []string{"bucket"}),
		listeners: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_listeners",
			Help:      "Number of open realtime connections by collection.",
		}, []string{"collection"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.latency,
		m.writes,
		m.uploads,
		m.listeners,
	)
	return m
}

// Middleware returns a middleware measuring the requests.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			start := time.Now()
			if err = next(c); err != nil {
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unknown"
			}
			method := c.Request().Method

			m.requests.WithLabelValues(method, route, strconv.Itoa(c.Response().Status)).Inc()
			m.latency.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

// Handler renders the metrics.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// Write counts a committed record write.
func (m *Metrics) Write(collection, typ string) {
	m.writes.WithLabelValues(collection, typ).Inc()
}

// Upload counts a stored object.
func (m *Metrics) Upload(bucket string) {
	m.uploads.WithLabelValues(bucket).Inc()
}

// Listen counts an open realtime connection and returns the function to call when it is closed.
func (m *Metrics) Listen(collection string) func() {
	gauge := m.listeners.WithLabelValues(collection)
	gauge.Inc()
	return gauge.Dec
}
