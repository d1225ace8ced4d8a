// Package metrics holds the Prometheus collectors for the HTTP API and the
// real-time channel. A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "commlink"

type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	ActiveConnections  prometheus.Gauge
	BroadcastEvents    *prometheus.CounterVec
	BroadcastDelivered prometheus.Counter
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "status_code"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of connected real-time clients.",
		}),
		BroadcastEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "events_total",
			Help:      "Total number of events broadcast, by event type.",
		}, []string{"type"}),
		BroadcastDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "deliveries_total",
			Help:      "Total number of event messages queued to clients.",
		}),
	}

	reg.MustRegister(m.RequestsTotal, m.RequestDuration, m.ActiveConnections, m.BroadcastEvents, m.BroadcastDelivered)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}

// Middleware records request counts and latency, skipping /metrics itself.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil || c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		method := c.Request.Method
		m.RequestsTotal.WithLabelValues(method, strconv.Itoa(c.Writer.Status())).Inc()
		m.RequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) ClientConnected() {
	if m != nil {
		m.ActiveConnections.Inc()
	}
}

func (m *Metrics) ClientDisconnected() {
	if m != nil {
		m.ActiveConnections.Dec()
	}
}

func (m *Metrics) EventBroadcast(eventType string, deliveries int) {
	if m == nil {
		return
	}
	m.BroadcastEvents.WithLabelValues(eventType).Inc()
	m.BroadcastDelivered.Add(float64(deliveries))
}
