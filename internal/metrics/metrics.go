package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "callcoach"

// Outcome labels shared by the call-flow handlers.
const (
	OutcomeHandoff    = "handoff"
	OutcomeChallenge  = "challenge"
	OutcomeRejected   = "rejected"
	OutcomeTerminated = "terminated"
	OutcomeError      = "error"
)

// Metrics owns a private registry; nothing is registered on the global default.
// All recording methods are safe on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	inboundCalls *prometheus.CounterVec
	pinChecks    *prometheus.CounterVec
	handoffs     prometheus.Counter
	relayEvents  *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		inboundCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_calls_total",
			Help:      "Inbound call webhooks by outcome.",
		}, []string{"outcome"}),
		pinChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pin_checks_total",
			Help:      "PIN submissions by result.",
		}, []string{"result"}),
		handoffs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handoffs_total",
			Help:      "Calls bridged to the conversational agent.",
		}),
		relayEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_events_total",
			Help:      "Agent completion events by outcome.",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.inboundCalls,
		m.pinChecks,
		m.handoffs,
		m.relayEvents,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the private registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) InboundCall(outcome string) {
	if m == nil {
		return
	}
	m.inboundCalls.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PINCheck(result string) {
	if m == nil {
		return
	}
	m.pinChecks.WithLabelValues(result).Inc()
}

func (m *Metrics) Handoff() {
	if m == nil {
		return
	}
	m.handoffs.Inc()
}

func (m *Metrics) RelayEvent(outcome string) {
	if m == nil {
		return
	}
	m.relayEvents.WithLabelValues(outcome).Inc()
}

// Middleware records request count and latency keyed by the matched route,
// so path parameters do not explode label cardinality.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		m.httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
