// Package metrics exposes Prometheus instrumentation for the proxy. Every
// recording method is safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cache tiers and lookup results.
const (
	TierPage  = "page"
	TierAsset = "asset"

	ResultHit  = "hit"
	ResultMiss = "miss"
)

// Upstream fetch outcomes.
const (
	OutcomeOK         = "ok"
	OutcomeTimeout    = "timeout"
	OutcomeFailure    = "failure"
	OutcomeNoResponse = "no_response"
)

// Metrics holds the proxy's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	CacheLookups     *prometheus.CounterVec
	UpstreamFetches  *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec
	HardBlocked      prometheus.Counter
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		CacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shieldsup_cache_lookups_total",
				Help: "Cache lookups by tier and result",
			},
			[]string{"tier", "result"},
		),
		UpstreamFetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shieldsup_upstream_fetches_total",
				Help: "Browser fetches of upstream pages and assets by outcome",
			},
			[]string{"kind", "outcome"},
		),
		UpstreamDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shieldsup_upstream_fetch_duration_seconds",
				Help:    "Duration of upstream fetches in seconds",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30, 45, 60},
			},
			[]string{"kind"},
		),
		HardBlocked: f.NewCounter(
			prometheus.CounterOpts{
				Name: "shieldsup_hard_blocked_requests_total",
				Help: "In-page requests refused by the hard-block list",
			},
		),
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shieldsup_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shieldsup_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "route"},
		),
	}
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveAdBlocks exports a running count of ad-block matches read from fn.
func (m *Metrics) ObserveAdBlocks(fn func() int64) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "shieldsup_adblock_blocked_requests_total",
			Help: "In-page requests refused by the ad-block lists",
		},
		func() float64 { return float64(fn()) },
	))
}

// CacheLookup records one cache lookup.
func (m *Metrics) CacheLookup(tier string, hit bool) {
	if m == nil {
		return
	}
	result := ResultMiss
	if hit {
		result = ResultHit
	}
	m.CacheLookups.WithLabelValues(tier, result).Inc()
}

// UpstreamFetch records one upstream fetch and its duration.
func (m *Metrics) UpstreamFetch(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamFetches.WithLabelValues(kind, outcome).Inc()
	m.UpstreamDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// HardBlock records one request refused by the hard-block list.
func (m *Metrics) HardBlock() {
	if m == nil {
		return
	}
	m.HardBlocked.Inc()
}

// RecordHTTPRequest records one served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, route, status).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware creates a Gin middleware for request metrics. The route label
// is the matched route pattern so query strings never become label values.
func Middleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
