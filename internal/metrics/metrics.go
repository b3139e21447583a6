// Package metrics exposes the service's Prometheus instrumentation.
package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Registry holds all metrics for the service.
type Registry struct {
	reg *prometheus.Registry

	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	UpstreamFetches *prometheus.CounterVec
	UpstreamLatency prometheus.Histogram
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	RetryAttempts   *prometheus.CounterVec
	ActiveQuoteSubs prometheus.Gauge
}

// NewRegistry creates and registers all service metrics.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockledger_http_requests_total",
				Help: "Total HTTP requests by route and status",
			},
			[]string{"route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stockledger_http_request_duration_seconds",
				Help:    "HTTP request duration by route",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"route"},
		),
		UpstreamFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockledger_upstream_fetches_total",
				Help: "Upstream quote provider calls by outcome",
			},
			[]string{"outcome"},
		),
		UpstreamLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stockledger_upstream_latency_seconds",
				Help:    "Upstream quote provider latency",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
		),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockledger_cache_hits_total",
			Help: "Quote response cache hits",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockledger_cache_misses_total",
			Help: "Quote response cache misses",
		}),
		RetryAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockledger_retry_attempts_total",
				Help: "Retry attempts by operation",
			},
			[]string{"op"},
		),
		ActiveQuoteSubs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stockledger_active_quote_subscriptions",
			Help: "Live quote stream subscriptions",
		}),
	}

	r.reg.MustRegister(
		r.HTTPRequests, r.HTTPDuration, r.UpstreamFetches, r.UpstreamLatency,
		r.CacheHits, r.CacheMisses, r.RetryAttempts, r.ActiveQuoteSubs,
	)
	return r
}

// Handler serves the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// CounterValue sums a counter family across label sets. Used by the health
// snapshot and by tests.
func (r *Registry) CounterValue(name string) float64 {
	families, err := r.reg.Gather()
	if err != nil {
		return 0
	}
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += counterOf(m)
		}
	}
	return total
}

func counterOf(m *dto.Metric) float64 {
	if c := m.GetCounter(); c != nil {
		return c.GetValue()
	}
	return 0
}

// RouteLabel reduces a request path to a bounded label value.
func RouteLabel(path string) string {
	parts := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 3)
	if len(parts) >= 2 && parts[0] == "api" {
		return "/api/" + parts[1]
	}
	return "/" + parts[0]
}
