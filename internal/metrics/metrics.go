// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cotscope"

// Metrics groups the application's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	UpstreamRequests *prometheus.CounterVec
	UpstreamLatency  *prometheus.HistogramVec
	ExtremesCache    *prometheus.CounterVec
	FailedBatches    prometheus.Counter
	ExtremesTracked  prometheus.Gauge
	Seasonality      *prometheus.CounterVec
	StaleLoads       prometheus.Counter
	WSClients        prometheus.Gauge
}

// New creates and registers all collectors. Go runtime and process
// collectors are included.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Upstream fetches by provider, model and outcome.",
		}, []string{"provider", "model", "outcome"}),
		UpstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_seconds",
			Help:      "Upstream fetch latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "model"}),
		ExtremesCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extremes_cache_total",
			Help:      "Extremes snapshot lookups by result (hit, miss, corrupt).",
		}, []string{"result"}),
		FailedBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extremes_failed_batches_total",
			Help:      "History batches dropped after a fetch error.",
		}),
		ExtremesTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "extremes_contracts",
			Help:      "Contracts in the last computed extremes snapshot.",
		}),
		Seasonality: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "seasonality_computations_total",
			Help:      "Seasonality computations by outcome.",
		}, []string{"outcome"}),
		StaleLoads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_loads_total",
			Help:      "Report loads discarded because a newer load was dispatched.",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected websocket clients.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.UpstreamRequests,
		m.UpstreamLatency,
		m.ExtremesCache,
		m.FailedBatches,
		m.ExtremesTracked,
		m.Seasonality,
		m.StaleLoads,
		m.WSClients,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveUpstream records one upstream call. A nil receiver is a no-op so
// callers can run without metrics.
func (m *Metrics) ObserveUpstream(provider, model string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.UpstreamRequests.WithLabelValues(provider, model, outcome).Inc()
	m.UpstreamLatency.WithLabelValues(provider, model).Observe(time.Since(start).Seconds())
}

// CacheResult records an extremes snapshot lookup.
func (m *Metrics) CacheResult(result string) {
	if m == nil {
		return
	}
	m.ExtremesCache.WithLabelValues(result).Inc()
}

// BatchFailed records a dropped history batch.
func (m *Metrics) BatchFailed() {
	if m == nil {
		return
	}
	m.FailedBatches.Inc()
}

// SetExtremesCount records the size of the latest extremes snapshot.
func (m *Metrics) SetExtremesCount(n int) {
	if m == nil {
		return
	}
	m.ExtremesTracked.Set(float64(n))
}

// SeasonalityComputed records a seasonality computation outcome.
func (m *Metrics) SeasonalityComputed(outcome string) {
	if m == nil {
		return
	}
	m.Seasonality.WithLabelValues(outcome).Inc()
}

// StaleLoad records a superseded report load.
func (m *Metrics) StaleLoad() {
	if m == nil {
		return
	}
	m.StaleLoads.Inc()
}

// WSClientDelta adjusts the websocket client gauge.
func (m *Metrics) WSClientDelta(d int) {
	if m == nil {
		return
	}
	m.WSClients.Add(float64(d))
}
