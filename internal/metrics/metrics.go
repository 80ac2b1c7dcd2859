// Package metrics exposes Prometheus counters for the catalog, relevance and
// analysis paths. All recording methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "btp_research"

// Classification outcomes.
const (
	ResultOK         = "ok"
	ResultParseError = "parse_error"
	ResultError      = "error"
)

// Metrics holds the application's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	catalogCache    *prometheus.CounterVec
	relevanceCache  prometheus.Counter
	classifications *prometheus.CounterVec
	coercions       prometheus.Counter
	analyses        *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		catalogCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_cache_total",
			Help:      "Catalog cache lookups by kind and result.",
		}, []string{"kind", "result"}),
		relevanceCache: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relevance_cache_hits_total",
			Help:      "Relevance records served from the persistent cache.",
		}),
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Remote relevance classifications by result.",
		}, []string{"result"}),
		coercions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relevance_coercions_total",
			Help:      "Classifier replies whose relevance was coerced to medium.",
		}),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Analysis requests by mode and result.",
		}, []string{"mode", "result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.catalogCache,
		m.relevanceCache,
		m.classifications,
		m.coercions,
		m.analyses,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// CatalogCache records a catalog cache lookup. kind is "inventory" or "detail".
func (m *Metrics) CatalogCache(kind string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.catalogCache.WithLabelValues(kind, result).Inc()
}

// RelevanceCacheHits adds n records served from the persistent cache.
func (m *Metrics) RelevanceCacheHits(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.relevanceCache.Add(float64(n))
}

// Classification records one remote classification outcome.
func (m *Metrics) Classification(result string) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(result).Inc()
}

// Coercion records a relevance value that was coerced to medium.
func (m *Metrics) Coercion() {
	if m == nil {
		return
	}
	m.coercions.Inc()
}

// Analysis records one analysis request outcome.
func (m *Metrics) Analysis(mode string, ok bool) {
	if m == nil {
		return
	}
	result := ResultOK
	if !ok {
		result = ResultError
	}
	m.analyses.WithLabelValues(mode, result).Inc()
}
