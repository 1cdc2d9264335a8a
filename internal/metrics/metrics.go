// Package metrics owns storefront's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

// Metrics groups the collectors registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	queries        *prometheus.CounterVec
	products       *prometheus.GaugeVec
	reloads        *prometheus.CounterVec
	probes         *prometheus.CounterVec
	galleries      *prometheus.HistogramVec
	conversions    *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	requestSeconds *prometheus.HistogramVec
}

// New creates and registers all collectors, including the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_queries_total",
			Help:      "Catalog queries by sort key.",
		}, []string{"sort"}),
		products: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_products",
			Help:      "Products in the loaded catalog by completeness.",
		}, []string{"status"}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_reloads_total",
			Help:      "Catalog loads by outcome.",
		}, []string{"outcome"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gallery_probes_total",
			Help:      "Image existence probes by outcome.",
		}, []string{"outcome"}),
		galleries: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gallery_resolve_seconds",
			Help:      "Time to resolve a product gallery.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"state"}),
		conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "importer_conversions_total",
			Help:      "Spreadsheet conversions by outcome.",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
		requestSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.queries, m.products, m.reloads, m.probes, m.galleries,
		m.conversions, m.httpRequests, m.requestSeconds,
	)
	return m
}

// Registry returns the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// QueryServed counts one catalog query.
func (m *Metrics) QueryServed(sort string) {
	m.queries.WithLabelValues(sort).Inc()
}

// CatalogLoaded records a load outcome and, on success, the product counts.
func (m *Metrics) CatalogLoaded(outcome string, complete, incomplete int) {
	m.reloads.WithLabelValues(outcome).Inc()
	if outcome == "error" {
		return
	}
	m.products.WithLabelValues("complete").Set(float64(complete))
	m.products.WithLabelValues("incomplete").Set(float64(incomplete))
}

// ProbeFinished counts one image probe.
func (m *Metrics) ProbeFinished(outcome string) {
	m.probes.WithLabelValues(outcome).Inc()
}

// GalleryResolved observes one gallery resolution.
func (m *Metrics) GalleryResolved(state string, elapsed time.Duration) {
	m.galleries.WithLabelValues(state).Observe(elapsed.Seconds())
}

// ConversionFinished counts one spreadsheet conversion.
func (m *Metrics) ConversionFinished(outcome string) {
	m.conversions.WithLabelValues(outcome).Inc()
}

// RequestServed records one HTTP request.
func (m *Metrics) RequestServed(method string, code int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, statusLabel(code)).Inc()
	m.requestSeconds.WithLabelValues(method).Observe(elapsed.Seconds())
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
