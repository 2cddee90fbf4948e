// Package metrics holds the pipeline's Prometheus collectors. Each Metrics
// owns its registry; every method is safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the pipeline.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Leads
	LeadsIngested     *prometheus.CounterVec
	LeadsExported     prometheus.Counter
	LeadsQueued       prometheus.Counter
	StatusUpdates     *prometheus.CounterVec
	LeadsEnriched     *prometheus.CounterVec
	DedupeRemoved     prometheus.Counter
	StatsCacheLookups *prometheus.CounterVec
}

// New creates a Metrics with a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := factory{reg}

	m := &Metrics{
		registry: reg,
		HTTPRequestsTotal: f.counterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, "method", "route", "status"),
		HTTPRequestDuration: f.histogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, "method", "route"),
		LeadsIngested: f.counterVec(prometheus.CounterOpts{
			Name: "leads_ingested_total",
			Help: "Ingested lead entries by result (inserted, skipped, error)",
		}, "result"),
		LeadsExported: f.counter(prometheus.CounterOpts{
			Name: "leads_exported_total",
			Help: "Leads written to an export",
		}),
		LeadsQueued: f.counter(prometheus.CounterOpts{
			Name: "leads_queued_total",
			Help: "Leads flipped to queued by an export",
		}),
		StatusUpdates: f.counterVec(prometheus.CounterOpts{
			Name: "leads_status_updates_total",
			Help: "Per-lead status updates by result (updated, error)",
		}, "result"),
		LeadsEnriched: f.counterVec(prometheus.CounterOpts{
			Name: "leads_enriched_total",
			Help: "Enrichment outcomes (processed, whois_hit, verified, bounced)",
		}, "outcome"),
		DedupeRemoved: f.counter(prometheus.CounterOpts{
			Name: "leads_dedupe_removed_total",
			Help: "Duplicate leads removed by dedupe sweeps",
		}),
		StatsCacheLookups: f.counterVec(prometheus.CounterOpts{
			Name: "leads_stats_cache_lookups_total",
			Help: "Stats cache lookups by result (hit, miss)",
		}, "result"),
	}

	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return m
}

type factory struct{ reg *prometheus.Registry }

func (f factory) counter(opts prometheus.CounterOpts) prometheus.Counter {
	c := prometheus.NewCounter(opts)
	f.reg.MustRegister(c)
	return c
}

func (f factory) counterVec(opts prometheus.CounterOpts, labels ...string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(opts, labels)
	f.reg.MustRegister(c)
	return c
}

func (f factory) histogramVec(opts prometheus.HistogramOpts, labels ...string) *prometheus.HistogramVec {
	h := prometheus.NewHistogramVec(opts, labels)
	f.reg.MustRegister(h)
	return h
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry (used in tests).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTP records one finished request.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RecordIngest records the outcome counts of one ingest call.
func (m *Metrics) RecordIngest(inserted, skipped, errors int) {
	if m == nil {
		return
	}
	m.LeadsIngested.WithLabelValues("inserted").Add(float64(inserted))
	m.LeadsIngested.WithLabelValues("skipped").Add(float64(skipped))
	m.LeadsIngested.WithLabelValues("error").Add(float64(errors))
}

// RecordExport records exported and queued counts.
func (m *Metrics) RecordExport(exported, queued int) {
	if m == nil {
		return
	}
	m.LeadsExported.Add(float64(exported))
	m.LeadsQueued.Add(float64(queued))
}

// RecordStatusUpdates records a status mutation call.
func (m *Metrics) RecordStatusUpdates(updated, errors int) {
	if m == nil {
		return
	}
	m.StatusUpdates.WithLabelValues("updated").Add(float64(updated))
	m.StatusUpdates.WithLabelValues("error").Add(float64(errors))
}

// RecordEnrich records the counts of one enrichment pass.
func (m *Metrics) RecordEnrich(processed, whoisHits, verified, bounced int) {
	if m == nil {
		return
	}
	m.LeadsEnriched.WithLabelValues("processed").Add(float64(processed))
	m.LeadsEnriched.WithLabelValues("whois_hit").Add(float64(whoisHits))
	m.LeadsEnriched.WithLabelValues("verified").Add(float64(verified))
	m.LeadsEnriched.WithLabelValues("bounced").Add(float64(bounced))
}

// RecordDedupe records leads removed by a sweep.
func (m *Metrics) RecordDedupe(removed int) {
	if m == nil {
		return
	}
	m.DedupeRemoved.Add(float64(removed))
}

// RecordStatsCache records a stats cache hit or miss.
func (m *Metrics) RecordStatsCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.StatsCacheLookups.WithLabelValues(result).Inc()
}
