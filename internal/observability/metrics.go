package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/docsentry/docsentry/internal/health"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases, SLO breaches.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Link probe outcomes by category. Watch for: error vs ok ratio per category.
	LinkProbesTotal *prometheus.CounterVec

	// Link probe latency. Watch for: p95 > 2s (slow targets), p99 > 5s (timeout risk).
	LinkProbeDuration prometheus.Histogram

	// Retry attempts for link probes. Watch for: high retries = unstable targets.
	LinkProbeRetriesTotal prometheus.Counter

	// Cache hits by type (fresh, stale). Misses = linkProbesTotal growth during scans.
	CacheHitsTotal *prometheus.CounterVec

	// Link results seeded from the store at startup. Zero on a cold start.
	CacheWarmedEntriesTotal prometheus.Counter

	// Cache backend failures on get or set. Watch for: memcached connectivity.
	CacheErrorsTotal prometheus.Counter

	// Debounced change triggers from the filesystem watcher. Watch for: edit storms.
	WatcherReloadsTotal prometheus.Counter

	// Scans by trigger and outcome. Watch for: error outcomes, triggers gone quiet.
	ScansTotal *prometheus.CounterVec

	// Full scan wall time. Watch for: growth as the doc set or link count grows.
	ScanDuration prometheus.Histogram

	// Findings in the most recent scan, by severity.
	LastScanFindings *prometheus.GaugeVec

	// Broken links in the most recent scan. Watch for: any value above zero.
	LastScanBrokenLinks prometheus.Gauge

	// Documents seen in the most recent scan. Watch for: drops (source problem).
	LastScanDocuments prometheus.Gauge

	// Source refreshes by outcome. Watch for: consecutive errors (source unreachable).
	SourceRefreshesTotal *prometheus.CounterVec

	// Circuit breaker transitions by target state. Watch for: flapping hosts.
	BreakerTransitionsTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	healthGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	LinkProbesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkProbesTotal",
			Help: "Total number of link probes by outcome category",
		},
		[]string{"category"},
	)
	LinkProbeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "linkProbeDurationSeconds",
			Help:    "Link probe latency in seconds (per URL, including retries)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
	)
	LinkProbeRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "linkProbeRetriesTotal",
			Help: "Total number of retry attempts for link probes",
		},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of probe cache hits by type (fresh, stale)",
		},
		[]string{"cacheType"},
	)
	CacheWarmedEntriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmedEntriesTotal",
			Help: "Link results seeded into the cache from stored history at startup",
		},
	)
	CacheErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Total number of cache backend failures on get or set",
		},
	)
	WatcherReloadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "watcherReloadsTotal",
			Help: "Total number of debounced filesystem change triggers",
		},
	)
	ScansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scansTotal",
			Help: "Total number of scans by trigger (initial, periodic, watch, manual) and outcome",
		},
		[]string{"trigger", "outcome"},
	)
	ScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scanDurationSeconds",
			Help:    "Full scan wall time in seconds",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)
	LastScanFindings = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lastScanFindings",
			Help: "Findings in the most recent scan by severity",
		},
		[]string{"severity"},
	)
	LastScanBrokenLinks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lastScanBrokenLinks",
			Help: "Broken links in the most recent scan",
		},
	)
	LastScanDocuments = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lastScanDocuments",
			Help: "Documents seen in the most recent scan",
		},
	)
	SourceRefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sourceRefreshesTotal",
			Help: "Total number of document source refreshes by outcome",
		},
		[]string{"outcome"},
	)
	BreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions by target state",
		},
		[]string{"to"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		LinkProbesTotal, LinkProbeDuration, LinkProbeRetriesTotal,
		CacheHitsTotal, CacheWarmedEntriesTotal, CacheErrorsTotal,
		ScansTotal, ScanDuration,
		WatcherReloadsTotal,
		LastScanFindings, LastScanBrokenLinks, LastScanDocuments,
		SourceRefreshesTotal, BreakerTransitionsTotal,
		RateLimitDeniedTotal,
	)
}

// RegisterHealthGauges registers sliding-window gauges for the request and
// probe failure trackers. Call from main after config load; window should
// match the health evaluation window.
func RegisterHealthGauges(window time.Duration) {
	healthGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "requestsInWindow",
					Help: "API requests observed in the sliding health window",
				},
				func() float64 { return float64(health.RequestCount(window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in the sliding health window",
				},
				func() float64 { return float64(health.DenialCount(window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "probeFailuresInWindow",
					Help: "Transport-level probe failures in the sliding health window",
				},
				func() float64 { return float64(health.ProbeFailureCount(window)) },
			),
		)
	})
}

// RecordScanOutcome updates the last-scan gauges from a finished report.
func RecordScanOutcome(documents, errors, warnings, infos, broken int) {
	LastScanDocuments.Set(float64(documents))
	LastScanFindings.WithLabelValues("error").Set(float64(errors))
	LastScanFindings.WithLabelValues("warning").Set(float64(warnings))
	LastScanFindings.WithLabelValues("info").Set(float64(infos))
	LastScanBrokenLinks.Set(float64(broken))
}

// MetricsHandler returns an http.Handler serving application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
