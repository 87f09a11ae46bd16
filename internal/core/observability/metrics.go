package observability

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	extractionDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grid_extraction_duration_seconds",
			Help:    "Duration of grid extractions by kind and outcome.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"kind", "outcome"},
	)

	handleCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grid_handle_cache_total",
			Help: "Dataset handle cache lookups and evictions by outcome.",
		},
		[]string{"outcome"},
	)

	catalogQueryDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_query_duration_seconds",
			Help:    "Duration of catalog index queries by store.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"store"},
	)

	catalogScanFilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_scan_files_total",
			Help: "Files visited by catalog scans by outcome.",
		},
		[]string{"outcome"},
	)

	catalogEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_events_total",
			Help: "Catalog events by publish result.",
		},
		[]string{"result"},
	)

	cacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "response_cache_hits_total",
		Help: "Response cache hits.",
	})

	cacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "response_cache_misses_total",
		Help: "Response cache misses.",
	})

	redisOpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Duration of Redis operations by op and result.",
			Buckets: prometheus.ExponentialBuckets(0.0002, 2, 14),
		},
		[]string{"op", "result"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal,
		httpRequestDurationSeconds,
		extractionDurationSeconds,
		handleCacheTotal,
		catalogQueryDurationSeconds,
		catalogScanFilesTotal,
		catalogEventsTotal,
		cacheHitsTotal,
		cacheMissesTotal,
		redisOpDurationSeconds,
	}
}

// Init registers the service instruments with reg. Instruments keep counting
// when disabled; they are just never exported.
func Init(reg prometheus.Registerer, enabled bool) error {
	if !enabled || reg == nil {
		return nil
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

// ObserveExtraction records one extractor call. outcome is "ok" or a fault kind name.
func ObserveExtraction(kind, outcome string, durationSeconds float64) {
	extractionDurationSeconds.WithLabelValues(kind, outcome).Observe(durationSeconds)
}

func ObserveHandleCache(outcome string) {
	handleCacheTotal.WithLabelValues(outcome).Inc()
}

func ObserveCatalogQuery(store string, durationSeconds float64) {
	catalogQueryDurationSeconds.WithLabelValues(store).Observe(durationSeconds)
}

// ObserveScanFile counts one file visited by a scan: indexed, skipped or failed.
func ObserveScanFile(outcome string) {
	catalogScanFilesTotal.WithLabelValues(outcome).Inc()
}

func ObserveCatalogEvent(result string) {
	catalogEventsTotal.WithLabelValues(result).Inc()
}

func AddCacheHits(n int) {
	if n > 0 {
		cacheHitsTotal.Add(float64(n))
	}
}

func AddCacheMisses(n int) {
	if n > 0 {
		cacheMissesTotal.Add(float64(n))
	}
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	redisOpDurationSeconds.WithLabelValues(op, result).Observe(durationSeconds)
}
