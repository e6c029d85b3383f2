// Package observability exposes Prometheus metrics for pipeline runs
// and the catalog browse server.
package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	filesCollectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stacforge_files_collected_total",
			Help: "Total number of input files matched by the collector.",
		},
		[]string{"collection"},
	)

	assetsExtractedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stacforge_assets_extracted_total",
			Help: "Total number of files successfully extracted into asset metadata.",
		},
		[]string{"collection"},
	)

	extractSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stacforge_extract_skipped_total",
			Help: "Total number of files skipped during extraction or mapping.",
		},
		[]string{"collection", "reason"},
	)

	itemsMappedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stacforge_items_mapped_total",
			Help: "Total number of items produced by the item mapper.",
		},
		[]string{"collection"},
	)

	collectionsBuiltTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stacforge_collections_built_total",
			Help: "Total number of collection documents assembled.",
		},
		[]string{"collection", "outcome"},
	)

	cacheOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stacforge_metadata_cache_ops_total",
			Help: "Metadata cache operations by op and outcome.",
		},
		[]string{"op", "outcome"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stacforge_http_requests_total",
			Help: "Total number of HTTP requests served by the browse server.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stacforge_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "route", "status"},
	)
)

func ObserveCollected(collection string, n int) {
	filesCollectedTotal.WithLabelValues(collection).Add(float64(n))
}

func ObserveExtracted(collection string) {
	assetsExtractedTotal.WithLabelValues(collection).Inc()
}

func ObserveSkipped(collection, reason string) {
	extractSkippedTotal.WithLabelValues(collection, reason).Inc()
}

func ObserveMapped(collection string, n int) {
	itemsMappedTotal.WithLabelValues(collection).Add(float64(n))
}

func ObserveCollectionBuilt(collection string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	collectionsBuiltTotal.WithLabelValues(collection, outcome).Inc()
}

func ObserveCacheOp(op string, hit bool, err error) {
	outcome := "miss"
	switch {
	case err != nil:
		outcome = "error"
	case hit:
		outcome = "hit"
	}
	cacheOpsTotal.WithLabelValues(op, outcome).Inc()
}

func ObserveHTTP(method, route string, status int, seconds float64) {
	s := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, s).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, s).Observe(seconds)
}
