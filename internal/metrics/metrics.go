// Package metrics holds the prometheus counters shared by the h5zarr
// packages. Counters are registered with the default registry.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	namespace = "h5zarr"

	MetricRangeFetches      = "range_fetches_total"
	MetricRangeFetchBytes   = "range_fetch_bytes_total"
	MetricRangeFetchErrors  = "range_fetch_errors_total"
	MetricChunkDecodeErrors = "chunk_decode_errors_total"
	MetricCacheHits         = "store_cache_hits_total"
	MetricCacheMisses       = "store_cache_misses_total"
)

// CounterRangeFetches counts byte-range fetches by source kind.
var CounterRangeFetches = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      MetricRangeFetches,
		Help:      "Number of byte-range fetches issued against a source.",
	},
	[]string{
		"source",
	},
)

var CounterRangeFetchBytes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      MetricRangeFetchBytes,
		Help:      "Bytes returned by byte-range fetches.",
	},
	[]string{
		"source",
	},
)

var CounterRangeFetchErrors = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      MetricRangeFetchErrors,
		Help:      "Byte-range fetches that failed or timed out.",
	},
	[]string{
		"source",
	},
)

var CounterChunkDecodeErrors = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      MetricChunkDecodeErrors,
		Help:      "Chunks that failed to decode.",
	},
)

var CounterCacheHits = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      MetricCacheHits,
		Help:      "Store cache lookups served from memory.",
	},
)

var CounterCacheMisses = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      MetricCacheMisses,
		Help:      "Store cache lookups passed to the backing store.",
	},
)

func init() {
	prometheus.MustRegister(CounterRangeFetches)
	prometheus.MustRegister(CounterRangeFetchBytes)
	prometheus.MustRegister(CounterRangeFetchErrors)
	prometheus.MustRegister(CounterChunkDecodeErrors)
	prometheus.MustRegister(CounterCacheHits)
	prometheus.MustRegister(CounterCacheMisses)
}
