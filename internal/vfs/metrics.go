package vfs

import "github.com/prometheus/client_golang/prometheus"

// Metric names.
const (
	DocumentCacheHitsKey   = "ecorpus_document_cache_hits_total"
	DocumentCacheMissesKey = "ecorpus_document_cache_misses_total"
)

var (
	DocumentCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: DocumentCacheHitsKey,
		Help: "Cumulative number of document generations served from cache.",
	})
	DocumentCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: DocumentCacheMissesKey,
		Help: "Cumulative number of document generation reads that missed the cache.",
	})
)

// Collectors returns the engine metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{DocumentCacheHits, DocumentCacheMisses}
}
