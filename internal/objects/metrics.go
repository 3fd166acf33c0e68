package objects

import (
	"github.com/prometheus/client_golang/prometheus"

	"ecorpus-go/internal/vfs"
)

// Metric names.
const (
	PutTotalKey      = "ecorpus_objects_put_total"
	PutBytesTotalKey = "ecorpus_objects_put_bytes_total"
)

// Put results.
const (
	resultStored       = "stored"
	resultDeduplicated = "deduplicated"
)

var (
	PutTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: PutTotalKey,
		Help: "Cumulative number of objects put, by result.",
	}, []string{"result"})
	PutBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: PutBytesTotalKey,
		Help: "Cumulative number of bytes received by object puts.",
	})
)

// Collectors returns the object store metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{PutTotal, PutBytesTotal}
}

func observePut(obj vfs.Object, deduplicated bool) {
	result := resultStored
	if deduplicated {
		result = resultDeduplicated
	}
	PutTotal.WithLabelValues(result).Inc()
	PutBytesTotal.Add(float64(obj.Size))
}
