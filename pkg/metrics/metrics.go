// Package metrics provides Prometheus metrics collection and exposition for
// the yokan provider, following the same registration and Timer pattern used
// elsewhere in this codebase's lineage.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OpsTotal counts completed RPCs by operation name and resulting status code.
	OpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yokan_ops_total",
			Help: "Total number of data-plane RPCs served, by op and status",
		},
		[]string{"op", "status"},
	)

	// OpDuration tracks per-op handler latency.
	OpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "yokan_op_duration_seconds",
			Help:    "Data-plane RPC handler latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// BulkBytesTotal counts bytes pulled/pushed over bulk transfer.
	BulkBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yokan_bulk_bytes_total",
			Help: "Total bytes moved over bulk transfer",
		},
		[]string{"direction"},
	)

	// BufferCacheBytes reports bytes currently held by the buffer cache, by policy.
	BufferCacheBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "yokan_buffer_cache_bytes",
			Help: "Bytes currently retained by the buffer cache",
		},
		[]string{"policy"},
	)

	// BufferCacheOpsTotal counts buffer cache get/release/evict events.
	BufferCacheOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yokan_buffer_cache_ops_total",
			Help: "Total buffer cache operations",
		},
		[]string{"policy", "op"},
	)

	// BackendCount reports the live key/document count as last observed.
	BackendCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "yokan_backend_count",
			Help: "Number of keys currently stored in the backend",
		},
	)

	// StreamBatchesTotal counts back-RPC batches sent by fetch/iter/doc_fetch/doc_iter.
	StreamBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yokan_stream_batches_total",
			Help: "Total streaming back-RPC batches sent",
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(
		OpsTotal,
		OpDuration,
		BulkBytesTotal,
		BufferCacheBytes,
		BufferCacheOpsTotal,
		BackendCount,
		StreamBatchesTotal,
	)
}

// Handler returns the Prometheus HTTP handler for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDurationVec records the elapsed duration into a histogram vec.
func (t *Timer) ObserveDurationVec(histogram *prometheus.HistogramVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
