package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ObjectStoreMetrics holds metrics related to audit archive object store operations.
type ObjectStoreMetrics struct {
	// LatencyHistogram tracks object store operation latencies broken down by operation and status.
	// Labels: operation (put, get), status (success, failure)
	LatencyHistogram *prometheus.HistogramVec

	// RequestsTotal tracks total object store operations by operation and status.
	RequestsTotal *prometheus.CounterVec

	// BytesWritten tracks bytes successfully uploaded.
	BytesWritten prometheus.Counter
}

// Object store operation label values.
const (
	OpObjPut = "put"
	OpObjGet = "get"
)

// NewObjectStoreMetrics creates and registers object store metrics.
func NewObjectStoreMetrics() *ObjectStoreMetrics {
	return NewObjectStoreMetricsWithRegistry(nil)
}

// NewObjectStoreMetricsWithRegistry creates object store metrics registered with a custom registry.
// Useful for testing to avoid conflicts with the default registry.
func NewObjectStoreMetricsWithRegistry(reg prometheus.Registerer) *ObjectStoreMetrics {
	f := promauto.With(registererOrDefault(reg))
	return &ObjectStoreMetrics{
		LatencyHistogram: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "objectstore",
			Name:      "operation_latency_seconds",
			Help:      "Object store operation latency in seconds, broken down by operation and status.",
			Buckets:   DefaultLatencyBuckets,
		}, []string{"operation", "status"}),
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "objectstore",
			Name:      "operations_total",
			Help:      "Total number of object store operations, broken down by operation and status.",
		}, []string{"operation", "status"}),
		BytesWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "objectstore",
			Name:      "bytes_written_total",
			Help:      "Total bytes written to the object store.",
		}),
	}
}

// RecordOperation records an object store operation latency and increments the request counter.
func (m *ObjectStoreMetrics) RecordOperation(operation string, durationSeconds float64, success bool) {
	s := status(success)
	m.LatencyHistogram.WithLabelValues(operation, s).Observe(durationSeconds)
	m.RequestsTotal.WithLabelValues(operation, s).Inc()
}

// RecordPut records a Put operation.
func (m *ObjectStoreMetrics) RecordPut(durationSeconds float64, success bool, bytes int64) {
	m.RecordOperation(OpObjPut, durationSeconds, success)
	if success && bytes > 0 {
		m.BytesWritten.Add(float64(bytes))
	}
}

// RecordGet records a Get operation.
func (m *ObjectStoreMetrics) RecordGet(durationSeconds float64, success bool) {
	m.RecordOperation(OpObjGet, durationSeconds, success)
}
