package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DocStoreMetrics holds document store request metrics.
type DocStoreMetrics struct {
	// Labels: operation (aggregate, search, delete_by_query, ping), status (success, failure)
	LatencyHistogram *prometheus.HistogramVec
	RequestsTotal    *prometheus.CounterVec

	BucketsTotal          prometheus.Counter
	DeletedTotal          prometheus.Counter
	VersionConflictsTotal prometheus.Counter
}

// NewDocStoreMetrics creates document store metrics on the default registry.
func NewDocStoreMetrics() *DocStoreMetrics {
	return NewDocStoreMetricsWithRegistry(nil)
}

// NewDocStoreMetricsWithRegistry creates document store metrics on reg.
func NewDocStoreMetricsWithRegistry(reg prometheus.Registerer) *DocStoreMetrics {
	f := promauto.With(registererOrDefault(reg))
	return &DocStoreMetrics{
		LatencyHistogram: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "docstore",
			Name:      "request_latency_seconds",
			Help:      "Document store request latency in seconds, by operation and status.",
			Buckets:   DefaultLatencyBuckets,
		}, []string{"operation", "status"}),
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "docstore",
			Name:      "requests_total",
			Help:      "Document store requests, by operation and status.",
		}, []string{"operation", "status"}),
		BucketsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "docstore",
			Name:      "aggregation_buckets_total",
			Help:      "Composite aggregation buckets returned.",
		}),
		DeletedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "docstore",
			Name:      "deleted_total",
			Help:      "Documents deleted as reported by delete-by-query.",
		}),
		VersionConflictsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "docstore",
			Name:      "version_conflicts_total",
			Help:      "Version conflicts reported by delete-by-query.",
		}),
	}
}

func (m *DocStoreMetrics) RecordRequest(op string, durationSeconds float64, success bool) {
	s := status(success)
	m.LatencyHistogram.WithLabelValues(op, s).Observe(durationSeconds)
	m.RequestsTotal.WithLabelValues(op, s).Inc()
}

func (m *DocStoreMetrics) RecordBuckets(n int) {
	m.BucketsTotal.Add(float64(n))
}

func (m *DocStoreMetrics) RecordDeleted(deleted int64, conflicts int64) {
	m.DeletedTotal.Add(float64(deleted))
	m.VersionConflictsTotal.Add(float64(conflicts))
}
