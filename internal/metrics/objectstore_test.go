package metrics

import (
	"testing"

	"github.com/dray-io/fimcondense/internal/objectstore"
	"github.com/prometheus/client_golang/prometheus"
)

var _ objectstore.MetricsRecorder = (*ObjectStoreMetrics)(nil)

func TestObjectStoreMetrics_RecordPut(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewObjectStoreMetricsWithRegistry(reg)

	m.RecordPut(0.1, true, 1024)
	m.RecordPut(0.2, false, 512)

	mfs := gather(t, reg)

	latencyMF := findMetricFamily(mfs, "fimcondense_objectstore_operation_latency_seconds")
	if latencyMF == nil {
		t.Fatal("fimcondense_objectstore_operation_latency_seconds not found")
	}
	if len(latencyMF.Metric) != 2 {
		t.Errorf("Expected 2 latency metrics (success/failure), got %d", len(latencyMF.Metric))
	}

	if v := counterValue(t, mfs, "fimcondense_objectstore_operations_total", map[string]string{"operation": OpObjPut, "status": StatusSuccess}); v != 1 {
		t.Errorf("successful puts = %v, want 1", v)
	}
	if v := counterValue(t, mfs, "fimcondense_objectstore_operations_total", map[string]string{"operation": OpObjPut, "status": StatusFailure}); v != 1 {
		t.Errorf("failed puts = %v, want 1", v)
	}
	// Failed puts do not count bytes.
	if v := counterValue(t, mfs, "fimcondense_objectstore_bytes_written_total", nil); v != 1024 {
		t.Errorf("bytes written = %v, want 1024", v)
	}
}

func TestObjectStoreMetrics_RecordGet(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewObjectStoreMetricsWithRegistry(reg)

	m.RecordGet(0.05, true)

	mfs := gather(t, reg)
	if n := histogramCount(t, mfs, "fimcondense_objectstore_operation_latency_seconds", map[string]string{"operation": OpObjGet, "status": StatusSuccess}); n != 1 {
		t.Errorf("get observations = %d, want 1", n)
	}
}
