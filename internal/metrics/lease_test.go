package metrics

import (
	"testing"

	"github.com/dray-io/fimcondense/internal/lease"
	"github.com/prometheus/client_golang/prometheus"
)

var _ lease.MetricsRecorder = (*LeaseMetrics)(nil)

func TestLeaseMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLeaseMetricsWithRegistry(reg)

	m.SetLeaseHeld(true)
	m.SetLeaseHeld(true)
	m.SetLeaseHeld(false)

	mfs := gather(t, reg)
	if v := gaugeValue(t, mfs, "fimcondense_lease_held", nil); v != 0 {
		t.Errorf("held = %v, want 0", v)
	}
	if v := counterValue(t, mfs, "fimcondense_lease_transitions_total", nil); v != 2 {
		t.Errorf("transitions = %v, want 2", v)
	}
}
