package metrics

import (
	"testing"

	"github.com/dray-io/fimcondense/internal/condense"
	"github.com/prometheus/client_golang/prometheus"
)

var _ condense.MetricsRecorder = (*PipelineMetrics)(nil)

func TestPipelineMetrics_SweepAndResolve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPipelineMetricsWithRegistry(reg)

	m.RecordCandidate()
	m.RecordCandidate()
	m.RecordSweep(0.4, 3, 2)
	m.RecordResolve(condense.ResolveFound)
	m.RecordResolve(condense.ResolveNotFound)
	m.RecordResolve(condense.ResolveFound)
	m.RecordCriterionDropped(condense.DropUnknownFile)
	m.SetInFlight(5)

	mfs := gather(t, reg)

	if v := counterValue(t, mfs, "fimcondense_aggregator_candidates_total", nil); v != 2 {
		t.Errorf("candidates = %v, want 2", v)
	}
	if v := counterValue(t, mfs, "fimcondense_aggregator_pages_total", nil); v != 3 {
		t.Errorf("pages = %v, want 3", v)
	}
	if v := gaugeValue(t, mfs, "fimcondense_aggregator_last_sweep_candidates", nil); v != 2 {
		t.Errorf("last sweep candidates = %v, want 2", v)
	}
	if v := counterValue(t, mfs, "fimcondense_resolver_resolves_total", map[string]string{"outcome": "found"}); v != 2 {
		t.Errorf("found = %v, want 2", v)
	}
	if v := counterValue(t, mfs, "fimcondense_resolver_criteria_dropped_total", map[string]string{"reason": "unknown_file"}); v != 1 {
		t.Errorf("dropped = %v, want 1", v)
	}
	if v := gaugeValue(t, mfs, "fimcondense_resolver_in_flight", nil); v != 5 {
		t.Errorf("in flight = %v, want 5", v)
	}
}

func TestPipelineMetrics_Flush(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPipelineMetricsWithRegistry(reg)

	m.SetPending(3, 1)
	m.RecordFlush("size", 0.2, true, 101, 4, 250)
	m.RecordFlush("interval", 0.1, false, 2, 0, 0)
	m.SetPending(0, 0)

	mfs := gather(t, reg)

	if v := counterValue(t, mfs, "fimcondense_batcher_flushes_total", map[string]string{"trigger": "size", "status": StatusSuccess}); v != 1 {
		t.Errorf("size flushes = %v, want 1", v)
	}
	if v := counterValue(t, mfs, "fimcondense_batcher_flushes_total", map[string]string{"trigger": "interval", "status": StatusFailure}); v != 1 {
		t.Errorf("failed interval flushes = %v, want 1", v)
	}
	if v := counterValue(t, mfs, "fimcondense_batcher_deleted_documents_total", nil); v != 250 {
		t.Errorf("deleted = %v, want 250", v)
	}
	if v := gaugeValue(t, mfs, "fimcondense_batcher_pending_file_ids", nil); v != 0 {
		t.Errorf("pending file ids = %v, want 0", v)
	}
	if n := histogramCount(t, mfs, "fimcondense_batcher_flush_file_ids", nil); n != 2 {
		t.Errorf("flush size observations = %d, want 2", n)
	}
}

func TestPipelineMetrics_Supervisor(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPipelineMetricsWithRegistry(reg)

	m.SetTaskState(condense.TaskAggregator, "running")
	m.SetTaskState(condense.TaskAggregator, "failed")
	m.RecordRestart(condense.TaskAggregator)

	mfs := gather(t, reg)

	want := map[string]float64{"not_started": 0, "running": 0, "finished": 0, "failed": 1}
	for state, v := range want {
		got := gaugeValue(t, mfs, "fimcondense_supervisor_task_state", map[string]string{"task": condense.TaskAggregator, "state": state})
		if got != v {
			t.Errorf("state %s = %v, want %v", state, got, v)
		}
	}
	if v := counterValue(t, mfs, "fimcondense_supervisor_restarts_total", map[string]string{"task": condense.TaskAggregator}); v != 1 {
		t.Errorf("restarts = %v, want 1", v)
	}
}
