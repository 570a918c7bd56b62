package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Task state label values, mirrored from the supervisor.
var taskStates = []string{"not_started", "running", "finished", "failed"}

// PipelineMetrics holds the condensing pipeline collectors.
type PipelineMetrics struct {
	SweepDuration    prometheus.Histogram
	SweepPages       prometheus.Counter
	LastSweepFiles   prometheus.Gauge
	CandidatesTotal  prometheus.Counter
	ResolvesTotal    *prometheus.CounterVec
	DroppedTotal     *prometheus.CounterVec
	InFlight         prometheus.Gauge
	PendingFileIDs   prometheus.Gauge
	PendingKeepPairs prometheus.Gauge
	FlushDuration    *prometheus.HistogramVec
	FlushesTotal     *prometheus.CounterVec
	FlushFileIDs     prometheus.Histogram
	DeletedTotal     prometheus.Counter
	RestartsTotal    *prometheus.CounterVec
	TaskState        *prometheus.GaugeVec
}

// NewPipelineMetrics creates pipeline metrics on the default registry.
func NewPipelineMetrics() *PipelineMetrics {
	return NewPipelineMetricsWithRegistry(nil)
}

// NewPipelineMetricsWithRegistry creates pipeline metrics on reg.
func NewPipelineMetricsWithRegistry(reg prometheus.Registerer) *PipelineMetrics {
	f := promauto.With(registererOrDefault(reg))
	return &PipelineMetrics{
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "aggregator",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of a full composite aggregation sweep.",
			Buckets:   DefaultLatencyBuckets,
		}),
		SweepPages: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "aggregator",
			Name:      "pages_total",
			Help:      "Aggregation pages fetched.",
		}),
		LastSweepFiles: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "aggregator",
			Name:      "last_sweep_candidates",
			Help:      "Candidates emitted by the most recent completed sweep.",
		}),
		CandidatesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "aggregator",
			Name:      "candidates_total",
			Help:      "Files with more than one event emitted for resolution.",
		}),
		ResolvesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "resolver",
			Name:      "resolves_total",
			Help:      "Last-event lookups by outcome.",
		}, []string{"outcome"}),
		DroppedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "resolver",
			Name:      "criteria_dropped_total",
			Help:      "Delete criteria dropped before batching, by reason.",
		}, []string{"reason"}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "resolver",
			Name:      "in_flight",
			Help:      "Candidates currently being resolved.",
		}),
		PendingFileIDs: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "batcher",
			Name:      "pending_file_ids",
			Help:      "File ids buffered for the next delete flush.",
		}),
		PendingKeepPairs: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "batcher",
			Name:      "pending_keep_pairs",
			Help:      "Records excluded from the next delete flush.",
		}),
		FlushDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "batcher",
			Name:      "flush_duration_seconds",
			Help:      "Delete flush latency by trigger and status.",
			Buckets:   DefaultLatencyBuckets,
		}, []string{"trigger", "status"}),
		FlushesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "batcher",
			Name:      "flushes_total",
			Help:      "Delete flushes by trigger and status.",
		}, []string{"trigger", "status"}),
		FlushFileIDs: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "batcher",
			Name:      "flush_file_ids",
			Help:      "File ids per delete flush.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		DeletedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "batcher",
			Name:      "deleted_documents_total",
			Help:      "Documents removed by delete flushes.",
		}),
		RestartsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "supervisor",
			Name:      "restarts_total",
			Help:      "Task restarts by task.",
		}, []string{"task"}),
		TaskState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "supervisor",
			Name:      "task_state",
			Help:      "1 for the current state of each supervised task, 0 otherwise.",
		}, []string{"task", "state"}),
	}
}

func (m *PipelineMetrics) RecordSweep(durationSeconds float64, pages, candidates int) {
	m.SweepDuration.Observe(durationSeconds)
	m.SweepPages.Add(float64(pages))
	m.LastSweepFiles.Set(float64(candidates))
}

func (m *PipelineMetrics) RecordCandidate() {
	m.CandidatesTotal.Inc()
}

func (m *PipelineMetrics) RecordResolve(outcome string) {
	m.ResolvesTotal.WithLabelValues(outcome).Inc()
}

func (m *PipelineMetrics) RecordCriterionDropped(reason string) {
	m.DroppedTotal.WithLabelValues(reason).Inc()
}

func (m *PipelineMetrics) SetInFlight(n int) {
	m.InFlight.Set(float64(n))
}

func (m *PipelineMetrics) SetPending(fileIDs, keepPairs int) {
	m.PendingFileIDs.Set(float64(fileIDs))
	m.PendingKeepPairs.Set(float64(keepPairs))
}

func (m *PipelineMetrics) RecordFlush(trigger string, durationSeconds float64, success bool, fileIDs, keepPairs int, deleted int64) {
	s := status(success)
	m.FlushDuration.WithLabelValues(trigger, s).Observe(durationSeconds)
	m.FlushesTotal.WithLabelValues(trigger, s).Inc()
	m.FlushFileIDs.Observe(float64(fileIDs))
	if deleted > 0 {
		m.DeletedTotal.Add(float64(deleted))
	}
}

func (m *PipelineMetrics) RecordRestart(task string) {
	m.RestartsTotal.WithLabelValues(task).Inc()
}

func (m *PipelineMetrics) SetTaskState(task string, state string) {
	for _, s := range taskStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.TaskState.WithLabelValues(task, s).Set(v)
	}
}
