// Package metrics provides the Prometheus collectors of the condensing daemon.
//
// Each collector set implements the recorder interface of the package it
// observes, so those packages never import Prometheus:
//
//	pipeline := metrics.NewPipelineMetrics()      // condense.MetricsRecorder
//	store := metrics.NewDocStoreMetrics()         // docstore.MetricsRecorder
//	archive := metrics.NewObjectStoreMetrics()    // objectstore.MetricsRecorder
//	lease := metrics.NewLeaseMetrics()            // lease.MetricsRecorder
//
// The NewXWithRegistry variants register with a private registry and are
// what tests use.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Namespace prefixes every metric name.
const Namespace = "fimcondense"

// Status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

func status(success bool) string {
	if success {
		return StatusSuccess
	}
	return StatusFailure
}

// DefaultLatencyBuckets cover store round trips from a few milliseconds up
// to long delete-by-query calls.
var DefaultLatencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

func registererOrDefault(reg prometheus.Registerer) prometheus.Registerer {
	if reg == nil {
		return prometheus.DefaultRegisterer
	}
	return reg
}
