package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	io_prometheus_client "github.com/prometheus/client_model/go"
)

func gather(t *testing.T, reg *prometheus.Registry) []*io_prometheus_client.MetricFamily {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}
	return mfs
}

func findMetricFamily(mfs []*io_prometheus_client.MetricFamily, name string) *io_prometheus_client.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

// findMetric returns the metric in mf whose labels include every pair in labels.
func findMetric(mf *io_prometheus_client.MetricFamily, labels map[string]string) *io_prometheus_client.Metric {
	if mf == nil {
		return nil
	}
	for _, m := range mf.Metric {
		matched := 0
		for _, lp := range m.Label {
			if v, ok := labels[lp.GetName()]; ok && v == lp.GetValue() {
				matched++
			}
		}
		if matched == len(labels) {
			return m
		}
	}
	return nil
}

func counterValue(t *testing.T, mfs []*io_prometheus_client.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	m := findMetric(findMetricFamily(mfs, name), labels)
	if m == nil {
		t.Fatalf("metric %s%v not found", name, labels)
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, mfs []*io_prometheus_client.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	m := findMetric(findMetricFamily(mfs, name), labels)
	if m == nil {
		t.Fatalf("metric %s%v not found", name, labels)
	}
	return m.GetGauge().GetValue()
}

func histogramCount(t *testing.T, mfs []*io_prometheus_client.MetricFamily, name string, labels map[string]string) uint64 {
	t.Helper()
	m := findMetric(findMetricFamily(mfs, name), labels)
	if m == nil {
		t.Fatalf("metric %s%v not found", name, labels)
	}
	return m.GetHistogram().GetSampleCount()
}
