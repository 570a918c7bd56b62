package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LeaseMetrics exposes whether this replica holds the single-active lease.
type LeaseMetrics struct {
	Held        prometheus.Gauge
	Transitions prometheus.Counter

	mu   sync.Mutex
	held bool
}

// NewLeaseMetrics creates lease metrics on the default registry.
func NewLeaseMetrics() *LeaseMetrics {
	return NewLeaseMetricsWithRegistry(nil)
}

// NewLeaseMetricsWithRegistry creates lease metrics on reg.
func NewLeaseMetricsWithRegistry(reg prometheus.Registerer) *LeaseMetrics {
	f := promauto.With(registererOrDefault(reg))
	return &LeaseMetrics{
		Held: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "lease",
			Name:      "held",
			Help:      "1 while this replica holds the condenser lease.",
		}),
		Transitions: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "lease",
			Name:      "transitions_total",
			Help:      "Times the lease was gained or lost.",
		}),
	}
}

func (m *LeaseMetrics) SetLeaseHeld(held bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if held != m.held {
		m.Transitions.Inc()
		m.held = held
	}
	if held {
		m.Held.Set(1)
	} else {
		m.Held.Set(0)
	}
}
