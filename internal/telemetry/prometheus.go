package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PromMetrics backs the Metrics interface with a Prometheus registry. Keys are
// mapped to a shared counter/gauge pair labelled by key so components can mint
// metrics without registering them up front.
type PromMetrics struct {
	registry *prometheus.Registry
	counters *prometheus.CounterVec
	gauges   *prometheus.GaugeVec

	mu     sync.RWMutex
	values map[string]uint64
}

// NewPromMetrics constructs a metrics adapter with its own registry.
func NewPromMetrics(namespace string) *PromMetrics {
	registry := prometheus.NewRegistry()
	counters := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_total",
		Help:      "Monotonic counters keyed by component metric name.",
	}, []string{"key"})
	gauges := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "state_value",
		Help:      "Last stored value keyed by component metric name.",
	}, []string{"key"})
	registry.MustRegister(counters, gauges)
	return &PromMetrics{
		registry: registry,
		counters: counters,
		gauges:   gauges,
		values:   make(map[string]uint64),
	}
}

// Registry exposes the underlying registry for the /metrics handler.
func (m *PromMetrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Add increments the counter for key by delta.
func (m *PromMetrics) Add(key string, delta uint64) {
	if m == nil {
		return
	}
	m.counters.WithLabelValues(key).Add(float64(delta))
	m.mu.Lock()
	m.values[key] += delta
	m.mu.Unlock()
}

// Store records the latest value for key as a gauge.
func (m *PromMetrics) Store(key string, value uint64) {
	if m == nil {
		return
	}
	m.gauges.WithLabelValues(key).Set(float64(value))
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
}

// Snapshot copies the raw values for the diagnostics endpoint.
func (m *PromMetrics) Snapshot() map[string]uint64 {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	copied := make(map[string]uint64, len(m.values))
	for k, v := range m.values {
		copied[k] = v
	}
	return copied
}
