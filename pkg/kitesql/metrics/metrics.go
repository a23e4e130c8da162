// Package metrics implements kite's metrics contract on top of the prometheus client.
//
// Instruments are declared up front with NewCounter/NewHistogram/NewGauge. Label keys are fixed by
// the first observation of an instrument; later observations must use the same keys.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	errMetricNotRegistered = errors.New("metric not registered")
	errMetricExists        = errors.New("metric already registered")
	errOddLabels           = errors.New("labels must be key/value pairs")
	errLabelMismatch       = errors.New("label keys differ from first observation")
)

// Logger is the subset of logging.Logger the manager reports problems with.
type Logger interface {
	Errorf(format string, args ...any)
}

// Manager records counters, gauges and histograms.
type Manager interface {
	NewCounter(name, desc string)
	NewUpDownCounter(name, desc string)
	NewHistogram(name, desc string, buckets ...float64)
	NewGauge(name, desc string)

	IncrementCounter(ctx context.Context, name string, labels ...string)
	DeltaUpDownCounter(ctx context.Context, name string, value float64, labels ...string)
	RecordHistogram(ctx context.Context, name string, value float64, labels ...string)
	SetGauge(name string, value float64, labels ...string)
}

type kind int

const (
	counter kind = iota
	upDownCounter
	histogram
	gauge
)

type instrument struct {
	kind    kind
	desc    string
	buckets []float64
	keys    []string
	vec     prometheus.Collector
}

// PromManager is the prometheus backed Manager.
type PromManager struct {
	mu          sync.Mutex
	registry    *prometheus.Registry
	instruments map[string]*instrument
	logger      Logger
}

// NewMetricsManager returns a Manager registering into its own prometheus registry.
func NewMetricsManager(logger Logger) *PromManager {
	return &PromManager{
		registry:    prometheus.NewRegistry(),
		instruments: make(map[string]*instrument),
		logger:      logger,
	}
}

// Registry exposes the underlying prometheus registry.
func (m *PromManager) Registry() *prometheus.Registry { return m.registry }

func (m *PromManager) declare(name, desc string, k kind, buckets []float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.instruments[name]; ok {
		m.logError(name, errMetricExists)
		return
	}

	m.instruments[name] = &instrument{kind: k, desc: desc, buckets: buckets}
}

func (m *PromManager) NewCounter(name, desc string)       { m.declare(name, desc, counter, nil) }
func (m *PromManager) NewUpDownCounter(name, desc string) { m.declare(name, desc, upDownCounter, nil) }
func (m *PromManager) NewGauge(name, desc string)         { m.declare(name, desc, gauge, nil) }

func (m *PromManager) NewHistogram(name, desc string, buckets ...float64) {
	m.declare(name, desc, histogram, buckets)
}

func (m *PromManager) IncrementCounter(_ context.Context, name string, labels ...string) {
	if v, values := m.collector(name, counter, labels); v != nil {
		v.(*prometheus.CounterVec).WithLabelValues(values...).Inc()
	}
}

func (m *PromManager) DeltaUpDownCounter(_ context.Context, name string, value float64, labels ...string) {
	if v, values := m.collector(name, upDownCounter, labels); v != nil {
		v.(*prometheus.GaugeVec).WithLabelValues(values...).Add(value)
	}
}

func (m *PromManager) RecordHistogram(_ context.Context, name string, value float64, labels ...string) {
	if v, values := m.collector(name, histogram, labels); v != nil {
		v.(*prometheus.HistogramVec).WithLabelValues(values...).Observe(value)
	}
}

func (m *PromManager) SetGauge(name string, value float64, labels ...string) {
	if v, values := m.collector(name, gauge, labels); v != nil {
		v.(*prometheus.GaugeVec).WithLabelValues(values...).Set(value)
	}
}

// collector resolves the vector for name, creating it on first observation.
func (m *PromManager) collector(name string, k kind, labels []string) (prometheus.Collector, []string) {
	if len(labels)%2 != 0 {
		m.logError(name, errOddLabels)
		return nil, nil
	}

	keys := make([]string, 0, len(labels)/2)
	values := make([]string, 0, len(labels)/2)

	for i := 0; i < len(labels); i += 2 {
		keys = append(keys, labels[i])
		values = append(values, labels[i+1])
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.instruments[name]
	if !ok || inst.kind != k {
		m.logError(name, errMetricNotRegistered)
		return nil, nil
	}

	if inst.vec == nil {
		inst.keys = keys
		inst.vec = newVec(name, inst, keys)

		if err := m.registry.Register(inst.vec); err != nil {
			m.logError(name, err)
			inst.vec = nil

			return nil, nil
		}

		return inst.vec, values
	}

	if !equalKeys(inst.keys, keys) {
		m.logError(name, errLabelMismatch)
		return nil, nil
	}

	return inst.vec, values
}

func newVec(name string, inst *instrument, keys []string) prometheus.Collector {
	switch inst.kind {
	case counter:
		return prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: inst.desc}, keys)
	case histogram:
		buckets := inst.buckets
		if len(buckets) == 0 {
			buckets = prometheus.DefBuckets
		}

		return prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: inst.desc, Buckets: buckets}, keys)
	default:
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: inst.desc}, keys)
	}
}

func equalKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

func (m *PromManager) logError(name string, err error) {
	if m.logger != nil {
		m.logger.Errorf("metrics: %v", fmt.Errorf("%s: %w", name, err))
	}
}

// GetHandler serves the manager's registry in the prometheus exposition format.
func GetHandler(m Manager) http.Handler {
	if pm, ok := m.(*PromManager); ok {
		return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{})
	}

	return promhttp.Handler()
}
