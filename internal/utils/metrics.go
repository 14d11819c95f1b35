// internal/utils/metrics.go
package utils

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector collects application metrics.
type MetricsCollector struct {
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram

	mu sync.RWMutex
}

// Counter metric. The value field is only touched atomically.
type Counter struct {
	name  string
	value int64
}

// Gauge metric. The value field is only touched atomically.
type Gauge struct {
	name  string
	value int64
}

// Histogram metric tracking count, sum, min and max.
type Histogram struct {
	name  string
	count int64
	sum   int64
	min   int64
	max   int64
	mu    sync.Mutex
}

var (
	globalMetrics *MetricsCollector
	metricsOnce   sync.Once
)

// GetMetricsCollector returns the global metrics collector.
func GetMetricsCollector() *MetricsCollector {
	metricsOnce.Do(func() {
		globalMetrics = &MetricsCollector{
			counters:   make(map[string]*Counter),
			gauges:     make(map[string]*Gauge),
			histograms: make(map[string]*Histogram),
		}
	})
	return globalMetrics
}

// IncrementCounter increments a counter metric.
func (m *MetricsCollector) IncrementCounter(name string) {
	m.AddCounter(name, 1)
}

// AddCounter adds a value to a counter metric.
func (m *MetricsCollector) AddCounter(name string, value int64) {
	m.mu.RLock()
	counter, exists := m.counters[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		counter, exists = m.counters[name]
		if !exists {
			counter = &Counter{name: name}
			m.counters[name] = counter
		}
		m.mu.Unlock()
	}

	atomic.AddInt64(&counter.value, value)
}

// SetGauge sets a gauge metric.
func (m *MetricsCollector) SetGauge(name string, value int64) {
	m.mu.RLock()
	gauge, exists := m.gauges[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		gauge, exists = m.gauges[name]
		if !exists {
			gauge = &Gauge{name: name}
			m.gauges[name] = gauge
		}
		m.mu.Unlock()
	}

	atomic.StoreInt64(&gauge.value, value)
}

// GetGauge gets the current value of a gauge.
func (m *MetricsCollector) GetGauge(name string) int64 {
	m.mu.RLock()
	gauge, exists := m.gauges[name]
	m.mu.RUnlock()

	if !exists {
		return 0
	}
	return atomic.LoadInt64(&gauge.value)
}

// RecordHistogram records a value in a histogram.
func (m *MetricsCollector) RecordHistogram(name string, value int64) {
	m.mu.RLock()
	histogram, exists := m.histograms[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		histogram, exists = m.histograms[name]
		if !exists {
			histogram = &Histogram{name: name, min: value, max: value}
			m.histograms[name] = histogram
		}
		m.mu.Unlock()
	}

	histogram.mu.Lock()
	defer histogram.mu.Unlock()

	histogram.count++
	histogram.sum += value
	if value < histogram.min {
		histogram.min = value
	}
	if value > histogram.max {
		histogram.max = value
	}
}

// GetMetrics returns a snapshot of all metrics.
func (m *MetricsCollector) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	metrics := make(map[string]interface{})

	counters := make(map[string]int64)
	for name, counter := range m.counters {
		counters[name] = atomic.LoadInt64(&counter.value)
	}
	metrics["counters"] = counters

	gauges := make(map[string]int64)
	for name, gauge := range m.gauges {
		gauges[name] = atomic.LoadInt64(&gauge.value)
	}
	metrics["gauges"] = gauges

	histograms := make(map[string]map[string]int64)
	for name, histogram := range m.histograms {
		histogram.mu.Lock()
		histograms[name] = map[string]int64{
			"count": histogram.count,
			"sum":   histogram.sum,
			"min":   histogram.min,
			"max":   histogram.max,
		}
		histogram.mu.Unlock()
	}
	metrics["histograms"] = histograms

	return metrics
}

// GetCounterValue gets the current value of a counter.
func (m *MetricsCollector) GetCounterValue(name string) int64 {
	m.mu.RLock()
	counter, exists := m.counters[name]
	m.mu.RUnlock()

	if !exists {
		return 0
	}
	return atomic.LoadInt64(&counter.value)
}

// GameMetrics records the play-facing metric events.
type GameMetrics struct {
	metrics *MetricsCollector
	logger  *Logger
}

// NewGameMetrics creates a game metrics instance.
func NewGameMetrics() *GameMetrics {
	return &GameMetrics{
		metrics: GetMetricsCollector(),
		logger:  GetLogger(),
	}
}

// RecordAPIRequest records one HTTP request.
func (gm *GameMetrics) RecordAPIRequest(endpoint, method string, statusCode int, duration time.Duration) {
	gm.metrics.IncrementCounter("api_requests_total")
	gm.metrics.IncrementCounter("api_requests_" + method + "_" + endpoint)
	gm.metrics.RecordHistogram("api_response_time_ms", duration.Milliseconds())
	gm.metrics.IncrementCounter(fmt.Sprintf("api_responses_%dxx", statusCode/100))
}

// RecordNarratorCall records one narrator round trip.
func (gm *GameMetrics) RecordNarratorCall(provider, model string, tokensUsed int, duration time.Duration) {
	gm.metrics.IncrementCounter("narrator_calls_total")
	if provider != "" {
		gm.metrics.IncrementCounter("narrator_calls_" + provider)
	}
	gm.metrics.AddCounter("narrator_tokens_total", int64(tokensUsed))
	gm.metrics.RecordHistogram("narrator_response_time_ms", duration.Milliseconds())

	gm.logger.Debug("Narrator call completed", map[string]interface{}{
		"provider": provider,
		"model":    model,
		"tokens":   tokensUsed,
		"duration": duration.Milliseconds(),
	})
}

// RecordCombatRound records one resolved combat round.
func (gm *GameMetrics) RecordCombatRound(endReason string) {
	gm.metrics.IncrementCounter("combat_rounds_total")
	if endReason != "" {
		gm.metrics.IncrementCounter("combat_ended_" + endReason)
	}
}

// RecordGameDay records one completed day cycle.
func (gm *GameMetrics) RecordGameDay() {
	gm.metrics.IncrementCounter("game_days_total")
}

// RecordError records an error metric.
func (gm *GameMetrics) RecordError(errorType, component string) {
	gm.metrics.IncrementCounter("errors_total")
	gm.metrics.IncrementCounter("errors_" + errorType + "_" + component)
}
