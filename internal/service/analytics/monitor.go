package analytics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Health status values combining circuit state and recent error rate
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
)

// degradedErrorRate is the recent-window error rate above which the
// pipeline reports degraded even with every circuit closed
const degradedErrorRate = 0.5

// monitorWindow bounds how far back the error-rate window reaches
const monitorWindow = 5 * time.Minute

var (
	operationsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tab",
			Subsystem: "analytics",
			Name:      "operations_started_total",
			Help:      "Analysis operations begun",
		},
		[]string{"operation"},
	)

	operationsSucceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tab",
			Subsystem: "analytics",
			Name:      "operations_succeeded_total",
			Help:      "Analysis operations completed without a dependency failure",
		},
		[]string{"operation"},
	)

	operationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tab",
			Subsystem: "analytics",
			Name:      "operations_failed_total",
			Help:      "Analysis operations that failed after retries",
		},
		[]string{"operation"},
	)

	operationsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tab",
			Subsystem: "analytics",
			Name:      "operations_rejected_total",
			Help:      "Analysis operations rejected by an open circuit or rate limit",
		},
		[]string{"operation", "reason"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tab",
			Subsystem: "analytics",
			Name:      "operation_duration_seconds",
			Help:      "End-to-end analysis duration including retries",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
		},
		[]string{"operation"},
	)

	circuitStateGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tab",
			Subsystem: "analytics",
			Name:      "circuit_state",
			Help:      "Circuit state per operation: 0 closed, 1 open, 2 half-open",
		},
		[]string{"operation"},
	)
)

type executionRecord struct {
	at      time.Time
	success bool
}

// ExecutionMonitor records start, completion and error events per
// operation and aggregates a health status from circuit states and the
// recent error rate.
type ExecutionMonitor struct {
	breakers *CircuitBreakerRegistry

	mu     sync.Mutex
	recent []executionRecord

	now func() time.Time
}

// NewExecutionMonitor creates a monitor over the breaker registry
func NewExecutionMonitor(breakers *CircuitBreakerRegistry) *ExecutionMonitor {
	return &ExecutionMonitor{
		breakers: breakers,
		now:      time.Now,
	}
}

// RecordStart marks an operation as begun and returns its start time
func (m *ExecutionMonitor) RecordStart(operation string) time.Time {
	operationsStarted.WithLabelValues(operation).Inc()
	return m.now()
}

// RecordSuccess marks an operation as completed
func (m *ExecutionMonitor) RecordSuccess(operation string, start time.Time) {
	operationsSucceeded.WithLabelValues(operation).Inc()
	operationDuration.WithLabelValues(operation).Observe(m.now().Sub(start).Seconds())
	m.append(executionRecord{at: m.now(), success: true})
	m.exportCircuitStates()
}

// RecordFailure marks an operation as failed after retries were exhausted
func (m *ExecutionMonitor) RecordFailure(operation string, start time.Time) {
	operationsFailed.WithLabelValues(operation).Inc()
	operationDuration.WithLabelValues(operation).Observe(m.now().Sub(start).Seconds())
	m.append(executionRecord{at: m.now(), success: false})
	m.exportCircuitStates()
}

// RecordRejection marks an operation that never ran
func (m *ExecutionMonitor) RecordRejection(operation, reason string) {
	operationsRejected.WithLabelValues(operation, reason).Inc()
	m.exportCircuitStates()
}

// Health combines circuit states with the recent error rate
func (m *ExecutionMonitor) Health() HealthStatus {
	for _, state := range m.breakers.States() {
		if state != CircuitClosed {
			return HealthDegraded
		}
	}

	if m.recentErrorRate() > degradedErrorRate {
		return HealthDegraded
	}
	return HealthHealthy
}

func (m *ExecutionMonitor) append(rec executionRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-monitorWindow)
	pruned := m.recent[:0]
	for _, r := range m.recent {
		if r.at.After(cutoff) {
			pruned = append(pruned, r)
		}
	}
	m.recent = append(pruned, rec)
}

func (m *ExecutionMonitor) recentErrorRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-monitorWindow)
	var total, failed int
	for _, r := range m.recent {
		if !r.at.After(cutoff) {
			continue
		}
		total++
		if !r.success {
			failed++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(failed) / float64(total)
}

func (m *ExecutionMonitor) exportCircuitStates() {
	for op, state := range m.breakers.States() {
		circuitStateGauge.WithLabelValues(op).Set(float64(state))
	}
}
