// Package metrics defines the Prometheus instruments shared by the registry
// and the backend invoker.
//
// Usage:
//
//	m, err := metrics.New(prometheus.DefaultRegisterer, "")
//	registry := alouette.NewRegistry(deps, alouette.WithMetrics(m))
//
// A nil *Metrics is valid and records nothing, so instrumented code never
// has to check whether metrics were configured.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every metric name when New is given "".
const DefaultNamespace = "alouette"

// Outcome labels for backend invocations.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics bundles the instruments. Construct it with New.
type Metrics struct {
	initDuration     prometheus.Histogram
	initFailures     prometheus.Counter
	rollbackFailures prometheus.Counter
	shutdownFailures *prometheus.CounterVec
	serviceHealthy   *prometheus.GaugeVec
	backendRequests  *prometheus.CounterVec
	backendDuration  *prometheus.HistogramVec
	backendRetries   *prometheus.CounterVec
}

// New creates the instruments and registers them with reg. A nil reg
// leaves them unregistered, which is convenient in tests.
func New(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	m := &Metrics{
		initDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "initialization_duration_seconds",
			Help:      "Time spent initializing all services",
			Buckets:   prometheus.DefBuckets,
		}),
		initFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "initialization_failures_total",
			Help:      "Registry initializations that failed",
		}),
		rollbackFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "rollback_failures_total",
			Help:      "Services that failed to shut down while rolling back a failed initialization",
		}),
		shutdownFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "shutdown_failures_total",
			Help:      "Service shutdown hooks that returned an error",
		}, []string{"service"}),
		serviceHealthy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "service_healthy",
			Help:      "1 when the service reported healthy on the last health snapshot",
		}, []string{"service"}),
		backendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "requests_total",
			Help:      "Backend command invocations by outcome",
		}, []string{"command", "outcome"}),
		backendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "request_duration_seconds",
			Help:      "Backend command latency including retries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),
		backendRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "retries_total",
			Help:      "Backend command attempts that were retried",
		}, []string{"command"}),
	}

	if reg != nil {
		for _, c := range m.collectors() {
			if err := reg.Register(c); err != nil {
				return nil, fmt.Errorf("failed to register metrics: %w", err)
			}
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.initDuration,
		m.initFailures,
		m.rollbackFailures,
		m.shutdownFailures,
		m.serviceHealthy,
		m.backendRequests,
		m.backendDuration,
		m.backendRetries,
	}
}

// ObserveInitialization records one Initialize run.
func (m *Metrics) ObserveInitialization(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.initDuration.Observe(d.Seconds())
	if err != nil {
		m.initFailures.Inc()
	}
}

// RollbackFailed counts a service that failed to shut down during rollback.
func (m *Metrics) RollbackFailed() {
	if m == nil {
		return
	}
	m.rollbackFailures.Inc()
}

// ShutdownFailed counts a failed shutdown hook.
func (m *Metrics) ShutdownFailed(service string) {
	if m == nil {
		return
	}
	m.shutdownFailures.WithLabelValues(service).Inc()
}

// SetServiceHealth records the health of one service.
func (m *Metrics) SetServiceHealth(service string, healthy bool) {
	if m == nil {
		return
	}
	v := 0.0
	if healthy {
		v = 1
	}
	m.serviceHealthy.WithLabelValues(service).Set(v)
}

// ResetServiceHealth forgets every service, e.g. after shutdown.
func (m *Metrics) ResetServiceHealth() {
	if m == nil {
		return
	}
	m.serviceHealthy.Reset()
}

// ObserveBackendCall records one completed invocation.
func (m *Metrics) ObserveBackendCall(command string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	m.backendRequests.WithLabelValues(command, outcome).Inc()
	m.backendDuration.WithLabelValues(command).Observe(d.Seconds())
}

// BackendRetried counts a retried attempt.
func (m *Metrics) BackendRetried(command string) {
	if m == nil {
		return
	}
	m.backendRetries.WithLabelValues(command).Inc()
}
