package alouette

import (
	"time"
)

// HealthStatus is a point-in-time report of the registry and its
// services. It is computed on every call to Registry.HealthStatus.
type HealthStatus struct {
	IsInitialized bool                     `json:"isInitialized"`
	Timestamp     time.Time                `json:"timestamp"`
	Services      map[string]ServiceHealth `json:"services"`
}

// ServiceHealth is the state of one service.
type ServiceHealth struct {
	Initialized bool   `json:"initialized"`
	Healthy     bool   `json:"healthy"`
	LastError   string `json:"lastError,omitempty"`
}

// Healthy reports whether the registry is initialized and every service is
// healthy.
func (h HealthStatus) Healthy() bool {
	if !h.IsInitialized {
		return false
	}
	for _, s := range h.Services {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// HealthStatus reports the health of every registered service. Services
// without a health predicate count as healthy, those without an
// initialization report as initialized.
func (r *Registry) HealthStatus() HealthStatus {
	r.mu.RLock()
	status := HealthStatus{
		IsInitialized: r.initialized,
		Timestamp:     time.Now(),
		Services:      make(map[string]ServiceHealth, len(r.services)),
	}
	svcs := make(map[string]Service, len(r.services))
	for name, svc := range r.services {
		svcs[name] = svc
	}
	r.mu.RUnlock()

	for name, svc := range svcs {
		status.Services[name] = serviceHealth(svc)
		r.metrics.SetServiceHealth(name, status.Services[name].Healthy)
	}
	return status
}

func serviceHealth(svc Service) ServiceHealth {
	h := ServiceHealth{Initialized: true, Healthy: true}
	if ir, ok := svc.(InitializationReporter); ok {
		h.Initialized = ir.IsInitialized()
	}
	if hc, ok := svc.(HealthChecker); ok {
		h.Healthy = hc.IsHealthy()
	}
	if er, ok := svc.(ErrorReporter); ok {
		if err := er.LastError(); err != nil {
			h.LastError = err.Error()
		}
	}
	return h
}
