// Package alouette orchestrates the application's services: it builds a
// fixed set of named services, initializes them all or none, routes events
// between them over an event bus and reports their health.
package alouette

import (
	"context"

	"github.com/GoCodeAlone/alouette/config"
	"github.com/GoCodeAlone/alouette/services"
	"github.com/GoCodeAlone/alouette/services/translation"
)

// Dependencies are handed to every ServiceFactory.
type Dependencies = services.Dependencies

// Service is a named component managed by the Registry.
//
// Everything beyond Name is optional. A service opts into a lifecycle hook
// by implementing the matching interface below; the registry treats a
// missing hook as "not applicable", never as a failure.
type Service interface {
	// Name returns the unique registry name of the service.
	Name() string
}

// Initializer is implemented by services that need setup before use.
// The registry calls Initialize concurrently for all services.
type Initializer interface {
	Initialize(ctx context.Context) error
}

// Shutdowner is implemented by services holding resources that must be
// released. The registry calls Shutdown one service at a time.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// HealthChecker reports whether a service works. Services without it are
// considered healthy.
type HealthChecker interface {
	IsHealthy() bool
}

// InitializationReporter reports whether a service finished its own
// initialization. Services without it are considered initialized once the
// registry stored them.
type InitializationReporter interface {
	IsInitialized() bool
}

// ErrorReporter exposes the last error a service ran into.
type ErrorReporter interface {
	LastError() error
}

// ConfigChangeHandler receives every new configuration snapshot.
type ConfigChangeHandler interface {
	OnConfigChanged(ctx context.Context, cfg config.Config)
}

// TranslationListener is notified when a translation completes.
type TranslationListener interface {
	OnTranslationCompleted(ctx context.Context, result translation.Result)
}
