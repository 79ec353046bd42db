// Package services holds what the leaf application services share: the
// dependencies the registry hands to each of them.
//
// Each leaf service lives in its own subpackage and reaches the native
// backend only through backend.Invoker.
package services

import (
	"errors"

	"github.com/GoCodeAlone/alouette/backend"
	"github.com/GoCodeAlone/alouette/config"
	"github.com/GoCodeAlone/alouette/eventbus"
	"github.com/GoCodeAlone/alouette/logging"
)

// ErrNoInvoker is returned by service constructors when Dependencies
// carries no backend.
var ErrNoInvoker = errors.New("services: backend invoker is required")

// Dependencies are handed to every service factory.
type Dependencies struct {
	// Invoker reaches the native backend.
	Invoker backend.Invoker
	// Bus is the registry's event bus. The registry fills it in.
	Bus *eventbus.Bus
	Logger logging.Logger
	// Config is the settings snapshot at construction time. Later changes
	// arrive through OnConfigChanged.
	Config config.Config
	// Platform is the host the application runs on.
	Platform config.Platform
}

// WithDefaults fills the optional fields left empty.
func (d Dependencies) WithDefaults() Dependencies {
	d.Logger = logging.OrNop(d.Logger)
	if d.Bus == nil {
		d.Bus = eventbus.New(eventbus.WithLogger(d.Logger))
	}
	if d.Config == (config.Config{}) {
		d.Config = config.Default()
	}
	return d
}

// Validate reports missing required dependencies.
func (d Dependencies) Validate() error {
	if d.Invoker == nil {
		return ErrNoInvoker
	}
	return nil
}
