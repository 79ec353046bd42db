package alouette

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/GoCodeAlone/alouette/eventbus"
	"github.com/GoCodeAlone/alouette/logging"
	"github.com/GoCodeAlone/alouette/metrics"
)

// Registry owns the application services and the event bus connecting
// them.
//
// The registry is empty until Initialize succeeds and is emptied again by
// Shutdown. Callers never observe a partially populated registry.
type Registry struct {
	deps      Dependencies
	logger    Logger
	bus       *eventbus.Bus
	factories []ServiceFactory
	rollback  bool
	metrics   *metrics.Metrics

	initGroup singleflight.Group
	// lifecycle serializes Initialize and Shutdown.
	lifecycle sync.Mutex

	mu          sync.RWMutex
	services    map[string]Service
	order       []string
	routes      []eventbus.Subscription
	initialized bool

	observerMu sync.RWMutex
	observers  map[string]*observerRegistration
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithServiceFactories replaces the default services. Services are
// constructed and shut down in the order given.
func WithServiceFactories(factories ...ServiceFactory) RegistryOption {
	return func(r *Registry) {
		r.factories = append([]ServiceFactory(nil), factories...)
	}
}

// WithRollbackOnFailure controls whether services that initialized are shut
// down again when another service fails to initialize. Enabled by default.
func WithRollbackOnFailure(enabled bool) RegistryOption {
	return func(r *Registry) {
		r.rollback = enabled
	}
}

// WithMetrics records lifecycle metrics.
func WithMetrics(m *metrics.Metrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = m
	}
}

// NewRegistry creates an uninitialized registry. When deps carries no
// event bus the registry creates its own; either way the bus is handed to
// every service.
func NewRegistry(deps Dependencies, opts ...RegistryOption) *Registry {
	deps.Logger = logging.OrNop(deps.Logger)
	if deps.Bus == nil {
		deps.Bus = eventbus.New(eventbus.WithLogger(deps.Logger))
	}

	r := &Registry{
		deps:      deps,
		logger:    deps.Logger,
		bus:       deps.Bus,
		factories: DefaultServiceFactories(),
		rollback:  true,
		services:  make(map[string]Service),
		observers: make(map[string]*observerRegistration),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Initialize constructs every service and initializes them concurrently.
//
// Either all services initialize and the registry becomes initialized, or
// the returned error wraps ErrInitializationFailed and the registry stays
// empty. With rollback enabled the services that did initialize are shut
// down again; rollback failures are joined onto the returned error.
//
// Calling Initialize on an initialized registry logs a warning and does
// nothing. Concurrent callers share a single initialization.
func (r *Registry) Initialize(ctx context.Context) error {
	_, err, _ := r.initGroup.Do("initialize", func() (any, error) {
		return nil, r.initialize(ctx)
	})
	return err
}

func (r *Registry) initialize(ctx context.Context) error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	if r.IsInitialized() {
		r.logger.Warn("Service registry already initialized")
		return nil
	}

	start := time.Now()
	r.logger.Info("Initializing services", "count", len(r.factories))

	built, err := r.construct()
	if err != nil {
		return r.failInitialization(ctx, start, err)
	}

	initialized := make([]bool, len(built))
	g, gctx := errgroup.WithContext(ctx)
	for i, svc := range built {
		initializer, ok := svc.(Initializer)
		if !ok {
			initialized[i] = true
			continue
		}
		g.Go(func() error {
			if err := initializer.Initialize(gctx); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrInitializationFailed, svc.Name(), err)
			}
			initialized[i] = true
			r.logger.Debug("Service initialized", "service", svc.Name())
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if r.rollback {
			err = multierr.Append(err, r.rollbackServices(context.WithoutCancel(ctx), built, initialized))
		}
		return r.failInitialization(ctx, start, err)
	}

	names := make([]string, 0, len(built))
	byName := make(map[string]Service, len(built))
	for _, svc := range built {
		names = append(names, svc.Name())
		byName[svc.Name()] = svc
	}

	r.mu.Lock()
	r.services = byName
	r.order = names
	r.initialized = true
	r.mu.Unlock()

	r.installRoutes()

	elapsed := time.Since(start)
	r.metrics.ObserveInitialization(elapsed, nil)
	r.logger.Info("Services initialized", "services", names, "duration", elapsed)

	for _, name := range names {
		r.notify(ctx, EventTypeServiceInitialized, ServiceEventData{Service: name})
	}
	r.notify(ctx, EventTypeRegistryInitialized, RegistryEventData{Services: names, Duration: elapsed})
	return nil
}

// construct runs the factories in order.
func (r *Registry) construct() ([]Service, error) {
	built := make([]Service, 0, len(r.factories))
	seen := make(map[string]bool, len(r.factories))
	for i, factory := range r.factories {
		svc, err := factory(r.deps)
		if err != nil {
			return nil, fmt.Errorf("%w: constructing service %d: %w", ErrInitializationFailed, i, err)
		}
		if svc == nil {
			return nil, fmt.Errorf("%w: %w: factory %d", ErrInitializationFailed, ErrNilService, i)
		}
		if seen[svc.Name()] {
			return nil, fmt.Errorf("%w: %w: %s", ErrInitializationFailed, ErrDuplicateService, svc.Name())
		}
		seen[svc.Name()] = true
		built = append(built, svc)
	}
	return built, nil
}

func (r *Registry) failInitialization(ctx context.Context, start time.Time, err error) error {
	r.metrics.ObserveInitialization(time.Since(start), err)
	r.logger.Error("Service initialization failed", "error", err)
	r.notify(ctx, EventTypeRegistryInitializationFailed, RegistryEventData{
		Duration: time.Since(start),
		Error:    err.Error(),
	})
	return err
}

// rollbackServices shuts down, in registration order, the services whose
// initializer succeeded.
func (r *Registry) rollbackServices(ctx context.Context, built []Service, initialized []bool) error {
	var errs error
	for i, svc := range built {
		if !initialized[i] {
			continue
		}
		sd, ok := svc.(Shutdowner)
		if !ok {
			continue
		}
		r.logger.Info("Rolling back service", "service", svc.Name())
		if err := sd.Shutdown(ctx); err != nil {
			r.logger.Error("Service rollback failed", "service", svc.Name(), "error", err)
			r.metrics.RollbackFailed()
			errs = multierr.Append(errs, fmt.Errorf("%w: %s: %w", ErrRollbackFailed, svc.Name(), err))
		}
	}
	return errs
}

// Service returns the service registered under name.
func (r *Registry) Service(name string) (Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.services[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	return svc, nil
}

// Services returns a copy of the registered services keyed by name.
func (r *Registry) Services() map[string]Service {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Service, len(r.services))
	for name, svc := range r.services {
		out[name] = svc
	}
	return out
}

// ServiceNames returns the registered names in registration order.
func (r *Registry) ServiceNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// EventBus returns the bus shared by the registry and its services.
func (r *Registry) EventBus() *eventbus.Bus {
	return r.bus
}

// IsInitialized reports whether Initialize succeeded and Shutdown has not
// run since.
func (r *Registry) IsInitialized() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.initialized
}

// Shutdown stops every service in registration order. A failing service is
// logged and reported to observers, and shutdown moves on to the next one.
// Afterwards the registry and the event bus are empty and the registry is
// uninitialized, regardless of individual failures.
func (r *Registry) Shutdown(ctx context.Context) {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	r.mu.RLock()
	order := append([]string(nil), r.order...)
	svcs := r.services
	r.mu.RUnlock()

	r.logger.Info("Shutting down services", "count", len(order))

	failed := 0
	for _, name := range order {
		sd, ok := svcs[name].(Shutdowner)
		if !ok {
			r.notify(ctx, EventTypeServiceStopped, ServiceEventData{Service: name})
			continue
		}
		if err := sd.Shutdown(ctx); err != nil {
			failed++
			err = fmt.Errorf("%w: %s: %w", ErrShutdownFailed, name, err)
			r.logger.Error("Service shutdown failed", "service", name, "error", err)
			r.metrics.ShutdownFailed(name)
			r.notify(ctx, EventTypeServiceStopFailed, ServiceEventData{Service: name, Error: err.Error()})
			continue
		}
		r.logger.Debug("Service stopped", "service", name)
		r.notify(ctx, EventTypeServiceStopped, ServiceEventData{Service: name})
	}

	r.removeRoutes()
	r.bus.RemoveAllListeners()

	r.mu.Lock()
	r.services = make(map[string]Service)
	r.order = nil
	r.initialized = false
	r.mu.Unlock()
	r.metrics.ResetServiceHealth()

	r.logger.Info("Services shut down", "failed", failed)
	r.notify(ctx, EventTypeRegistryShutdown, RegistryEventData{Services: order})
}
