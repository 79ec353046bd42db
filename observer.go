package alouette

import (
	"context"
	"sort"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Observer is notified of registry lifecycle events. Events use the
// CloudEvents format so they can be forwarded to external systems as is.
type Observer interface {
	// OnEvent is called synchronously by the registry. Observers should
	// return quickly; errors and panics are logged and do not reach other
	// observers.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier used for registration.
	ObserverID() string
}

// ObserverInfo describes a registered observer.
type ObserverInfo struct {
	ID string `json:"id"`

	// EventTypes the observer is subscribed to; empty means all.
	EventTypes []string `json:"eventTypes"`

	RegisteredAt time.Time `json:"registeredAt"`
}

// Lifecycle event types emitted by the registry.
const (
	EventTypeRegistryInitialized          = "com.alouette.registry.initialized"
	EventTypeRegistryInitializationFailed = "com.alouette.registry.initialization_failed"
	EventTypeRegistryShutdown             = "com.alouette.registry.shutdown"

	EventTypeServiceInitialized = "com.alouette.service.initialized"
	EventTypeServiceStopped     = "com.alouette.service.stopped"
	EventTypeServiceStopFailed  = "com.alouette.service.stop_failed"
)

// eventSource is the CloudEvents source of registry events.
const eventSource = "alouette/registry"

// FunctionalObserver adapts a function to Observer.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver returns an Observer calling handler.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FunctionalObserver{id: id, handler: handler}
}

func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

func (f *FunctionalObserver) ObserverID() string {
	return f.id
}

type observerRegistration struct {
	observer     Observer
	eventTypes   map[string]bool
	registeredAt time.Time
}

func (r *observerRegistration) wants(eventType string) bool {
	return len(r.eventTypes) == 0 || r.eventTypes[eventType]
}

// RegisterObserver subscribes observer to the given event types, or to all
// events when none are given. Registering an ID again replaces the earlier
// registration.
func (r *Registry) RegisterObserver(observer Observer, eventTypes ...string) error {
	if observer == nil {
		return ErrObserverNil
	}

	types := make(map[string]bool, len(eventTypes))
	for _, t := range eventTypes {
		types[t] = true
	}

	r.observerMu.Lock()
	r.observers[observer.ObserverID()] = &observerRegistration{
		observer:     observer,
		eventTypes:   types,
		registeredAt: time.Now(),
	}
	r.observerMu.Unlock()

	r.logger.Debug("Observer registered", "observerID", observer.ObserverID(), "eventTypes", eventTypes)
	return nil
}

// UnregisterObserver removes observer. Unknown observers are ignored.
func (r *Registry) UnregisterObserver(observer Observer) error {
	if observer == nil {
		return ErrObserverNil
	}

	r.observerMu.Lock()
	defer r.observerMu.Unlock()
	if _, ok := r.observers[observer.ObserverID()]; ok {
		delete(r.observers, observer.ObserverID())
		r.logger.Debug("Observer unregistered", "observerID", observer.ObserverID())
	}
	return nil
}

// Observers lists the registered observers ordered by registration time.
func (r *Registry) Observers() []ObserverInfo {
	r.observerMu.RLock()
	defer r.observerMu.RUnlock()

	info := make([]ObserverInfo, 0, len(r.observers))
	for _, reg := range r.observers {
		types := make([]string, 0, len(reg.eventTypes))
		for t := range reg.eventTypes {
			types = append(types, t)
		}
		sort.Strings(types)
		info = append(info, ObserverInfo{
			ID:           reg.observer.ObserverID(),
			EventTypes:   types,
			RegisteredAt: reg.registeredAt,
		})
	}
	sort.Slice(info, func(i, j int) bool {
		if info[i].RegisteredAt.Equal(info[j].RegisteredAt) {
			return info[i].ID < info[j].ID
		}
		return info[i].RegisteredAt.Before(info[j].RegisteredAt)
	})
	return info
}

// notify delivers a lifecycle event to every interested observer.
func (r *Registry) notify(ctx context.Context, eventType string, data any) {
	r.observerMu.RLock()
	targets := make([]*observerRegistration, 0, len(r.observers))
	for _, reg := range r.observers {
		if reg.wants(eventType) {
			targets = append(targets, reg)
		}
	}
	r.observerMu.RUnlock()
	if len(targets) == 0 {
		return
	}

	event := NewCloudEvent(eventType, eventSource, data, nil)
	if err := ValidateCloudEvent(event); err != nil {
		r.logger.Error("Invalid CloudEvent", "eventType", eventType, "error", err)
		return
	}

	for _, reg := range targets {
		r.deliver(ctx, reg.observer, event)
	}
}

func (r *Registry) deliver(ctx context.Context, observer Observer, event cloudevents.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Observer panicked", "observerID", observer.ObserverID(), "event", event.Type(), "panic", rec)
		}
	}()
	if err := observer.OnEvent(ctx, event); err != nil {
		r.logger.Error("Observer error", "observerID", observer.ObserverID(), "event", event.Type(), "error", err)
	}
}
