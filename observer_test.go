package alouette

import (
	"context"
	"errors"
	"sync"
	"testing"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	id string

	mu     sync.Mutex
	events []cloudevents.Event
}

func (o *recordingObserver) OnEvent(_ context.Context, event cloudevents.Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
	return nil
}

func (o *recordingObserver) ObserverID() string { return o.id }

func (o *recordingObserver) types() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.events))
	for i, e := range o.events {
		out[i] = e.Type()
	}
	return out
}

func TestObserverReceivesLifecycleEvents(t *testing.T) {
	a, b := newFake("a", nil), newFake("b", nil)
	b.shutdownErr = errBoom
	r, _ := newTestRegistry(t, WithServiceFactories(fakeFactories(a, b)...))

	obs := &recordingObserver{id: "all"}
	require.NoError(t, r.RegisterObserver(obs))

	require.NoError(t, r.Initialize(context.Background()))
	r.Shutdown(context.Background())

	assert.Equal(t, []string{
		EventTypeServiceInitialized,
		EventTypeServiceInitialized,
		EventTypeRegistryInitialized,
		EventTypeServiceStopped,
		EventTypeServiceStopFailed,
		EventTypeRegistryShutdown,
	}, obs.types())

	first := obs.events[0]
	assert.Equal(t, eventSource, first.Source())
	assert.NotEmpty(t, first.ID())
	assert.NoError(t, ValidateCloudEvent(first))

	var data ServiceEventData
	require.NoError(t, first.DataAs(&data))
	assert.Equal(t, ServiceEventData{Service: "a"}, data)

	require.NoError(t, obs.events[4].DataAs(&data))
	assert.Equal(t, "b", data.Service)
	assert.Contains(t, data.Error, "boom")
}

func TestObserverFiltersEventTypes(t *testing.T) {
	a := newFake("a", nil)
	a.initErr = errBoom
	r, _ := newTestRegistry(t, WithServiceFactories(fixed(a)))

	obs := &recordingObserver{id: "failures"}
	require.NoError(t, r.RegisterObserver(obs, EventTypeRegistryInitializationFailed))

	require.Error(t, r.Initialize(context.Background()))
	require.Equal(t, []string{EventTypeRegistryInitializationFailed}, obs.types())

	var data RegistryEventData
	require.NoError(t, obs.events[0].DataAs(&data))
	assert.Contains(t, data.Error, "boom")
}

func TestObserverFailuresAreIsolated(t *testing.T) {
	r, log := newTestRegistry(t, WithServiceFactories(fixed(&bareService{name: "a"})))

	require.NoError(t, r.RegisterObserver(NewFunctionalObserver("failing", func(context.Context, cloudevents.Event) error {
		return errors.New("observer broke")
	}), EventTypeRegistryInitialized))
	require.NoError(t, r.RegisterObserver(NewFunctionalObserver("panicking", func(context.Context, cloudevents.Event) error {
		panic("observer exploded")
	}), EventTypeRegistryInitialized))
	obs := &recordingObserver{id: "ok"}
	require.NoError(t, r.RegisterObserver(obs, EventTypeRegistryInitialized))

	require.NoError(t, r.Initialize(context.Background()))

	assert.Equal(t, []string{EventTypeRegistryInitialized}, obs.types())
	assert.Equal(t, 1, log.count("error", "Observer error"))
	assert.Equal(t, 1, log.count("error", "Observer panicked"))
}

func TestObserverRegistration(t *testing.T) {
	r, _ := newTestRegistry(t)

	assert.ErrorIs(t, r.RegisterObserver(nil), ErrObserverNil)
	assert.ErrorIs(t, r.UnregisterObserver(nil), ErrObserverNil)

	first := &recordingObserver{id: "first"}
	second := &recordingObserver{id: "second"}
	require.NoError(t, r.RegisterObserver(first, EventTypeServiceStopped, EventTypeRegistryShutdown))
	require.NoError(t, r.RegisterObserver(second))

	infos := r.Observers()
	require.Len(t, infos, 2)
	ids := []string{infos[0].ID, infos[1].ID}
	assert.ElementsMatch(t, []string{"first", "second"}, ids)
	for _, info := range infos {
		if info.ID == "first" {
			assert.Equal(t, []string{EventTypeRegistryShutdown, EventTypeServiceStopped}, info.EventTypes)
		} else {
			assert.Empty(t, info.EventTypes)
		}
		assert.False(t, info.RegisteredAt.IsZero())
	}

	require.NoError(t, r.UnregisterObserver(first))
	require.NoError(t, r.UnregisterObserver(first), "unregistering twice is fine")
	require.Len(t, r.Observers(), 1)
	assert.Equal(t, "second", r.Observers()[0].ID)
}

func TestNewCloudEvent(t *testing.T) {
	event := NewCloudEvent("com.alouette.test", "test", map[string]string{"k": "v"}, map[string]any{"origin": "unit"})

	assert.Equal(t, "com.alouette.test", event.Type())
	assert.Equal(t, "test", event.Source())
	assert.Equal(t, cloudevents.VersionV1, event.SpecVersion())
	assert.Equal(t, cloudevents.ApplicationJSON, event.DataContentType())
	assert.Equal(t, "unit", event.Extensions()["origin"])
	assert.NoError(t, ValidateCloudEvent(event))

	other := NewCloudEvent("com.alouette.test", "test", nil, nil)
	assert.NotEqual(t, event.ID(), other.ID())
	assert.Empty(t, other.Data())
}
