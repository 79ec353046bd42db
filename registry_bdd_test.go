package alouette

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cucumber/godog"

	"github.com/GoCodeAlone/alouette/eventbus"
	"github.com/GoCodeAlone/alouette/services/servicestest"
)

// Static error variables for BDD tests
var (
	errExpectedInitializationToFail = errors.New("expected initialization to fail")
	errUnexpectedState              = errors.New("unexpected registry state")
)

type registryBDDContext struct {
	registry    *Registry
	logger      *testLogger
	fakes       map[string]*fakeService
	constructed map[string]int
	initErr     error
	recorded    []any
}

func (c *registryBDDContext) reset() {
	c.registry = nil
	c.logger = &testLogger{}
	c.fakes = make(map[string]*fakeService)
	c.constructed = make(map[string]int)
	c.initErr = nil
	c.recorded = nil
}

func splitNames(list string) []string {
	parts := strings.Split(list, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func (c *registryBDDContext) aRegistryWithTheDefaultServices() error {
	c.registry = NewRegistry(Dependencies{Invoker: servicestest.NewInvoker(), Logger: c.logger})
	return nil
}

func (c *registryBDDContext) aRegistryWithServices(list string) error {
	var factories []ServiceFactory
	for _, name := range splitNames(list) {
		svc := newFake(name, nil)
		c.fakes[name] = svc
		factories = append(factories, func(Dependencies) (Service, error) {
			c.constructed[svc.name]++
			return svc, nil
		})
	}
	c.registry = NewRegistry(Dependencies{Logger: c.logger}, WithServiceFactories(factories...))
	return nil
}

func (c *registryBDDContext) serviceFailsToInitialize(name string) error {
	c.fakes[name].initErr = errBoom
	return nil
}

func (c *registryBDDContext) serviceFailsToShutDown(name string) error {
	c.fakes[name].shutdownErr = errBoom
	return nil
}

func (c *registryBDDContext) iInitializeTheRegistry() error {
	c.initErr = c.registry.Initialize(context.Background())
	return nil
}

func (c *registryBDDContext) iShutDownTheRegistry() error {
	c.registry.Shutdown(context.Background())
	return nil
}

func (c *registryBDDContext) initializationShouldSucceed() error {
	return c.initErr
}

func (c *registryBDDContext) initializationShouldFailMentioning(name string) error {
	if c.initErr == nil {
		return errExpectedInitializationToFail
	}
	if !errors.Is(c.initErr, ErrInitializationFailed) || !strings.Contains(c.initErr.Error(), name) {
		return fmt.Errorf("unexpected initialization error: %w", c.initErr)
	}
	return nil
}

func (c *registryBDDContext) theRegistryShouldBeInitialized() error {
	if !c.registry.IsInitialized() || !c.registry.HealthStatus().IsInitialized {
		return fmt.Errorf("%w: not initialized", errUnexpectedState)
	}
	return nil
}

func (c *registryBDDContext) theRegistryShouldNotBeInitialized() error {
	if c.registry.IsInitialized() || c.registry.HealthStatus().IsInitialized {
		return fmt.Errorf("%w: initialized", errUnexpectedState)
	}
	return nil
}

func (c *registryBDDContext) theRegistryShouldHoldNoServices() error {
	if n := len(c.registry.Services()); n != 0 {
		return fmt.Errorf("%w: %d services registered", errUnexpectedState, n)
	}
	return nil
}

func (c *registryBDDContext) theHealthStatusShouldListHealthyServices(count int) error {
	health := c.registry.HealthStatus()
	if len(health.Services) != count {
		return fmt.Errorf("%w: %d services in health status", errUnexpectedState, len(health.Services))
	}
	for name, h := range health.Services {
		if !h.Initialized || !h.Healthy {
			return fmt.Errorf("%w: service %s is %+v", errUnexpectedState, name, h)
		}
	}
	return nil
}

func (c *registryBDDContext) everyServiceShouldHaveBeenConstructedOnce() error {
	for name, n := range c.constructed {
		if n != 1 {
			return fmt.Errorf("%w: %s constructed %d times", errUnexpectedState, name, n)
		}
	}
	return nil
}

func (c *registryBDDContext) aWarningShouldHaveBeenLogged() error {
	if c.logger.count("warn", "already initialized") != 1 {
		return fmt.Errorf("%w: missing warning", errUnexpectedState)
	}
	return nil
}

func (c *registryBDDContext) servicesShouldHaveBeenRolledBack(list string) error {
	for _, name := range splitNames(list) {
		if _, shutdowns := c.fakes[name].counts(); shutdowns != 1 {
			return fmt.Errorf("%w: %s shut down %d times", errUnexpectedState, name, shutdowns)
		}
	}
	return nil
}

func (c *registryBDDContext) servicesShouldHaveBeenShutDownOnce(list string) error {
	return c.servicesShouldHaveBeenRolledBack(list)
}

func (c *registryBDDContext) theEventBusShouldHaveNoListeners() error {
	if topics := c.registry.EventBus().Topics(); len(topics) != 0 {
		return fmt.Errorf("%w: listeners on %v", errUnexpectedState, topics)
	}
	return nil
}

func (c *registryBDDContext) lookingUpShouldFailWithServiceNotFound(name string) error {
	if _, err := c.registry.Service(name); !errors.Is(err, ErrServiceNotFound) {
		return fmt.Errorf("%w: lookup returned %v", errUnexpectedState, err)
	}
	return nil
}

func (c *registryBDDContext) aRecorderSubscribedTo(topicName string) error {
	topic, err := eventbus.ParseTopic(topicName)
	if err != nil {
		return err
	}
	_, err = c.registry.EventBus().Subscribe(topic, func(_ context.Context, ev eventbus.Event) error {
		c.recorded = append(c.recorded, ev.Payload)
		return nil
	})
	return err
}

func (c *registryBDDContext) iEmitWithIDs(topicName string, first, second int) error {
	topic, err := eventbus.ParseTopic(topicName)
	if err != nil {
		return err
	}
	bus := c.registry.EventBus()
	bus.Emit(context.Background(), topic, map[string]int{"id": first})
	bus.Emit(context.Background(), topic, map[string]int{"id": second})
	return nil
}

func (c *registryBDDContext) theRecorderShouldHaveSeenIDsInOrder(first, second int) error {
	if len(c.recorded) != 2 {
		return fmt.Errorf("%w: recorded %v", errUnexpectedState, c.recorded)
	}
	for i, want := range []int{first, second} {
		got, ok := c.recorded[i].(map[string]int)
		if !ok || got["id"] != want {
			return fmt.Errorf("%w: event %d was %v", errUnexpectedState, i, c.recorded[i])
		}
	}
	return nil
}

func initializeRegistryScenario(ctx *godog.ScenarioContext) {
	c := &registryBDDContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		c.reset()
		return ctx, nil
	})
	ctx.After(func(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if c.registry != nil {
			c.registry.Shutdown(context.Background())
		}
		return ctx, nil
	})

	ctx.Step(`^a registry with the default services$`, c.aRegistryWithTheDefaultServices)
	ctx.Step(`^a registry with services "([^"]*)"$`, c.aRegistryWithServices)
	ctx.Step(`^service "([^"]*)" fails to initialize$`, c.serviceFailsToInitialize)
	ctx.Step(`^service "([^"]*)" fails to shut down$`, c.serviceFailsToShutDown)
	ctx.Step(`^I initialize the registry$`, c.iInitializeTheRegistry)
	ctx.Step(`^I shut down the registry$`, c.iShutDownTheRegistry)
	ctx.Step(`^initialization should succeed$`, c.initializationShouldSucceed)
	ctx.Step(`^initialization should fail mentioning "([^"]*)"$`, c.initializationShouldFailMentioning)
	ctx.Step(`^the registry should be initialized$`, c.theRegistryShouldBeInitialized)
	ctx.Step(`^the registry should not be initialized$`, c.theRegistryShouldNotBeInitialized)
	ctx.Step(`^the registry should hold no services$`, c.theRegistryShouldHoldNoServices)
	ctx.Step(`^the health status should list (\d+) healthy services$`, c.theHealthStatusShouldListHealthyServices)
	ctx.Step(`^every service should have been constructed once$`, c.everyServiceShouldHaveBeenConstructedOnce)
	ctx.Step(`^a warning should have been logged$`, c.aWarningShouldHaveBeenLogged)
	ctx.Step(`^services "([^"]*)" should have been rolled back$`, c.servicesShouldHaveBeenRolledBack)
	ctx.Step(`^services "([^"]*)" should have been shut down once$`, c.servicesShouldHaveBeenShutDownOnce)
	ctx.Step(`^the event bus should have no listeners$`, c.theEventBusShouldHaveNoListeners)
	ctx.Step(`^looking up "([^"]*)" should fail with service not found$`, c.lookingUpShouldFailWithServiceNotFound)
	ctx.Step(`^a recorder subscribed to "([^"]*)"$`, c.aRecorderSubscribedTo)
	ctx.Step(`^I emit "([^"]*)" with ids (\d+) and (\d+)$`, c.iEmitWithIDs)
	ctx.Step(`^the recorder should have seen ids (\d+) and (\d+) in order$`, c.theRecorderShouldHaveSeenIDsInOrder)
}

func TestRegistryLifecycleFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: initializeRegistryScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/registry_lifecycle.feature"},
			TestingT: t,
			Strict:   true,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
