package alouette

import (
	"github.com/GoCodeAlone/alouette/services/cache"
	"github.com/GoCodeAlone/alouette/services/llmconfig"
	"github.com/GoCodeAlone/alouette/services/translation"
	"github.com/GoCodeAlone/alouette/services/tts"
)

// ServiceFactory constructs one service. Factories run in order during
// Initialize; construction must not start background work, which belongs
// in Initialize.
type ServiceFactory func(deps Dependencies) (Service, error)

// DefaultServiceFactories returns the factories of the application
// services: translation, tts, llmConfig and cache, in that order.
func DefaultServiceFactories() []ServiceFactory {
	return []ServiceFactory{
		factoryOf(translation.New),
		factoryOf(func(d Dependencies) (*tts.Service, error) { return tts.New(d) }),
		factoryOf(llmconfig.New),
		factoryOf(cache.New),
	}
}

// DefaultServiceNames lists the names of the default services in
// registration order.
func DefaultServiceNames() []string {
	return []string{translation.Name, tts.Name, llmconfig.Name, cache.Name}
}

// factoryOf adapts a typed constructor so a failed construction yields a
// nil Service rather than a typed nil.
func factoryOf[S Service](build func(Dependencies) (S, error)) ServiceFactory {
	return func(deps Dependencies) (Service, error) {
		svc, err := build(deps)
		if err != nil {
			return nil, err
		}
		return svc, nil
	}
}
