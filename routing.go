package alouette

import (
	"context"
	"fmt"

	"github.com/GoCodeAlone/alouette/config"
	"github.com/GoCodeAlone/alouette/eventbus"
	"github.com/GoCodeAlone/alouette/services/translation"
	"github.com/GoCodeAlone/alouette/services/tts"
)

// route binds a topic to a handler for the lifetime of an initialized
// registry.
type route struct {
	topic   eventbus.Topic
	handler eventbus.Handler
}

// routingTable is the fixed wiring between services:
//
//	translation:completed   -> tts OnTranslationCompleted
//	tts:playback:started    -> log
//	tts:playback:completed  -> log
//	config:changed          -> OnConfigChanged of every service that has it
func (r *Registry) routingTable() []route {
	return []route{
		{eventbus.TopicTranslationCompleted, r.routeTranslationCompleted},
		{eventbus.TopicPlaybackStarted, r.logPlayback},
		{eventbus.TopicPlaybackCompleted, r.logPlayback},
		{eventbus.TopicConfigChanged, r.routeConfigChanged},
	}
}

func (r *Registry) installRoutes() {
	subs := make([]eventbus.Subscription, 0, 4)
	for _, rt := range r.routingTable() {
		sub, err := r.bus.Subscribe(rt.topic, rt.handler)
		if err != nil {
			// The table only holds valid topics and non-nil handlers.
			panic(fmt.Sprintf("alouette: installing route for %s: %v", rt.topic, err))
		}
		subs = append(subs, sub)
	}

	r.mu.Lock()
	r.routes = subs
	r.mu.Unlock()
	r.logger.Debug("Routing rules installed", "routes", len(subs))
}

func (r *Registry) removeRoutes() {
	r.mu.Lock()
	subs := r.routes
	r.routes = nil
	r.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Cancel()
	}
}

func (r *Registry) routeTranslationCompleted(ctx context.Context, ev eventbus.Event) error {
	result, ok := ev.Payload.(translation.Result)
	if !ok {
		return fmt.Errorf("%w: %s carries %T", ErrUnexpectedPayload, ev.Topic, ev.Payload)
	}

	svc, err := r.Service(tts.Name)
	if err != nil {
		r.logger.Debug("No playback service for completed translation", "service", tts.Name, "error", err)
		return nil
	}
	l, ok := svc.(TranslationListener)
	if !ok {
		r.logger.Debug("Playback service ignores completed translations", "service", tts.Name)
		return nil
	}
	l.OnTranslationCompleted(ctx, result)
	return nil
}

func (r *Registry) logPlayback(_ context.Context, ev eventbus.Event) error {
	if pe, ok := ev.Payload.(tts.PlaybackEvent); ok {
		r.logger.Debug("Playback event", "topic", ev.Topic.String(), "language", pe.Language, "duration", pe.Duration)
		return nil
	}
	r.logger.Debug("Playback event", "topic", ev.Topic.String())
	return nil
}

func (r *Registry) routeConfigChanged(ctx context.Context, ev eventbus.Event) error {
	cfg, ok := ev.Payload.(config.Config)
	if !ok {
		return fmt.Errorf("%w: %s carries %T", ErrUnexpectedPayload, ev.Topic, ev.Payload)
	}

	r.mu.RLock()
	handlers := make([]ConfigChangeHandler, 0, len(r.order))
	for _, name := range r.order {
		if h, ok := r.services[name].(ConfigChangeHandler); ok {
			handlers = append(handlers, h)
		}
	}
	r.mu.RUnlock()

	for _, h := range handlers {
		h.OnConfigChanged(ctx, cfg)
	}
	return nil
}
