// Package eventbus provides the synchronous, in-process publish/subscribe
// dispatcher that connects alouette services.
//
// Handlers for a topic run in subscription order, on the caller's
// goroutine, before Emit returns. A failing or panicking handler is logged
// and counted; delivery continues with the remaining handlers and Emit
// itself never fails.
//
// Basic usage:
//
//	bus := eventbus.New(eventbus.WithLogger(logger))
//	sub, _ := bus.Subscribe(eventbus.TopicTranslationCompleted, func(ctx context.Context, ev eventbus.Event) error {
//		result := ev.Payload.(translation.Result)
//		return speak(ctx, result)
//	})
//	defer sub.Cancel()
//	bus.Emit(ctx, eventbus.TopicTranslationCompleted, result)
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/GoCodeAlone/alouette/logging"
)

// ErrInvalidSubscription is returned when Unsubscribe receives a
// Subscription that was not created by this package.
var ErrInvalidSubscription = errors.New("invalid subscription type")

// Event is a single emission delivered to handlers.
type Event struct {
	// Topic the event was emitted on.
	Topic Topic `json:"topic"`

	// Payload is whatever the emitter passed; its type is fixed per topic
	// (see the Topic constants).
	Payload any `json:"payload"`

	// CreatedAt is stamped by Emit.
	CreatedAt time.Time `json:"createdAt"`
}

// Handler handles an event. Returned errors are logged by the bus and do
// not reach the emitter.
type Handler func(ctx context.Context, event Event) error

// Subscription is the handle returned by Subscribe and SubscribeOnce.
type Subscription interface {
	// ID returns the unique identifier of this subscription.
	ID() string

	// Topic returns the subscribed topic.
	Topic() Topic

	// Cancel removes exactly this handler from the bus. It is idempotent.
	Cancel() error
}

type subscription struct {
	id      string
	topic   Topic
	handler Handler
	once    bool
	fired   atomic.Bool
	bus     *Bus
}

func (s *subscription) ID() string   { return s.id }
func (s *subscription) Topic() Topic { return s.topic }

func (s *subscription) Cancel() error {
	s.bus.remove(s)
	return nil
}

// Stats holds cumulative dispatch counters.
type Stats struct {
	// Emitted counts Emit calls on valid topics.
	Emitted uint64
	// Delivered counts handler invocations, successful or not.
	Delivered uint64
	// Failed counts handler invocations that returned an error or panicked.
	Failed uint64
}

// Bus is a synchronous publish/subscribe dispatcher keyed by Topic.
// It is safe for concurrent use.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[Topic][]*subscription
	logger        logging.Logger

	emitted   atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used to report handler failures.
func WithLogger(l logging.Logger) Option {
	return func(b *Bus) {
		b.logger = logging.OrNop(l)
	}
}

// New creates an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subscriptions: make(map[Topic][]*subscription),
		logger:        logging.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers handler for future emissions of topic.
func (b *Bus) Subscribe(topic Topic, handler Handler) (Subscription, error) {
	return b.subscribe(topic, handler, false)
}

// SubscribeOnce registers handler for the next emission of topic only.
// The subscription is removed before the handler runs, so neither a nested
// nor a concurrent emission can invoke it a second time.
func (b *Bus) SubscribeOnce(topic Topic, handler Handler) (Subscription, error) {
	return b.subscribe(topic, handler, true)
}

func (b *Bus) subscribe(topic Topic, handler Handler, once bool) (Subscription, error) {
	if handler == nil {
		return nil, ErrHandlerNil
	}
	if !topic.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}

	sub := &subscription{
		id:      uuid.New().String(),
		topic:   topic,
		handler: handler,
		once:    once,
		bus:     b,
	}

	b.mu.Lock()
	b.subscriptions[topic] = append(b.subscriptions[topic], sub)
	b.mu.Unlock()

	b.logger.Debug("Subscribed to topic", "topic", topic.String(), "subscription", sub.id, "once", once)
	return sub, nil
}

// Emit synchronously invokes every handler subscribed to topic at the time
// of the call, in subscription order. Handlers subscribed or cancelled while
// the dispatch is running do not change the set selected for it.
func (b *Bus) Emit(ctx context.Context, topic Topic, payload any) {
	if !topic.Valid() {
		b.logger.Warn("Dropping emission on unknown topic", "topic", topic.String())
		return
	}

	b.mu.RLock()
	selected := slices.Clone(b.subscriptions[topic])
	b.mu.RUnlock()

	b.emitted.Add(1)
	event := Event{Topic: topic, Payload: payload, CreatedAt: time.Now()}

	for _, sub := range selected {
		if sub.once {
			if !sub.fired.CompareAndSwap(false, true) {
				continue
			}
			b.remove(sub)
		}

		err := b.invoke(ctx, sub, event)
		b.delivered.Add(1)
		if err != nil {
			b.failed.Add(1)
			b.logger.Error("Event handler failed", "topic", topic.String(), "subscription", sub.id, "error", err)
		}
	}
}

func (b *Bus) invoke(ctx context.Context, sub *subscription, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanicked, r)
		}
	}()
	return sub.handler(ctx, event)
}

// Unsubscribe removes s from the bus.
func (b *Bus) Unsubscribe(s Subscription) error {
	sub, ok := s.(*subscription)
	if !ok || sub.bus != b {
		return ErrInvalidSubscription
	}
	b.remove(sub)
	return nil
}

// remove deletes sub and drops the topic entry once it has no handlers.
func (b *Bus) remove(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscriptions[sub.topic]
	idx := slices.Index(subs, sub)
	if idx < 0 {
		return
	}
	subs = slices.Delete(subs, idx, idx+1)
	if len(subs) == 0 {
		delete(b.subscriptions, sub.topic)
		return
	}
	b.subscriptions[sub.topic] = subs
}

// RemoveAllListeners clears the handlers of the given topics, or of every
// topic when called without arguments.
func (b *Bus) RemoveAllListeners(topics ...Topic) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(topics) == 0 {
		clear(b.subscriptions)
		return
	}
	for _, t := range topics {
		delete(b.subscriptions, t)
	}
}

// Topics returns the topics that currently have at least one handler.
func (b *Bus) Topics() []Topic {
	b.mu.RLock()
	defer b.mu.RUnlock()

	topics := make([]Topic, 0, len(b.subscriptions))
	for t := range b.subscriptions {
		topics = append(topics, t)
	}
	slices.Sort(topics)
	return topics
}

// ListenerCount returns the number of handlers subscribed to topic.
func (b *Bus) ListenerCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions[topic])
}

// Stats returns the cumulative dispatch counters.
func (b *Bus) Stats() Stats {
	return Stats{
		Emitted:   b.emitted.Load(),
		Delivered: b.delivered.Load(),
		Failed:    b.failed.Load(),
	}
}
