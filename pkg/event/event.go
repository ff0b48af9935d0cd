// Package event is the in-process publish/subscribe bus behind realtime
// change notifications and auth-state changes.
//
//	sub := bus.Subscribe(event.TableTopic("orders"), func(ctx context.Context, p any) { ... })
//	defer sub.Unsubscribe()
//	bus.Publish(ctx, event.TableTopic("orders"), change)
package event

import (
	"context"
	"sync"
)

// Handler receives an event payload.
type Handler func(ctx context.Context, payload interface{})

// Bus dispatches payloads to the handlers subscribed to a topic.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[uint64]Handler
	next uint64
}

func New() *Bus {
	return &Bus{subs: make(map[string]map[uint64]Handler)}
}

// Subscription is returned by Subscribe. Unsubscribe is idempotent.
type Subscription struct {
	bus   *Bus
	topic string
	id    uint64
	once  sync.Once
}

// Subscribe registers h for topic.
func (b *Bus) Subscribe(topic string, h Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]Handler)
	}
	b.subs[topic][b.next] = h
	return &Subscription{bus: b, topic: topic, id: b.next}
}

func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		delete(s.bus.subs[s.topic], s.id)
		if len(s.bus.subs[s.topic]) == 0 {
			delete(s.bus.subs, s.topic)
		}
	})
}

func (s *Subscription) Topic() string { return s.topic }

func (b *Bus) handlers(topic string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	hs := make([]Handler, 0, len(b.subs[topic]))
	for _, h := range b.subs[topic] {
		hs = append(hs, h)
	}
	return hs
}

// Publish calls every handler of topic synchronously.
func (b *Bus) Publish(ctx context.Context, topic string, payload interface{}) {
	for _, h := range b.handlers(topic) {
		h(ctx, payload)
	}
}

// PublishAsync calls every handler of topic in its own goroutine.
func (b *Bus) PublishAsync(topic string, payload interface{}) {
	for _, h := range b.handlers(topic) {
		go h(context.Background(), payload)
	}
}

// Count returns the number of live subscriptions on topic.
func (b *Bus) Count(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
