// Package eventbus is the Event Bus (spec.md §4.4): a topic-keyed
// publish/subscribe hub that fans tick results, partial fills, breakeven
// triggers, pings, risk rejections and performance snapshots out to
// whoever is listening, without the tick engine knowing who that is.
//
// It generalizes realtime.WebSocketManager's single broadcast channel
// into named topics, and adds the isolation guarantee that channel
// lacked: one subscriber panicking can never take down the publisher or
// another subscriber. Handlers run synchronously on the publishing
// goroutine, so a subscriber that blocks also blocks the publisher.
package eventbus

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// Topic names the channels signal instances and the tick engine publish
// on. Subscribers pick the topics they care about; TopicAny receives
// every event regardless of its own topic.
type Topic string

const (
	TopicTickBacktest  Topic = "tick-backtest"
	TopicTickLive      Topic = "tick-live"
	TopicAny           Topic = "tick-any"
	TopicPartialProfit Topic = "partial-profit"
	TopicPartialLoss   Topic = "partial-loss"
	TopicBreakeven     Topic = "breakeven"
	TopicPing          Topic = "ping"
	TopicRiskReject    Topic = "risk-reject"
	TopicPerformance   Topic = "performance"
)

// Handler receives one published event. It must not block for long;
// handlers run synchronously in publish order on the publishing
// goroutine, so a slow handler delays every handler registered after it.
type Handler func(event interface{})

// Unsubscribe removes a previously registered handler. Calling it more
// than once is a no-op.
type Unsubscribe func()

// Bus is the in-process pub/sub hub. The zero value is not usable; use
// New.
type Bus struct {
	mu   sync.RWMutex
	subs map[Topic]map[int]Handler
	next int
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[Topic]map[int]Handler)}
}

// Subscribe registers handler on topic and returns a func to remove it.
func (b *Bus) Subscribe(topic Topic, handler Handler) Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]Handler)
	}
	id := b.next
	b.next++
	b.subs[topic][id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[topic], id)
		})
	}
}

// Publish delivers event to every subscriber of topic plus every
// subscriber of TopicAny, in registration order. A handler that panics
// is recovered and logged; it never reaches the publisher, and it never
// prevents the remaining handlers from running.
func (b *Bus) Publish(topic Topic, event interface{}) {
	b.deliver(topic, event)
	if topic != TopicAny {
		b.deliver(TopicAny, event)
	}
}

func (b *Bus) deliver(topic Topic, event interface{}) {
	b.mu.RLock()
	ids := make([]int, 0, len(b.subs[topic]))
	for id := range b.subs[topic] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, b.subs[topic][id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.invoke(topic, h, event)
	}
}

func (b *Bus) invoke(topic Topic, h Handler, event interface{}) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("topic", string(topic)).
				Interface("panic", r).
				Msg("event bus subscriber panicked, event dropped for this subscriber")
		}
	}()
	h(event)
}

// SubscriberCount reports how many handlers are registered on topic,
// mainly for tests and diagnostics.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
