// Package bus fans run events out to observers (gateway clients, the CLI
// chat view) without ever blocking the agent loop.
package bus

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Event is one observation of a running agent.
type Event struct {
	Type    string // event name, see pkg/protocol
	RunID   string
	Time    time.Time
	Payload interface{}
}

// subscriberQueueSize bounds the per-subscriber buffer. A subscriber that
// falls further behind than this starts losing events; the loop never
// waits for it.
const subscriberQueueSize = 256

type subscriber struct {
	ch      chan Event
	dropped atomic.Int64
}

// Bus broadcasts events to registered subscribers. Publish is
// non-blocking: each subscriber has a bounded queue and slow consumers
// drop events rather than stall the publisher.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	closed      bool
}

func New() *Bus {
	return &Bus{subscribers: make(map[string]*subscriber)}
}

// Subscribe registers a subscriber under id and returns its event
// channel. Re-subscribing with the same id replaces the old subscription.
func (b *Bus) Subscribe(id string) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.subscribers[id]; ok {
		close(old.ch)
	}
	sub := &subscriber{ch: make(chan Event, subscriberQueueSize)}
	b.subscribers[id] = sub
	return sub.ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subscribers[id]; ok {
		close(sub.ch)
		delete(b.subscribers, id)
	}
}

// Publish delivers an event to every subscriber. Never blocks: a
// subscriber whose queue is full loses the event and its drop counter
// increments.
func (b *Bus) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for id, sub := range b.subscribers {
		select {
		case sub.ch <- ev:
		default:
			n := sub.dropped.Add(1)
			if n == 1 || n%100 == 0 {
				slog.Warn("bus subscriber lagging, dropping events",
					"subscriber", id, "dropped", n)
			}
		}
	}
}

// Dropped reports how many events a subscriber has lost so far.
func (b *Bus) Dropped(id string) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if sub, ok := b.subscribers[id]; ok {
		return sub.dropped.Load()
	}
	return 0
}

// Close closes all subscriber channels. Publish becomes a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subscribers {
		close(sub.ch)
		delete(b.subscribers, id)
	}
}
