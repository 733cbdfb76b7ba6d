// Package eventbus is the in-process publish/subscribe hub for
// structured debug events. Sessions publish; a log formatter and a UI
// broadcaster (both external collaborators) subscribe. Publish never
// blocks the publisher: a full subscriber channel drops its oldest
// pending event rather than stall a Session's own event-handling
// goroutine.
package eventbus

import (
	"sync"
	"sync/atomic"

	"github.com/tidwall/match"
)

// Event is one structured debug event published to the bus.
type Event struct {
	Topic   string
	Payload any
}

// DefaultBufferSize is the per-subscriber channel capacity used when a
// Subscribe call doesn't specify one.
const DefaultBufferSize = 64

type subscriber struct {
	id      uint64
	pattern string
	ch      chan Event
	dropped atomic.Uint64
}

// Subscription is a handle returned by Subscribe. Events arrives on
// Events(); call Unsubscribe when done to stop delivery and free the
// channel.
type Subscription struct {
	bus *Bus
	sub *subscriber
}

// Events returns the channel this subscription receives matching
// events on.
func (s *Subscription) Events() <-chan Event { return s.sub.ch }

// Dropped reports how many events were discarded because this
// subscriber's channel was full when they arrived.
func (s *Subscription) Dropped() uint64 { return s.sub.dropped.Load() }

// Unsubscribe removes the subscription; no further events are delivered.
func (s *Subscription) Unsubscribe() { s.bus.unsubscribe(s.sub.id) }

// Bus is a topic-string pub/sub hub matched with glob patterns
// ("debug.*", "debug.session.*", "**" has no special meaning here —
// matching is exactly github.com/tidwall/match's shell-style globbing).
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	nextID uint64
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[uint64]*subscriber)}
}

// Subscribe registers pattern and returns a Subscription whose channel
// receives every Publish call whose topic matches pattern. bufferSize
// <= 0 uses DefaultBufferSize.
func (b *Bus) Subscribe(pattern string, bufferSize int) *Subscription {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &subscriber{id: b.nextID, pattern: pattern, ch: make(chan Event, bufferSize)}
	b.subs[sub.id] = sub

	return &Subscription{bus: b, sub: sub}
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		close(sub.ch)
		delete(b.subs, id)
	}
}

// Publish delivers an event to every subscriber whose pattern matches
// topic. Delivery is always non-blocking: a subscriber whose channel is
// already full has its oldest pending event discarded to make room.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ev := Event{Topic: topic, Payload: payload}
	for _, sub := range b.subs {
		if !match.Match(topic, sub.pattern) {
			continue
		}
		b.deliver(sub, ev)
	}
}

func (b *Bus) deliver(sub *subscriber, ev Event) {
	select {
	case sub.ch <- ev:
		return
	default:
	}

	// Channel full: drop the oldest pending event, then retry once.
	select {
	case <-sub.ch:
		sub.dropped.Add(1)
	default:
	}
	select {
	case sub.ch <- ev:
	default:
		sub.dropped.Add(1)
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
