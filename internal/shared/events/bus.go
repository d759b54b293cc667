package events

import (
	"sync"
	"sync/atomic"
)

// Bus is a synchronous, non-blocking-to-publishers pub/sub distributor.
// Subscribers register by event Kind or via SubscribeAll (wildcard).
// Delivery happens synchronously on the emitter's own goroutine, so a
// single emitter's events are never reordered; each subscriber channel is
// buffered and a slow subscriber has its events dropped (counted) rather
// than blocking Publish.
type Bus struct {
	mu       sync.RWMutex
	byKind   map[Kind][]*subscription
	wildcard []*subscription

	dropped atomic.Int64
}

type subscription struct {
	ch     chan Event
	closed atomic.Bool
}

const subscriberBufferSize = 32

// NewBus constructs an empty event bus.
func NewBus() *Bus {
	return &Bus{byKind: make(map[Kind][]*subscription)}
}

// Subscribe returns a channel receiving only events of the given kind.
// The returned channel is never closed or unregistered by the bus; if a
// caller stops reading, the subscription stays registered and Publish
// drops rather than blocks on its full buffer.
func (b *Bus) Subscribe(kind Kind) <-chan Event {
	sub := &subscription{ch: make(chan Event, subscriberBufferSize)}
	b.mu.Lock()
	b.byKind[kind] = append(b.byKind[kind], sub)
	b.mu.Unlock()
	return sub.ch
}

// SubscribeAll returns a channel receiving every event published, regardless
// of kind. Used by the dashboard's websocket forwarder.
func (b *Bus) SubscribeAll() <-chan Event {
	sub := &subscription{ch: make(chan Event, subscriberBufferSize)}
	b.mu.Lock()
	b.wildcard = append(b.wildcard, sub)
	b.mu.Unlock()
	return sub.ch
}

// Publish delivers ev to every matching subscriber. Non-blocking: a
// subscriber whose buffer is full does not delay the emitter or other
// subscribers.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	targets := make([]*subscription, 0, len(b.byKind[ev.Kind])+len(b.wildcard))
	targets = append(targets, b.byKind[ev.Kind]...)
	targets = append(targets, b.wildcard...)
	b.mu.RUnlock()

	for _, sub := range targets {
		select {
		case sub.ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped reports how many event deliveries were skipped because a
// subscriber's buffer was full. Diagnostic only.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}
