// Package eventbus implements a synchronous, in-process events.Bus.
//
// Listeners of a name are called in registration order on the goroutine
// that called Emit. Once-listeners are unregistered before they run, so a
// listener that emits the same event again does not see itself twice.
package eventbus

import (
	"sync"
	"sync/atomic"

	"github.com/jittakal/resistor/pkg/events"
)

// Ensure implementation satisfies interface at compile time.
var _ events.Bus = (*Bus)(nil)

type subscriber struct {
	id       events.Subscription
	listener events.Listener
	once     bool
}

// Bus fans emitted payloads out to registered listeners.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[events.Name][]subscriber
	nextID      atomic.Uint64
	emitted     atomic.Uint64
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		subscribers: make(map[events.Name][]subscriber),
	}
}

// On registers listener for every emission of name.
func (b *Bus) On(name events.Name, listener events.Listener) events.Subscription {
	return b.add(name, listener, false)
}

// Once registers listener for the next emission of name.
func (b *Bus) Once(name events.Name, listener events.Listener) events.Subscription {
	return b.add(name, listener, true)
}

func (b *Bus) add(name events.Name, listener events.Listener, once bool) events.Subscription {
	id := events.Subscription(b.nextID.Add(1))
	if listener == nil {
		return id
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers[name] = append(b.subscribers[name], subscriber{
		id:       id,
		listener: listener,
		once:     once,
	})
	return id
}

// Off removes a subscription from name.
func (b *Bus) Off(name events.Name, sub events.Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.removeLocked(name, sub)
}

func (b *Bus) removeLocked(name events.Name, sub events.Subscription) {
	subs := b.subscribers[name]
	for i, s := range subs {
		if s.id != sub {
			continue
		}
		rest := make([]subscriber, 0, len(subs)-1)
		rest = append(rest, subs[:i]...)
		rest = append(rest, subs[i+1:]...)
		if len(rest) == 0 {
			delete(b.subscribers, name)
		} else {
			b.subscribers[name] = rest
		}
		return
	}
}

// Emit delivers payload to the listeners of name.
func (b *Bus) Emit(name events.Name, payload any) {
	b.emitted.Add(1)

	b.mu.Lock()
	subs := b.subscribers[name]
	if len(subs) == 0 {
		b.mu.Unlock()
		return
	}
	targets := make([]events.Listener, 0, len(subs))
	for _, s := range subs {
		if s.once {
			b.removeLocked(name, s.id)
		}
		targets = append(targets, s.listener)
	}
	b.mu.Unlock()

	for _, listener := range targets {
		listener(payload)
	}
}

// Clear removes every subscription.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers = make(map[events.Name][]subscriber)
}

// Listeners returns the number of listeners registered for name.
func (b *Bus) Listeners(name events.Name) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subscribers[name])
}

// Emitted returns how many events were emitted, with or without listeners.
func (b *Bus) Emitted() uint64 {
	return b.emitted.Load()
}
