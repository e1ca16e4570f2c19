package wfs

import (
	"sort"
	"sync"
)

// Listener receives published events. It runs on the publisher's goroutine
// and must not block.
type Listener func(Event)

// Publisher is the sending half of the bus used by the stores.
type Publisher interface {
	Publish(Event)
}

// Bus is a synchronous publish/subscribe hub. Missed events are not replayed.
type Bus struct {
	mu        sync.RWMutex
	next      int
	listeners map[int]Listener
	logger    Logger
}

// NewBus creates an empty bus. A nil logger discards listener panics silently.
func NewBus(logger Logger) *Bus {
	return &Bus{
		listeners: make(map[int]Listener),
		logger:    orNop(logger),
	}
}

// Subscribe registers l and returns a function that removes it.
// Calling the returned function more than once is harmless.
func (b *Bus) Subscribe(l Listener) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.listeners[id] = l
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}

// Publish delivers e to every current listener in subscription order.
// A panicking listener is logged and skipped.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	ids := make([]int, 0, len(b.listeners))
	for id := range b.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	ls := make([]Listener, 0, len(ids))
	for _, id := range ids {
		ls = append(ls, b.listeners[id])
	}
	b.mu.RUnlock()

	for _, l := range ls {
		b.deliver(l, e)
	}
}

func (b *Bus) deliver(l Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event listener panicked", "topic", string(e.Topic()), "panic", r)
		}
	}()
	l(e)
}

// Len returns the number of subscribed listeners.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

type nopPublisher struct{}

func (nopPublisher) Publish(Event) {}

func orNopPublisher(p Publisher) Publisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}
