package testutil

import (
	"sync"

	"wfs-go/internal/wfs"
)

// EventRecorder collects events published on a bus.
type EventRecorder struct {
	mu     sync.Mutex
	events []wfs.Event
}

// RecordEvents subscribes a new recorder to bus.
func RecordEvents(bus *wfs.Bus) *EventRecorder {
	r := &EventRecorder{}
	bus.Subscribe(r.Record)
	return r
}

// Record appends e. It satisfies wfs.Listener.
func (r *EventRecorder) Record(e wfs.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of everything recorded so far.
func (r *EventRecorder) Events() []wfs.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]wfs.Event(nil), r.events...)
}

// Topics returns the topic of every recorded event in order.
func (r *EventRecorder) Topics() []wfs.Topic {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]wfs.Topic, len(r.events))
	for i, e := range r.events {
		out[i] = e.Topic()
	}
	return out
}

// Count returns how many events with topic were recorded.
func (r *EventRecorder) Count(topic wfs.Topic) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Topic() == topic {
			n++
		}
	}
	return n
}

// Reset forgets recorded events.
func (r *EventRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
