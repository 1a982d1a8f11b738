// Package eventbus fans engine events out to an arbitrary number of
// subscribers (a CLI printer, a tray UI, a status server) without letting a
// slow subscriber block the engine task.
//
// It is the fan-out mirror of the teacher's internal/capture/collector.go,
// which fans many CDP listener events in to one consumer; here one producer
// fans out to many consumers, each with its own buffered channel.
package eventbus

import (
	"sync"

	"github.com/kestrelsoft/screenmemory/internal/session"
)

const subscriberBuffer = 64

// Bus fans session.Event values out to subscribers.
type Bus struct {
	mu          sync.Mutex
	subscribers map[int]chan session.Event
	nextID      int
	closed      bool

	// droppedPerSubscriber counts events dropped because a subscriber's
	// buffer was full. It is never surfaced as a spec-level event; it
	// exists purely so a status server can report subscriber lag.
	droppedPerSubscriber map[int]uint64
}

// New returns an empty, open Bus.
func New() *Bus {
	return &Bus{
		subscribers:          make(map[int]chan session.Event),
		droppedPerSubscriber: make(map[int]uint64),
	}
}

// Subscribe registers a new subscriber and returns its channel plus an
// unsubscribe function. The returned channel is closed when the bus is
// closed or the subscriber unsubscribes, whichever comes first.
func (b *Bus) Subscribe() (<-chan session.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan session.Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subscribers[id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			delete(b.droppedPerSubscriber, id)
			close(c)
		}
	}
	return ch, unsubscribe
}

// Publish delivers evt to every current subscriber. It never blocks: a
// subscriber whose buffer is full has this event dropped and its lag
// counter incremented rather than stalling the engine task.
func (b *Bus) Publish(evt session.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			b.droppedPerSubscriber[id]++
		}
	}
}

// Lag returns the number of events dropped for a given subscriber channel
// owner id. Exposed for diagnostics only.
func (b *Bus) Lag(id int) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.droppedPerSubscriber[id]
}

// Close closes all subscriber channels and marks the bus closed. Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
