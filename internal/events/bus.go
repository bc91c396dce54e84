package events

import "sync"

// Handler receives published events.
type Handler func(Event)

// Subscription identifies one registered handler.
type Subscription struct {
	bus *Bus
	id  uint64
}

// Unsubscribe removes the handler. Calling it more than once is harmless.
func (s Subscription) Unsubscribe() {
	if s.bus == nil {
		return
	}
	s.bus.remove(s.id)
}

type registration struct {
	id      uint64
	handler Handler
}

// Bus fans events out to subscribers. The zero value is ready to use.
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers []registration
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers handler for all future events.
func (b *Bus) Subscribe(handler Handler) Subscription {
	if handler == nil {
		return Subscription{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.handlers = append(b.handlers, registration{id: b.nextID, handler: handler})
	return Subscription{bus: b, id: b.nextID}
}

// Publish delivers event to every handler registered at call time. Handlers
// may subscribe or unsubscribe from within a callback; changes apply to the
// next Publish.
func (b *Bus) Publish(event Event) {
	if event == nil {
		return
	}
	b.mu.RLock()
	snapshot := b.handlers
	b.mu.RUnlock()

	for _, reg := range snapshot {
		reg.handler(event)
	}
}

// Len reports the number of registered handlers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, reg := range b.handlers {
		if reg.id != id {
			continue
		}
		// Copy so snapshots held by in-flight publishes stay intact.
		next := make([]registration, 0, len(b.handlers)-1)
		next = append(next, b.handlers[:i]...)
		next = append(next, b.handlers[i+1:]...)
		b.handlers = next
		return
	}
}
