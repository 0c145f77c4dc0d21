package bus

import (
	"log/slog"
	"sort"
	"sync"
)

// MessageBus is a synchronous in-process event fan-out. Handlers run on the
// publisher's goroutine in subscription-id order; a panicking handler is
// logged and does not affect the others.
type MessageBus struct {
	mu       sync.RWMutex
	handlers map[string]EventHandler
}

// New creates an empty bus.
func New() *MessageBus {
	return &MessageBus{handlers: make(map[string]EventHandler)}
}

func (b *MessageBus) Subscribe(id string, handler EventHandler) {
	b.mu.Lock()
	b.handlers[id] = handler
	b.mu.Unlock()
}

func (b *MessageBus) Unsubscribe(id string) {
	b.mu.Lock()
	delete(b.handlers, id)
	b.mu.Unlock()
}

func (b *MessageBus) Broadcast(event Event) {
	b.mu.RLock()
	ids := make([]string, 0, len(b.handlers))
	for id := range b.handlers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	handlers := make([]EventHandler, len(ids))
	for i, id := range ids {
		handlers[i] = b.handlers[id]
	}
	b.mu.RUnlock()

	for i, h := range handlers {
		deliver(ids[i], h, event)
	}
}

func deliver(id string, h EventHandler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("bus.handler.panic", "subscriber", id, "event", event.Name, "panic", r)
		}
	}()
	h(event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Subscribe(string, EventHandler) {}
func (Nop) Unsubscribe(string)             {}
func (Nop) Broadcast(Event)                {}
