package gateway

import (
	"sync"
)

// AuthHub is a registry of auth-change handlers shared by gateway implementations.
// Handlers run synchronously, in registration order, outside the hub lock.
type AuthHub struct {
	mu       sync.Mutex
	nextID   uint64
	handlers []hubEntry
}

type hubEntry struct {
	id uint64
	fn AuthHandler
}

// Subscribe registers fn and returns an idempotent unsubscribe func
func (h *AuthHub) Subscribe(fn AuthHandler) func() {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.handlers = append(h.handlers, hubEntry{id: id, fn: fn})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			for i, e := range h.handlers {
				if e.id == id {
					h.handlers = append(h.handlers[:i:i], h.handlers[i+1:]...)
					return
				}
			}
		})
	}
}

// Emit delivers event to every registered handler
func (h *AuthHub) Emit(event AuthEvent, session *Session) {
	h.mu.Lock()
	handlers := make([]AuthHandler, len(h.handlers))
	for i, e := range h.handlers {
		handlers[i] = e.fn
	}
	h.mu.Unlock()

	for _, fn := range handlers {
		fn(event, session)
	}
}

// Len returns the number of live subscriptions
func (h *AuthHub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handlers)
}
