// Package pubsub provides the change-subscription hub used by the health
// aggregator and the lifecycle manager.
package pubsub

import (
	"sync"
)

// Hub fans a value out to registered callbacks. Callbacks run synchronously
// on the publishing goroutine, outside the hub's lock, and must not block.
type Hub[T any] struct {
	mu   sync.Mutex
	next uint64
	subs map[uint64]func(T)
}

func (h *Hub[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs == nil {
		h.subs = make(map[uint64]func(T))
	}
	h.next++
	id := h.next
	h.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	fns := make([]func(T), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
