// Package notify provides typed observer lists: many independent listeners,
// no response expected.
package notify

import "sync"

type subscriber[T any] struct {
	id uint64
	fn func(T)
}

// Hub delivers published values to subscribers in registration order.
// The zero value is ready to use and safe for concurrent use.
type Hub[T any] struct {
	mu     sync.Mutex
	nextID uint64
	subs   []subscriber[T]
}

// Subscribe registers fn and returns a function that removes it.
// Calling the returned function more than once is a no-op.
func (h *Hub[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs = append(h.subs, subscriber[T]{id: id, fn: fn})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(id) })
	}
}

func (h *Hub[T]) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, s := range h.subs {
		if s.id == id {
			h.subs = append(h.subs[:i:i], h.subs[i+1:]...)
			return
		}
	}
}

// Publish calls every subscriber with v. Subscribers run synchronously on
// the caller's goroutine, outside the hub lock, so they may subscribe or
// unsubscribe while being notified.
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	subs := append([]subscriber[T](nil), h.subs...)
	h.mu.Unlock()

	for _, s := range subs {
		s.fn(v)
	}
}

// Len returns the number of current subscribers.
func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
