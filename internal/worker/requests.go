package worker

import "sync"

// requestQueue is a thread-safe FIFO of sync tags in which a tag appears at
// most once: registering a tag that is already pending is a no-op.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type requestQueue struct {
	mu      sync.Mutex
	tags    []string
	pending map[string]bool
	closed  bool
	signal  chan struct{} // buffered, size 1
}

func newRequestQueue() *requestQueue {
	return &requestQueue{
		pending: map[string]bool{},
		signal:  make(chan struct{}, 1),
	}
}

// Add appends tag unless it is already pending.
// Returns false if the queue is closed.
func (q *requestQueue) Add(tag string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if !q.pending[tag] {
		q.pending[tag] = true
		q.tags = append(q.tags, tag)
	}

	// Non-blocking: the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryTake removes and returns the oldest pending tag.
func (q *requestQueue) TryTake() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tags) == 0 {
		return "", false
	}
	tag := q.tags[0]
	q.tags = q.tags[1:]
	delete(q.pending, tag)
	return tag, true
}

// Wait returns a channel that signals when tags may be available.
func (q *requestQueue) Wait() <-chan struct{} {
	return q.signal
}

// Pending returns the pending tags in order.
func (q *requestQueue) Pending() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.tags...)
}

// Close wakes any waiter; no more tags are accepted.
func (q *requestQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

func (q *requestQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
