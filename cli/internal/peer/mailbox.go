package peer

import "sync"

// mailbox is an unbounded FIFO. Post never blocks, so transport callbacks and
// registry calls can hand work to a session goroutine while holding locks.
type mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	ready  chan struct{}
	closed bool
}

func newMailbox[T any]() *mailbox[T] {
	return &mailbox[T]{ready: make(chan struct{}, 1)}
}

// Post appends item. It reports false once the mailbox is closed.
func (m *mailbox[T]) Post(item T) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.items = append(m.items, item)
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
	return true
}

// Ready fires after at least one Post since the last Drain.
func (m *mailbox[T]) Ready() <-chan struct{} {
	return m.ready
}

// Drain removes and returns everything queued, in posting order.
func (m *mailbox[T]) Drain() []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.items
	m.items = nil
	return items
}

// Close rejects further posts and discards anything pending.
func (m *mailbox[T]) Close() {
	m.mu.Lock()
	m.closed = true
	m.items = nil
	m.mu.Unlock()
}
