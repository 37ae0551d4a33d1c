package kernel

import "sync"

// mailbox is an unbounded FIFO of messages for the kernel loop. Producers
// never block, so process readers and event handlers can post freely.
type mailbox struct {
	mu     sync.Mutex
	items  []message
	closed bool
	notify chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

// put appends m. It reports false once the mailbox is closed.
func (b *mailbox) put(m message) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	b.items = append(b.items, m)
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
	return true
}

// take removes and returns everything queued so far.
func (b *mailbox) take() []message {
	b.mu.Lock()
	defer b.mu.Unlock()
	items := b.items
	b.items = nil
	return items
}

// close rejects further puts and returns what was still queued.
func (b *mailbox) close() []message {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	items := b.items
	b.items = nil
	return items
}
