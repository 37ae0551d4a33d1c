package notebook

import "sync"

// edit is one queued document change. A nil apply marks a flush point.
type edit struct {
	name    string
	apply   func(Document) error
	flushed chan struct{}
}

// editQueue is an unbounded FIFO drained by a single worker, so that event
// handlers running on the kernel loop never wait for the document.
type editQueue struct {
	mu     sync.Mutex
	edits  []edit
	closed bool
	notify chan struct{}
}

func newEditQueue() *editQueue {
	return &editQueue{notify: make(chan struct{}, 1)}
}

func (q *editQueue) put(e edit) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.edits = append(q.edits, e)
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

func (q *editQueue) take() []edit {
	q.mu.Lock()
	defer q.mu.Unlock()
	batch := q.edits
	q.edits = nil
	return batch
}

// close stops accepting edits. Edits already queued are still applied.
func (q *editQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.notify)
}
