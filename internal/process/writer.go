package process

import (
	"io"
	"sync"

	"github.com/Iron-Ham/holrepl/internal/logging"
)

// stdinWriter feeds a child's input from an unbounded FIFO on its own
// goroutine. A child that stops reading blocks only this goroutine, never
// the caller of Write or Signal.
type stdinWriter struct {
	w      io.Writer
	closer io.Closer // nil when the owner closes w itself
	logger *logging.Logger

	mu     sync.Mutex
	queue  [][]byte
	closed bool
	err    error
	notify chan struct{}
}

func newStdinWriter(w io.Writer, closer io.Closer, logger *logging.Logger) *stdinWriter {
	s := &stdinWriter{
		w:      w,
		closer: closer,
		logger: logger,
		notify: make(chan struct{}, 1),
	}
	go s.loop()
	return s
}

// enqueue copies p onto the queue. It returns ErrNotRunning once the writer
// is closed, or the error of an earlier failed write.
func (s *stdinWriter) enqueue(p []byte) error {
	buf := make([]byte, len(p))
	copy(buf, p)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrNotRunning
	}
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return err
	}
	s.queue = append(s.queue, buf)
	s.mu.Unlock()

	s.wake()
	return nil
}

// close drops anything still queued and stops the writer goroutine. A write
// in progress is unblocked by closing the underlying file, which is left to
// the owner when closer is nil.
func (s *stdinWriter) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	dropped := len(s.queue)
	s.queue = nil
	s.mu.Unlock()

	if dropped > 0 {
		s.logger.Debug("dropped unwritten input", "chunks", dropped)
	}
	s.wake()
	if s.closer != nil {
		s.closer.Close()
	}
}

func (s *stdinWriter) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *stdinWriter) loop() {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()

		if len(batch) == 0 {
			<-s.notify
			continue
		}
		for _, p := range batch {
			if _, err := s.w.Write(p); err != nil {
				s.fail(err)
				return
			}
		}
	}
}

func (s *stdinWriter) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.err = err
	s.queue = nil
	s.logger.Warn("write to stdin failed", "error", err)
}
