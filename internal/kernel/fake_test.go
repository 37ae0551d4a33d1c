package kernel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/holrepl/internal/event"
	"github.com/Iron-Ham/holrepl/internal/execution"
	"github.com/Iron-Ham/holrepl/internal/process"
)

// fakeSpawner hands out fakeChannels and lets tests script startup output.
type fakeSpawner struct {
	mu       sync.Mutex
	channels []*fakeChannel
	err      error
	// onSpawn runs synchronously inside Spawn, before the kernel sees the
	// channel. Output emitted here is queued behind the start request.
	onSpawn func(*fakeChannel)
}

func (s *fakeSpawner) Spawn(ctx context.Context, cfg process.Config, l process.Listener) (process.Channel, error) {
	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return nil, s.err
	}
	ch := &fakeChannel{
		cfg:      cfg,
		listener: l,
		pid:      4000 + len(s.channels),
		alive:    true,
		writes:   make(chan string, 64),
		done:     make(chan struct{}),
	}
	s.channels = append(s.channels, ch)
	onSpawn := s.onSpawn
	s.mu.Unlock()

	if onSpawn != nil {
		onSpawn(ch)
	}
	return ch, nil
}

func (s *fakeSpawner) last(t *testing.T) *fakeChannel {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.channels) == 0 {
		t.Fatal("nothing spawned")
	}
	return s.channels[len(s.channels)-1]
}

type fakeChannel struct {
	cfg      process.Config
	listener process.Listener
	pid      int
	writes   chan string

	mu      sync.Mutex
	alive   bool
	signals []process.Signal
	exited  bool
	done    chan struct{}
}

func (c *fakeChannel) Write(p []byte) error {
	if !c.Alive() {
		return process.ErrNotRunning
	}
	c.writes <- string(p)
	return nil
}

func (c *fakeChannel) Signal(sig process.Signal, scope process.Scope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.alive {
		return process.ErrNotRunning
	}
	c.signals = append(c.signals, sig)
	if sig == process.SignalTerm {
		c.alive = false
	}
	return nil
}

func (c *fakeChannel) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive
}

func (c *fakeChannel) Pid() int              { return c.pid }
func (c *fakeChannel) Done() <-chan struct{} { return c.done }

func (c *fakeChannel) stdout(s string) { c.listener.OnData(process.Stdout, []byte(s)) }
func (c *fakeChannel) stderr(s string) { c.listener.OnData(process.Stderr, []byte(s)) }

// exit simulates the process terminating on its own.
func (c *fakeChannel) exit(err error) {
	c.mu.Lock()
	if c.exited {
		c.mu.Unlock()
		return
	}
	c.exited = true
	c.alive = false
	c.mu.Unlock()
	c.listener.OnExit(err)
	close(c.done)
}

// die marks the process dead without delivering an exit notification.
func (c *fakeChannel) die() {
	c.mu.Lock()
	c.alive = false
	c.mu.Unlock()
}

func (c *fakeChannel) sent() []process.Signal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]process.Signal(nil), c.signals...)
}

// nextWrite returns the next submission written to the process.
func (c *fakeChannel) nextWrite(t *testing.T) string {
	t.Helper()
	select {
	case w := <-c.writes:
		return w
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a write")
		return ""
	}
}

func (c *fakeChannel) noWrite(t *testing.T) {
	t.Helper()
	select {
	case w := <-c.writes:
		t.Fatalf("unexpected write %q", w)
	case <-time.After(20 * time.Millisecond):
	}
}

// recorder collects every event published on a bus.
type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func record(bus *event.Bus) *recorder {
	r := &recorder{}
	bus.SubscribeAll(func(e event.Event) {
		r.mu.Lock()
		r.events = append(r.events, e)
		r.mu.Unlock()
	})
	return r
}

func (r *recorder) ofType(eventType string) []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event.Event
	for _, e := range r.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) overflow() string {
	var s string
	for _, e := range r.ofType(event.TypeOverflow) {
		s += e.(event.OverflowEvent).Text
	}
	return s
}

func waitEnded(t *testing.T, exec *execution.Execution) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := exec.Wait(ctx); err != nil {
		t.Fatalf("execution %q did not end: %v", exec.Text(), err)
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
