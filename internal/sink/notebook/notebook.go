package notebook

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/Iron-Ham/holrepl/internal/errors"
	"github.com/Iron-Ham/holrepl/internal/event"
	"github.com/Iron-Ham/holrepl/internal/execution"
	"github.com/Iron-Ham/holrepl/internal/logging"
)

// Kernel is the part of kernel.Kernel the notebook drives.
type Kernel interface {
	Submit(text string, opts ...execution.Option) *execution.Execution
}

// Options configures a Notebook.
type Options struct {
	// MaxOutputLines keeps only the last lines of a cell's output. Zero keeps
	// everything.
	MaxOutputLines int
	// OnChange is called on the edit worker after every successful edit.
	OnChange func()
	Logger   *logging.Logger
}

// Notebook renders a kernel's executions and overflow as document cells.
//
// Each submission appends a code cell whose ID is the execution ID. Output
// streams into that cell. Overflow becomes an output cell inserted at the
// output position, which follows the most recently started cell. Every
// document edit goes through one FIFO worker.
type Notebook struct {
	doc    Document
	kernel Kernel
	bus    *event.Bus
	logger *logging.Logger
	opts   Options

	queue *editQueue
	done  chan struct{}

	mu     sync.Mutex
	owned  map[string]bool
	tokens []event.Token

	// anchor is the cell overflow is inserted after; "" means the end of
	// the document. Only the edit worker touches it.
	anchor string
}

// New attaches a notebook to bus and starts its edit worker. Call Close to
// detach it.
func New(doc Document, bus *event.Bus, k Kernel, opts Options) *Notebook {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	nb := &Notebook{
		doc:    doc,
		kernel: k,
		bus:    bus,
		logger: logger.WithComponent("notebook"),
		opts:   opts,
		queue:  newEditQueue(),
		done:   make(chan struct{}),
		owned:  make(map[string]bool),
	}
	nb.tokens = []event.Token{
		bus.Subscribe(event.TypeExecutionStarted, nb.onStarted),
		bus.Subscribe(event.TypeExecutionOutput, nb.onOutput),
		bus.Subscribe(event.TypeExecutionEnded, nb.onEnded),
		bus.Subscribe(event.TypeOverflow, nb.onOverflow),
	}
	go nb.run()
	return nb
}

// Submit appends a code cell showing display and submits text to the
// kernel. An empty display shows text.
func (nb *Notebook) Submit(text, display string) *execution.Execution {
	if display == "" {
		display = text
	}

	// Holding mu until the cell is queued keeps event handlers for this
	// execution behind the insert.
	nb.mu.Lock()
	defer nb.mu.Unlock()

	exec := nb.kernel.Submit(text, execution.WithDisplay(display))
	nb.owned[exec.ID()] = true
	cell := Cell{ID: exec.ID(), Kind: CellCode, Source: display, Status: CellPending}
	nb.enqueue("append cell", func(doc Document) error {
		return doc.Insert(doc.Len(), cell)
	})

	// Executions that ended before the handlers could see them, such as a
	// submission while the REPL is not running, are finished here.
	if exec.Status() == execution.StatusEnded {
		delete(nb.owned, exec.ID())
		nb.finish(exec)
	}
	return exec
}

// Flush waits until every edit queued so far has been applied.
func (nb *Notebook) Flush(ctx context.Context) error {
	flushed := make(chan struct{})
	if !nb.queue.put(edit{name: "flush", flushed: flushed}) {
		return errors.ErrClosed
	}
	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close detaches the notebook, applies the edits already queued and stops
// the worker.
func (nb *Notebook) Close() {
	nb.mu.Lock()
	tokens := nb.tokens
	nb.tokens = nil
	nb.mu.Unlock()
	for _, tok := range tokens {
		nb.bus.Unsubscribe(tok)
	}
	nb.queue.close()
	<-nb.done
}

func (nb *Notebook) run() {
	defer close(nb.done)
	for range nb.queue.notify {
		for _, e := range nb.queue.take() {
			nb.apply(e)
		}
	}
}

func (nb *Notebook) apply(e edit) {
	if e.flushed != nil {
		close(e.flushed)
	}
	if e.apply == nil {
		return
	}
	if err := e.apply(nb.doc); err != nil {
		nb.logger.Warn("notebook edit failed", "edit", e.name, "error", err)
		return
	}
	if nb.opts.OnChange != nil {
		nb.opts.OnChange()
	}
}

func (nb *Notebook) enqueue(name string, fn func(Document) error) {
	if !nb.queue.put(edit{name: name, apply: fn}) {
		nb.logger.Debug("edit dropped after close", "edit", name)
	}
}

func (nb *Notebook) isOwned(exec *execution.Execution) bool {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	return nb.owned[exec.ID()]
}

func (nb *Notebook) onStarted(e event.Event) {
	exec := e.(event.ExecutionStartedEvent).Execution
	if !nb.isOwned(exec) {
		return
	}
	id := exec.ID()
	nb.enqueue("start cell", func(doc Document) error {
		if err := doc.Update(id, func(c *Cell) { c.Status = CellRunning }); err != nil {
			return err
		}
		nb.anchor = id
		return nil
	})
}

func (nb *Notebook) onOutput(e event.Event) {
	out := e.(event.ExecutionOutputEvent)
	if !nb.isOwned(out.Execution) {
		return
	}
	text, isError := out.Text, out.IsError
	nb.enqueue("append output", func(doc Document) error {
		return doc.Update(out.Execution.ID(), func(c *Cell) {
			c.Output = nb.clip(c.Output + text)
			if isError {
				c.HasErrors = true
			}
		})
	})
}

func (nb *Notebook) onEnded(e event.Event) {
	exec := e.(event.ExecutionEndedEvent).Execution
	nb.mu.Lock()
	owned := nb.owned[exec.ID()]
	delete(nb.owned, exec.ID())
	nb.mu.Unlock()
	if owned {
		nb.finish(exec)
	}
}

// finish records the end state of exec on its cell.
func (nb *Notebook) finish(exec *execution.Execution) {
	status := CellSucceeded
	if !exec.Success() {
		status = CellFailed
	}
	reason, took := exec.Reason(), exec.Duration()
	nb.enqueue("end cell", func(doc Document) error {
		return doc.Update(exec.ID(), func(c *Cell) {
			c.Status = status
			c.Reason = reason
			c.Duration = took
		})
	})
}

func (nb *Notebook) onOverflow(e event.Event) {
	ov := e.(event.OverflowEvent)
	cell := Cell{
		ID:        "overflow-" + uuid.NewString(),
		Kind:      CellOutput,
		Output:    nb.clip(ov.Text),
		HasErrors: ov.IsError,
		Status:    CellSucceeded,
	}
	if ov.IsError {
		cell.Status = CellFailed
	}
	nb.enqueue("insert overflow", func(doc Document) error {
		index := doc.Len()
		if nb.anchor != "" {
			if i, err := doc.Index(nb.anchor); err == nil {
				index = i + 1
			} else {
				nb.logger.Debug("output position lost, appending", "anchor", nb.anchor, "error", err)
			}
		}
		if err := doc.Insert(index, cell); err != nil {
			return err
		}
		nb.anchor = cell.ID
		return nil
	})
}

// clip keeps the last MaxOutputLines lines of text.
func (nb *Notebook) clip(text string) string {
	limit := nb.opts.MaxOutputLines
	if limit <= 0 || strings.Count(text, "\n") < limit {
		return text
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) <= limit {
		return text
	}
	return strings.Join(lines[len(lines)-limit:], "")
}
