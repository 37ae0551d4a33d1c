package tui

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
)

// App wraps the Bubbletea program
type App struct {
	model Model

	mu      sync.Mutex
	program *tea.Program
}

// New creates the notebook viewer.
func New(backend Backend, cells CellSource, showTimings bool) *App {
	return &App{model: NewModel(backend, cells, showTimings)}
}

// Notify asks the viewer to re-render. It is meant for the notebook's
// OnChange hook and is safe to call before Run or after it returns.
func (a *App) Notify() {
	a.mu.Lock()
	p := a.program
	a.mu.Unlock()
	if p != nil {
		p.Send(DocumentChangedMsg{})
	}
}

// Run starts the TUI application and blocks until the user quits.
func (a *App) Run(opts ...tea.ProgramOption) error {
	p := tea.NewProgram(a.model, append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)...)
	a.mu.Lock()
	a.program = p
	a.mu.Unlock()

	// Quit cleanly on termination so the caller can stop the REPL
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		if _, ok := <-sigChan; ok {
			p.Send(tea.Quit())
		}
	}()

	_, err := p.Run()

	signal.Stop(sigChan)
	close(sigChan)

	a.mu.Lock()
	a.program = nil
	a.mu.Unlock()
	return err
}
