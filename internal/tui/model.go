package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/holrepl/internal/sink/notebook"
)

// Backend is what the viewer drives: a session presented as a notebook.
type Backend interface {
	// Send submits text as a new cell.
	Send(text string) error
	// Interrupt interrupts the running cell and drops the queue.
	Interrupt() error
	// Status describes the REPL state for the status bar.
	Status() string
}

// CellSource supplies the cells to render.
type CellSource interface {
	Cells() []notebook.Cell
}

// Layout rows outside the viewport: input line and the bordered status bar.
const chromeHeight = 3

// Messages

// DocumentChangedMsg tells the model to re-render the cells.
type DocumentChangedMsg struct{}

type sentMsg struct{ err error }

type interruptedMsg struct{ err error }

// Model is the bubbletea model of the notebook viewer.
type Model struct {
	backend     Backend
	cells       CellSource
	showTimings bool

	input    textinput.Model
	viewport viewport.Model
	history  []string
	histPos  int

	width    int
	height   int
	ready    bool
	quitting bool

	errorMessage string
	infoMessage  string
}

// NewModel creates the viewer model.
func NewModel(backend Backend, cells CellSource, showTimings bool) Model {
	input := textinput.New()
	input.Prompt = "> "
	input.Placeholder = "HOL input, Enter to send"
	input.Focus()

	return Model{
		backend:     backend,
		cells:       cells,
		showTimings: showTimings,
		input:       input,
		viewport:    viewport.New(0, 0),
	}
}

// Init starts the cursor blinking.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeypress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-chromeHeight, 1)
		m.input.Width = max(msg.Width-len(m.input.Prompt)-1, 1)
		m.refresh(true)
		return m, nil

	case DocumentChangedMsg:
		m.refresh(m.viewport.AtBottom())
		return m, nil

	case sentMsg:
		if msg.err != nil {
			m.errorMessage = msg.err.Error()
		}
		return m, nil

	case interruptedMsg:
		if msg.err != nil {
			m.errorMessage = msg.err.Error()
		} else {
			m.infoMessage = "Interrupted"
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKeypress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.errorMessage = ""
	m.infoMessage = ""

	switch msg.Type {
	case tea.KeyCtrlD:
		m.quitting = true
		return m, tea.Quit

	case tea.KeyCtrlC:
		if m.input.Value() != "" {
			m.input.Reset()
			return m, nil
		}
		backend := m.backend
		return m, func() tea.Msg { return interruptedMsg{err: backend.Interrupt()} }

	case tea.KeyEnter:
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		m.history = append(m.history, text)
		m.histPos = len(m.history)
		m.input.Reset()
		backend := m.backend
		return m, func() tea.Msg { return sentMsg{err: backend.Send(text)} }

	case tea.KeyUp:
		if m.histPos > 0 {
			m.histPos--
			m.input.SetValue(m.history[m.histPos])
			m.input.CursorEnd()
		}
		return m, nil

	case tea.KeyDown:
		if m.histPos < len(m.history)-1 {
			m.histPos++
			m.input.SetValue(m.history[m.histPos])
			m.input.CursorEnd()
		} else {
			m.histPos = len(m.history)
			m.input.Reset()
		}
		return m, nil

	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// refresh re-renders the cells into the viewport.
func (m *Model) refresh(follow bool) {
	m.viewport.SetContent(renderCells(m.cells.Cells(), m.width, m.showTimings))
	if follow {
		m.viewport.GotoBottom()
	}
}

// View renders the viewer.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	b.WriteString(m.input.View())
	return b.String()
}
