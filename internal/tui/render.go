package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/Iron-Ham/holrepl/internal/sink/notebook"
	"github.com/Iron-Ham/holrepl/internal/tui/styles"
)

// statusIcon returns the marker shown next to a code cell.
func statusIcon(status notebook.CellStatus) string {
	switch status {
	case notebook.CellPending:
		return styles.Muted.Render("○")
	case notebook.CellRunning:
		return styles.Warning.Render("●")
	case notebook.CellSucceeded:
		return styles.Secondary.Render("✓")
	case notebook.CellFailed:
		return styles.Error.Render("✗")
	default:
		return " "
	}
}

// renderCells renders the whole document. width 0 disables wrapping.
func renderCells(cells []notebook.Cell, width int, showTimings bool) string {
	if len(cells) == 0 {
		return styles.Muted.Render("No cells yet. Type HOL input below.")
	}

	var parts []string
	n := 0
	for _, c := range cells {
		if c.Kind == notebook.CellCode {
			n++
			parts = append(parts, renderCodeCell(c, n, width, showTimings))
		} else {
			parts = append(parts, renderOutputCell(c, width))
		}
	}
	return strings.Join(parts, "\n")
}

func renderCodeCell(c notebook.Cell, n, width int, showTimings bool) string {
	var b strings.Builder
	header := fmt.Sprintf("%s %s", statusIcon(c.Status), styles.Title.Render(fmt.Sprintf("[%d]", n)))
	if c.Status == notebook.CellFailed && c.Reason != "" {
		header += " " + styles.Error.Render(c.Reason)
	}
	if showTimings && c.Duration > 0 {
		header += " " + styles.Muted.Render(c.Duration.Round(time.Millisecond).String())
	}
	b.WriteString(header)
	b.WriteString("\n")
	b.WriteString(styles.Primary.Render(wrap(c.Source, width-2)))

	if out := strings.TrimRight(c.Output, "\n"); out != "" {
		style := styles.CellOutput
		if c.HasErrors {
			style = styles.Error
		}
		b.WriteString("\n")
		b.WriteString(style.Render(wrap(out, width-2)))
	}
	return styles.CodeCell.Render(b.String())
}

func renderOutputCell(c notebook.Cell, width int) string {
	out := strings.TrimRight(c.Output, "\n")
	style := styles.OutputCell
	if c.HasErrors {
		style = style.Foreground(styles.ErrorColor)
	}
	return style.Render(wrap(out, width-4))
}

// wrap hard-wraps text to width cells. REPL output may carry escape
// sequences, which are kept intact.
func wrap(text string, width int) string {
	if width <= 0 {
		return text
	}
	return ansi.Hardwrap(text, width, true)
}

func (m Model) renderStatus() string {
	state := m.backend.Status()
	stateName, _, _ := strings.Cut(state, " ")
	left := lipgloss.NewStyle().Foreground(styles.StateColor(stateName)).Render(state)

	var msg string
	switch {
	case m.errorMessage != "":
		msg = styles.ErrorMessage.Render(m.errorMessage)
	case m.infoMessage != "":
		msg = styles.InfoMessage.Render(m.infoMessage)
	default:
		msg = styles.Muted.Render("enter send · ctrl+c interrupt · ctrl+d quit")
	}

	return styles.StatusBar.Width(max(m.width, 1)).Render(left + "  " + msg)
}
