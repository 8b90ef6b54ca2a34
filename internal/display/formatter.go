package display

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// IsTerminal reports whether f is attached to a terminal. It decides between
// human-readable and NDJSON output in auto mode.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Formatter renders compiler and runner output for humans.
type Formatter struct {
	header lipgloss.Style
	index  lipgloss.Style
	kind   lipgloss.Style
	detail lipgloss.Style
	ok     lipgloss.Style
	fail   lipgloss.Style
}

func NewFormatter() *Formatter {
	var (
		cyan  = lipgloss.Color("6")
		muted = lipgloss.Color("244")
		green = lipgloss.Color("2")
		red   = lipgloss.Color("1")
	)
	return &Formatter{
		header: lipgloss.NewStyle().Foreground(cyan).Bold(true),
		index:  lipgloss.NewStyle().Foreground(muted).Width(5).Align(lipgloss.Right),
		kind:   lipgloss.NewStyle().Foreground(cyan).Width(10),
		detail: lipgloss.NewStyle().Foreground(lipgloss.Color("7")),
		ok:     lipgloss.NewStyle().Foreground(green).Bold(true),
		fail:   lipgloss.NewStyle().Foreground(red).Bold(true),
	}
}

// StateRow is one rendered FSM state.
type StateRow struct {
	Index  int
	Type   string
	Detail string
}

// FSMTable renders the state listing produced by the compiler.
func (f *Formatter) FSMTable(title string, rows []StateRow) string {
	var sb strings.Builder
	sb.WriteString(f.header.Render(title))
	sb.WriteString("\n")
	for _, row := range rows {
		sb.WriteString(f.index.Render(fmt.Sprintf("%d", row.Index)))
		sb.WriteString("  ")
		sb.WriteString(f.kind.Render(row.Type))
		sb.WriteString(f.detail.Render(row.Detail))
		sb.WriteString("\n")
	}
	return sb.String()
}

// Success renders a terminal success line.
func (f *Formatter) Success(message string) string {
	return f.ok.Render("✓ ") + f.detail.Render(message)
}

// Failure renders a terminal failure line.
func (f *Formatter) Failure(message string) string {
	return f.fail.Render("✗ ") + f.detail.Render(message)
}
