package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/recinq/composer/internal/state"
)

// runItem adapts a run record to the bubbles list.
type runItem struct {
	record state.RunRecord
}

func (i runItem) Title() string {
	return fmt.Sprintf("%s  %s", i.record.Composition, i.record.Status)
}

func (i runItem) Description() string {
	age := time.Since(i.record.StartedAt).Round(time.Second)
	if i.record.ErrorMessage != "" {
		return fmt.Sprintf("%s ago — %s", age, i.record.ErrorMessage)
	}
	return fmt.Sprintf("%s ago — %s", age, i.record.RunID)
}

func (i runItem) FilterValue() string { return i.record.Composition }

type runsModel struct {
	list     list.Model
	selected *state.RunRecord
}

func (m runsModel) Init() tea.Cmd { return nil }

func (m runsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			if item, ok := m.list.SelectedItem().(runItem); ok {
				m.selected = &item.record
			}
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width-4, msg.Height-2)
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m runsModel) View() string {
	return lipgloss.NewStyle().Margin(1, 2).Render(m.list.View())
}

// SelectRun shows an interactive browser over recorded runs and returns the
// selected record, or nil if the user dismissed the list.
func SelectRun(runs []state.RunRecord) (*state.RunRecord, error) {
	items := make([]list.Item, len(runs))
	for i, r := range runs {
		items[i] = runItem{record: r}
	}

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(lipgloss.Color("6")).
		BorderLeftForeground(lipgloss.Color("6"))
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(lipgloss.Color("244")).
		BorderLeftForeground(lipgloss.Color("6"))

	l := list.New(items, delegate, 0, 0)
	l.Title = "Composition runs"
	l.Styles.Title = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)

	final, err := tea.NewProgram(runsModel{list: l}, tea.WithAltScreen()).Run()
	if err != nil {
		return nil, fmt.Errorf("failed to run selector: %w", err)
	}
	m, ok := final.(runsModel)
	if !ok {
		return nil, nil
	}
	return m.selected, nil
}
