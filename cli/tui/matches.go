package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/sluice/search"
)

// MatchesView is the payload of the search_matches view.
type MatchesView struct {
	// Filters are the filter expressions in extractor order.
	Filters []string
	Matches []search.ExtractedMatchValue
}

// MatchesModel is a scrollable Bubble Tea model over search results.
type MatchesModel struct {
	data     *MatchesView
	offset   int
	width    int
	height   int
	quitting bool
}

// NewMatchesModel creates a new matches model.
func NewMatchesModel(data *MatchesView) MatchesModel {
	return MatchesModel{data: data, height: 24}
}

// Init implements tea.Model.
func (m MatchesModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m MatchesModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.offset = m.clamp(m.offset)
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Down):
			m.offset = m.clamp(m.offset + 1)
		case key.Matches(msg, keys.Up):
			m.offset = m.clamp(m.offset - 1)
		case key.Matches(msg, keys.PageDown):
			m.offset = m.clamp(m.offset + m.pageSize())
		case key.Matches(msg, keys.PageUp):
			m.offset = m.clamp(m.offset - m.pageSize())
		}
	}

	return m, nil
}

// pageSize is the number of match rows that fit between title and help.
func (m MatchesModel) pageSize() int {
	return max(m.height-6, 1)
}

func (m MatchesModel) clamp(offset int) int {
	if m.data == nil {
		return 0
	}
	last := max(len(m.data.Matches)-m.pageSize(), 0)
	return min(max(offset, 0), last)
}

// View implements tea.Model.
func (m MatchesModel) View() string {
	if m.quitting {
		return ""
	}
	if m.data == nil {
		return "Invalid data type for search_matches"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("Matches (%d)", len(m.data.Matches))))
	b.WriteString("\n")

	if len(m.data.Matches) == 0 {
		b.WriteString(LabelStyle.Render("(no matches)"))
		b.WriteString("\n")
	}

	end := min(m.offset+m.pageSize(), len(m.data.Matches))
	for _, match := range m.data.Matches[m.offset:end] {
		b.WriteString(IndexStyle.Render(fmt.Sprintf("#%d", match.Index)))
		for _, fm := range match.Values {
			b.WriteString(" ")
			b.WriteString(FilterStyle.Render(m.filterName(fm.Filter) + "="))
			b.WriteString(ValueStyle.Render(strings.Join(fm.Values, ",")))
		}
		b.WriteString("\n")
	}

	help := HelpStyle.Render("↑/↓ scroll • pgup/pgdn page • q quit")
	return lipgloss.JoinVertical(lipgloss.Left, b.String(), help)
}

func (m MatchesModel) filterName(i int) string {
	if i >= 0 && i < len(m.data.Filters) {
		return m.data.Filters[i]
	}
	return fmt.Sprintf("filter%d", i)
}

// RunMatchesTUI runs the matches TUI.
func RunMatchesTUI(data any) error {
	view, ok := data.(*MatchesView)
	if !ok {
		return fmt.Errorf("search_matches expects *tui.MatchesView, got %T", data)
	}
	p := tea.NewProgram(NewMatchesModel(view), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderMatchesStatic renders matches without full TUI (for fallback).
func RenderMatchesStatic(data *MatchesView) string {
	model := NewMatchesModel(data)
	model.width = 80
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
