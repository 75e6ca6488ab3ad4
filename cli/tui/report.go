package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/sluice/operation"
)

// ReportModel is a Bubble Tea model summarizing a finished operation.
type ReportModel struct {
	data     *operation.Report
	width    int
	height   int
	quitting bool
}

// NewReportModel creates a new report model.
func NewReportModel(data *operation.Report) ReportModel {
	return ReportModel{data: data}
}

// Init implements tea.Model.
func (m ReportModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ReportModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m ReportModel) View() string {
	if m.quitting {
		return ""
	}
	if m.data == nil {
		return "Invalid data type for operation_report"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("%s %s", m.data.Kind, m.data.OperationID)))
	b.WriteString("\n")

	rows := [][2]string{
		{"Outcome", string(m.data.Outcome)},
		{"Message", m.data.Message},
		{"Duration", fmt.Sprintf("%dms", m.data.DurationMs)},
	}
	if m.data.Session != "" {
		rows = append(rows, [2]string{"Session", m.data.Session})
	}
	if e := m.data.Export; e != nil {
		rows = append(rows, [2]string{"Destination", e.Destination}, [2]string{"Digest", e.Digest})
		if e.ArtifactPath != "" {
			rows = append(rows, [2]string{"Artifact", e.ArtifactPath})
		}
	}
	for _, row := range rows {
		value := ValueStyle.Render(row[1])
		if row[0] == "Outcome" {
			value = StateStyle(row[1]).Render(row[1])
		}
		b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render(row[0]+":"), value))
	}
	b.WriteString("\n")

	boxes := []string{renderStatBox("Count", int64(m.data.Count), highlightColor)}
	if e := m.data.Export; e != nil {
		boxes = append(boxes,
			renderStatBox("Written", int64(e.Written), successColor),
			renderStatBox("Observed", int64(e.Observed), warningColor),
			renderStatBox("Drained", int64(e.Drained), mutedColor),
			renderStatBox("Bytes", e.Bytes, highlightColor),
		)
	} else if m.data.Metrics != nil {
		boxes = append(boxes,
			renderStatBox("Read", m.data.Metrics.MessagesRead, successColor),
			renderStatBox("Matches", m.data.Metrics.Matches, warningColor),
		)
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return BoxStyle.Render(b.String()) + "\n" + help
}

func renderStatBox(label string, value int64, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)

	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)

	return boxStyle.Render(content)
}

// RunReportTUI runs the report TUI.
func RunReportTUI(data any) error {
	report, ok := data.(*operation.Report)
	if !ok {
		return fmt.Errorf("operation_report expects *operation.Report, got %T", data)
	}
	p := tea.NewProgram(NewReportModel(report), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderReportStatic renders a report without full TUI (for fallback).
func RenderReportStatic(data *operation.Report) string {
	model := NewReportModel(data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
