package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"enrich/internal/domain"
)

// Model is the Bubble Tea model for browsing a batch summary.
type Model struct {
	title    string
	summary  domain.BatchSummary
	viewport viewport.Model
	cursor   int
	ready    bool
}

// New creates a browser over summary; title is usually the workbook path.
func New(title string, summary domain.BatchSummary) Model {
	return Model{title: title, summary: summary, viewport: viewport.New(0, 0)}
}

func (m Model) Init() tea.Cmd { return nil }

// Cursor is the index of the selected sample.
func (m Model) Cursor() int { return m.cursor }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, dh := detailBoxStyle.GetFrameSize()
		listLines := min(len(m.summary.Outcomes), 10)
		reserved := 3 + listLines + 1 // header, totals, spacer, list, footer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-dh)
		m.viewport.SetContent(m.renderSelected())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		n := len(m.summary.Outcomes)
		switch msg.String() {
		case "q", "esc":
			return m, tea.Quit
		case "down", "j":
			if n > 0 {
				m.cursor = (m.cursor + 1) % n
				m.viewport.SetContent(m.renderSelected())
			}
			return m, nil
		case "up", "k":
			if n > 0 {
				m.cursor = (m.cursor - 1 + n) % n
				m.viewport.SetContent(m.renderSelected())
			}
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the header, the sample list and the selected sample's details.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Batch summary: " + m.title)
	totals := dimStyle.Render(fmt.Sprintf("%d samples, %d successful, %d failed",
		len(m.summary.Outcomes), m.summary.Succeeded(), m.summary.Failed()))
	footer := dimStyle.Render("up/down: select  q: quit")
	return header + "\n" + totals + "\n\n" + m.renderList() + "\n" + detailBoxStyle.Render(m.viewport.View()) + "\n" + footer
}

// renderList shows a window of at most ten samples around the cursor.
func (m Model) renderList() string {
	outcomes := m.summary.Outcomes
	if len(outcomes) == 0 {
		return "No samples."
	}
	start := 0
	if m.cursor >= 10 {
		start = m.cursor - 9
	}
	end := min(len(outcomes), start+10)
	var b strings.Builder
	for i := start; i < end; i++ {
		o := outcomes[i]
		mark := okStyle.Render("✓")
		if o.Status != domain.StatusSuccess {
			mark = failStyle.Render("✗")
		}
		line := fmt.Sprintf("%s %s", mark, o.SampleName)
		if i == m.cursor {
			line = selectedStyle.Render("> ") + line
		} else {
			line = "  " + line
		}
		b.WriteString(line)
		if i < end-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m Model) renderSelected() string {
	if len(m.summary.Outcomes) == 0 {
		return "Nothing to show."
	}
	o := m.summary.Outcomes[m.cursor]
	title := fmt.Sprintf("Sample %d/%d  %s", m.cursor+1, len(m.summary.Outcomes), o.SampleName)
	if o.Status != domain.StatusSuccess {
		return title + "\n\n" + failStyle.Render("failed: "+o.Error)
	}
	var b strings.Builder
	b.WriteString(title + "\n\n")
	fmt.Fprintf(&b, "up genes: %d\ndown genes: %d\n", o.UpGenes, o.DownGenes)
	for _, c := range o.Counts {
		fmt.Fprintf(&b, "%-45s %d\n", c.Key, c.Count)
	}
	return strings.TrimRight(b.String(), "\n")
}

var (
	detailBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	selectedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	okStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)
