// Package tui renders a terminal dashboard of the monitor progress and the
// most recent findings.
package tui

import (
	"fmt"
	"strings"
	"time"

	"influence-monitoring/internal/collector"
	"influence-monitoring/internal/detector"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

var severityStyles = map[detector.Severity]lipgloss.Style{
	detector.SeverityLow:      lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	detector.SeverityMedium:   lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
	detector.SeverityHigh:     lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	detector.SeverityCritical: lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("1")).Bold(true),
}

func padToWidth(s string, width int) string {
	current := runewidth.StringWidth(s)
	if current >= width {
		return s
	}
	return s + strings.Repeat(" ", width-current)
}

func truncateToWidth(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	if width <= 3 {
		return runewidth.Truncate(s, width, "")
	}
	return runewidth.Truncate(s, width, "...")
}

func separatorLine(width int) string {
	if width < 2 {
		return strings.Repeat("─", width)
	}
	return "├" + strings.Repeat("─", width-2) + "┤"
}

func formatInfoLine(text string, width int) string {
	if width < 2 {
		return padToWidth(text, width)
	}
	return "│" + padToWidth(truncateToWidth(text, width-2), width-2) + "│"
}

// UpdateMsg carries a new collector status.
type UpdateMsg struct {
	Status collector.Status
}

// Model holds the TUI state
type Model struct {
	status   collector.Status
	updated  time.Time
	width    int
	height   int
	governor string
}

// NewModel creates a new TUI model
func NewModel(governor string) Model {
	return Model{governor: governor}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case UpdateMsg:
		m.status = msg.Status
		m.updated = time.Now()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	}

	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.renderHeader(), m.renderFindings())
}

// renderHeader renders the progress box
func (m Model) renderHeader() string {
	s := m.status
	var lag uint64
	if s.Head > s.Processed {
		lag = s.Head - s.Processed
	}
	blockTime := "N/A"
	if s.BlockTime > 0 {
		blockTime = fmt.Sprintf("%.3fs", s.BlockTime.Seconds())
	}
	updated := "never"
	if !m.updated.IsZero() {
		updated = m.updated.Format("15:04:05")
	}

	lines := []string{
		fmt.Sprintf(" governor %s", m.governor),
		fmt.Sprintf(" head=%d processed=%d lag=%d block time=%s updated=%s",
			s.Head, s.Processed, lag, blockTime, updated),
		fmt.Sprintf(" transactions=%d findings=%d failures=%d proposals=%d votes=%d",
			s.Transactions, s.Findings, s.Failures, s.Proposals, s.Votes),
	}

	var b strings.Builder
	b.WriteString("┌" + strings.Repeat("─", max(m.width-2, 0)) + "┐\n")
	for _, l := range lines {
		b.WriteString(formatInfoLine(l, m.width) + "\n")
	}
	b.WriteString(separatorLine(m.width))
	return b.String()
}

// renderFindings renders the most recent findings, newest first
func (m Model) renderFindings() string {
	// header box is 5 lines, footer 3
	rows := m.height - 8
	if rows < 1 {
		rows = 1
	}

	var lines []string
	if len(m.status.Recent) == 0 {
		lines = append(lines, formatInfoLine(" no findings yet", m.width))
	}
	for i, f := range m.status.Recent {
		if i >= rows {
			break
		}
		lines = append(lines, m.formatFinding(f))
	}

	bottomBorder := "└" + strings.Repeat("─", max(m.width-2, 0)) + "┘"
	return strings.Join(lines, "\n") + "\n" + separatorLine(m.width) + "\n" +
		formatInfoLine(" Block, Alert, Severity, Proposal, Voter, Delta", m.width) + "\n" + bottomBorder
}

func (m Model) formatFinding(f detector.Finding) string {
	sev := fmt.Sprintf("%-8s", f.Severity)
	if st, ok := severityStyles[f.Severity]; ok {
		sev = st.Render(sev)
	}
	voter := f.Voter
	if label := f.Metadata["voterLabel"]; label != "" {
		voter = label
	} else if len(voter) > 12 {
		voter = voter[:8] + "..." + voter[len(voter)-4:]
	}
	delta := "-"
	if f.Delta != nil {
		delta = f.Delta.String()
	}

	prefix := fmt.Sprintf(" %9d %-10s ", f.BlockNumber, f.AlertID)
	rest := fmt.Sprintf(" %-6s %-18s %s", f.ProposalID, voter, delta)

	// The severity cell carries escape codes, measure the rest.
	avail := m.width - 2 - runewidth.StringWidth(prefix) - 8
	if avail < 0 {
		avail = 0
	}
	rest = padToWidth(truncateToWidth(rest, avail), avail)
	return "│" + prefix + sev + rest + "│"
}

// Run starts the TUI program and feeds it the statuses read from updateCh.
// It returns when the user quits or updateCh is closed.
func Run(governor string, updateCh <-chan interface{}) error {
	p := tea.NewProgram(NewModel(governor), tea.WithAltScreen())

	go func() {
		for data := range updateCh {
			if s, ok := data.(collector.Status); ok {
				p.Send(UpdateMsg{Status: s})
			}
		}
		// Channel closed, quit TUI
		p.Quit()
	}()

	_, err := p.Run()
	return err
}
