package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/agentpilot/agentpilot/pkg/models"
)

// Dashboard panel indices.
const (
	panelPhase = iota
	panelFeatures
	panelTraces
	panelCount
)

type dashboardModel struct {
	activePanel int
	width       int
	height      int

	// Data.
	phase     models.SessionPhase
	checklist models.ChecklistResult
	counts    models.StatusCounts
	traces    []models.TraceRecord

	// State.
	loading bool
	err     error
}

// sessionLoadedMsg carries loaded session data back to the model.
type sessionLoadedMsg struct {
	phase     models.SessionPhase
	checklist models.ChecklistResult
	counts    models.StatusCounts
	traces    []models.TraceRecord
	err       error
}

// Style definitions.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(1, 2)

	activePanelStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62")).
				Padding(1, 2)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			MarginBottom(1)

	statusPending    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	statusInProgress = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	statusBlocked    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusCompleted  = lipgloss.NewStyle().Foreground(lipgloss.Color("141"))
	statusTested     = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))

	checkPass = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	checkFail = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	outcomeSuccess = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	outcomeFailure = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	outcomeOther   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newDashboardModel() dashboardModel {
	return dashboardModel{
		activePanel: panelPhase,
		loading:     true,
	}
}

func (m dashboardModel) Init() tea.Cmd {
	return loadSession
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.activePanel = (m.activePanel + 1) % panelCount
			return m, nil
		case "shift+tab":
			m.activePanel = (m.activePanel - 1 + panelCount) % panelCount
			return m, nil
		case "r":
			m.loading = true
			return m, loadSession
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case sessionLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.phase = msg.phase
		m.checklist = msg.checklist
		m.counts = msg.counts
		m.traces = msg.traces
		m.err = nil
		return m, nil
	}

	return m, nil
}

func (m dashboardModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	title := titleStyle.Render(" apilot Session ")
	help := helpStyle.Render("tab: switch panel | r: refresh | q: quit")

	if m.loading {
		return fmt.Sprintf("%s\n\n  Loading session...\n\n%s", title, help)
	}

	if m.err != nil {
		return fmt.Sprintf("%s\n\n  Error: %s\n\n%s", title, m.err, help)
	}

	phasePanel := m.renderPhasePanel()
	featuresPanel := m.renderFeaturesPanel()
	tracesPanel := m.renderTracesPanel()

	// Available width for panels after accounting for margins.
	availableWidth := m.width - 2

	var body string
	if availableWidth > 120 {
		// Horizontal layout: three columns.
		colWidth := availableWidth / 3
		phasePanel = m.applyPanelStyle(panelPhase, phasePanel, colWidth-4)
		featuresPanel = m.applyPanelStyle(panelFeatures, featuresPanel, colWidth-4)
		tracesPanel = m.applyPanelStyle(panelTraces, tracesPanel, colWidth-4)
		body = lipgloss.JoinHorizontal(lipgloss.Top, phasePanel, featuresPanel, tracesPanel)
	} else {
		// Vertical layout: stacked.
		panelWidth := availableWidth - 4
		if panelWidth < 20 {
			panelWidth = 20
		}
		phasePanel = m.applyPanelStyle(panelPhase, phasePanel, panelWidth)
		featuresPanel = m.applyPanelStyle(panelFeatures, featuresPanel, panelWidth)
		tracesPanel = m.applyPanelStyle(panelTraces, tracesPanel, panelWidth)
		body = lipgloss.JoinVertical(lipgloss.Left, phasePanel, featuresPanel, tracesPanel)
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, body, help)
}

func (m dashboardModel) applyPanelStyle(panel int, content string, width int) string {
	style := panelStyle
	if m.activePanel == panel {
		style = activePanelStyle
	}
	return style.Width(width).Render(content)
}

func (m dashboardModel) renderPhasePanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Phase"))
	b.WriteString("\n")

	b.WriteString(fmt.Sprintf("  %s", m.phase.Name))
	if !m.phase.EnteredAt.IsZero() {
		b.WriteString(fmt.Sprintf("  (since %s)", m.phase.EnteredAt.Local().Format("Jan 2 15:04")))
	}
	b.WriteString("\n")

	if m.checklist.Total == 0 {
		b.WriteString("\n  No exit criteria (terminal phase).")
		return b.String()
	}

	b.WriteString("\n")
	for _, r := range m.checklist.Results {
		if r.Passed {
			b.WriteString(checkPass.Render(fmt.Sprintf("  PASS %s", r.Name)))
		} else {
			line := fmt.Sprintf("  FAIL %s", r.Name)
			if r.Reason != "" {
				line += fmt.Sprintf(": %s", r.Reason)
			}
			b.WriteString(checkFail.Render(line))
		}
		b.WriteString("\n")
	}
	b.WriteString(fmt.Sprintf("\n  %d/%d criteria met", m.checklist.Passed, m.checklist.Total))

	return b.String()
}

func (m dashboardModel) renderFeaturesPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Features"))
	b.WriteString("\n")

	if m.counts.Total() == 0 {
		b.WriteString("  No features in backlog.")
		return b.String()
	}

	rows := []struct {
		label string
		count int
		style lipgloss.Style
	}{
		{"in_progress", m.counts.InProgress, statusInProgress},
		{"blocked", m.counts.Blocked, statusBlocked},
		{"pending", m.counts.Pending, statusPending},
		{"completed", m.counts.Completed, statusCompleted},
		{"tested", m.counts.Tested, statusTested},
	}
	for _, row := range rows {
		if row.count == 0 {
			continue
		}
		b.WriteString(row.style.Render(fmt.Sprintf("  %-14s %d", row.label, row.count)))
		b.WriteString("\n")
	}

	b.WriteString(fmt.Sprintf("\n  Total: %d  Remaining: %d", m.counts.Total(), m.counts.Remaining()))

	return b.String()
}

func (m dashboardModel) renderTracesPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Recent Decisions"))
	b.WriteString("\n")

	if len(m.traces) == 0 {
		b.WriteString("  No decision traces recorded.")
		return b.String()
	}

	for _, tr := range m.traces {
		marker := outcomeOther
		switch tr.Outcome {
		case models.OutcomeSuccess:
			marker = outcomeSuccess
		case models.OutcomeFailure:
			marker = outcomeFailure
		}
		decision := tr.Decision
		if r := []rune(decision); len(r) > 48 {
			decision = string(r[:45]) + "..."
		}
		b.WriteString(fmt.Sprintf("  %s %s %s\n",
			tr.Timestamp.Local().Format("15:04"),
			marker.Render(fmt.Sprintf("[%s]", tr.Outcome)),
			decision))
	}

	return b.String()
}

func loadSession() tea.Msg {
	var result sessionLoadedMsg

	if Session == nil || Scheduler == nil {
		result.err = fmt.Errorf("session not initialized")
		return result
	}

	result.phase = Session.Current()
	result.checklist = Session.VerifyExit()

	result.counts = Scheduler.Aggregate()

	if Traces != nil {
		traces, err := Traces.Query(models.TraceFilter{Limit: 10})
		if err != nil {
			result.err = err
			return result
		}
		result.traces = traces
	}

	return result
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Interactive session dashboard",
	Long:  "Display a live terminal dashboard with the session phase, backlog counts, and recent decision traces.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := tea.NewProgram(newDashboardModel(), tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("running dashboard: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}
