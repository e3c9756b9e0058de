package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/relaynode/internal/agent"
	"github.com/muurk/relaynode/internal/link"
)

const maxMonitorEvents = 6

// StatusMsg carries a new agent snapshot into the monitor.
type StatusMsg agent.Status

type monitorKeyMap struct {
	Quit key.Binding
}

func (k monitorKeyMap) ShortHelp() []key.Binding  { return []key.Binding{k.Quit} }
func (k monitorKeyMap) FullHelp() [][]key.Binding { return [][]key.Binding{{k.Quit}} }

// MonitorModel is a live view of the agent's mode and link state.
type MonitorModel struct {
	Status  agent.Status
	Events  []string
	Width   int
	Spinner spinner.Model
	Help    help.Model
	Keys    monitorKeyMap
	Started bool // at least one status received
	Quit    bool
}

// NewMonitorModel creates a monitor waiting for its first status.
func NewMonitorModel() MonitorModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(WarningColor)

	return MonitorModel{
		Width:   GetTerminalWidth(),
		Spinner: s,
		Help:    help.New(),
		Keys: monitorKeyMap{
			Quit: key.NewBinding(
				key.WithKeys("q", "esc", "ctrl+c"),
				key.WithHelp("q", "quit"),
			),
		},
	}
}

// Init implements tea.Model
func (m MonitorModel) Init() tea.Cmd {
	return m.Spinner.Tick
}

// Update implements tea.Model
func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.Keys.Quit) {
			m.Quit = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = clampWidth(msg.Width)

	case StatusMsg:
		st := agent.Status(msg)
		if !m.Started || st.Mode != m.Status.Mode || st.Link != m.Status.Link {
			m.Events = append(m.Events, fmt.Sprintf("%s  %s / %s",
				time.Now().Format("15:04:05"), st.Mode, st.Link))
			if len(m.Events) > maxMonitorEvents {
				m.Events = m.Events[len(m.Events)-maxMonitorEvents:]
			}
		}
		m.Status = st
		m.Started = true

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// busy reports whether the agent is waiting on something.
func (m MonitorModel) busy() bool {
	return !m.Started ||
		m.Status.Mode == agent.ModeProvisioning ||
		m.Status.Link == link.StateConnecting
}

func (m MonitorModel) stateLine() string {
	if !m.Started {
		return m.Spinner.View() + " starting..."
	}

	marker := IdleMarker
	switch {
	case m.busy():
		marker = m.Spinner.View()
	case m.Status.Link == link.StateConnected:
		marker = SuccessMarker
	case m.Status.Link == link.StateFailed || m.Status.Mode == agent.ModeFailed:
		marker = FailureMarker
	}

	if m.Status.Mode == agent.ModeProvisioning {
		return marker + " " + WarningTitleStyle.Render("provisioning")
	}
	return marker + " " + LinkStateStyle(m.Status.Link).Render(m.Status.Link.String())
}

// View implements tea.Model
func (m MonitorModel) View() string {
	width := clampWidth(m.Width)
	st := m.Status

	var b strings.Builder
	b.WriteString(HeaderTitleStyle.Render("RELAYNODE MONITOR"))
	b.WriteString("\n\n  ")
	b.WriteString(m.stateLine())
	b.WriteString("\n\n")

	if m.Started {
		rows := [][2]string{
			{"Mode", st.Mode.String()},
			{"Backend", st.Target},
			{"Device", st.Device},
			{"Method", st.Method.String()},
			{"Version", fmt.Sprintf("%d", st.Version)},
			{"Connection", orDash(st.ConnID)},
			{"Attempts", fmt.Sprintf("%d (backoff %s)", st.Attempts, st.Backoff)},
			{"Messages", fmt.Sprintf("%d in / %d out", st.Stats.MessagesIn, st.Stats.MessagesOut)},
		}
		for _, row := range rows {
			b.WriteString(ResultKeyStyle.Render("  "+row[0]+":") + " " + ResultValueStyle.Render(row[1]) + "\n")
		}
		if st.Method.Insecure() {
			b.WriteString("\n  " + WarningTitleStyle.Render(WarningMarker+" development defaults in use") + "\n")
		}
	}

	if len(m.Events) > 0 {
		b.WriteString("\n" + TroubleshootingTitleStyle.Render("  Recent:") + "\n")
		for _, ev := range m.Events {
			b.WriteString(MutedStyle.Render("  "+ev) + "\n")
		}
	}

	b.WriteString("\n  " + m.Help.View(m.Keys) + "\n")

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(PrimaryColor).
		Width(width - 2).
		Render(b.String())
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Monitor runs a MonitorModel as a Bubble Tea program.
type Monitor struct {
	program *tea.Program
}

// NewMonitor creates a monitor rendering to out. Extra options are passed
// to the program.
func NewMonitor(out io.Writer, opts ...tea.ProgramOption) *Monitor {
	opts = append([]tea.ProgramOption{tea.WithOutput(out)}, opts...)
	return &Monitor{program: tea.NewProgram(NewMonitorModel(), opts...)}
}

// Update hands a status to the program. Safe to call from any goroutine.
func (m *Monitor) Update(st agent.Status) {
	m.program.Send(StatusMsg(st))
}

// Run blocks until the operator quits or Stop is called.
func (m *Monitor) Run() error {
	_, err := m.program.Run()
	return err
}

// Stop ends the program.
func (m *Monitor) Stop() {
	m.program.Quit()
}
