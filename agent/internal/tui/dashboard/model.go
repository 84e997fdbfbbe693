// Package dashboard implements the Agent's attached terminal dashboard: a
// bubbletea program driven by the local IPC control socket, showing
// connection status and the locally-hosted PTY Instances.
package dashboard

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wireterm/wireterm/agent/internal/ipc"
	"github.com/wireterm/wireterm/agent/internal/tui"
)

// Panel identifies which dashboard panel is focused.
type Panel int

const (
	PanelInstances Panel = iota
	PanelLogs
)

// Model is the root dashboard TUI model.
type Model struct {
	header    headerModel
	instances instancesModel
	logs      logsModel
	help      helpModel

	activePanel Panel
	width       int
	height      int
	detached    bool
	quitting    bool
}

// NewModel creates a dashboard model seeded with an initial status and
// instance snapshot from the Agent's IPC server.
func NewModel(status ipc.StatusResult, instances []ipc.InstanceInfo) Model {
	return Model{
		header:    newHeader(status),
		instances: newInstances(instances),
		logs:      newLogs(),
		help:      newHelp(),
	}
}

// DetachMsg signals the TUI should detach, leaving the Agent running.
type DetachMsg struct{}

// EventMsg wraps an event streamed from the IPC subscription.
type EventMsg struct {
	Type string
	Data []byte
}

// StatusUpdateMsg carries a fresh status snapshot.
type StatusUpdateMsg struct {
	Status ipc.StatusResult
}

// InstancesUpdateMsg carries a fresh Instance list.
type InstancesUpdateMsg struct {
	Instances []ipc.InstanceInfo
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.logs.SetSize(msg.Width-4, m.logsHeight())
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, key.NewBinding(key.WithKeys("ctrl+c", "q"))):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, key.NewBinding(key.WithKeys("ctrl+d", "d"))):
			m.detached = true
			return m, tea.Quit
		case key.Matches(msg, key.NewBinding(key.WithKeys("tab"))):
			if m.activePanel == PanelInstances {
				m.activePanel = PanelLogs
			} else {
				m.activePanel = PanelInstances
			}
			return m, nil
		case key.Matches(msg, key.NewBinding(key.WithKeys("?"))):
			m.help.toggle()
			return m, nil
		}

	case StatusUpdateMsg:
		m.header.update(msg.Status)
		return m, nil

	case InstancesUpdateMsg:
		m.instances.update(msg.Instances)
		return m, nil

	case EventMsg:
		m.logs.addEvent(msg)
		return m, nil
	}

	var cmd tea.Cmd
	switch m.activePanel {
	case PanelInstances:
		m.instances, cmd = m.instances.Update(msg)
	case PanelLogs:
		m.logs, cmd = m.logs.Update(msg)
	}
	return m, cmd
}

func (m Model) View() string {
	if m.help.visible {
		return m.help.View()
	}

	headerView := m.header.View(m.width)

	instStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(tui.ColorMuted).
		Width(m.width - 2)

	logsStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(tui.ColorMuted).
		Width(m.width - 2)

	if m.activePanel == PanelInstances {
		instStyle = instStyle.BorderForeground(tui.ColorPrimary)
	} else {
		logsStyle = logsStyle.BorderForeground(tui.ColorPrimary)
	}

	instView := instStyle.Render(
		tui.Subtitle.Render(" Instances") + "\n" + m.instances.View(),
	)
	logsView := logsStyle.Render(
		tui.Subtitle.Render(" Events") + "\n" + m.logs.View(),
	)

	helpBar := m.help.bar()

	return lipgloss.JoinVertical(lipgloss.Left,
		headerView,
		instView,
		logsView,
		helpBar,
	)
}

// Detached returns true if the user pressed detach.
func (m Model) Detached() bool { return m.detached }

// Quitting returns true if the user quit.
func (m Model) Quitting() bool { return m.quitting }

func (m Model) logsHeight() int {
	used := 6 + m.instances.height() + 4
	h := m.height - used
	if h < 5 {
		h = 5
	}
	return h
}
