package dashboard

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wireterm/wireterm/agent/internal/ipc"
	"github.com/wireterm/wireterm/agent/internal/tui"
)

type instancesModel struct {
	items  []ipc.InstanceInfo
	cursor int
}

func newInstances(instances []ipc.InstanceInfo) instancesModel {
	return instancesModel{items: instances}
}

func (s *instancesModel) update(instances []ipc.InstanceInfo) {
	s.items = instances
	if s.cursor >= len(s.items) {
		s.cursor = max(0, len(s.items)-1)
	}
}

func (s instancesModel) Update(msg tea.Msg) (instancesModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "j", "down":
			if s.cursor < len(s.items)-1 {
				s.cursor++
			}
		case "k", "up":
			if s.cursor > 0 {
				s.cursor--
			}
		case "G":
			s.cursor = max(0, len(s.items)-1)
		case "g":
			s.cursor = 0
		}
	}
	return s, nil
}

func (s instancesModel) View() string {
	if len(s.items) == 0 {
		return tui.Dimmed.Render("  No active instances")
	}

	headerStyle := lipgloss.NewStyle().Foreground(tui.ColorSubtle).Bold(true)
	header := fmt.Sprintf("  %-10s %-30s %s",
		headerStyle.Render("ID"),
		headerStyle.Render("CWD"),
		headerStyle.Render("AGE"),
	)

	rows := header + "\n"
	for i, inst := range s.items {
		cursor := "  "
		style := lipgloss.NewStyle()
		if i == s.cursor {
			cursor = tui.Selected.Render("> ")
			style = style.Bold(true)
		}

		shortID := inst.ID
		if len(shortID) > 8 {
			shortID = shortID[:8]
		}

		cwd := inst.Cwd
		if len(cwd) > 30 {
			cwd = "…" + cwd[len(cwd)-29:]
		}

		age := formatAge(inst.CreatedAt)

		row := fmt.Sprintf("%-10s %-30s %s",
			style.Render(shortID),
			style.Render(cwd),
			style.Render(age),
		)
		rows += cursor + row + "\n"
	}

	return rows
}

func (s instancesModel) height() int {
	return min(len(s.items)+2, 12)
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
