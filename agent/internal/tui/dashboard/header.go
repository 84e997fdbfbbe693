package dashboard

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/wireterm/wireterm/agent/internal/ipc"
	"github.com/wireterm/wireterm/agent/internal/tui"
)

type headerModel struct {
	status ipc.StatusResult
}

func newHeader(status ipc.StatusResult) headerModel {
	return headerModel{status: status}
}

func (h *headerModel) update(status ipc.StatusResult) {
	h.status = status
}

func (h headerModel) View(width int) string {
	left := tui.Title.Render("WireTerm Agent")

	dot := tui.StatusDot(h.status.ServerConnected, false)
	statusLabel := tui.StatusText(h.status.ServerConnected, false)

	right := fmt.Sprintf("%s  %s %s", h.status.ServerURL, dot, statusLabel)

	uptime := h.formatUptime()
	details := fmt.Sprintf("  Agent: %s   Instances: %d   Uptime: %s   Version: %s",
		h.status.AgentName, h.status.Instances, uptime, h.status.Version)

	headerStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(tui.ColorPrimary).
		Width(width - 2).
		Padding(0, 1)

	firstRow := lipgloss.JoinHorizontal(lipgloss.Top,
		left,
		lipgloss.NewStyle().Width(width-lipgloss.Width(left)-lipgloss.Width(right)-6).Render(""),
		right,
	)

	return headerStyle.Render(firstRow + "\n" + tui.Description.Render(details))
}

func (h headerModel) formatUptime() string {
	if h.status.StartedAt.IsZero() {
		return "-"
	}
	d := time.Since(h.status.StartedAt)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
