package dashboard

import (
	"encoding/json"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/wireterm/wireterm/agent/internal/ipc"
)

// Attach connects to a running Agent via its IPC socket and displays the
// dashboard TUI. Returns true if the user detached (Agent keeps running),
// false if they quit.
func Attach(socketPath string) (detached bool, err error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		return false, fmt.Errorf("connect to agent: %w", err)
	}
	defer func() { _ = client.Close() }()

	statusResp, err := client.Call("status", nil)
	if err != nil {
		return false, fmt.Errorf("query status: %w", err)
	}
	var status ipc.StatusResult
	if err := json.Unmarshal(statusResp.Data, &status); err != nil {
		return false, fmt.Errorf("decode status: %w", err)
	}

	instResp, err := client.Call("instances", nil)
	if err != nil {
		return false, fmt.Errorf("query instances: %w", err)
	}
	var instResult ipc.InstancesResult
	if err := json.Unmarshal(instResp.Data, &instResult); err != nil {
		return false, fmt.Errorf("decode instances: %w", err)
	}

	if err := client.Subscribe(); err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}

	m := NewModel(status, instResult.Instances)
	p := tea.NewProgram(m, tea.WithAltScreen())

	go func() {
		for evt := range client.Events() {
			p.Send(EventMsg{Type: evt.Type, Data: evt.Data})
		}
	}()

	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			resp, err := client.Call("status", nil)
			if err != nil {
				return
			}
			var s ipc.StatusResult
			if json.Unmarshal(resp.Data, &s) == nil {
				p.Send(StatusUpdateMsg{Status: s})
			}

			ir, err := client.Call("instances", nil)
			if err != nil {
				return
			}
			var is ipc.InstancesResult
			if json.Unmarshal(ir.Data, &is) == nil {
				p.Send(InstancesUpdateMsg{Instances: is.Instances})
			}
		}
	}()

	finalModel, err := p.Run()
	if err != nil {
		return false, fmt.Errorf("dashboard error: %w", err)
	}

	result := finalModel.(Model)
	return result.Detached(), nil
}
