package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wireterm/wireterm/agent/internal/daemon"
	"github.com/wireterm/wireterm/agent/internal/tui/dashboard"
)

func newDashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "attach a terminal dashboard to a running agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := daemon.ReadPID()
			if err != nil {
				return fmt.Errorf("read pid file: %w", err)
			}
			if pid == 0 || !daemon.IsRunning(pid) {
				return fmt.Errorf("agent is not running; start it with 'tunnel-agent run --daemon' first")
			}

			detached, err := dashboard.Attach(daemon.SocketPath())
			if err != nil {
				return err
			}
			if !detached {
				cmd.Println("dashboard closed; agent still running in background")
			}
			return nil
		},
	}
}
