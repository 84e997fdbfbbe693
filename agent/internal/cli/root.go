// Package cli implements the tunnel-agent command-line interface.
package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

// NewRootCmd creates the root cobra command for tunnel-agent. Bare
// invocation (no subcommand) behaves as "run" in the foreground.
func NewRootCmd(v string) *cobra.Command {
	version = v

	root := &cobra.Command{
		Use:   "tunnel-agent",
		Short: "wireterm tunnel agent — hosts local PTY Instances and relays them to the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newDashboardCmd())
	root.AddCommand(newStopCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newVersionCmd())
	root.PersistentFlags().StringP("config", "c", "agent-config.toml", "path to configuration file")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print version and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Println("tunnel-agent", version)
			return nil
		},
	}
}
