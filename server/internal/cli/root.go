// Package cli implements the tunnel-server command-line interface.
package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

// NewRootCmd creates the root cobra command for tunnel-server. Bare
// invocation (no subcommand) behaves as "run", matching the single
// --config flag the spec's CLI surface names.
func NewRootCmd(v string) *cobra.Command {
	version = v

	root := &cobra.Command{
		Use:   "tunnel-server",
		Short: "wireterm tunnel server — central session router and web UI host",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newVersionCmd())
	root.PersistentFlags().StringP("config", "c", "server-config.toml", "path to configuration file")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print version and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Println("tunnel-server", version)
			return nil
		},
	}
}
