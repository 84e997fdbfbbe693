package cli

import (
	"github.com/spf13/cobra"

	prompt "github.com/wireterm/wireterm/pkg/cli"
	"github.com/wireterm/wireterm/server/internal/wizard"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "interactive setup wizard to generate a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			w := wizard.New(prompt.DefaultPrompter())
			return w.Run(output)
		},
	}
	cmd.Flags().StringP("output", "o", "", "output config file path (default: ./server-config.toml)")
	return cmd
}
