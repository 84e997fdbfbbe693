package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wireterm/wireterm/pkg/logging"
	"github.com/wireterm/wireterm/server/internal/app"
	"github.com/wireterm/wireterm/server/internal/config"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [config-file]",
		Short: "start the server (default when no subcommand is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runRun,
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	configPath := resolveConfigPath(cmd, args, "server-config.toml")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, closeLog, err := logging.New(cfg.Logging.Level, cfg.Logging.File, cfg.Logging.Rotation)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer closeLog()

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize server", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	logger.Info("wireterm server starting", "version", version, "config", configPath)

	if err := a.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("server error", "error", err)
		os.Exit(2)
	}

	logger.Info("server stopped")
	return nil
}

// resolveConfigPath returns the config file path from (in priority order):
// a positional argument, the --config/-c flag, or the default.
func resolveConfigPath(cmd *cobra.Command, args []string, defaultPath string) string {
	if len(args) > 0 {
		return args[0]
	}
	if f := cmd.Flag("config"); f != nil && f.Changed {
		return f.Value.String()
	}
	if f := cmd.Root().PersistentFlags().Lookup("config"); f != nil && f.Changed {
		return f.Value.String()
	}
	return defaultPath
}
