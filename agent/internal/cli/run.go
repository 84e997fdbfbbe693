package cli

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wireterm/wireterm/agent/internal/agent"
	"github.com/wireterm/wireterm/agent/internal/config"
	"github.com/wireterm/wireterm/agent/internal/daemon"
	"github.com/wireterm/wireterm/agent/internal/ipc"
	"github.com/wireterm/wireterm/pkg/eventbus"
	"github.com/wireterm/wireterm/pkg/logging"
)

func newRunCmd() *cobra.Command {
	var background bool

	cmd := &cobra.Command{
		Use:   "run [config-file]",
		Short: "start the agent (default when no subcommand is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if background {
				return spawnDaemon(cmd, args)
			}
			return runForeground(cmd, args)
		},
	}
	cmd.Flags().BoolVarP(&background, "daemon", "d", false, "detach and run in the background")
	return cmd
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "stop a daemonized agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := daemon.ReadPID()
			if err != nil {
				return fmt.Errorf("read pid file: %w", err)
			}
			if pid == 0 {
				cmd.Println("agent is not running")
				return nil
			}
			if err := daemon.StopProcess(pid, 5*time.Second); err != nil {
				return fmt.Errorf("stop agent: %w", err)
			}
			_ = daemon.RemovePID()
			cmd.Println("agent stopped")
			return nil
		},
	}
}

func runForeground(cmd *cobra.Command, args []string) error {
	configPath := resolveConfigPath(cmd, args, "agent-config.toml")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, closeLog, err := logging.New(cfg.Logging.Level, cfg.Logging.File, cfg.Logging.Rotation)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer closeLog()

	bus := eventbus.New()
	a := agent.New(cfg, bus, version, logger)

	ipcServer := ipc.NewServer(daemon.SocketPath(), a, bus, logger)
	if err := ipcServer.Start(); err != nil {
		logger.Error("failed to start IPC server", "error", err)
		os.Exit(1)
	}
	defer ipcServer.Close()

	if err := daemon.WritePID(os.Getpid()); err != nil {
		logger.Warn("failed to write pid file", "error", err)
	}
	defer daemon.RemovePID()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	logger.Info("wireterm agent starting", "version", version, "config", configPath, "server", cfg.Server.URL)
	a.Run(ctx)
	logger.Info("agent stopped")
	return nil
}

// spawnDaemon re-execs the current binary without --daemon, detached from
// the controlling terminal, with stdout/stderr redirected to the daemon log.
func spawnDaemon(cmd *cobra.Command, args []string) error {
	configPath := resolveConfigPath(cmd, args, "agent-config.toml")

	logFile, err := daemon.OpenLogFile()
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	child := exec.Command(exe, "run", configPath)
	child.Stdout = logFile
	child.Stderr = logFile
	child.SysProcAttr = daemon.DetachSysProcAttr()

	if err := child.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	cmd.Printf("agent started in background (pid %d)\n", child.Process.Pid)
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
