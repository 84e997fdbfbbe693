// Package wizard provides an interactive setup wizard for the tunnel
// agent, writing a TOML config file the same shape agent/internal/config
// reads.
package wizard

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/wireterm/wireterm/agent/internal/config"
	"github.com/wireterm/wireterm/pkg/cli"
)

// Wizard drives the interactive agent config setup.
type Wizard struct {
	p *cli.Prompter
}

// New creates a Wizard using the given Prompter.
func New(p *cli.Prompter) *Wizard {
	return &Wizard{p: p}
}

// Run executes the interactive wizard and writes the config file.
func (w *Wizard) Run(outputPath string) error {
	_, _ = fmt.Fprintln(w.p.Out)
	_, _ = fmt.Fprintln(w.p.Out, "  WireTerm Agent — Configuration Wizard")
	_, _ = fmt.Fprintln(w.p.Out, strings.Repeat("─", 39))
	_, _ = fmt.Fprintln(w.p.Out)

	cfg := &config.Config{}

	_, _ = fmt.Fprintln(w.p.Out, "Identity")
	cfg.Agent.Name = w.p.Ask("  Agent name", "my-agent")
	_, _ = fmt.Fprintln(w.p.Out)

	_, _ = fmt.Fprintln(w.p.Out, "Server")
	cfg.Server.URL = w.p.Ask("  Server WebSocket URL", "ws://localhost:8080/ws/agent")
	cfg.Server.ReconnectInterval = w.p.AskInt("  Reconnect interval (seconds)", 10)
	cfg.Server.HeartbeatInterval = w.p.AskInt("  Heartbeat interval (seconds)", 30)
	_, _ = fmt.Fprintln(w.p.Out)

	_, _ = fmt.Fprintln(w.p.Out, "Authentication")
	adminToken, err := generateToken()
	if err != nil {
		return fmt.Errorf("generate admin token: %w", err)
	}
	shareToken, err := generateToken()
	if err != nil {
		return fmt.Errorf("generate share token: %w", err)
	}
	cfg.Agent.AdminToken = w.p.Ask("  Admin token (leave blank to auto-generate)", adminToken)
	cfg.Agent.ShareToken = w.p.Ask("  Share token (leave blank to auto-generate)", shareToken)
	_, _ = fmt.Fprintln(w.p.Out)
	_, _ = fmt.Fprintln(w.p.Out, "  Register these tokens with the server operator:")
	_, _ = fmt.Fprintf(w.p.Out, "    Admin token:  %s\n", cfg.Agent.AdminToken)
	_, _ = fmt.Fprintf(w.p.Out, "    Share token:  %s\n", cfg.Agent.ShareToken)
	_, _ = fmt.Fprintln(w.p.Out)

	cfg.Logging.Level = w.p.Choose("  Log level", []string{"info", "debug", "warn", "error"}, 0)
	cfg.Logging.Rotation = "daily"

	if outputPath == "" {
		outputPath = w.p.Ask("Config file output path", "./agent-config.toml")
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	_, _ = fmt.Fprintf(w.p.Out, "\n  Config written to %s\n", outputPath)
	_, _ = fmt.Fprintln(w.p.Out, "  Next step:")
	_, _ = fmt.Fprintf(w.p.Out, "    tunnel-agent run %s\n\n", outputPath)

	return nil
}

func generateToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
