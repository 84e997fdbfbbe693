// Package wizard provides an interactive setup wizard for the tunnel
// server, writing a TOML config file the same shape server/internal/config
// reads.
package wizard

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/wireterm/wireterm/pkg/cli"
	"github.com/wireterm/wireterm/server/internal/config"
)

// Wizard drives the interactive server config setup.
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
	_, _ = fmt.Fprintln(w.p.Out, "  WireTerm Server — Configuration Wizard")
	_, _ = fmt.Fprintln(w.p.Out, strings.Repeat("─", 40))
	_, _ = fmt.Fprintln(w.p.Out)

	cfg := &config.Config{}

	_, _ = fmt.Fprintln(w.p.Out, "Server")
	cfg.Server.Host = w.p.Ask("  Listen host", "0.0.0.0")
	cfg.Server.Port = w.p.AskInt("  Listen port", 8080)
	_, _ = fmt.Fprintln(w.p.Out)

	_, _ = fmt.Fprintln(w.p.Out, "Super-Admin Authentication")
	token, err := generateToken()
	if err != nil {
		return fmt.Errorf("generate super-admin token: %w", err)
	}
	cfg.Security.SuperAdminToken = w.p.Ask("  Super-admin token (leave blank to auto-generate)", token)
	cfg.Security.TokenMinLength = w.p.AskInt("  Minimum per-Agent token length", 16)
	cfg.Security.RateLimitPerMinute = w.p.AskInt("  Auth attempts per minute per IP (0 disables)", 20)
	_, _ = fmt.Fprintln(w.p.Out)

	_, _ = fmt.Fprintln(w.p.Out, "Storage")
	driver := w.p.Choose("  Database driver", []string{"sqlite", "mysql"}, 0)
	cfg.Database.Type = driver
	switch driver {
	case "sqlite":
		cfg.Database.SQLitePath = w.p.Ask("  SQLite database path", "wireterm.db")
	case "mysql":
		cfg.Database.MySQLURL = w.p.Ask("  MySQL DSN", "user:pass@tcp(localhost:3306)/wireterm")
	}
	if w.p.Confirm("  Use Redis for rate limiting", false) {
		cfg.Database.RedisURL = w.p.Ask("  Redis URL", "redis://localhost:6379/0")
	}
	_, _ = fmt.Fprintln(w.p.Out)

	_, _ = fmt.Fprintln(w.p.Out, "Terminal History")
	cfg.TerminalHistory.Enabled = w.p.Confirm("  Enable history retention", true)
	if cfg.TerminalHistory.Enabled {
		cfg.TerminalHistory.DefaultBufferSizeKB = w.p.AskInt("  Default per-Instance buffer size (KB)", 256)
		cfg.TerminalHistory.MaxBufferSizeKB = w.p.AskInt("  Max per-Instance buffer size (KB)", 2048)
		cfg.TerminalHistory.RetentionDays = w.p.AskInt("  Retention window (days)", 7)
	}
	_, _ = fmt.Fprintln(w.p.Out)

	_, _ = fmt.Fprintln(w.p.Out, "Audit Log")
	cfg.AuditLog.Enabled = w.p.Confirm("  Enable audit logging", true)
	if cfg.AuditLog.Enabled {
		cfg.AuditLog.RetentionDays = w.p.AskInt("  Audit retention window (days)", 90)
	}
	_, _ = fmt.Fprintln(w.p.Out)

	cfg.Logging.Level = w.p.Choose("  Log level", []string{"info", "debug", "warn", "error"}, 0)
	cfg.Logging.Rotation = "daily"

	if outputPath == "" {
		outputPath = w.p.Ask("Config file output path", "./server-config.toml")
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
	_, _ = fmt.Fprintf(w.p.Out, "    tunnel-server run %s\n\n", outputPath)

	return nil
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
