package wizard

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wireterm/wireterm/pkg/cli"
	"github.com/wireterm/wireterm/server/internal/config"
)

func TestWizard_SQLiteDefaults(t *testing.T) {
	// Every prompt answered with Enter, taking the wizard's defaults.
	input := strings.Repeat("\n", 15)

	out := &bytes.Buffer{}
	p := &cli.Prompter{In: strings.NewReader(input), Out: out}

	outputPath := filepath.Join(t.TempDir(), "server-config.toml")

	w := New(p)
	if err := w.Run(outputPath); err != nil {
		t.Fatalf("wizard.Run() error: %v", err)
	}

	cfg, err := config.Load(outputPath)
	if err != nil {
		t.Fatalf("generated config failed to load: %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 8080 {
		t.Errorf("unexpected server section: %+v", cfg.Server)
	}
	if cfg.Database.Type != "sqlite" || cfg.Database.SQLitePath != "wireterm.db" {
		t.Errorf("unexpected database section: %+v", cfg.Database)
	}
	if len(cfg.Security.SuperAdminToken) < cfg.Security.TokenMinLength {
		t.Errorf("generated super-admin token shorter than min length: %+v", cfg.Security)
	}
	if !cfg.TerminalHistory.Enabled || cfg.TerminalHistory.RetentionDays != 7 {
		t.Errorf("unexpected terminal_history section: %+v", cfg.TerminalHistory)
	}
	if !cfg.AuditLog.Enabled || cfg.AuditLog.RetentionDays != 90 {
		t.Errorf("unexpected audit_log section: %+v", cfg.AuditLog)
	}
}
