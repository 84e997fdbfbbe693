package wizard

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wireterm/wireterm/agent/internal/config"
	"github.com/wireterm/wireterm/pkg/cli"
)

func TestWizard_Defaults(t *testing.T) {
	input := strings.Repeat("\n", 7)

	out := &bytes.Buffer{}
	p := &cli.Prompter{In: strings.NewReader(input), Out: out}

	outputPath := filepath.Join(t.TempDir(), "agent-config.toml")

	w := New(p)
	if err := w.Run(outputPath); err != nil {
		t.Fatalf("wizard.Run() error: %v", err)
	}

	cfg, err := config.Load(outputPath)
	if err != nil {
		t.Fatalf("generated config failed to load: %v", err)
	}

	if cfg.Agent.Name != "my-agent" {
		t.Errorf("agent.name = %q, want %q", cfg.Agent.Name, "my-agent")
	}
	if cfg.Server.URL != "ws://localhost:8080/ws/agent" {
		t.Errorf("server.url = %q", cfg.Server.URL)
	}
	if cfg.Agent.AdminToken == "" || cfg.Agent.ShareToken == "" {
		t.Error("expected auto-generated admin/share tokens")
	}
	if cfg.Agent.AdminToken == cfg.Agent.ShareToken {
		t.Error("admin and share tokens should differ")
	}
}
