package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "agent-config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeTemp(t, `
[agent]
name = "w1"
admin_token = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
share_token = "hhhhhhhhhhhhhhhhhhhhhhhhhhhhhhhh"

[server]
url = "ws://localhost:8080/ws/agent"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ReconnectInterval != 10 {
		t.Fatalf("expected default reconnect interval 10, got %d", cfg.Server.ReconnectInterval)
	}
}

func TestLoadRejectsMissingAdminToken(t *testing.T) {
	path := writeTemp(t, `
[agent]
name = "w1"

[server]
url = "ws://localhost:8080/ws/agent"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing admin_token")
	}
}

func TestLoadRejectsMissingServerURL(t *testing.T) {
	path := writeTemp(t, `
[agent]
name = "w1"
admin_token = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
share_token = "hhhhhhhhhhhhhhhhhhhhhhhhhhhhhhhh"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing server.url")
	}
}
