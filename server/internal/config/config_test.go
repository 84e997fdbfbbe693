package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeTemp(t, `
[security]
super_admin_token = "this-is-a-long-enough-token-value"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Database.Type != "sqlite" {
		t.Errorf("expected default database type sqlite, got %s", cfg.Database.Type)
	}
	if cfg.TerminalHistory.RetentionDays != 7 {
		t.Errorf("expected default retention 7 days, got %d", cfg.TerminalHistory.RetentionDays)
	}
}

func TestLoadRejectsShortSuperAdminToken(t *testing.T) {
	path := writeTemp(t, `
[security]
super_admin_token = "short"
token_min_length = 24
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for undersized super_admin_token")
	}
}

func TestLoadRejectsUnknownDatabaseType(t *testing.T) {
	path := writeTemp(t, `
[security]
super_admin_token = "this-is-a-long-enough-token-value"

[database]
type = "postgres"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unsupported database type")
	}
}

func TestLoadRequiresMySQLURL(t *testing.T) {
	path := writeTemp(t, `
[security]
super_admin_token = "this-is-a-long-enough-token-value"

[database]
type = "mysql"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing mysql_url")
	}
}
