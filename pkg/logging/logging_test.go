package logging

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewStdoutLogger(t *testing.T) {
	logger, closeFn, err := New("debug", "", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer closeFn()
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestNewFileLoggerWritesAndRotates(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "agent.log")

	logger, closeFn, err := New("info", base, "daily")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer closeFn()

	logger.Info("hello world")

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one rotated log file, got %d", len(entries))
	}
	if filepath.Base(entries[0].Name())[:len("agent.log")] != "agent.log" {
		t.Errorf("unexpected rotated file name: %s", entries[0].Name())
	}
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	if parseLevel("bogus") != parseLevel("") {
		t.Fatal("unknown level should fall back the same as empty level")
	}
}
