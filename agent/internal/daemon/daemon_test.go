package daemon

import (
	"os"
	"testing"
)

func TestWriteReadRemovePID(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if err := WritePID(4242); err != nil {
		t.Fatalf("write pid: %v", err)
	}

	pid, err := ReadPID()
	if err != nil {
		t.Fatalf("read pid: %v", err)
	}
	if pid != 4242 {
		t.Fatalf("expected pid 4242, got %d", pid)
	}

	if err := RemovePID(); err != nil {
		t.Fatalf("remove pid: %v", err)
	}

	pid, err = ReadPID()
	if err != nil {
		t.Fatalf("read pid after remove: %v", err)
	}
	if pid != 0 {
		t.Fatalf("expected pid 0 after remove, got %d", pid)
	}
}

func TestIsRunningForCurrentProcess(t *testing.T) {
	if !IsRunning(os.Getpid()) {
		t.Fatal("expected current process to report as running")
	}
	if IsRunning(0) {
		t.Fatal("pid 0 should never be reported as running")
	}
}
