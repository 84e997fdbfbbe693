package pty

import (
	"sync"
	"testing"
	"time"
)

func TestSpawnEchoesInputAndExits(t *testing.T) {
	var mu sync.Mutex
	var output []byte
	exited := make(chan struct{})

	inst, err := Spawn("i1", t.TempDir(), "/bin/sh", func(data []byte) {
		mu.Lock()
		output = append(output, data...)
		mu.Unlock()
	}, func() {
		close(exited)
	})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	if err := inst.Write([]byte("echo hello\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		mu.Lock()
		got := string(output)
		mu.Unlock()
		if len(got) > 0 && containsHello(got) {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for echoed output")
		case <-time.After(20 * time.Millisecond):
		}
	}

	if err := inst.Write([]byte("exit\n")); err != nil {
		t.Fatalf("write exit: %v", err)
	}

	select {
	case <-exited:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for process exit")
	}
}

func TestCloseEscalatesToSigkill(t *testing.T) {
	exited := make(chan struct{})
	inst, err := Spawn("i2", t.TempDir(), "/bin/sh", func([]byte) {}, func() { close(exited) })
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	inst.Close()

	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for close to terminate process")
	}
}

func containsHello(s string) bool {
	for i := 0; i+5 <= len(s); i++ {
		if s[i:i+5] == "hello" {
			return true
		}
	}
	return false
}
