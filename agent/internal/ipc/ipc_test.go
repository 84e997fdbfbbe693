package ipc

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/wireterm/wireterm/pkg/eventbus"
)

type fakeProvider struct{}

func (fakeProvider) Status() StatusResult {
	return StatusResult{AgentName: "w1", ServerURL: "ws://x", ServerConnected: true, Instances: 1}
}

func (fakeProvider) Instances() []InstanceInfo {
	return []InstanceInfo{{ID: "i1", Cwd: "/tmp"}}
}

func newTestServer(t *testing.T) (*Server, *eventbus.Bus, string) {
	t.Helper()
	bus := eventbus.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sockPath := filepath.Join(t.TempDir(), "agent.sock")
	srv := NewServer(sockPath, fakeProvider{}, bus, logger)
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv, bus, sockPath
}

func TestStatusRoundTrip(t *testing.T) {
	_, _, sockPath := newTestServer(t)

	client, err := Dial(sockPath)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	resp, err := client.Call("status", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Type != "result" {
		t.Fatalf("expected result, got %s", resp.Type)
	}
}

func TestSubscribeDeliversPublishedEvent(t *testing.T) {
	_, bus, sockPath := newTestServer(t)

	client, err := Dial(sockPath)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	if err := client.Subscribe(eventbus.TypeInstanceState); err != nil {
		t.Fatal(err)
	}

	time.Sleep(50 * time.Millisecond)
	bus.PublishType(eventbus.TypeInstanceState, map[string]string{"instance_id": "i1"})

	select {
	case evt := <-client.Events():
		if evt.Type != eventbus.TypeInstanceState {
			t.Fatalf("expected %s, got %s", eventbus.TypeInstanceState, evt.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscribed event")
	}
}
