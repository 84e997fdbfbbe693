package agent

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/wireterm/wireterm/agent/internal/config"
	"github.com/wireterm/wireterm/pkg/eventbus"
	"github.com/wireterm/wireterm/pkg/protocol"
)

func testConfig() *config.Config {
	cfg := &config.Config{
		Agent:  config.AgentSection{Name: "test-agent", AdminToken: "a", ShareToken: "s"},
		Server: config.ServerSection{URL: "ws://example.invalid/ws/agent", ReconnectInterval: 10, HeartbeatInterval: 30},
	}
	return cfg
}

func newTestAgent() *Agent {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(testConfig(), eventbus.New(), "test", logger)
}

func TestCreateInstanceSpawnsPTYAndTracksIt(t *testing.T) {
	a := newTestAgent()

	a.createInstance(protocol.CreateInstance{InstanceID: "inst-1", Cwd: "/tmp"})
	defer a.terminateAll()

	if a.reg.Count() != 1 {
		t.Fatalf("expected 1 tracked instance, got %d", a.reg.Count())
	}

	status := a.Status()
	if status.Instances != 1 {
		t.Fatalf("expected status.Instances == 1, got %d", status.Instances)
	}
	if status.AgentName != "test-agent" {
		t.Fatalf("unexpected agent name: %s", status.AgentName)
	}
	if status.ServerConnected {
		t.Fatal("expected ServerConnected false with no live dial")
	}

	instances := a.Instances()
	if len(instances) != 1 || instances[0].ID != "inst-1" {
		t.Fatalf("unexpected instances snapshot: %+v", instances)
	}
}

func TestCloseInstanceRemovesFromRegistry(t *testing.T) {
	a := newTestAgent()
	a.createInstance(protocol.CreateInstance{InstanceID: "inst-2", Cwd: "/tmp"})

	a.closeInstance("inst-2")

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if a.reg.Count() == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected instance to be removed from registry after close")
}

func TestHandleServerFrameDispatchesCreateInstance(t *testing.T) {
	a := newTestAgent()
	defer a.terminateAll()

	payload, _ := json.Marshal(protocol.CreateInstance{InstanceID: "inst-3", Cwd: "/tmp"})
	a.handleServerFrame(protocol.Envelope{Type: protocol.TypeCreateInstance, Payload: json.RawMessage(payload)})

	if _, ok := a.reg.Get("inst-3"); !ok {
		t.Fatal("expected inst-3 to be registered after dispatch")
	}
}
