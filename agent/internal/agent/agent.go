// Package agent is the orchestrator tying together the PTY registry, the
// Server connection, the local IPC control socket, and the dashboard event
// feed, per spec §4.2.
package agent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/wireterm/wireterm/agent/internal/config"
	"github.com/wireterm/wireterm/agent/internal/ipc"
	"github.com/wireterm/wireterm/agent/internal/pty"
	"github.com/wireterm/wireterm/agent/internal/registry"
	"github.com/wireterm/wireterm/agent/internal/serverconn"
	"github.com/wireterm/wireterm/pkg/eventbus"
	"github.com/wireterm/wireterm/pkg/protocol"
)

// Agent is the running Agent process: one Server connection and its
// instance registry.
type Agent struct {
	cfg       *config.Config
	reg       *registry.Registry
	conn      *serverconn.Client
	bus       *eventbus.Bus
	logger    *slog.Logger
	version   string
	startedAt time.Time
}

// New builds an Agent. bus receives dashboard-facing events
// (eventbus.TypeInstanceState, eventbus.TypePTYOutput) for the local TUI.
func New(cfg *config.Config, bus *eventbus.Bus, version string, logger *slog.Logger) *Agent {
	a := &Agent{
		cfg:       cfg,
		reg:       registry.New(),
		bus:       bus,
		version:   version,
		startedAt: time.Now().UTC(),
		logger:    logger.With("component", "agent"),
	}
	a.conn = serverconn.New(serverconn.Options{
		URL:               cfg.Server.URL,
		AdminToken:        cfg.Agent.AdminToken,
		ShareToken:        cfg.Agent.ShareToken,
		AgentName:         cfg.Agent.Name,
		ReconnectInterval: cfg.ReconnectInterval(),
		Handler:           a.handleServerFrame,
		Logger:            logger,
	})
	return a
}

// Run blocks, servicing the Server connection until ctx is cancelled; the
// connection client redials on its own after a drop. Every live Instance is
// terminated only when Run returns at final shutdown: a dropped connection
// that is redialled leaves the existing PTYs running.
func (a *Agent) Run(ctx context.Context) {
	go a.heartbeatLoop(ctx)
	a.conn.Run(ctx)
	a.terminateAll()
}

func (a *Agent) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.HeartbeatInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.conn.Send(protocol.TypeHeartbeatAck, protocol.Heartbeat{})
		case <-ctx.Done():
			return
		}
	}
}

func (a *Agent) terminateAll() {
	for _, e := range a.reg.RemoveAll() {
		e.PTY.Close()
	}
}

func (a *Agent) handleServerFrame(env protocol.Envelope) {
	raw, _ := env.Payload.(json.RawMessage)

	switch env.Type {
	case protocol.TypeCreateInstance:
		var p protocol.CreateInstance
		json.Unmarshal(raw, &p)
		a.createInstance(p)

	case protocol.TypeCloseInstance:
		var p protocol.CloseInstance
		json.Unmarshal(raw, &p)
		a.closeInstance(p.InstanceID)

	case protocol.TypePTYInput:
		var p protocol.PTYInput
		json.Unmarshal(raw, &p)
		a.writeInput(p.InstanceID, p.Data)

	case protocol.TypeResize:
		var p protocol.Resize
		json.Unmarshal(raw, &p)
		a.resize(p.InstanceID, p.Cols, p.Rows)

	case protocol.TypeHeartbeat:
		a.conn.Send(protocol.TypeHeartbeatAck, protocol.Heartbeat{})

	case protocol.TypeShutdown:
		a.logger.Info("evicted by server", "reason", shutdownReason(raw))

	default:
		a.logger.Debug("ignoring unknown server frame type", "type", env.Type)
	}
}

func shutdownReason(raw json.RawMessage) string {
	var s protocol.Shutdown
	json.Unmarshal(raw, &s)
	return s.Reason
}

func loginShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/sh"
}

func (a *Agent) createInstance(cmd protocol.CreateInstance) {
	id := cmd.InstanceID
	if id == "" {
		id = uuid.New().String()
	}

	inst, err := pty.Spawn(id, cmd.Cwd, loginShell(),
		func(data []byte) { a.onPTYOutput(id, data) },
		func() { a.onPTYExit(id) },
	)
	if err != nil {
		a.conn.Send(protocol.TypeAgentError, protocol.AgentError{Code: protocol.ErrInternal, Message: err.Error()})
		return
	}

	a.reg.Add(&registry.Entry{ID: id, Cwd: cmd.Cwd, PTY: inst, CreatedAt: time.Now().UTC()})
	a.conn.Send(protocol.TypeInstanceOpened, protocol.InstanceOpened{InstanceID: id, Cwd: cmd.Cwd})
	a.bus.PublishType(eventbus.TypeInstanceState, map[string]string{"instance_id": id, "status": protocol.StatusRunning})
}

func (a *Agent) closeInstance(instanceID string) {
	e, ok := a.reg.Get(instanceID)
	if !ok {
		return
	}
	e.PTY.Close()
}

func (a *Agent) writeInput(instanceID, b64 string) {
	e, ok := a.reg.Get(instanceID)
	if !ok {
		return
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return
	}
	e.PTY.Write(data)
}

func (a *Agent) resize(instanceID string, cols, rows int) {
	e, ok := a.reg.Get(instanceID)
	if !ok {
		return
	}
	e.PTY.Resize(uint16(cols), uint16(rows))
	a.conn.Send(protocol.TypeResizeAck, protocol.ResizeAck{InstanceID: instanceID})
}

func (a *Agent) onPTYOutput(instanceID string, data []byte) {
	a.conn.Send(protocol.TypePTYOutput, protocol.PTYOutput{
		InstanceID: instanceID,
		Data:       base64.StdEncoding.EncodeToString(data),
	})
	a.bus.PublishType(eventbus.TypePTYOutput, map[string]string{"instance_id": instanceID})
}

func (a *Agent) onPTYExit(instanceID string) {
	a.reg.Remove(instanceID)
	a.conn.Send(protocol.TypeInstanceClosed, protocol.InstanceClosed{InstanceID: instanceID})
	a.bus.PublishType(eventbus.TypeInstanceState, map[string]string{"instance_id": instanceID, "status": protocol.StatusStopped})
}

// Instances returns a snapshot of the locally-tracked Instances, satisfying
// ipc.StateProvider for the dashboard's instances query.
func (a *Agent) Instances() []ipc.InstanceInfo {
	entries := a.reg.List()
	out := make([]ipc.InstanceInfo, len(entries))
	for i, e := range entries {
		out[i] = ipc.InstanceInfo{ID: e.ID, Cwd: e.Cwd, CreatedAt: e.CreatedAt}
	}
	return out
}

// Status satisfies ipc.StateProvider for the dashboard's status query.
func (a *Agent) Status() ipc.StatusResult {
	return ipc.StatusResult{
		AgentName:       a.cfg.Agent.Name,
		ServerURL:       a.cfg.Server.URL,
		ServerConnected: a.conn.Connected(),
		StartedAt:       a.startedAt,
		Instances:       a.reg.Count(),
		Version:         a.version,
	}
}
