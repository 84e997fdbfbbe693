package router

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/wireterm/wireterm/pkg/protocol"
	"github.com/wireterm/wireterm/server/internal/store"
)

// wireFrame is the shape used to decode an inbound Envelope generically
// before dispatching on Type.
type wireFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// HandleAgentWS upgrades and services the /ws/agent connection for one
// Agent, per spec §4.3.
func (r *Router) HandleAgentWS(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("agent websocket upgrade failed", "error", err)
		return
	}

	conn.SetReadDeadline(time.Now().Add(authReadTimeout))
	var frame wireFrame
	if err := conn.ReadJSON(&frame); err != nil || frame.Type != protocol.TypeRegister {
		conn.WriteJSON(protocol.Envelope{Type: protocol.TypeAgentError, Timestamp: time.Now(),
			Payload: protocol.AgentError{Code: protocol.ErrInvalidPayload, Message: "expected register frame"}})
		conn.Close()
		return
	}

	var reg protocol.Register
	if err := decodePayload(frame.Payload, &reg); err != nil {
		conn.Close()
		return
	}

	ctx := req.Context()
	adminHash := r.classifier.HashToken(reg.AdminToken)
	shareHash := r.classifier.HashToken(reg.ShareToken)

	agentRecord, err := r.store.UpsertAgentByTokenHashes(ctx, reg.AgentName, adminHash, shareHash)
	if err != nil {
		conn.WriteJSON(protocol.Envelope{Type: protocol.TypeRegisterResult, Timestamp: time.Now(),
			Payload: protocol.RegisterResult{Success: false, Error: protocol.ErrInternal}})
		conn.Close()
		return
	}
	r.store.UpdateLastSeen(ctx, agentRecord.ID, time.Now().UTC())

	ac := &agentConn{
		agentID: agentRecord.ID,
		name:    reg.AgentName,
		conn:    conn,
		egress:  make(chan protocol.Envelope, egressQueueDepth),
		done:    make(chan struct{}),
	}

	// Evict any existing Live Agent Connection for this Agent Record.
	r.mu.Lock()
	if prior, ok := r.agents[agentRecord.ID]; ok {
		prior.send(protocol.Envelope{Type: protocol.TypeShutdown, Payload: protocol.Shutdown{Reason: "superseded by new connection"}})
		close(prior.done)
	}
	r.agents[agentRecord.ID] = ac
	// Resume any suspended instances for this agent.
	for _, id := range r.instancesByAg[agentRecord.ID] {
		if inst, ok := r.instances[id]; ok && inst.Status == protocol.StatusSuspended {
			inst.Status = protocol.StatusRunning
			inst.SuspendedAt = time.Time{}
		}
	}
	r.mu.Unlock()

	conn.SetReadDeadline(time.Time{})
	sendEnvelope(conn, &ac.writeMu, protocol.TypeRegisterResult, protocol.RegisterResult{Success: true})
	r.broadcastAgentStatus(agentRecord.ID, true)
	r.audit(&store.AuditEntry{
		EventType: "auth_success", Role: "agent", AgentID: agentRecord.ID,
		ClientIP: remoteIP(req), Success: true, Detail: "agent registered",
	})

	cancelKeepalive := startWSKeepalive(conn, &ac.writeMu)
	defer cancelKeepalive()

	go r.agentEgressLoop(ac)
	r.agentIngressLoop(ac)

	r.mu.Lock()
	if r.agents[agentRecord.ID] == ac {
		delete(r.agents, agentRecord.ID)
	}
	now := time.Now().UTC()
	for _, id := range r.instancesByAg[agentRecord.ID] {
		if inst, ok := r.instances[id]; ok && inst.Status == protocol.StatusRunning {
			inst.Status = protocol.StatusSuspended
			inst.SuspendedAt = now
		}
	}
	r.mu.Unlock()
	r.broadcastAgentStatus(agentRecord.ID, false)
	close(ac.egress)
}

func (r *Router) agentEgressLoop(ac *agentConn) {
	for {
		select {
		case env, ok := <-ac.egress:
			if !ok {
				return
			}
			ac.writeMu.Lock()
			ac.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := ac.conn.WriteJSON(env)
			ac.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-ac.done:
			ac.conn.Close()
			return
		}
	}
}

func (r *Router) agentIngressLoop(ac *agentConn) {
	for {
		var frame wireFrame
		if err := ac.conn.ReadJSON(&frame); err != nil {
			return
		}
		r.handleAgentMessage(ac, frame)
	}
}

func (r *Router) handleAgentMessage(ac *agentConn, frame wireFrame) {
	ctx := context.Background()
	switch frame.Type {
	case protocol.TypeInstanceOpened:
		var p protocol.InstanceOpened
		if decodePayload(frame.Payload, &p) != nil {
			return
		}
		inst := &instance{ID: p.InstanceID, AgentID: ac.agentID, Cwd: p.Cwd, Status: protocol.StatusRunning, CreatedAt: time.Now().UTC()}
		r.mu.Lock()
		r.instances[inst.ID] = inst
		r.instancesByAg[ac.agentID] = append(r.instancesByAg[ac.agentID], inst.ID)
		r.mu.Unlock()
		r.broadcastToAgentWatchers(ac.agentID, protocol.TypeInstanceCreated, protocol.InstanceCreated{Instance: inst.info()})

	case protocol.TypeInstanceClosed:
		var p protocol.InstanceClosed
		if decodePayload(frame.Payload, &p) != nil {
			return
		}
		r.stopInstance(p.InstanceID)

	case protocol.TypePTYOutput:
		var p protocol.PTYOutput
		if decodePayload(frame.Payload, &p) != nil {
			return
		}
		data, err := base64.StdEncoding.DecodeString(p.Data)
		if err != nil {
			return
		}
		if err := r.fanout.Publish(ctx, p.InstanceID, data); err != nil {
			r.logger.Warn("failed to publish instance output", "instance_id", p.InstanceID, "error", err)
		}

	case protocol.TypeHeartbeat:
		// no-op: read deadline reset is handled by the keepalive pong path

	case protocol.TypeAgentError:
		var p protocol.AgentError
		decodePayload(frame.Payload, &p)
		r.logger.Warn("agent reported error", "agent_id", ac.agentID, "code", p.Code, "message", p.Message)

	default:
		r.logger.Debug("ignoring unknown agent frame type", "type", frame.Type)
	}
}

func (r *Router) stopInstance(instanceID string) {
	r.mu.Lock()
	inst, ok := r.instances[instanceID]
	if ok {
		inst.Status = protocol.StatusStopped
		delete(r.instances, instanceID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	r.fanout.Close(context.Background(), instanceID)
	r.broadcastToAgentWatchers(inst.AgentID, protocol.TypeInstanceClosedNotice, protocol.InstanceClosedNotice{InstanceID: instanceID})
}

func (r *Router) broadcastAgentStatus(agentID string, online bool) {
	r.broadcastToAgentWatchers(agentID, protocol.TypeAgentStatusChanged, protocol.AgentStatusChanged{AgentID: agentID, Online: online})
}

func (r *Router) broadcastToAgentWatchers(agentID, msgType string, payload any) {
	r.mu.RLock()
	watchers := make([]*userConn, 0, len(r.usersByAgent[agentID]))
	for sid := range r.usersByAgent[agentID] {
		if u, ok := r.users[sid]; ok {
			watchers = append(watchers, u)
		}
	}
	r.mu.RUnlock()
	for _, u := range watchers {
		u.send(protocol.Envelope{Type: msgType, Timestamp: time.Now(), Payload: payload})
	}
}
