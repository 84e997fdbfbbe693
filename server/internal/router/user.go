package router

import (
	"context"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/wireterm/wireterm/pkg/eventbus"
	"github.com/wireterm/wireterm/pkg/protocol"
	"github.com/wireterm/wireterm/server/internal/fanout"
	"github.com/wireterm/wireterm/server/internal/store"
)

// HandleUserWS upgrades and services the /ws/user connection for one
// browser session, per spec §4.3/§4.4.
func (r *Router) HandleUserWS(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("user websocket upgrade failed", "error", err)
		return
	}

	ip := remoteIP(req)
	ctx := req.Context()

	if allowed, err := r.limiter.Allow(ctx, ip); err == nil && !allowed {
		conn.WriteJSON(protocol.Envelope{Type: protocol.TypeUserError, Timestamp: time.Now(),
			Payload: protocol.UserError{Code: protocol.ErrRateLimited, Message: "too many authentication attempts"}})
		r.audit(&store.AuditEntry{EventType: "auth_failure", ClientIP: ip, Success: false, Detail: "rate limited"})
		conn.Close()
		return
	}

	conn.SetReadDeadline(time.Now().Add(authReadTimeout))
	var frame wireFrame
	if err := conn.ReadJSON(&frame); err != nil || frame.Type != protocol.TypeAuth {
		conn.WriteJSON(protocol.Envelope{Type: protocol.TypeUserError, Timestamp: time.Now(),
			Payload: protocol.UserError{Code: protocol.ErrInvalidPayload, Message: "expected auth frame"}})
		conn.Close()
		return
	}

	var a protocol.Auth
	decodePayload(frame.Payload, &a)

	identity, err := r.classifier.Classify(a.Token)
	if err != nil {
		conn.WriteJSON(protocol.Envelope{Type: protocol.TypeAuthResult, Timestamp: time.Now(),
			Payload: protocol.AuthResult{Success: false, Error: protocol.ErrAuthFailed}})
		r.audit(&store.AuditEntry{EventType: "auth_failure", ClientIP: ip, Success: false, Detail: err.Error()})
		conn.Close()
		return
	}

	u := &userConn{
		sessionID:  uuid.New().String(),
		role:       identity.Role,
		agentID:    identity.AgentID,
		remoteAddr: ip,
		conn:       conn,
		egress:     make(chan protocol.Envelope, egressQueueDepth),
	}

	var agentName string
	if identity.AgentID != "" {
		if rec, err := r.store.GetAgent(ctx, identity.AgentID); err == nil {
			agentName = rec.Name
		}
	}

	r.mu.Lock()
	r.users[u.sessionID] = u
	if identity.AgentID != "" {
		if r.usersByAgent[identity.AgentID] == nil {
			r.usersByAgent[identity.AgentID] = make(map[string]bool)
		}
		r.usersByAgent[identity.AgentID][u.sessionID] = true
	}
	r.mu.Unlock()

	conn.SetReadDeadline(time.Time{})
	sendEnvelope(conn, &u.writeMu, protocol.TypeAuthResult, protocol.AuthResult{
		Success: true, Role: identity.Role, AgentName: agentName, AgentID: identity.AgentID,
	})
	r.audit(&store.AuditEntry{EventType: "auth_success", SessionID: u.sessionID, Role: identity.Role, AgentID: identity.AgentID, ClientIP: ip, Success: true})

	cancelKeepalive := startWSKeepalive(conn, &u.writeMu)
	defer cancelKeepalive()

	go r.userEgressLoop(u)
	r.userIngressLoop(u)

	r.detachUser(u)
	r.mu.Lock()
	delete(r.users, u.sessionID)
	if identity.AgentID != "" {
		delete(r.usersByAgent[identity.AgentID], u.sessionID)
	}
	r.mu.Unlock()
	close(u.egress)
}

func (r *Router) userEgressLoop(u *userConn) {
	for env := range u.egress {
		u.writeMu.Lock()
		u.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		err := u.conn.WriteJSON(env)
		u.writeMu.Unlock()
		if err != nil {
			u.conn.Close()
			return
		}
	}
}

func (r *Router) userIngressLoop(u *userConn) {
	for {
		var frame wireFrame
		if err := u.conn.ReadJSON(&frame); err != nil {
			return
		}
		r.handleUserMessage(u, frame)
	}
}

// targetAgent resolves which Agent Record an operation should act against:
// the caller's bound agent for Admin/Share, or the session's selected
// working agent for SuperAdmin (spec §4.4).
func (u *userConn) targetAgent() string {
	if u.role == protocol.RoleSuperAdmin {
		return u.workingAgent
	}
	return u.agentID
}

func (r *Router) handleUserMessage(u *userConn, frame wireFrame) {
	ctx := context.Background()

	switch frame.Type {
	case protocol.TypeListInstances:
		target := u.targetAgent()
		var ids []string
		r.mu.RLock()
		if u.role == protocol.RoleSuperAdmin && target == "" {
			for id := range r.instances {
				ids = append(ids, id)
			}
		} else {
			ids = append(ids, r.instancesByAg[target]...)
		}
		infos := make([]protocol.InstanceInfo, 0, len(ids))
		for _, id := range ids {
			if inst, ok := r.instances[id]; ok {
				infos = append(infos, inst.info())
			}
		}
		r.mu.RUnlock()
		u.send(protocol.Envelope{Type: protocol.TypeInstanceList, Payload: protocol.InstanceList{Instances: infos}})

	case protocol.TypeListAgentInstances:
		if u.role != protocol.RoleSuperAdmin {
			r.denyUser(u, "", "", protocol.ErrNotAuthorized, "list-agent-instances")
			return
		}
		var p protocol.ListAgentInstances
		decodePayload(frame.Payload, &p)
		r.mu.RLock()
		infos := make([]protocol.InstanceInfo, 0)
		for _, id := range r.instancesByAg[p.AgentID] {
			if inst, ok := r.instances[id]; ok {
				infos = append(infos, inst.info())
			}
		}
		r.mu.RUnlock()
		u.send(protocol.Envelope{Type: protocol.TypeInstanceList, Payload: protocol.InstanceList{Instances: infos}})

	case protocol.TypeCreateInstanceRequest:
		r.handleCreateInstance(ctx, u, frame)

	case protocol.TypeCloseInstanceRequest:
		r.handleCloseInstance(ctx, u, frame, false)

	case protocol.TypeForceCloseInstanceRequest:
		if u.role != protocol.RoleSuperAdmin {
			r.denyUser(u, "", "", protocol.ErrNotAuthorized, "force-close-instance")
			return
		}
		r.handleCloseInstance(ctx, u, frame, true)

	case protocol.TypeAttach:
		var p protocol.Attach
		decodePayload(frame.Payload, &p)
		r.handleAttach(ctx, u, p.InstanceID)

	case protocol.TypeDetach:
		r.detachUser(u)

	case protocol.TypeUserPTYInput:
		var p protocol.UserPTYInput
		decodePayload(frame.Payload, &p)
		r.forwardInput(u, p.InstanceID, p.Data)

	case protocol.TypeUserResize:
		var p protocol.UserResize
		decodePayload(frame.Payload, &p)
		r.forwardResize(u, p.InstanceID, p.Cols, p.Rows)

	case protocol.TypeUserHeartbeat:
		// no-op, read deadline refreshed by pong handler

	case protocol.TypeGetAdminStats:
		if u.role != protocol.RoleSuperAdmin {
			r.denyUser(u, "", "", protocol.ErrNotAuthorized, "get-admin-stats")
			return
		}
		u.send(protocol.Envelope{Type: protocol.TypeAdminStats, Payload: r.adminStats(ctx)})

	case protocol.TypeGetAuditLogs:
		if u.role != protocol.RoleSuperAdmin {
			r.denyUser(u, "", "", protocol.ErrNotAuthorized, "get-audit-logs")
			return
		}
		var p protocol.GetAuditLogs
		decodePayload(frame.Payload, &p)
		if p.Limit <= 0 {
			p.Limit = 100
		}
		entries, total, err := r.store.QueryAudit(ctx, p.Limit, p.Offset, p.Kind)
		if err != nil {
			u.send(protocol.Envelope{Type: protocol.TypeUserError, Payload: protocol.UserError{Code: protocol.ErrInternal, Message: "audit query failed"}})
			return
		}
		out := make([]protocol.AuditLogEntry, len(entries))
		for i, e := range entries {
			out[i] = protocol.AuditLogEntry{
				ID: e.ID, Timestamp: e.Timestamp, EventType: e.EventType, SessionID: e.SessionID,
				Role: e.Role, AgentID: e.AgentID, InstanceID: e.InstanceID, TargetID: e.TargetID,
				ClientIP: e.ClientIP, Success: e.Success, Detail: e.Detail,
			}
		}
		u.send(protocol.Envelope{Type: protocol.TypeAuditLogList, Payload: protocol.AuditLogList{Entries: out, Total: total}})

	case protocol.TypeAddTag:
		var p protocol.AddTag
		decodePayload(frame.Payload, &p)
		if !r.canManageTags(u, p.AgentID) {
			r.denyUser(u, p.AgentID, "", protocol.ErrNotAuthorized, "add-tag")
			return
		}
		if err := r.store.AddTag(ctx, p.AgentID, p.Tag); err == nil {
			u.send(protocol.Envelope{Type: protocol.TypeTagAdded, Payload: protocol.TagAdded{AgentID: p.AgentID, Tag: p.Tag}})
			r.audit(&store.AuditEntry{EventType: "add_tag", SessionID: u.sessionID, Role: u.role, AgentID: p.AgentID, ClientIP: u.remoteAddr, Success: true, Detail: p.Tag})
		}

	case protocol.TypeRemoveTag:
		var p protocol.RemoveTag
		decodePayload(frame.Payload, &p)
		if !r.canManageTags(u, p.AgentID) {
			r.denyUser(u, p.AgentID, "", protocol.ErrNotAuthorized, "remove-tag")
			return
		}
		if err := r.store.RemoveTag(ctx, p.AgentID, p.Tag); err == nil {
			u.send(protocol.Envelope{Type: protocol.TypeTagRemoved, Payload: protocol.TagRemoved{AgentID: p.AgentID, Tag: p.Tag}})
			r.audit(&store.AuditEntry{EventType: "remove_tag", SessionID: u.sessionID, Role: u.role, AgentID: p.AgentID, ClientIP: u.remoteAddr, Success: true, Detail: p.Tag})
		}

	case protocol.TypeListAgentTags:
		var p protocol.ListAgentTags
		decodePayload(frame.Payload, &p)
		tags, _ := r.store.ListTags(ctx, p.AgentID)
		u.send(protocol.Envelope{Type: protocol.TypeAgentTags, Payload: protocol.AgentTags{AgentID: p.AgentID, Tags: tags}})

	case protocol.TypeSelectWorkingAgent:
		if u.role != protocol.RoleSuperAdmin {
			r.denyUser(u, "", "", protocol.ErrNotAuthorized, "select-working-agent")
			return
		}
		var p protocol.SelectWorkingAgent
		decodePayload(frame.Payload, &p)
		u.workingAgent = p.AgentID
		u.send(protocol.Envelope{Type: protocol.TypeWorkingAgentSelected, Payload: protocol.WorkingAgentSelected{AgentID: p.AgentID}})

	case protocol.TypeClearWorkingAgent:
		if u.role != protocol.RoleSuperAdmin {
			r.denyUser(u, "", "", protocol.ErrNotAuthorized, "clear-working-agent")
			return
		}
		u.workingAgent = ""
		u.send(protocol.Envelope{Type: protocol.TypeWorkingAgentCleared, Payload: protocol.WorkingAgentCleared{}})

	case protocol.TypeForceDisconnectAgent:
		if u.role != protocol.RoleSuperAdmin {
			r.denyUser(u, "", "", protocol.ErrNotAuthorized, "force-disconnect-agent")
			return
		}
		var p protocol.ForceDisconnectAgent
		decodePayload(frame.Payload, &p)
		r.forceDisconnectAgent(p.AgentID)
		u.send(protocol.Envelope{Type: protocol.TypeAgentDisconnected, Payload: protocol.AgentDisconnected{AgentID: p.AgentID}})
		r.audit(&store.AuditEntry{EventType: "force_disconnect_agent", SessionID: u.sessionID, Role: u.role, TargetID: p.AgentID, ClientIP: u.remoteAddr, Success: true})

	case protocol.TypeDeleteAgentRequest:
		if u.role != protocol.RoleSuperAdmin {
			r.denyUser(u, "", "", protocol.ErrNotAuthorized, "delete-agent")
			return
		}
		var p protocol.DeleteAgentRequest
		decodePayload(frame.Payload, &p)
		r.deleteAgent(ctx, p.AgentID)
		u.send(protocol.Envelope{Type: protocol.TypeAgentDeleted, Payload: protocol.AgentDeleted{AgentID: p.AgentID}})
		r.audit(&store.AuditEntry{EventType: "delete_agent", SessionID: u.sessionID, Role: u.role, TargetID: p.AgentID, ClientIP: u.remoteAddr, Success: true})

	default:
		r.logger.Debug("ignoring unknown user frame type", "type", frame.Type)
	}
}

func (r *Router) denyUser(u *userConn, agentID, instanceID, code, op string) {
	u.send(protocol.Envelope{Type: protocol.TypeUserError, Payload: protocol.UserError{Code: code, Message: op + " not authorized"}})
	r.audit(&store.AuditEntry{EventType: op, SessionID: u.sessionID, Role: u.role, AgentID: agentID, InstanceID: instanceID, ClientIP: u.remoteAddr, Success: false})
}

func (r *Router) canManageTags(u *userConn, agentID string) bool {
	switch u.role {
	case protocol.RoleSuperAdmin:
		return true
	case protocol.RoleAdmin:
		return u.agentID == agentID
	default:
		return false
	}
}

func (r *Router) handleCreateInstance(ctx context.Context, u *userConn, frame wireFrame) {
	if u.role == protocol.RoleShare {
		r.denyUser(u, "", "", protocol.ErrNotAuthorized, "create_instance")
		return
	}
	target := u.targetAgent()
	if target == "" {
		r.denyUser(u, "", "", protocol.ErrNotAuthorized, "create_instance")
		return
	}

	var p protocol.CreateInstanceRequest
	decodePayload(frame.Payload, &p)

	r.mu.RLock()
	ac, online := r.agents[target]
	r.mu.RUnlock()
	if !online {
		u.send(protocol.Envelope{Type: protocol.TypeUserError, Payload: protocol.UserError{Code: protocol.ErrAgentOffline, Message: "agent is offline"}})
		return
	}

	instanceID := uuid.New().String()
	ac.send(protocol.Envelope{Type: protocol.TypeCreateInstance, Payload: protocol.CreateInstance{Cwd: p.Cwd, InstanceID: instanceID}})
	r.audit(&store.AuditEntry{EventType: "create_instance", SessionID: u.sessionID, Role: u.role, AgentID: target, InstanceID: instanceID, ClientIP: u.remoteAddr, Success: true})
}

func (r *Router) handleCloseInstance(ctx context.Context, u *userConn, frame wireFrame, forced bool) {
	op := "close_instance"
	if forced {
		op = "force_close_instance"
	}
	if u.role == protocol.RoleShare {
		r.denyUser(u, "", "", protocol.ErrNotAuthorized, op)
		return
	}

	var instanceID string
	if forced {
		var p protocol.ForceCloseInstanceRequest
		decodePayload(frame.Payload, &p)
		instanceID = p.InstanceID
	} else {
		var p protocol.CloseInstanceRequest
		decodePayload(frame.Payload, &p)
		instanceID = p.InstanceID
	}

	r.mu.RLock()
	inst, ok := r.instances[instanceID]
	r.mu.RUnlock()
	if !ok {
		u.send(protocol.Envelope{Type: protocol.TypeUserError, Payload: protocol.UserError{Code: protocol.ErrUnknownInstance, Message: "no such instance"}})
		return
	}
	if !forced && inst.AgentID != u.targetAgent() {
		r.denyUser(u, inst.AgentID, instanceID, protocol.ErrNotAuthorized, op)
		return
	}

	r.mu.RLock()
	ac, online := r.agents[inst.AgentID]
	r.mu.RUnlock()
	if !online {
		u.send(protocol.Envelope{Type: protocol.TypeUserError, Payload: protocol.UserError{Code: protocol.ErrAgentOffline, Message: "agent is offline"}})
		return
	}
	ac.send(protocol.Envelope{Type: protocol.TypeCloseInstance, Payload: protocol.CloseInstance{InstanceID: instanceID}})
	r.audit(&store.AuditEntry{EventType: op, SessionID: u.sessionID, Role: u.role, AgentID: inst.AgentID, InstanceID: instanceID, ClientIP: u.remoteAddr, Success: true})
}

// handleAttach joins the caller to an instance's fan-out, replaying the
// history buffer before any live frame, and detaches any prior attachment
// (spec §3: a session may be joined to at most one Instance at a time).
func (r *Router) handleAttach(ctx context.Context, u *userConn, instanceID string) {
	r.mu.RLock()
	inst, ok := r.instances[instanceID]
	r.mu.RUnlock()
	if !ok || inst.Status == protocol.StatusStopped {
		u.send(protocol.Envelope{Type: protocol.TypeUserError, Payload: protocol.UserError{Code: protocol.ErrUnknownInstance, Message: "no such instance"}})
		return
	}
	if inst.AgentID != u.targetAgent() && u.role != protocol.RoleSuperAdmin {
		r.denyUser(u, inst.AgentID, instanceID, protocol.ErrNotAuthorized, "attach")
		return
	}

	r.detachUser(u)

	chunks, sub, err := r.fanout.Attach(ctx, instanceID)
	if err != nil {
		u.send(protocol.Envelope{Type: protocol.TypeUserError, Payload: protocol.UserError{Code: protocol.ErrInternal, Message: "attach failed"}})
		return
	}

	u.attachedMu.Lock()
	u.attachedID = instanceID
	done := make(chan struct{})
	u.attachedCh = done
	u.attachedMu.Unlock()

	for _, c := range chunks {
		u.send(protocol.Envelope{Type: protocol.TypeUserPTYOutput, Payload: protocol.UserPTYOutput{
			InstanceID: instanceID, Seq: c.Sequence, Data: base64.StdEncoding.EncodeToString(c.Data),
		}})
	}

	go r.pumpLiveOutput(u, instanceID, sub, done)

	count := r.fanout.SubscriberCount(instanceID)
	r.broadcastToAgentWatchers(inst.AgentID, protocol.TypeUserJoined, protocol.UserJoined{InstanceID: instanceID, Count: count})
}

// pumpLiveOutput relays an instance's live fan-out events to one attached
// User until the subscription is detached (done closed), the instance is
// intentionally torn down (fanout.ClosedEventType, spec §8 scenario 5), or
// the bus drops this subscriber for falling behind (sub closed by the bus
// itself without a preceding ClosedEventType, spec §8 scenario 4).
func (r *Router) pumpLiveOutput(u *userConn, instanceID string, sub chan eventbus.Event, done chan struct{}) {
	defer r.fanout.Detach(instanceID, sub)
	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				// Dropped for falling behind the egress queue (spec §8 scenario 4).
				u.send(protocol.Envelope{Type: protocol.TypeUserError, Payload: protocol.UserError{
					Code: protocol.ErrInternal, Message: "detached: output buffer overflow",
				}})
				return
			}
			if ev.Type == fanout.ClosedEventType {
				u.send(protocol.Envelope{Type: protocol.TypeInstanceClosedNotice, Payload: protocol.InstanceClosedNotice{InstanceID: instanceID}})
				return
			}
			u.send(protocol.Envelope{Type: protocol.TypeUserPTYOutput, Payload: protocol.UserPTYOutput{
				InstanceID: instanceID, Seq: ev.Seq, Data: base64.StdEncoding.EncodeToString(ev.Data),
			}})
		case <-done:
			return
		}
	}
}

func (r *Router) detachUser(u *userConn) {
	u.attachedMu.Lock()
	instanceID := u.attachedID
	done := u.attachedCh
	u.attachedID = ""
	u.attachedCh = nil
	u.attachedMu.Unlock()

	if instanceID == "" {
		return
	}
	if done != nil {
		close(done)
	}

	r.mu.RLock()
	inst, ok := r.instances[instanceID]
	r.mu.RUnlock()
	if ok {
		count := r.fanout.SubscriberCount(instanceID)
		r.broadcastToAgentWatchers(inst.AgentID, protocol.TypeUserLeft, protocol.UserLeft{InstanceID: instanceID, Count: count})
	}
}

func (r *Router) forwardInput(u *userConn, instanceID, data string) {
	r.mu.RLock()
	inst, ok := r.instances[instanceID]
	r.mu.RUnlock()
	if !ok {
		u.send(protocol.Envelope{Type: protocol.TypeUserError, Payload: protocol.UserError{Code: protocol.ErrUnknownInstance, Message: "no such instance"}})
		return
	}
	if inst.AgentID != u.targetAgent() && u.role != protocol.RoleSuperAdmin {
		r.denyUser(u, inst.AgentID, instanceID, protocol.ErrNotAuthorized, "pty_input")
		return
	}
	if inst.Status != protocol.StatusRunning {
		u.send(protocol.Envelope{Type: protocol.TypeUserError, Payload: protocol.UserError{Code: protocol.ErrAgentOffline, Message: "agent is offline"}})
		return
	}
	r.mu.RLock()
	ac, online := r.agents[inst.AgentID]
	r.mu.RUnlock()
	if !online {
		return
	}
	ac.send(protocol.Envelope{Type: protocol.TypePTYInput, Payload: protocol.PTYInput{InstanceID: instanceID, Data: data}})
}

func (r *Router) forwardResize(u *userConn, instanceID string, cols, rows int) {
	r.mu.RLock()
	inst, ok := r.instances[instanceID]
	r.mu.RUnlock()
	if !ok || (inst.AgentID != u.targetAgent() && u.role != protocol.RoleSuperAdmin) {
		return
	}
	r.mu.RLock()
	ac, online := r.agents[inst.AgentID]
	r.mu.RUnlock()
	if !online {
		return
	}
	ac.send(protocol.Envelope{Type: protocol.TypeResize, Payload: protocol.Resize{InstanceID: instanceID, Cols: cols, Rows: rows}})
}

func (r *Router) adminStats(ctx context.Context) protocol.AdminStats {
	agents, _ := r.store.ListAgents(ctx)
	r.mu.RLock()
	defer r.mu.RUnlock()
	var running int
	for _, inst := range r.instances {
		if inst.Status == protocol.StatusRunning {
			running++
		}
	}
	return protocol.AdminStats{
		TotalAgents:      len(agents),
		OnlineAgents:     len(r.agents),
		TotalInstances:   len(r.instances),
		RunningInstances: running,
	}
}

func (r *Router) forceDisconnectAgent(agentID string) {
	r.mu.RLock()
	ac, ok := r.agents[agentID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	ac.send(protocol.Envelope{Type: protocol.TypeShutdown, Payload: protocol.Shutdown{Reason: "disconnected by superadmin"}})
	close(ac.done)
}

func (r *Router) deleteAgent(ctx context.Context, agentID string) {
	r.forceDisconnectAgent(agentID)

	r.mu.Lock()
	ids := r.instancesByAg[agentID]
	delete(r.instancesByAg, agentID)
	for _, id := range ids {
		delete(r.instances, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.fanout.Close(ctx, id)
	}
	r.broadcastToAgentWatchers(agentID, protocol.TypeAgentDeleted, protocol.AgentDeleted{AgentID: agentID})
	r.store.DeleteAgent(ctx, agentID)
}
