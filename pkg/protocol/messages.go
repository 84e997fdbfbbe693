// Package protocol defines the wire protocol exchanged between the Agent
// and the Server, and between the Server and a User's browser session, over
// a single duplex WebSocket connection.
//
// All messages are JSON-encoded and share a common envelope with a "type"
// field that determines which payload fields are meaningful. Binary PTY
// payloads are carried as standard-alphabet, padded base64 text so the same
// frame can be persisted as a History Chunk and replayed without a separate
// binary encoding.
package protocol

import "time"

// Envelope is the top-level wire format for every frame.
type Envelope struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"ts"`
	Payload   any       `json:"payload,omitempty"`
}

// --- Agent → Server ---

// Register is sent by the Agent immediately after connecting.
type Register struct {
	AdminToken string `json:"admin_token"`
	ShareToken string `json:"share_token"`
	AgentName  string `json:"agent_name"`
}

// InstanceOpened announces a newly spawned PTY instance.
type InstanceOpened struct {
	InstanceID string `json:"instance_id"`
	Cwd        string `json:"cwd"`
}

// InstanceClosed announces that an instance's PTY child has exited or been
// torn down, whether solicited (close-instance) or not (child EOF).
type InstanceClosed struct {
	InstanceID string `json:"instance_id"`
}

// PTYOutput carries a chunk of PTY stdout, base64-encoded.
type PTYOutput struct {
	InstanceID string `json:"instance_id"`
	Data       string `json:"data"`
}

// ResizeAck acknowledges a resize command.
type ResizeAck struct {
	InstanceID string `json:"instance_id"`
}

// Heartbeat carries no fields; the type discriminator is sufficient.
type Heartbeat struct{}

// AgentError is an error raised by the Agent, not tied to a specific command.
type AgentError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// --- Server → Agent ---

// RegisterResult answers a Register frame.
type RegisterResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// CreateInstance asks the Agent to spawn a new PTY.
type CreateInstance struct {
	Cwd        string `json:"cwd"`
	InstanceID string `json:"instance_id"` // server-assigned
}

// CloseInstance asks the Agent to terminate an instance's PTY child.
type CloseInstance struct {
	InstanceID string `json:"instance_id"`
}

// PTYInput carries base64-encoded bytes to write to a PTY master.
type PTYInput struct {
	InstanceID string `json:"instance_id"`
	Data       string `json:"data"`
}

// Resize asks the Agent to change a PTY's dimensions.
type Resize struct {
	InstanceID string `json:"instance_id"`
	Cols       int    `json:"cols"`
	Rows       int    `json:"rows"`
}

// Shutdown tells the Agent its current connection is being evicted.
type Shutdown struct {
	Reason string `json:"reason,omitempty"`
}

// --- User → Server ---

// Auth presents a bearer token for classification (see §4.4).
type Auth struct {
	Token string `json:"token"`
}

// ListInstances requests the snapshot of instances visible to the caller.
type ListInstances struct{}

// ListAgentInstances is a SuperAdmin-only query for one agent's instances.
type ListAgentInstances struct {
	AgentID string `json:"agent_id"`
}

// CreateInstanceRequest is an Admin/SuperAdmin request to spawn a PTY.
type CreateInstanceRequest struct {
	Cwd string `json:"cwd"`
}

// CloseInstanceRequest is an Admin/SuperAdmin request to close an instance.
type CloseInstanceRequest struct {
	InstanceID string `json:"instance_id"`
}

// ForceCloseInstanceRequest is a SuperAdmin-only forced close.
type ForceCloseInstanceRequest struct {
	InstanceID string `json:"instance_id"`
}

// Attach joins the caller to an instance's fan-out bus.
type Attach struct {
	InstanceID string `json:"instance_id"`
}

// Detach leaves an instance's fan-out bus.
type Detach struct {
	InstanceID string `json:"instance_id"`
}

// UserPTYInput carries base64 input bytes from a User to an attached instance.
type UserPTYInput struct {
	InstanceID string `json:"instance_id"`
	Data       string `json:"data"`
}

// UserResize carries a resize request from a User.
type UserResize struct {
	InstanceID string `json:"instance_id"`
	Cols       int    `json:"cols"`
	Rows       int    `json:"rows"`
}

// GetAdminStats is a SuperAdmin query for aggregate counters.
type GetAdminStats struct{}

// GetAuditLogs is a SuperAdmin query over the audit log.
type GetAuditLogs struct {
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
	Kind   string `json:"kind,omitempty"`
}

// AddTag / RemoveTag mutate an Agent's tag set.
type AddTag struct {
	AgentID string `json:"agent_id"`
	Tag     string `json:"tag"`
}

type RemoveTag struct {
	AgentID string `json:"agent_id"`
	Tag     string `json:"tag"`
}

// ListAgentTags requests the tag set for one agent.
type ListAgentTags struct {
	AgentID string `json:"agent_id"`
}

// SelectWorkingAgent / ClearWorkingAgent manage a SuperAdmin session's
// create/close target.
type SelectWorkingAgent struct {
	AgentID string `json:"agent_id"`
}

type ClearWorkingAgent struct{}

// ForceDisconnectAgent evicts an Agent's Live Agent Connection.
type ForceDisconnectAgent struct {
	AgentID string `json:"agent_id"`
}

// DeleteAgentRequest cascades a delete of an Agent Record and its instances.
type DeleteAgentRequest struct {
	AgentID string `json:"agent_id"`
}

// --- Server → User ---

// AuthResult answers an Auth frame.
type AuthResult struct {
	Success   bool   `json:"success"`
	Role      string `json:"role,omitempty"` // "share", "admin", "superadmin"
	AgentName string `json:"agent_name,omitempty"`
	AgentID   string `json:"agent_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// InstanceInfo describes one instance in a listing.
type InstanceInfo struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	Cwd       string    `json:"cwd"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// InstanceList answers list-instances / list-agent-instances.
type InstanceList struct {
	Instances []InstanceInfo `json:"instances"`
}

// InstanceCreated broadcasts a newly created instance.
type InstanceCreated struct {
	Instance InstanceInfo `json:"instance"`
}

// InstanceClosedNotice broadcasts that an instance has stopped.
type InstanceClosedNotice struct {
	InstanceID string `json:"instance_id"`
}

// UserPTYOutput carries base64-encoded PTY bytes to an attached User.
type UserPTYOutput struct {
	InstanceID string `json:"instance_id"`
	Seq        int64  `json:"seq"`
	Data       string `json:"data"`
}

// UserJoined / UserLeft notify co-attached Users of fan-out membership
// changes, with a refreshed subscriber count.
type UserJoined struct {
	InstanceID string `json:"instance_id"`
	Count      int    `json:"count"`
}

type UserLeft struct {
	InstanceID string `json:"instance_id"`
	Count      int    `json:"count"`
}

// AgentStatusChanged broadcasts an Agent's connectivity transition.
type AgentStatusChanged struct {
	AgentID string `json:"agent_id"`
	Online  bool   `json:"online"`
}

// UserError carries one of the §7 error kinds.
type UserError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AdminStats answers get-admin-stats.
type AdminStats struct {
	TotalAgents      int `json:"total_agents"`
	OnlineAgents     int `json:"online_agents"`
	TotalInstances   int `json:"total_instances"`
	RunningInstances int `json:"running_instances"`
}

// TagList answers the full agent→tags map.
type TagList struct {
	Tags map[string][]string `json:"tags"`
}

// AgentTags answers list-agent-tags for a single agent.
type AgentTags struct {
	AgentID string   `json:"agent_id"`
	Tags    []string `json:"tags"`
}

// TagAdded / TagRemoved acknowledge tag mutations.
type TagAdded struct {
	AgentID string `json:"agent_id"`
	Tag     string `json:"tag"`
}

type TagRemoved struct {
	AgentID string `json:"agent_id"`
	Tag     string `json:"tag"`
}

// AgentDisconnected acknowledges force-disconnect-agent.
type AgentDisconnected struct {
	AgentID string `json:"agent_id"`
}

// AgentDeleted acknowledges delete-agent.
type AgentDeleted struct {
	AgentID string `json:"agent_id"`
}

// AuditLogEntry is one row returned by get-audit-logs.
type AuditLogEntry struct {
	ID         int64     `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	EventType  string    `json:"event_type"`
	SessionID  string    `json:"session_id"`
	Role       string    `json:"role"`
	AgentID    string    `json:"agent_id,omitempty"`
	InstanceID string    `json:"instance_id,omitempty"`
	TargetID   string    `json:"target_id,omitempty"`
	ClientIP   string    `json:"client_ip"`
	Success    bool      `json:"success"`
	Detail     string    `json:"detail,omitempty"`
}

// AuditLogList answers get-audit-logs.
type AuditLogList struct {
	Entries []AuditLogEntry `json:"entries"`
	Total   int             `json:"total"`
}

// WorkingAgentSelected / WorkingAgentCleared acknowledge the SuperAdmin
// working-agent selection commands.
type WorkingAgentSelected struct {
	AgentID string `json:"agent_id"`
}

type WorkingAgentCleared struct{}

// --- Message type discriminators ---

const (
	// Agent → Server
	TypeRegister       = "register"
	TypeInstanceOpened = "instance-opened"
	TypeInstanceClosed = "instance-closed"
	TypePTYOutput      = "pty-output"
	TypeResizeAck      = "resize-ack"
	TypeHeartbeatAck   = "heartbeat-ack"
	TypeAgentError     = "error"

	// Server → Agent
	TypeRegisterResult = "register-result"
	TypeCreateInstance = "create-instance"
	TypeCloseInstance  = "close-instance"
	TypePTYInput       = "pty-input"
	TypeResize         = "resize"
	TypeHeartbeat      = "heartbeat"
	TypeShutdown       = "shutdown"

	// User → Server
	TypeAuth                     = "auth"
	TypeListInstances             = "list-instances"
	TypeListAgentInstances        = "list-agent-instances"
	TypeCreateInstanceRequest     = "create-instance"
	TypeCloseInstanceRequest      = "close-instance"
	TypeForceCloseInstanceRequest = "force-close-instance"
	TypeAttach                    = "attach"
	TypeDetach                    = "detach"
	TypeUserPTYInput              = "pty-input"
	TypeUserResize                = "resize"
	TypeUserHeartbeat             = "heartbeat"
	TypeGetAdminStats             = "get-admin-stats"
	TypeGetAuditLogs              = "get-audit-logs"
	TypeAddTag                    = "add-tag"
	TypeRemoveTag                 = "remove-tag"
	TypeListAgentTags             = "list-agent-tags"
	TypeSelectWorkingAgent        = "select-working-agent"
	TypeClearWorkingAgent         = "clear-working-agent"
	TypeForceDisconnectAgent      = "force-disconnect-agent"
	TypeDeleteAgentRequest        = "delete-agent"

	// Server → User
	TypeAuthResult           = "auth-result"
	TypeInstanceList         = "instance-list"
	TypeInstanceCreated      = "instance-created"
	TypeInstanceClosedNotice = "instance-closed"
	TypeUserPTYOutput        = "pty-output"
	TypeUserJoined           = "user-joined"
	TypeUserLeft             = "user-left"
	TypeAgentStatusChanged   = "agent-status-changed"
	TypeUserError            = "error"
	TypeHeartbeatAckUser     = "heartbeat-ack"
	TypeAdminStats           = "admin-stats"
	TypeTagList              = "tag-list"
	TypeAgentTags            = "agent-tags"
	TypeTagAdded             = "tag-added"
	TypeTagRemoved           = "tag-removed"
	TypeAgentDisconnected    = "agent-disconnected"
	TypeAgentDeleted         = "agent-deleted"
	TypeAuditLogList         = "audit-log-list"
	TypeWorkingAgentSelected = "working-agent-selected"
	TypeWorkingAgentCleared  = "working-agent-cleared"
)

// Roles form a strict lattice: SuperAdmin ⊃ Admin ⊃ Share.
const (
	RoleShare      = "share"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

// Instance status values.
const (
	StatusRunning   = "running"
	StatusSuspended = "suspended"
	StatusStopped   = "stopped"
)

// Error codes surfaced to clients, per spec §7.
const (
	ErrAuthFailed      = "auth_failed"
	ErrRateLimited     = "rate_limited"
	ErrNotAuthorized   = "not_authorized"
	ErrUnknownInstance = "unknown_instance"
	ErrAgentOffline    = "agent_offline"
	ErrInvalidPayload  = "invalid_payload"
	ErrInternal        = "internal"
)
