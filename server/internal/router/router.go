// Package router implements the Server's Session Router: the /ws/agent and
// /ws/user WebSocket handlers, the in-memory Agent/Instance/Session
// registries, command dispatch, authorization enforcement, and audit
// emission, per spec §4.3/§4.4.
package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wireterm/wireterm/pkg/protocol"
	"github.com/wireterm/wireterm/server/internal/auth"
	"github.com/wireterm/wireterm/server/internal/fanout"
	"github.com/wireterm/wireterm/server/internal/ratelimit"
	"github.com/wireterm/wireterm/server/internal/store"
)

const (
	egressQueueDepth  = 256
	writeTimeout      = 10 * time.Second
	authReadTimeout   = 5 * time.Second
	heartbeatInterval = 30 * time.Second
	heartbeatGrace    = 2 * heartbeatInterval
	auditQueueDepth   = 1024
)

func makeUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
}

// instance is the Server's in-memory runtime handle for a PTY session,
// co-owned by the router (fan-out) and the owning agentConn (command
// forwarding); both release it when status reaches stopped.
type instance struct {
	ID          string
	AgentID     string
	Cwd         string
	Status      string
	CreatedAt   time.Time
	SuspendedAt time.Time // set when Status transitions to suspended; zero otherwise
}

func (i *instance) info() protocol.InstanceInfo {
	return protocol.InstanceInfo{ID: i.ID, AgentID: i.AgentID, Cwd: i.Cwd, Status: i.Status, CreatedAt: i.CreatedAt}
}

// agentConn is the Live Agent Connection bound to one Agent Record.
type agentConn struct {
	agentID string
	name    string
	conn    *websocket.Conn
	writeMu sync.Mutex
	egress  chan protocol.Envelope
	done    chan struct{}
}

func (a *agentConn) send(env protocol.Envelope) {
	select {
	case a.egress <- env:
	default:
		// agent egress full: drop oldest-effort, the agent loop is stuck or dead
	}
}

// userConn is one live browser session.
type userConn struct {
	sessionID    string
	role         string
	agentID      string // bound agent for Admin/Share; empty for SuperAdmin
	workingAgent string // SuperAdmin's session-scoped create/close target
	remoteAddr   string
	conn         *websocket.Conn
	writeMu      sync.Mutex
	egress       chan protocol.Envelope

	attachedMu sync.Mutex
	attachedID string // at most one Instance attachment at a time
	attachedCh chan struct{}
}

func (u *userConn) send(env protocol.Envelope) {
	select {
	case u.egress <- env:
	default:
	}
}

// Router wires together the Agent/Instance/Session registries.
type Router struct {
	store      store.Store
	classifier *auth.Classifier
	limiter    ratelimit.Limiter
	fanout     *fanout.Registry
	logger     *slog.Logger
	upgrader   websocket.Upgrader

	defaultBufferCapKB int
	auditEnabled       bool

	mu            sync.RWMutex
	agents        map[string]*agentConn      // agent id -> live connection
	instances     map[string]*instance       // instance id -> runtime handle
	instancesByAg map[string][]string        // agent id -> instance ids
	users         map[string]*userConn       // session id -> live connection
	usersByAgent  map[string]map[string]bool // agent id -> session ids watching it

	auditCh chan *store.AuditEntry
}

// New builds a Router. auditEnabled mirrors [audit_log] enabled; when false,
// audit() is a no-op so disabling the feature actually stops audit writes
// rather than just hiding them from the query API.
func New(s store.Store, classifier *auth.Classifier, limiter ratelimit.Limiter, fo *fanout.Registry, defaultBufferCapKB int, auditEnabled bool, logger *slog.Logger) *Router {
	r := &Router{
		store:              s,
		classifier:         classifier,
		limiter:            limiter,
		fanout:             fo,
		logger:             logger.With("component", "router"),
		upgrader:           makeUpgrader(),
		defaultBufferCapKB: defaultBufferCapKB,
		auditEnabled:       auditEnabled,
		agents:             make(map[string]*agentConn),
		instances:          make(map[string]*instance),
		instancesByAg:      make(map[string][]string),
		users:              make(map[string]*userConn),
		usersByAgent:       make(map[string]map[string]bool),
		auditCh:            make(chan *store.AuditEntry, auditQueueDepth),
	}
	go r.runAuditSink()
	return r
}

// runAuditSink drains the bounded async audit queue. Audit writes never
// block the command path (spec §4.4); when the queue itself overflows the
// entry is dropped and a warning logged (handled at the enqueue site).
func (r *Router) runAuditSink() {
	for e := range r.auditCh {
		if err := r.store.AppendAudit(context.Background(), e); err != nil {
			r.logger.Warn("failed to persist audit entry", "event_type", e.EventType, "error", err)
		}
	}
}

func (r *Router) audit(e *store.AuditEntry) {
	if !r.auditEnabled {
		return
	}
	select {
	case r.auditCh <- e:
	default:
		r.logger.Warn("audit queue overflow, dropping entry", "event_type", e.EventType)
	}
}

func sendEnvelope(conn *websocket.Conn, mu *sync.Mutex, msgType string, payload any) error {
	mu.Lock()
	defer mu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(protocol.Envelope{Type: msgType, Timestamp: time.Now(), Payload: payload})
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// remoteIP extracts the caller's address for audit/rate-limit keying.
func remoteIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
