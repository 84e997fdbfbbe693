// Package store defines the Server's persistence interface and provides
// SQLite and MySQL implementations, per spec §4.5 and §6.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by lookups that find no matching row.
var ErrNotFound = errors.New("not found")

// Store is the persistence interface for the Server. Agents, Instances and
// Tags are logically scoped by Agent Record; History Chunks and Audit
// Entries are append-mostly logs pruned by age.
type Store interface {
	// Agents
	UpsertAgentByTokenHashes(ctx context.Context, name, adminHash, shareHash string) (*Agent, error)
	GetAgentByAdminHash(adminHash string) (*Agent, error)
	GetAgentByShareHash(shareHash string) (*Agent, error)
	GetAgent(ctx context.Context, id string) (*Agent, error)
	UpdateLastSeen(ctx context.Context, id string, at time.Time) error
	DeleteAgent(ctx context.Context, id string) error
	ListAgents(ctx context.Context) ([]Agent, error)

	// Tags
	AddTag(ctx context.Context, agentID, tag string) error
	RemoveTag(ctx context.Context, agentID, tag string) error
	ListTags(ctx context.Context, agentID string) ([]string, error)
	ListAllTags(ctx context.Context) (map[string][]string, error)

	// History
	AppendHistoryChunk(ctx context.Context, instanceID string, seq int64, data []byte, bufferCapBytes int) error
	LoadHistory(ctx context.Context, instanceID string) ([]HistoryChunk, error)
	NextSequence(ctx context.Context, instanceID string) (int64, error)
	DeleteHistoryOlderThan(ctx context.Context, before time.Time) (int64, error)
	DeleteHistoryForInstance(ctx context.Context, instanceID string) error

	// Audit
	AppendAudit(ctx context.Context, entry *AuditEntry) error
	QueryAudit(ctx context.Context, limit, offset int, kind string) ([]AuditEntry, int, error)
	DeleteAuditOlderThan(ctx context.Context, before time.Time) (int64, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// Agent is an Agent Record (spec §3).
type Agent struct {
	ID              string
	Name            string
	AdminTokenHash  string
	ShareTokenHash  string
	CreatedAt       time.Time
	LastConnectedAt time.Time
}

// HistoryChunk is one row of the per-instance replay ring.
type HistoryChunk struct {
	InstanceID string
	Sequence   int64
	Data       []byte
	ByteSize   int
	CreatedAt  time.Time
}

// AuditEntry is one immutable audit log row (spec §3).
type AuditEntry struct {
	ID         int64
	Timestamp  time.Time
	EventType  string
	SessionID  string
	Role       string
	AgentID    string
	InstanceID string
	TargetID   string
	ClientIP   string
	Success    bool
	Detail     string
}
