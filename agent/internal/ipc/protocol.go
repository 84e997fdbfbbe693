// Package ipc implements the Agent's local control-socket protocol used
// by the dashboard TUI to query the running Agent's instance registry
// without going through the Server.
package ipc

import (
	"encoding/json"
	"time"
)

// Request is a JSON-Lines request from a TUI client.
type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is sent back to the client.
type Response struct {
	ID   string          `json:"id,omitempty"`
	Type string          `json:"type"` // "result", "error", or "event"
	Data json.RawMessage `json:"data,omitempty"`
}

// StatusResult answers the "status" method.
type StatusResult struct {
	AgentName       string    `json:"agent_name"`
	ServerURL       string    `json:"server_url"`
	ServerConnected bool      `json:"server_connected"`
	StartedAt       time.Time `json:"started_at"`
	Instances       int       `json:"instances"`
	Version         string    `json:"version"`
}

// InstanceInfo describes one locally-tracked Instance.
type InstanceInfo struct {
	ID        string    `json:"id"`
	Cwd       string    `json:"cwd"`
	CreatedAt time.Time `json:"created_at"`
}

// InstancesResult answers the "instances" method.
type InstancesResult struct {
	Instances []InstanceInfo `json:"instances"`
}

// SubscribeParams is sent with the "subscribe" method.
type SubscribeParams struct {
	Events []string `json:"events"`
}

// Event wraps an event bus event for IPC transport.
type Event struct {
	Type      string          `json:"type"`
	Seq       int64           `json:"seq"`
	Timestamp time.Time       `json:"ts"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// StateProvider is the interface the IPC server uses to query Agent state.
type StateProvider interface {
	Status() StatusResult
	Instances() []InstanceInfo
}
