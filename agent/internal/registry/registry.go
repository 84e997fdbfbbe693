// Package registry tracks the Agent's live Instance set: instance id to
// PTY handle, plus the metadata needed to answer list/status queries.
package registry

import (
	"sync"
	"time"

	"github.com/wireterm/wireterm/agent/internal/pty"
)

// Entry is one tracked Instance.
type Entry struct {
	ID        string
	Cwd       string
	PTY       *pty.Instance
	CreatedAt time.Time
}

// Registry is a concurrency-safe instance-id -> Entry map.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Add registers a new Entry.
func (r *Registry) Add(e *Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.ID] = e
}

// Get looks up an Entry by instance id.
func (r *Registry) Get(id string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// Remove drops an Entry from the registry.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// List returns a snapshot of all tracked entries.
func (r *Registry) List() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}

// Count returns the number of tracked Instances.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// RemoveAll clears the registry, returning the removed entries so the
// caller can close their PTYs (used by Agent.Run at final shutdown; a
// dropped Server connection does not clear the registry).
func (r *Registry) RemoveAll() []*Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.entries = make(map[string]*Entry)
	return out
}
