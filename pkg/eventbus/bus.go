// Package eventbus implements a bounded fan-out publish/subscribe bus.
//
// It backs two unrelated uses in wireterm: the Server's per-Instance output
// fan-out (§4.3, §4.5) and the Agent's local dashboard live-update feed
// (§12). Both want the same shape: many slow, independent readers behind one
// fast writer, where a stuck reader must never block the writer.
package eventbus

import (
	"encoding/json"
	"sync"
	"time"
)

// SubscriberQueueSize is the per-subscriber buffer depth. A subscriber that
// cannot keep up is dropped rather than allowed to back-pressure the bus.
const SubscriberQueueSize = 256

// Event types published on the bus.
const (
	TypePTYOutput     = "pty.output"
	TypeInstanceState = "instance.state"
	TypeAgentLink     = "agent.link"
	TypeLogEntry      = "log.entry"
)

// Event is a single message on the bus. Seq is a monotonically increasing
// per-bus sequence number assigned at publish time, used by subscribers to
// detect drops against a History Chunk replay.
type Event struct {
	Type      string          `json:"type"`
	Seq       int64           `json:"seq"`
	Timestamp time.Time       `json:"ts"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Bus is a fan-out pub/sub event bus. Subscribers receive events on a
// buffered channel sized SubscriberQueueSize. A subscriber whose buffer is
// full is dropped outright (non-blocking publish, drop-slowest semantics)
// rather than having the event silently skipped for it alone: a partial
// stream is worse than a closed one for an attached terminal session.
type Bus struct {
	mu   sync.RWMutex
	seq  int64
	subs map[chan Event]map[string]bool // channel → set of subscribed event types (nil = all)
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		subs: make(map[chan Event]map[string]bool),
	}
}

// Subscribe returns a channel that receives events matching the given types.
// If no types are given, all events are received.
func (b *Bus) Subscribe(types ...string) chan Event {
	ch := make(chan Event, SubscriberQueueSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(types) == 0 {
		b.subs[ch] = nil
	} else {
		filter := make(map[string]bool, len(types))
		for _, t := range types {
			filter[t] = true
		}
		b.subs[ch] = filter
	}
	return ch
}

// Unsubscribe removes a subscriber and closes its channel. Safe to call more
// than once for the same channel.
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// SubscriberCount reports the number of live subscribers, used to populate
// UserJoined/UserLeft counts.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish sends an event to all matching subscribers, stamping it with the
// next sequence number. Non-blocking: a subscriber whose buffer is full is
// dropped and its channel closed, on the theory that a reader that has
// fallen SubscriberQueueSize frames behind a live PTY needs to reattach and
// replay from the History Chunk ring rather than keep draining a queue that
// can never catch up.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	e.Seq = b.seq
	for ch, filter := range b.subs {
		if filter != nil && !filter[e.Type] {
			continue
		}
		select {
		case ch <- e:
		default:
			delete(b.subs, ch)
			close(ch)
		}
	}
}

// PublishType is a convenience method that marshals data and publishes it.
func (b *Bus) PublishType(eventType string, data any) {
	var raw json.RawMessage
	if data != nil {
		raw, _ = json.Marshal(data)
	}
	b.Publish(Event{Type: eventType, Data: raw})
}

// Close unsubscribes all subscribers and closes their channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		close(ch)
		delete(b.subs, ch)
	}
}
