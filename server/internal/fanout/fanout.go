// Package fanout implements the per-instance output fan-out and durable
// replay ring described in spec §4.3/§4.5: each Instance gets one bounded
// pub/sub bus, and every chunk published to it is also appended to a
// durable History Chunk ring so new attachers can replay missed output
// before joining the live stream.
package fanout

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wireterm/wireterm/pkg/eventbus"
	"github.com/wireterm/wireterm/server/internal/store"
)

// Chunk is one piece of PTY output delivered to a subscriber, either from
// replay or live.
type Chunk struct {
	Sequence int64
	Data     []byte
}

// ClosedEventType marks an instance's fan-out being torn down intentionally
// (close-instance, delete-agent, or retention purge). Subscribers receive it
// on the same channel just before that channel is closed, so they can tell
// a deliberate teardown apart from being dropped for falling behind (spec
// §8 scenario 5 vs scenario 4).
const ClosedEventType = "fanout.closed"

// instanceFanout pairs one instance's live bus with the lock that serializes
// Publish (append + broadcast) against Attach (replay load + subscribe), so
// neither can interleave with the other.
type instanceFanout struct {
	mu  sync.Mutex
	bus *eventbus.Bus
}

// Registry owns one Bus-plus-history pairing per instance.
type Registry struct {
	mu       sync.Mutex
	entries  map[string]*instanceFanout
	store    store.Store
	bufCapKB int
	logger   *slog.Logger
}

// New creates a fan-out registry backed by the given store. defaultBufferCapKB
// is used when an instance has no explicit buffer size override.
func New(s store.Store, defaultBufferCapKB int, logger *slog.Logger) *Registry {
	return &Registry{
		entries:  make(map[string]*instanceFanout),
		store:    s,
		bufCapKB: defaultBufferCapKB,
		logger:   logger.With("component", "fanout"),
	}
}

func (r *Registry) entryFor(instanceID string) *instanceFanout {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[instanceID]
	if !ok {
		e = &instanceFanout{bus: eventbus.New()}
		r.entries[instanceID] = e
	}
	return e
}

// Publish appends a chunk of Agent output to the durable history ring and
// broadcasts it to any live subscribers. The append and the broadcast are
// performed under the instance's fanout lock, the same lock Attach holds
// across its replay load and subscribe, so a Publish can never land between
// a concurrent Attach's two steps and be lost from both replay and live
// delivery (spec §4.3, §8).
func (r *Registry) Publish(ctx context.Context, instanceID string, data []byte) error {
	e := r.entryFor(instanceID)
	e.mu.Lock()
	defer e.mu.Unlock()

	seq, err := r.store.NextSequence(ctx, instanceID)
	if err != nil {
		return err
	}
	if err := r.store.AppendHistoryChunk(ctx, instanceID, seq, data, r.bufCapKB*1024); err != nil {
		return err
	}

	e.bus.Publish(eventbus.Event{
		Type:      eventbus.TypePTYOutput,
		Timestamp: time.Now(),
		Data:      data,
	})
	return nil
}

// Attach joins a new subscriber to an instance's live bus and returns the
// current replay buffer; the caller must deliver the replay chunks before
// reading from the returned channel, per spec §4.3's replay-then-live rule.
// The load and the subscribe happen under the same per-instance lock
// Publish uses, so no concurrent Publish can be missed between them.
func (r *Registry) Attach(ctx context.Context, instanceID string) ([]Chunk, chan eventbus.Event, error) {
	e := r.entryFor(instanceID)
	e.mu.Lock()
	defer e.mu.Unlock()

	history, err := r.store.LoadHistory(ctx, instanceID)
	if err != nil {
		return nil, nil, err
	}

	chunks := make([]Chunk, len(history))
	for i, h := range history {
		chunks[i] = Chunk{Sequence: h.Sequence, Data: h.Data}
	}

	sub := e.bus.Subscribe(eventbus.TypePTYOutput, ClosedEventType)
	return chunks, sub, nil
}

// Detach removes a subscriber from an instance's bus.
func (r *Registry) Detach(instanceID string, sub chan eventbus.Event) {
	r.mu.Lock()
	e, ok := r.entries[instanceID]
	r.mu.Unlock()
	if ok {
		e.bus.Unsubscribe(sub)
	}
}

// SubscriberCount reports how many Users are currently attached to an
// instance's fan-out, used to populate UserJoined/UserLeft counts.
func (r *Registry) SubscriberCount(instanceID string) int {
	r.mu.Lock()
	e, ok := r.entries[instanceID]
	r.mu.Unlock()
	if !ok {
		return 0
	}
	return e.bus.SubscriberCount()
}

// Close tears down an instance's bus and deletes its history, called when
// an Instance reaches stopped. Subscribers are sent a ClosedEventType event
// before their channel is closed, so attached Users see instance-closed
// rather than a buffer-overflow drop.
func (r *Registry) Close(ctx context.Context, instanceID string) {
	r.mu.Lock()
	e, ok := r.entries[instanceID]
	delete(r.entries, instanceID)
	r.mu.Unlock()
	if ok {
		e.mu.Lock()
		e.bus.Publish(eventbus.Event{Type: ClosedEventType, Timestamp: time.Now()})
		e.mu.Unlock()
		e.bus.Close()
	}
	if err := r.store.DeleteHistoryForInstance(ctx, instanceID); err != nil {
		r.logger.Warn("failed to delete history on instance close", "instance_id", instanceID, "error", err)
	}
}
