package router

import (
	"context"
	"time"

	"github.com/wireterm/wireterm/pkg/protocol"
)

// PurgeStaleSuspended stops and purges every Instance whose owning Agent
// has been disconnected for longer than maxAge, per spec §4.5. It returns
// the purged instance ids, each already detached from its fan-out bus and
// announced to any watching Users.
func (r *Router) PurgeStaleSuspended(maxAge time.Duration) []string {
	cutoff := time.Now().UTC().Add(-maxAge)

	r.mu.Lock()
	var stale []*instance
	for _, inst := range r.instances {
		if inst.Status == protocol.StatusSuspended && !inst.SuspendedAt.IsZero() && inst.SuspendedAt.Before(cutoff) {
			stale = append(stale, inst)
		}
	}
	for _, inst := range stale {
		inst.Status = protocol.StatusStopped
		delete(r.instances, inst.ID)
		ids := r.instancesByAg[inst.AgentID]
		for i, id := range ids {
			if id == inst.ID {
				r.instancesByAg[inst.AgentID] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()

	purged := make([]string, 0, len(stale))
	for _, inst := range stale {
		r.fanout.Close(context.Background(), inst.ID)
		r.broadcastToAgentWatchers(inst.AgentID, protocol.TypeInstanceClosedNotice, protocol.InstanceClosedNotice{InstanceID: inst.ID})
		purged = append(purged, inst.ID)
	}
	return purged
}
