// Package retention runs the Server's hourly background sweep, per
// spec §4.5: pruning aged History Chunks and Audit Entries, and purging
// Instances whose owning Agent has been disconnected past the history
// retention window.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/wireterm/wireterm/server/internal/router"
	"github.com/wireterm/wireterm/server/internal/store"
)

const sweepInterval = time.Hour

// Sweeper periodically prunes aged persistence rows and stale suspended
// Instances. The three duties are independent (spec §4.5): history pruning
// and audit pruning are each gated by their own [terminal_history]/
// [audit_log] enabled flag, while the stale-suspended-instance purge always
// runs once the sweeper is up, regardless of either flag.
type Sweeper struct {
	store  store.Store
	router *router.Router
	logger *slog.Logger

	historyEnabled bool
	auditEnabled   bool

	historyRetention time.Duration
	auditRetention   time.Duration
}

// New builds a Sweeper. historyRetention and auditRetention correspond to
// terminal_history.retention_days and audit_log.retention_days; historyEnabled
// and auditEnabled correspond to the respective section's enabled flag.
func New(s store.Store, r *router.Router, historyRetention, auditRetention time.Duration, historyEnabled, auditEnabled bool, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:            s,
		router:           r,
		logger:           logger.With("component", "retention"),
		historyEnabled:   historyEnabled,
		auditEnabled:     auditEnabled,
		historyRetention: historyRetention,
		auditRetention:   auditRetention,
	}
}

// Run blocks, sweeping once immediately and then every sweepInterval,
// until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweepOnce(ctx)

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweepOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	if s.historyEnabled {
		historyCutoff := time.Now().UTC().Add(-s.historyRetention)
		if n, err := s.store.DeleteHistoryOlderThan(ctx, historyCutoff); err != nil {
			s.logger.Warn("failed to prune history chunks", "error", err)
		} else if n > 0 {
			s.logger.Info("pruned history chunks", "count", n)
		}
	}

	if s.auditEnabled {
		auditCutoff := time.Now().UTC().Add(-s.auditRetention)
		if n, err := s.store.DeleteAuditOlderThan(ctx, auditCutoff); err != nil {
			s.logger.Warn("failed to prune audit entries", "error", err)
		} else if n > 0 {
			s.logger.Info("pruned audit entries", "count", n)
		}
	}

	purged := s.router.PurgeStaleSuspended(s.historyRetention)
	if len(purged) > 0 {
		s.logger.Info("purged stale suspended instances", "count", len(purged), "instance_ids", purged)
	}
}
