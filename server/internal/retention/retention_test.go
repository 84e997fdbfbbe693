package retention

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/wireterm/wireterm/server/internal/auth"
	"github.com/wireterm/wireterm/server/internal/fanout"
	"github.com/wireterm/wireterm/server/internal/ratelimit"
	"github.com/wireterm/wireterm/server/internal/router"
	"github.com/wireterm/wireterm/server/internal/store"
)

func newTestSweeper(t *testing.T) (*Sweeper, store.Store) {
	t.Helper()
	s, err := store.NewSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	classifier := auth.New(s, strings.Repeat("S", 32), 24, []byte("test-pepper"))
	limiter, _ := ratelimit.New("", 0)
	fo := fanout.New(s, 256, logger)
	rt := router.New(s, classifier, limiter, fo, 256, true, logger)

	return New(s, rt, 24*time.Hour, 24*time.Hour, true, true, logger), s
}

func TestSweepOnceDeletesOldAuditEntries(t *testing.T) {
	sw, s := newTestSweeper(t)
	ctx := context.Background()

	old := &store.AuditEntry{EventType: "auth_success", Role: "agent", Success: true}
	if err := s.AppendAudit(ctx, old); err != nil {
		t.Fatal(err)
	}

	sw.sweepOnce(ctx)

	entries, total, err := s.QueryAudit(ctx, 10, 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(entries) != 1 {
		t.Fatalf("entry within retention window should survive, total=%d", total)
	}

	sw.auditRetention = 0
	sw.sweepOnce(ctx)
	_, total, err = s.QueryAudit(ctx, 10, 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if total != 0 {
		t.Fatalf("expected all audit entries pruned with zero retention, got %d", total)
	}
}
