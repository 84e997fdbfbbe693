package store

import (
	"context"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertAgentByTokenHashesIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a1, err := s.UpsertAgentByTokenHashes(ctx, "w1", "admin-hash", "share-hash")
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	a2, err := s.UpsertAgentByTokenHashes(ctx, "w1", "admin-hash", "share-hash")
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if a1.ID != a2.ID {
		t.Fatalf("expected re-registration to resolve to existing agent, got distinct ids %s != %s", a1.ID, a2.ID)
	}

	// Matching on share hash alone also resolves to the existing record.
	a3, err := s.UpsertAgentByTokenHashes(ctx, "w1-renamed", "different-admin-hash", "share-hash")
	if err != nil {
		t.Fatalf("third upsert: %v", err)
	}
	if a3.ID != a1.ID {
		t.Fatalf("expected share-hash collision to resolve to existing agent")
	}
}

func TestGetAgentByHashLookups(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.UpsertAgentByTokenHashes(ctx, "w1", "admin-hash", "share-hash")
	if err != nil {
		t.Fatal(err)
	}

	byAdmin, err := s.GetAgentByAdminHash("admin-hash")
	if err != nil || byAdmin == nil || byAdmin.ID != a.ID {
		t.Fatalf("GetAgentByAdminHash: got %+v, err %v", byAdmin, err)
	}

	byShare, err := s.GetAgentByShareHash("share-hash")
	if err != nil || byShare == nil || byShare.ID != a.ID {
		t.Fatalf("GetAgentByShareHash: got %+v, err %v", byShare, err)
	}

	missing, err := s.GetAgentByAdminHash("nonexistent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for nonexistent hash, got %+v", missing)
	}
}

func TestDeleteAgentCascadesTags(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.UpsertAgentByTokenHashes(ctx, "w1", "admin-hash", "share-hash")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AddTag(ctx, a.ID, "prod"); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteAgent(ctx, a.ID); err != nil {
		t.Fatal(err)
	}

	tags, err := s.ListTags(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(tags) != 0 {
		t.Fatalf("expected tags to cascade-delete, got %v", tags)
	}
}

func TestHistoryChunkEvictionRespectsCap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	const cap = 100 // bytes

	data := make([]byte, 40)
	for i := range data {
		data[i] = byte('a' + i%26)
	}

	for seq := int64(0); seq < 5; seq++ {
		if err := s.AppendHistoryChunk(ctx, "inst-1", seq, data, cap); err != nil {
			t.Fatalf("append chunk %d: %v", seq, err)
		}
	}

	chunks, err := s.LoadHistory(ctx, "inst-1")
	if err != nil {
		t.Fatal(err)
	}

	var total int
	for _, c := range chunks {
		total += c.ByteSize
	}
	if total > cap {
		t.Fatalf("total buffered bytes %d exceeds cap %d", total, cap)
	}

	// Surviving sequence numbers must be a contiguous suffix.
	for i := 1; i < len(chunks); i++ {
		if chunks[i].Sequence != chunks[i-1].Sequence+1 {
			t.Fatalf("expected contiguous suffix of sequence numbers, got %+v", chunks)
		}
	}
}

func TestHistoryChunkEvictionKeepsOversizedNewChunk(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	const cap = 100 // bytes

	small := make([]byte, 40)
	for seq := int64(0); seq < 2; seq++ {
		if err := s.AppendHistoryChunk(ctx, "inst-1", seq, small, cap); err != nil {
			t.Fatalf("append chunk %d: %v", seq, err)
		}
	}

	oversized := make([]byte, cap+50)
	if err := s.AppendHistoryChunk(ctx, "inst-1", 2, oversized, cap); err != nil {
		t.Fatalf("append oversized chunk: %v", err)
	}

	chunks, err := s.LoadHistory(ctx, "inst-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 || chunks[0].Sequence != 2 {
		t.Fatalf("expected only the oversized chunk (seq 2) to survive, got %+v", chunks)
	}
	if len(chunks[0].Data) != len(oversized) {
		t.Fatalf("expected oversized chunk data to be kept intact, got %d bytes", len(chunks[0].Data))
	}
}

func TestQueryAuditFiltersByKindAndPaginates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.AppendAudit(ctx, &AuditEntry{EventType: "auth_success", Role: "admin", ClientIP: "10.0.0.1", Success: true}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.AppendAudit(ctx, &AuditEntry{EventType: "auth_failure", Role: "", ClientIP: "10.0.0.2", Success: false}); err != nil {
		t.Fatal(err)
	}

	entries, total, err := s.QueryAudit(ctx, 10, 0, "auth_success")
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(entries) != 3 {
		t.Fatalf("expected 3 auth_success entries, got total=%d len=%d", total, len(entries))
	}

	page, total, err := s.QueryAudit(ctx, 2, 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if total != 4 || len(page) != 2 {
		t.Fatalf("expected total=4 page-len=2, got total=%d len=%d", total, len(page))
	}
}

func TestDeleteHistoryOlderThanPrunesByAge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AppendHistoryChunk(ctx, "inst-old", 0, []byte("x"), 1024); err != nil {
		t.Fatal(err)
	}

	deleted, err := s.DeleteHistoryOlderThan(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if deleted == 0 {
		t.Fatal("expected at least one row pruned")
	}
}
