package registry

import "testing"

func TestAddGetRemove(t *testing.T) {
	r := New()
	r.Add(&Entry{ID: "i1", Cwd: "/tmp"})

	if _, ok := r.Get("i1"); !ok {
		t.Fatal("expected entry to be found")
	}
	if r.Count() != 1 {
		t.Fatalf("expected count 1, got %d", r.Count())
	}

	r.Remove("i1")
	if _, ok := r.Get("i1"); ok {
		t.Fatal("expected entry to be gone after remove")
	}
}

func TestRemoveAllClearsAndReturnsEntries(t *testing.T) {
	r := New()
	r.Add(&Entry{ID: "i1"})
	r.Add(&Entry{ID: "i2"})

	removed := r.RemoveAll()
	if len(removed) != 2 {
		t.Fatalf("expected 2 removed entries, got %d", len(removed))
	}
	if r.Count() != 0 {
		t.Fatalf("expected registry empty after RemoveAll, got %d", r.Count())
	}
}
