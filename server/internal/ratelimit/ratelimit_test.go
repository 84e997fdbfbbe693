package ratelimit

import "testing"

func TestInMemoryAllowsUpToLimitThenRejects(t *testing.T) {
	l := NewInMemory(3)
	ctx := testContext()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "1.2.3.4")
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}

	ok, err := l.Allow(ctx, "1.2.3.4")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("4th attempt within window should be rejected")
	}
}

func TestInMemoryTracksAddressesIndependently(t *testing.T) {
	l := NewInMemory(1)
	ctx := testContext()

	ok1, _ := l.Allow(ctx, "1.2.3.4")
	ok2, _ := l.Allow(ctx, "5.6.7.8")
	if !ok1 || !ok2 {
		t.Fatal("distinct addresses should not share a bucket")
	}
}

func TestDisabledAlwaysAllows(t *testing.T) {
	l := Disabled{}
	ctx := testContext()
	for i := 0; i < 100; i++ {
		ok, err := l.Allow(ctx, "1.2.3.4")
		if err != nil || !ok {
			t.Fatal("disabled limiter must always allow")
		}
	}
}

func TestNewSelectsDisabledWhenLimitIsZero(t *testing.T) {
	l, err := New("", 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := l.(Disabled); !ok {
		t.Fatalf("expected Disabled limiter, got %T", l)
	}
}

func TestNewSelectsDisabledWhenNoRedisURL(t *testing.T) {
	l, err := New("", 5)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := l.(Disabled); !ok {
		t.Fatalf("expected Disabled limiter when redis_url is absent, got %T", l)
	}
}
