package httpapi

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wireterm/wireterm/server/internal/auth"
	"github.com/wireterm/wireterm/server/internal/fanout"
	"github.com/wireterm/wireterm/server/internal/ratelimit"
	"github.com/wireterm/wireterm/server/internal/router"
	"github.com/wireterm/wireterm/server/internal/store"
)

func newTestServer(t *testing.T) *Server {
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

	return New(Options{Router: rt, AllowedOrigins: []string{"*"}, Logger: logger})
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Fatalf("expected body %q, got %q", "ok", rec.Body.String())
	}
}

func TestSecurityHeadersPresent(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing security header")
	}
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/health", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected preflight 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected wildcard CORS origin, got %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}
