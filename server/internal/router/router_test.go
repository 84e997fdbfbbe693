package router

import (
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wireterm/wireterm/pkg/protocol"
	wauth "github.com/wireterm/wireterm/server/internal/auth"
	"github.com/wireterm/wireterm/server/internal/fanout"
	"github.com/wireterm/wireterm/server/internal/ratelimit"
	"github.com/wireterm/wireterm/server/internal/store"
)

func newTestRouter(t *testing.T) (*Router, *httptest.Server) {
	t.Helper()
	s, err := store.NewSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	classifier := wauth.New(s, strings.Repeat("S", 32), 24, []byte("test-pepper"))
	limiter, _ := ratelimit.New("", 0)
	fo := fanout.New(s, 256, logger)
	r := New(s, classifier, limiter, fo, 256, true, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/agent", r.HandleAgentWS)
	mux.HandleFunc("/ws/user", r.HandleUserWS)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return r, srv
}

func TestHappyPathCreateInstance(t *testing.T) {
	_, srv := newTestRouter(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	agentConn, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws/agent", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer agentConn.Close()

	if err := agentConn.WriteJSON(protocol.Envelope{Type: protocol.TypeRegister, Payload: protocol.Register{
		AdminToken: strings.Repeat("A", 32), ShareToken: strings.Repeat("H", 32), AgentName: "w1",
	}}); err != nil {
		t.Fatal(err)
	}

	var regResult protocol.Envelope
	if err := agentConn.ReadJSON(&regResult); err != nil {
		t.Fatal(err)
	}
	if regResult.Type != protocol.TypeRegisterResult {
		t.Fatalf("expected register-result, got %s", regResult.Type)
	}

	userConn, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws/user", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer userConn.Close()

	if err := userConn.WriteJSON(protocol.Envelope{Type: protocol.TypeAuth, Payload: protocol.Auth{Token: strings.Repeat("A", 32)}}); err != nil {
		t.Fatal(err)
	}

	var authResult rawEnvelope
	if err := userConn.ReadJSON(&authResult); err != nil {
		t.Fatal(err)
	}
	if authResult.Type != protocol.TypeAuthResult {
		t.Fatalf("expected auth-result, got %s", authResult.Type)
	}

	if err := userConn.WriteJSON(protocol.Envelope{Type: protocol.TypeCreateInstanceRequest, Payload: protocol.CreateInstanceRequest{Cwd: "/tmp"}}); err != nil {
		t.Fatal(err)
	}

	// Agent receives the create-instance command.
	agentConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var createCmd rawEnvelope
	if err := agentConn.ReadJSON(&createCmd); err != nil {
		t.Fatal(err)
	}
	if createCmd.Type != protocol.TypeCreateInstance {
		t.Fatalf("expected create-instance, got %s", createCmd.Type)
	}
}

func TestSubAdminTokenRejectedBelowMinLength(t *testing.T) {
	_, srv := newTestRouter(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	userConn, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws/user", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer userConn.Close()

	if err := userConn.WriteJSON(protocol.Envelope{Type: protocol.TypeAuth, Payload: protocol.Auth{Token: "short"}}); err != nil {
		t.Fatal(err)
	}

	var resp struct {
		Type    string              `json:"type"`
		Payload protocol.AuthResult `json:"payload"`
	}
	if err := userConn.ReadJSON(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Type != protocol.TypeAuthResult {
		t.Fatalf("expected auth-result, got %s", resp.Type)
	}
	if resp.Payload.Success {
		t.Fatal("expected a token below the minimum length to be rejected")
	}
}

// rawEnvelope mirrors protocol.Envelope but keeps Payload undecoded for
// assertions on Type alone.
type rawEnvelope struct {
	Type string `json:"type"`
}

var _ = base64.StdEncoding
