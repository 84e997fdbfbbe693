// Package serverconn manages the Agent's outbound duplex WebSocket
// connection to the Server: the dial/register/reconnect loop and the
// bounded egress queue, per spec §4.2.
package serverconn

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wireterm/wireterm/pkg/protocol"
)

// egressQueueDepth bounds the outbound frame buffer; a full queue means the
// connection is wedged and the caller should let the socket error out.
const egressQueueDepth = 256

// maxReconnectMultiple caps the jittered backoff at 4x the base interval.
const maxReconnectMultiple = 4

// Handler processes one inbound Envelope from the Server.
type Handler func(env protocol.Envelope)

// Client is the Agent's Server-facing connection.
type Client struct {
	url               string
	adminToken        string
	shareToken        string
	agentName         string
	reconnectInterval time.Duration
	handler           Handler
	logger            *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	egress chan protocol.Envelope
}

// Options configures a Client.
type Options struct {
	URL               string
	AdminToken        string
	ShareToken        string
	AgentName         string
	ReconnectInterval time.Duration
	Handler           Handler
	Logger            *slog.Logger
}

// New builds a Client.
func New(opts Options) *Client {
	return &Client{
		url:               opts.URL,
		adminToken:        opts.AdminToken,
		shareToken:        opts.ShareToken,
		agentName:         opts.AgentName,
		reconnectInterval: opts.ReconnectInterval,
		handler:           opts.Handler,
		logger:            opts.Logger.With("component", "serverconn"),
	}
}

// Run dials, registers, and services the connection, reconnecting with
// capped jitter on any failure, until ctx is cancelled.
func (c *Client) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := c.connectOnce(ctx); err != nil {
			c.logger.Warn("connection lost", "error", err)
		}

		delay := c.jitteredDelay()
		c.logger.Info("reconnecting", "delay", delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// jitteredDelay returns base + rand(0, base), capped at maxReconnectMultiple
// times the base interval, per spec §4.2/§12.
func (c *Client) jitteredDelay() time.Duration {
	base := c.reconnectInterval
	jitter := time.Duration(rand.Int63n(int64(base) + 1))
	delay := base + jitter
	if cap := base * maxReconnectMultiple; delay > cap {
		delay = cap
	}
	return delay
}

func (c *Client) connectOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url, http.Header{})
	if err != nil {
		return fmt.Errorf("dial server: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.egress = make(chan protocol.Envelope, egressQueueDepth)
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}()

	if err := conn.WriteJSON(protocol.Envelope{Type: protocol.TypeRegister, Timestamp: time.Now(), Payload: protocol.Register{
		AdminToken: c.adminToken, ShareToken: c.shareToken, AgentName: c.agentName,
	}}); err != nil {
		return fmt.Errorf("send register: %w", err)
	}

	var regResult protocol.Envelope
	if err := conn.ReadJSON(&regResult); err != nil {
		return fmt.Errorf("read register-result: %w", err)
	}
	var result protocol.RegisterResult
	if data, err := json.Marshal(regResult.Payload); err == nil {
		json.Unmarshal(data, &result)
	}
	if !result.Success {
		return fmt.Errorf("registration rejected: %s", result.Error)
	}
	c.logger.Info("registered with server", "url", c.url)

	errCh := make(chan error, 1)
	go c.egressLoop(conn, errCh)

	for {
		var frame struct {
			Type      string          `json:"type"`
			Timestamp time.Time       `json:"ts"`
			Payload   json.RawMessage `json:"payload"`
		}
		if err := conn.ReadJSON(&frame); err != nil {
			return fmt.Errorf("read frame: %w", err)
		}
		// Payload is handed to the caller as json.RawMessage; the orchestrator
		// decodes it into the struct appropriate for frame.Type.
		c.handler(protocol.Envelope{Type: frame.Type, Timestamp: frame.Timestamp, Payload: frame.Payload})

		select {
		case err := <-errCh:
			return err
		default:
		}
	}
}

func (c *Client) egressLoop(conn *websocket.Conn, errCh chan error) {
	for {
		c.mu.Lock()
		ch := c.egress
		c.mu.Unlock()
		if ch == nil {
			return
		}
		env, ok := <-ch
		if !ok {
			return
		}
		if err := conn.WriteJSON(env); err != nil {
			errCh <- err
			return
		}
	}
}

// Connected reports whether a Server connection is currently live.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send enqueues a frame for delivery to the Server. Non-blocking: if the
// egress queue is full or no connection is live, the frame is dropped.
func (c *Client) Send(msgType string, payload any) {
	c.mu.Lock()
	ch := c.egress
	c.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- protocol.Envelope{Type: msgType, Timestamp: time.Now(), Payload: payload}:
	default:
		c.logger.Warn("egress queue full, dropping frame", "type", msgType)
	}
}
