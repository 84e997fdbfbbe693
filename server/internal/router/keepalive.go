package router

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// startWSKeepalive installs WebSocket-level ping/pong on a connection and
// returns a cancel function. The provided mutex must be the same one used
// for all writes to conn. Heartbeat interval/grace follow spec §4.1.
func startWSKeepalive(conn *websocket.Conn, mu *sync.Mutex) (cancel func()) {
	conn.SetReadDeadline(time.Now().Add(heartbeatGrace))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(heartbeatGrace))
	})

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				mu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
				mu.Unlock()
				if err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }
}
