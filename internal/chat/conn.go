// Package chat implements the conversational session engine: the connection
// registry, per-user session state machine, and the message router that
// bridges them over WebSocket.
package chat

import (
	"context"
	"sync"

	"github.com/coder/websocket"
)

// Conn is one duplex channel to a client. The registry owns every Conn; other
// components only touch one for the duration of a single dispatch call.
type Conn interface {
	// WriteFrame sends one text frame. Implementations must be safe for
	// concurrent callers (router turns and the notification dispatcher both
	// write).
	WriteFrame(ctx context.Context, data []byte) error

	// Close closes the channel with the given status.
	Close(code websocket.StatusCode, reason string) error
}

// wsConn adapts a coder/websocket connection to Conn. The library permits a
// single concurrent writer, so writes are serialized with a mutex.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWebSocketConn wraps a websocket connection for registry ownership.
func NewWebSocketConn(conn *websocket.Conn) Conn {
	return &wsConn{conn: conn}
}

func (c *wsConn) WriteFrame(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *wsConn) Close(code websocket.StatusCode, reason string) error {
	return c.conn.Close(code, reason)
}
