// Package ws adapts gorilla/websocket to the gateway's connection
// abstraction and drives the session lifecycle from the socket's events.
package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn wraps a websocket connection as a contract.Conn. gorilla permits a
// single concurrent writer, so all sends serialize on the mutex; the read
// side stays with the read loop in Server.
type Conn struct {
	mu           sync.Mutex
	socket       *websocket.Conn
	writeTimeout time.Duration
}

func newConn(socket *websocket.Conn, writeTimeout time.Duration) *Conn {
	return &Conn{socket: socket, writeTimeout: writeTimeout}
}

// Send writes one text frame. The deadline is the sooner of the configured
// write timeout and the context deadline, so a stalled peer cannot pin the
// sender for long.
func (c *Conn) Send(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(c.writeTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := c.socket.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.socket.WriteMessage(websocket.TextMessage, payload)
}

func (c *Conn) Close() error {
	return c.socket.Close()
}
