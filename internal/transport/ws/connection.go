package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"cleancity-server-go/internal/platform/errors"
)

// Connection wraps a gorilla websocket connection with write locking so the
// event fan-out can push frames from multiple goroutines.
type Connection struct {
	id         string
	sessionID  string
	socket     *websocket.Conn
	mu         sync.Mutex
	closed     atomic.Bool
	lastActive atomic.Int64
}

// NewConnection creates a tracked websocket connection bound to a reporting
// session.
func NewConnection(id, sessionID string, socket *websocket.Conn) *Connection {
	conn := &Connection{
		id:        id,
		sessionID: sessionID,
		socket:    socket,
	}
	conn.touch()
	return conn
}

// WriteMessage sends a frame to the client.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return errors.New(errors.KindTransport, "ws.write", "connection already closed")
	}
	if err := c.socket.WriteMessage(messageType, data); err != nil {
		return err
	}
	c.touch()
	return nil
}

// Close terminates the underlying websocket connection.
func (c *Connection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.socket.Close()
}

// ID returns the connection identifier.
func (c *Connection) ID() string {
	return c.id
}

// SessionID returns the reporting session this connection observes.
func (c *Connection) SessionID() string {
	return c.sessionID
}

// IsClosed reports whether the connection has already been closed.
func (c *Connection) IsClosed() bool {
	return c.closed.Load()
}

// LastActive exposes when the connection last carried traffic.
func (c *Connection) LastActive() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

func (c *Connection) touch() {
	c.lastActive.Store(time.Now().UnixNano())
}
