package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"warecollabgo/internal/collab"
)

// frameWriter is the write side of a connection; the hub fans out
// through it so tests can swap the transport.
type frameWriter interface {
	write(data []byte) error
	writeJSON(v any) error
	ping() error
}

// clientConn serializes writes on one websocket; gorilla allows a single
// concurrent writer only.
type clientConn struct {
	rawConn *websocket.Conn
	mu      sync.Mutex
}

func (c *clientConn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.rawConn.WriteMessage(websocket.TextMessage, data)
}

func (c *clientConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.rawConn.WriteJSON(v)
}

func (c *clientConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.rawConn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Client is one registered connection: transport plus the verified
// identity and per-connection ephemeral state.
type Client struct {
	ID       string
	Identity collab.Identity

	raw  *websocket.Conn // read side, owned by the server's reader loop
	conn frameWriter

	mu         sync.Mutex
	rooms      map[string]struct{}
	lastActive time.Time
}

func newClient(id string, ident collab.Identity, raw *websocket.Conn) *Client {
	return &Client{
		ID:         id,
		Identity:   ident,
		raw:        raw,
		conn:       &clientConn{rawConn: raw},
		rooms:      make(map[string]struct{}),
		lastActive: time.Now(),
	}
}

// Session is the caller handle passed into the coordinator.
func (c *Client) Session() collab.Session {
	return collab.Session{ConnID: c.ID, Identity: c.Identity}
}

func (c *Client) touch() {
	c.mu.Lock()
	c.lastActive = time.Now()
	c.mu.Unlock()
}

func (c *Client) joinRoom(roomID string) {
	c.mu.Lock()
	c.rooms[roomID] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) leaveRoom(roomID string) {
	c.mu.Lock()
	delete(c.rooms, roomID)
	c.mu.Unlock()
}

// roomList snapshots the connection's memberships.
func (c *Client) roomList() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		out = append(out, id)
	}
	return out
}
