package ws

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"warecollabgo/internal/collab"
)

// userChannelPrefix names the private per-user channel every connection
// joins at registration, for notifications that target a single user.
const userChannelPrefix = "user:"

// Hub is the connection registry: every live connection plus the room
// membership index used for fan-out. It implements collab.Broadcaster.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*Client            // conn id -> client
	rooms map[string]map[string]*Client // room id -> conn id -> client
}

func NewHub() *Hub {
	return &Hub{
		conns: make(map[string]*Client),
		rooms: make(map[string]map[string]*Client),
	}
}

// Add registers a connection and joins its private user channel.
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	h.conns[c.ID] = c
	h.joinLocked(userChannelPrefix+c.Identity.UserID, c)
	h.mu.Unlock()
}

// Remove drops a connection from the registry and every room, returning
// the business room ids it was a member of (the private user channel is
// not a room).
func (h *Hub) Remove(connID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.conns[connID]
	if !ok {
		return nil
	}
	delete(h.conns, connID)

	memberships := c.roomList()
	for _, roomID := range memberships {
		h.leaveLocked(roomID, c)
	}
	h.leaveLocked(userChannelPrefix+c.Identity.UserID, c)
	return memberships
}

func (h *Hub) JoinRoom(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[connID]
	if !ok {
		return
	}
	h.joinLocked(roomID, c)
	c.joinRoom(roomID)
}

func (h *Hub) LeaveRoom(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[connID]
	if !ok {
		return
	}
	h.leaveLocked(roomID, c)
	c.leaveRoom(roomID)
}

// Touch refreshes a connection's activity timestamp.
func (h *Hub) Touch(connID string) {
	h.mu.RLock()
	c, ok := h.conns[connID]
	h.mu.RUnlock()
	if ok {
		c.touch()
	}
}

func (h *Hub) joinLocked(roomID string, c *Client) {
	set, ok := h.rooms[roomID]
	if !ok {
		set = make(map[string]*Client)
		h.rooms[roomID] = set
	}
	set[c.ID] = c
}

func (h *Hub) leaveLocked(roomID string, c *Client) {
	set, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(set, c.ID)
	if len(set) == 0 {
		delete(h.rooms, roomID)
	}
}

// ---------------------------------------------------------------------------
//  collab.Broadcaster
// ---------------------------------------------------------------------------

// Room fans an envelope out to every member of a room, optionally
// skipping one connection (usually the request's sender).
func (h *Hub) Room(roomID string, env collab.Envelope, exceptConnID string) {
	h.mu.RLock()
	set := h.rooms[roomID]
	targets := make([]*Client, 0, len(set))
	for id, c := range set {
		if id == exceptConnID {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	h.send(targets, env)
}

// All fans an envelope out to every connection.
func (h *Hub) All(env collab.Envelope) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.conns))
	for _, c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	h.send(targets, env)
}

// User reaches every connection of one user via its private channel.
func (h *Hub) User(userID string, env collab.Envelope) {
	h.Room(userChannelPrefix+userID, env, "")
}

func (h *Hub) send(targets []*Client, env collab.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		zap.L().Warn("ws.marshal_envelope", zap.String("event", env.Event), zap.Error(err))
		return
	}
	for _, c := range targets {
		if err := c.conn.write(data); err != nil {
			zap.L().Debug("ws.write_failed",
				zap.String("conn", c.ID), zap.String("event", env.Event), zap.Error(err))
		}
	}
}

// Stats reports room and connection counts for the /stats endpoint.
// The private user channels are excluded from the room count.
func (h *Hub) Stats() (rooms, clients int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id := range h.rooms {
		if len(id) < len(userChannelPrefix) || id[:len(userChannelPrefix)] != userChannelPrefix {
			rooms++
		}
	}
	return rooms, len(h.conns)
}
