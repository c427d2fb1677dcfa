package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"warecollabgo/internal/collab"
)

// Channel layout. Global announcements and room-scoped entity updates
// travel through Redis so that business modules in other processes can
// announce without touching the coordinator's room state.
const (
	globalChannel     = "collab:global"
	roomChannelPrefix = "collab:room:"
)

// Action is the caller-supplied part of a global announcement.
type Action struct {
	ActionType string
	EntityID   string
	Message    string
	Metadata   map[string]any
}

// Gateway publishes announcements onto the Redis fan-out channels.
type Gateway struct {
	rdb *redis.Client
}

func NewGateway(rdb *redis.Client) *Gateway { return &Gateway{rdb: rdb} }

// PublishAction announces a fire-and-forget action to every connected
// client: unique id, timestamp, actor and free-form metadata. No ack, no
// persistence.
func (g *Gateway) PublishAction(ctx context.Context, actor collab.Identity, a Action) (*collab.GlobalNotification, error) {
	n := &collab.GlobalNotification{
		ID:         uuid.NewString(),
		ActionType: a.ActionType,
		EntityID:   a.EntityID,
		Message:    a.Message,
		Metadata:   a.Metadata,
		Actor:      actor,
		At:         time.Now().UTC(),
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	if err := g.rdb.Publish(ctx, globalChannel, string(payload)).Err(); err != nil {
		return nil, err
	}
	return n, nil
}

// PublishEntityUpdate tells a room's members that the underlying record
// changed outside the collaboration session (CRUD save, import run).
func (g *Gateway) PublishEntityUpdate(ctx context.Context, rt collab.RoomType, entityID string, fields map[string]any) (*collab.EntityUpdate, error) {
	roomID := collab.RoomID(rt, entityID)
	u := &collab.EntityUpdate{
		RoomID:   roomID,
		RoomType: rt,
		EntityID: entityID,
		Fields:   fields,
		At:       time.Now().UTC(),
	}
	payload, err := json.Marshal(u)
	if err != nil {
		return nil, err
	}
	if err := g.rdb.Publish(ctx, roomChannelPrefix+roomID, string(payload)).Err(); err != nil {
		return nil, err
	}
	return u, nil
}
