package collab

import (
	"encoding/json"
	"time"
)

// Outbound event names. Every frame on the wire is an Envelope tagged with
// one of these (or an inbound event from the ws router).
const (
	EventRoomState          = "room_state"
	EventViewerJoined       = "viewer_joined"
	EventViewerLeft         = "viewer_left"
	EventLockAcquired       = "lock_acquired"
	EventLockReleased       = "lock_released"
	EventLockDenied         = "lock_denied"
	EventForceUnlock        = "force_unlock"
	EventProgressUpdated    = "progress_updated"
	EventEntityUpdated      = "entity_updated"
	EventGlobalNotification = "global_notification"
	EventError              = "error"
	EventPong               = "pong"
)

// Envelope wraps every frame in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Body  json.RawMessage `json:"body,omitempty"`
}

// NewEnvelope marshals a typed body into a wire frame. Bodies are our own
// structs, so a marshal failure is a programming error; callers treat an
// empty body as such.
func NewEnvelope(event string, body any) Envelope {
	raw, err := json.Marshal(body)
	if err != nil {
		return Envelope{Event: event}
	}
	return Envelope{Event: event, Body: raw}
}

// ViewerEventBody announces a viewer joining or leaving a room.
type ViewerEventBody struct {
	RoomID string `json:"room_id"`
	Viewer Viewer `json:"viewer"`
}

// LockEventBody announces lock acquisition, release, or forced expiry.
type LockEventBody struct {
	RoomID string    `json:"room_id"`
	Lock   *LockInfo `json:"lock,omitempty"`
	UserID string    `json:"user_id,omitempty"`
	Reason string    `json:"reason,omitempty"`
}

// LockDeniedBody goes to the requester only, never broadcast.
type LockDeniedBody struct {
	RoomID string    `json:"room_id"`
	Reason string    `json:"reason"`
	Holder *LockInfo `json:"holder,omitempty"`
}

// ProgressEventBody relays a merged progress state to room members.
type ProgressEventBody struct {
	RoomID   string    `json:"room_id"`
	Progress *Progress `json:"progress"`
}

// GlobalNotification is a fire-and-forget announcement to every client,
// published by this core or by unrelated business modules.
type GlobalNotification struct {
	ID         string         `json:"id"`
	ActionType string         `json:"action_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	Message    string         `json:"message"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Actor      Identity       `json:"actor"`
	At         time.Time      `json:"at"`
}

// EntityUpdate tells a room that its underlying record changed outside
// the collaboration session (CRUD save, import, etc).
type EntityUpdate struct {
	RoomID   string         `json:"room_id"`
	RoomType RoomType       `json:"room_type"`
	EntityID string         `json:"entity_id"`
	Fields   map[string]any `json:"fields,omitempty"`
	At       time.Time      `json:"at"`
}

// ErrorBody is the payload of an "error" envelope.
type ErrorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}
