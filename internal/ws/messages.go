package ws

import "warecollabgo/internal/collab"

// Inbound event names.
const (
	eventJoinRoom        = "join_room"
	eventLeaveRoom       = "leave_room"
	eventRequestLock     = "request_lock"
	eventReleaseLock     = "release_lock"
	eventUpdateProgress  = "update_progress"
	eventBroadcastAction = "broadcast_action"
	eventPing            = "ping"
)

// RoomRequest is the body for join_room, leave_room and release_lock.
type RoomRequest struct {
	RoomType string `json:"room_type"`
	EntityID string `json:"entity_id"`
}

// LockRequest is the body for request_lock.
type LockRequest struct {
	RoomType string `json:"room_type"`
	EntityID string `json:"entity_id"`
	LockType string `json:"lock_type"`
}

// ProgressRequest is the body for update_progress; the patch fields that
// are absent leave the stored progress untouched.
type ProgressRequest struct {
	RoomType string               `json:"room_type"`
	EntityID string               `json:"entity_id"`
	Progress collab.ProgressPatch `json:"progress"`
}

// BroadcastActionRequest is the body for broadcast_action.
type BroadcastActionRequest struct {
	ActionType string         `json:"action_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	Message    string         `json:"message"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// AckBody is the empty success reply for events without a richer answer.
type AckBody struct{}
