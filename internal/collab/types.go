package collab

import (
	"time"
)

// RoomType selects which kind of business record a room collaborates on.
type RoomType string

const (
	RoomTypeOrder    RoomType = "order"
	RoomTypeShipment RoomType = "shipment"
)

// ParseRoomType validates a wire value.
func ParseRoomType(s string) (RoomType, error) {
	switch RoomType(s) {
	case RoomTypeOrder, RoomTypeShipment:
		return RoomType(s), nil
	}
	return "", ErrInvalidRoomType
}

// RoomID builds the canonical "order:123" style key.
func RoomID(rt RoomType, entityID string) string {
	return string(rt) + ":" + entityID
}

// LockType is either a passive "view" hold or an exclusive "edit" hold.
type LockType string

const (
	LockTypeView LockType = "view"
	LockTypeEdit LockType = "edit"
)

func ParseLockType(s string) (LockType, error) {
	switch LockType(s) {
	case LockTypeView, LockTypeEdit:
		return LockType(s), nil
	}
	return "", ErrInvalidLockType
}

// Identity is the verified user behind a connection, attached at handshake.
type Identity struct {
	UserID     string `json:"user_id"`
	UserName   string `json:"user_name"`
	UserAvatar string `json:"user_avatar,omitempty"`
}

// Session pairs an identity with one physical connection. The conn id
// changes on every reconnect; the user id does not.
type Session struct {
	ConnID string
	Identity
}

// Viewer is one user's presence inside a room. Keyed by user id: a second
// tab from the same user replaces the conn id instead of adding an entry.
type Viewer struct {
	UserID     string    `json:"user_id"`
	UserName   string    `json:"user_name"`
	UserAvatar string    `json:"user_avatar,omitempty"`
	ConnID     string    `json:"conn_id"`
	JoinedAt   time.Time `json:"joined_at"`
}

// LockInfo is the single mutual-exclusion token a room may carry.
type LockInfo struct {
	UserID     string    `json:"user_id"`
	UserName   string    `json:"user_name"`
	UserAvatar string    `json:"user_avatar,omitempty"`
	LockType   LockType  `json:"lock_type"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// ProgressAction records who last touched a room's fulfillment progress.
type ProgressAction struct {
	Type       string    `json:"type"`
	At         time.Time `json:"at"`
	UserID     string    `json:"user_id"`
	UserName   string    `json:"user_name"`
	UserAvatar string    `json:"user_avatar,omitempty"`
}

// Progress is live pick/pack tracking for a room. It is never persisted;
// it dies with the room.
type Progress struct {
	Scanned     int             `json:"scanned"`
	Total       int             `json:"total"`
	CurrentItem string          `json:"current_item,omitempty"`
	LastAction  *ProgressAction `json:"last_action,omitempty"`
}

// ProgressPatch carries a partial update; nil fields leave the stored
// value untouched.
type ProgressPatch struct {
	Scanned     *int    `json:"scanned,omitempty"`
	Total       *int    `json:"total,omitempty"`
	CurrentItem *string `json:"current_item,omitempty"`
	Action      string  `json:"action,omitempty"`
}

// roomState is the in-memory truth for one room while anyone is present.
type roomState struct {
	roomType RoomType
	entityID string
	viewers  map[string]*Viewer // user id -> viewer
	lock     *LockInfo
	progress *Progress
}

// RoomSnapshot is the wire form of a room, sent to a joiner so late
// arrivals see existing viewers/lock/progress immediately.
type RoomSnapshot struct {
	RoomID   string    `json:"room_id"`
	RoomType RoomType  `json:"room_type"`
	EntityID string    `json:"entity_id"`
	Viewers  []Viewer  `json:"viewers"`
	Lock     *LockInfo `json:"lock,omitempty"`
	Progress *Progress `json:"progress,omitempty"`
}

func (r *roomState) snapshot() *RoomSnapshot {
	snap := &RoomSnapshot{
		RoomID:   RoomID(r.roomType, r.entityID),
		RoomType: r.roomType,
		EntityID: r.entityID,
		Viewers:  make([]Viewer, 0, len(r.viewers)),
	}
	for _, v := range r.viewers {
		snap.Viewers = append(snap.Viewers, *v)
	}
	if r.lock != nil {
		l := *r.lock
		snap.Lock = &l
	}
	if r.progress != nil {
		p := *r.progress
		snap.Progress = &p
	}
	return snap
}

// viewerList copies the current viewer set for the persistence mirror.
func (r *roomState) viewerList() []Viewer {
	out := make([]Viewer, 0, len(r.viewers))
	for _, v := range r.viewers {
		out = append(out, *v)
	}
	return out
}
