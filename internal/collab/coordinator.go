package collab

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// Mirror writes are a crash-recovery hint, not a transaction
	// participant; they get a short leash and their failures are logged.
	mirrorTimeout = 3 * time.Second

	// A mirrored lock older than 2x the disconnect timeout is a leftover
	// from a dead coordinator and is cleared instead of seeded.
	seedStaleFactor = 2

	// An in-memory lock older than 6x the disconnect timeout belongs to a
	// connection that vanished without a disconnect event.
	sweepStaleFactor = 6
)

// MirroredLock is the lock subset persisted on an entity row.
type MirroredLock struct {
	UserID   string
	LockedAt time.Time
}

// MirrorStore is the persistence surface on the external entity store.
// Reads seed a room's lock on first join; writes are best-effort.
type MirrorStore interface {
	LockState(ctx context.Context, rt RoomType, entityID string) (*MirroredLock, error)
	SaveLock(ctx context.Context, rt RoomType, entityID, userID string, at time.Time) error
	ClearLock(ctx context.Context, rt RoomType, entityID string) error
	SaveViewers(ctx context.Context, rt RoomType, entityID string, viewers []Viewer) error
}

// Broadcaster fans envelopes out to connections. exceptConnID may be empty
// to reach every member of the room.
type Broadcaster interface {
	Room(roomID string, env Envelope, exceptConnID string)
	All(env Envelope)
}

// Options configures the two coordinator timers.
type Options struct {
	DisconnectTimeout time.Duration
	HeartbeatInterval time.Duration
}

// pendingCleanup is a disconnect-grace unit of work: the rooms a dropped
// connection still has effects in, and the timer that will clean them up.
type pendingCleanup struct {
	userID string
	connID string
	rooms  map[string]struct{}
	timer  *time.Timer
}

// Coordinator is the single in-memory authority over room presence, locks
// and progress. All mutation happens under one mutex, so events within a
// room are delivered in the order their requests were processed.
type Coordinator struct {
	mirror            MirrorStore
	bcast             Broadcaster
	disconnectTimeout time.Duration
	heartbeatInterval time.Duration

	mu      sync.Mutex
	rooms   map[string]*roomState
	pending map[string]*pendingCleanup // conn id -> grace cleanup
}

func New(mirror MirrorStore, bcast Broadcaster, opts Options) (*Coordinator, error) {
	if opts.DisconnectTimeout <= 0 {
		return nil, errors.New("disconnect timeout must be positive")
	}
	if opts.HeartbeatInterval <= 0 {
		return nil, errors.New("heartbeat interval must be positive")
	}
	return &Coordinator{
		mirror:            mirror,
		bcast:             bcast,
		disconnectTimeout: opts.DisconnectTimeout,
		heartbeatInterval: opts.HeartbeatInterval,
		rooms:             make(map[string]*roomState),
		pending:           make(map[string]*pendingCleanup),
	}, nil
}

// Start runs the heartbeat sweeper until ctx is cancelled. Cancellation
// also disarms every pending grace timer.
func (c *Coordinator) Start(ctx context.Context) {
	tk := time.NewTicker(c.heartbeatInterval)
	go func() {
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				c.disarmAll()
				return
			case <-tk.C:
				c.sweepStaleLocks()
			}
		}
	}()
}

// ---------------------------------------------------------------------------
//  Presence
// ---------------------------------------------------------------------------

// Join makes sess a viewer of the room, creating it on first join, and
// returns the full room snapshot so the caller sees existing
// viewers/lock/progress immediately. Other members get viewer_joined.
func (c *Coordinator) Join(ctx context.Context, sess Session, rt RoomType, entityID string) (*RoomSnapshot, error) {
	roomID := RoomID(rt, entityID)

	c.mu.Lock()
	defer c.mu.Unlock()

	// The user is back; stop any pending disconnect cleanup for this room.
	c.cancelPendingLocked(sess.UserID, roomID)

	room, ok := c.rooms[roomID]
	if !ok {
		room = &roomState{
			roomType: rt,
			entityID: entityID,
			viewers:  make(map[string]*Viewer),
			lock:     c.seedLock(ctx, rt, entityID),
		}
		c.rooms[roomID] = room
	}

	viewer := &Viewer{
		UserID:     sess.UserID,
		UserName:   sess.UserName,
		UserAvatar: sess.UserAvatar,
		ConnID:     sess.ConnID,
		JoinedAt:   time.Now().UTC(),
	}
	// Replace-by-user-id: a second tab takes over the presence entry.
	room.viewers[sess.UserID] = viewer

	c.persistViewers(rt, entityID, room.viewerList())
	c.bcast.Room(roomID, NewEnvelope(EventViewerJoined, ViewerEventBody{
		RoomID: roomID,
		Viewer: *viewer,
	}), sess.ConnID)

	return room.snapshot(), nil
}

// Leave removes sess's presence from the room, releasing its lock if it
// held one. Removal is by connection id: if another tab of the same user
// already took the presence entry over, this is a no-op.
func (c *Coordinator) Leave(ctx context.Context, sess Session, rt RoomType, entityID string) error {
	roomID := RoomID(rt, entityID)

	c.mu.Lock()
	defer c.mu.Unlock()

	room, ok := c.rooms[roomID]
	if !ok {
		return nil
	}
	c.removeViewerLocked(room, roomID, sess.UserID, sess.ConnID)
	return nil
}

// removeViewerLocked is the shared leave path used by explicit leaves and
// fired grace timers. Caller holds c.mu.
func (c *Coordinator) removeViewerLocked(room *roomState, roomID, userID, connID string) {
	v, ok := room.viewers[userID]
	if !ok || v.ConnID != connID {
		return
	}
	delete(room.viewers, userID)

	if room.lock != nil && room.lock.UserID == userID {
		c.clearLockLocked(room, roomID, EventLockReleased, "")
	}

	c.persistViewers(room.roomType, room.entityID, room.viewerList())
	c.bcast.Room(roomID, NewEnvelope(EventViewerLeft, ViewerEventBody{
		RoomID: roomID,
		Viewer: *v,
	}), "")

	if len(room.viewers) == 0 {
		delete(c.rooms, roomID)
	}
}

// ---------------------------------------------------------------------------
//  Locks
// ---------------------------------------------------------------------------

// LockResult is the caller-facing outcome of a lock request.
type LockResult struct {
	Acquired bool
	Lock     *LockInfo
	Denied   *LockDeniedBody
}

// RequestLock applies the contention rules and, on a fresh grant,
// broadcasts lock_acquired to the whole room (requester included). An
// idempotent re-acquire replies with the unchanged LockInfo and emits
// nothing.
func (c *Coordinator) RequestLock(ctx context.Context, sess Session, rt RoomType, entityID string, lt LockType) (*LockResult, error) {
	roomID := RoomID(rt, entityID)

	c.mu.Lock()
	defer c.mu.Unlock()

	room, ok := c.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}

	switch outcome := resolveLockRequest(room.lock, sess.UserID, lt); outcome {
	case lockAlreadyHeld:
		held := *room.lock
		return &LockResult{Acquired: true, Lock: &held}, nil

	case lockDeniedEditing, lockDeniedViewing:
		holder := *room.lock
		reason := deniedReason(outcome, rt, &holder)
		return &LockResult{Denied: &LockDeniedBody{
			RoomID: roomID,
			Reason: reason,
			Holder: &holder,
		}}, nil
	}

	lock := &LockInfo{
		UserID:     sess.UserID,
		UserName:   sess.UserName,
		UserAvatar: sess.UserAvatar,
		LockType:   lt,
		AcquiredAt: time.Now().UTC(),
	}
	room.lock = lock
	c.persistLock(rt, entityID, lock.UserID, lock.AcquiredAt)
	c.bcast.Room(roomID, NewEnvelope(EventLockAcquired, LockEventBody{
		RoomID: roomID,
		Lock:   lock,
	}), "")

	granted := *lock
	return &LockResult{Acquired: true, Lock: &granted}, nil
}

// ReleaseLock clears the room's lock if sess holds it.
func (c *Coordinator) ReleaseLock(ctx context.Context, sess Session, rt RoomType, entityID string) error {
	roomID := RoomID(rt, entityID)

	c.mu.Lock()
	defer c.mu.Unlock()

	room, ok := c.rooms[roomID]
	if !ok || room.lock == nil || room.lock.UserID != sess.UserID {
		return ErrLockNotOwned
	}
	c.clearLockLocked(room, roomID, EventLockReleased, "")
	return nil
}

// clearLockLocked drops a room's lock, clears the mirror and broadcasts
// the given event. Caller holds c.mu.
func (c *Coordinator) clearLockLocked(room *roomState, roomID, event, reason string) {
	released := *room.lock
	room.lock = nil
	c.clearMirrorLock(room.roomType, room.entityID)
	c.bcast.Room(roomID, NewEnvelope(event, LockEventBody{
		RoomID: roomID,
		UserID: released.UserID,
		Reason: reason,
	}), "")
}

// ---------------------------------------------------------------------------
//  Progress
// ---------------------------------------------------------------------------

// UpdateProgress merges the patch onto the room's progress, stamps the
// last action with the caller and relays it to the other members. The
// caller gets the merged value back and no broadcast copy.
func (c *Coordinator) UpdateProgress(ctx context.Context, sess Session, rt RoomType, entityID string, patch ProgressPatch) (*Progress, error) {
	roomID := RoomID(rt, entityID)

	c.mu.Lock()
	defer c.mu.Unlock()

	room, ok := c.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}

	if room.progress == nil {
		room.progress = &Progress{}
	}
	p := room.progress
	if patch.Scanned != nil {
		p.Scanned = *patch.Scanned
	}
	if patch.Total != nil {
		p.Total = *patch.Total
	}
	if patch.CurrentItem != nil {
		p.CurrentItem = *patch.CurrentItem
	}
	actionType := patch.Action
	if actionType == "" {
		actionType = "update"
	}
	p.LastAction = &ProgressAction{
		Type:       actionType,
		At:         time.Now().UTC(),
		UserID:     sess.UserID,
		UserName:   sess.UserName,
		UserAvatar: sess.UserAvatar,
	}

	c.bcast.Room(roomID, NewEnvelope(EventProgressUpdated, ProgressEventBody{
		RoomID:   roomID,
		Progress: p,
	}), sess.ConnID)

	merged := *p
	return &merged, nil
}

// ---------------------------------------------------------------------------
//  Disconnect grace & heartbeat sweep
// ---------------------------------------------------------------------------

// Disconnected arms the grace timer for a dropped connection. roomIDs are
// the rooms the connection was a member of; if the user rejoins one of
// them before the timer fires, that room is pulled out of the cleanup.
func (c *Coordinator) Disconnected(sess Session, roomIDs []string) {
	if len(roomIDs) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &pendingCleanup{
		userID: sess.UserID,
		connID: sess.ConnID,
		rooms:  make(map[string]struct{}, len(roomIDs)),
	}
	for _, id := range roomIDs {
		entry.rooms[id] = struct{}{}
	}
	entry.timer = time.AfterFunc(c.disconnectTimeout, func() {
		c.graceExpired(sess.ConnID)
	})
	c.pending[sess.ConnID] = entry
}

// cancelPendingLocked removes roomID from any pending cleanup of the same
// user, disarming the timer when nothing remains. Caller holds c.mu.
func (c *Coordinator) cancelPendingLocked(userID, roomID string) {
	for connID, entry := range c.pending {
		if entry.userID != userID {
			continue
		}
		delete(entry.rooms, roomID)
		if len(entry.rooms) == 0 {
			entry.timer.Stop()
			delete(c.pending, connID)
		}
	}
}

// graceExpired processes each still-pending room as an ordinary leave.
// Rooms where the user already rejoined on a new connection are untouched
// because the presence entry no longer carries the dead conn id.
func (c *Coordinator) graceExpired(connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.pending[connID]
	if !ok {
		return
	}
	delete(c.pending, connID)

	for roomID := range entry.rooms {
		room, ok := c.rooms[roomID]
		if !ok {
			continue
		}
		c.removeViewerLocked(room, roomID, entry.userID, entry.connID)
	}
}

// sweepStaleLocks force-releases locks whose holder vanished without a
// disconnect event. The grace-timer path alone cannot catch a process
// kill or a network partition.
func (c *Coordinator) sweepStaleLocks() {
	cutoff := time.Now().Add(-time.Duration(sweepStaleFactor) * c.disconnectTimeout)

	c.mu.Lock()
	defer c.mu.Unlock()

	for roomID, room := range c.rooms {
		if room.lock == nil || !room.lock.AcquiredAt.Before(cutoff) {
			continue
		}
		zap.L().Info("collab.force_unlock",
			zap.String("room", roomID),
			zap.String("holder", room.lock.UserID),
		)
		c.clearLockLocked(room, roomID, EventForceUnlock, "expired due to inactivity")
	}
}

func (c *Coordinator) disarmAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for connID, entry := range c.pending {
		entry.timer.Stop()
		delete(c.pending, connID)
	}
}

// ---------------------------------------------------------------------------
//  Lock policy
// ---------------------------------------------------------------------------

type lockOutcome int

const (
	lockGrant lockOutcome = iota
	lockAlreadyHeld
	lockDeniedEditing
	lockDeniedViewing
)

// resolveLockRequest is the single place the contention rules live.
// Note the final case: a view lock requested over an existing view lock
// is granted and transfers ownership to the latest requester. Making
// view locks genuinely multi-holder only needs a change here.
func resolveLockRequest(existing *LockInfo, userID string, requested LockType) lockOutcome {
	switch {
	case existing == nil:
		return lockGrant
	case existing.UserID == userID:
		return lockAlreadyHeld
	case existing.LockType == LockTypeEdit:
		return lockDeniedEditing
	case requested == LockTypeEdit:
		return lockDeniedViewing
	}
	return lockGrant
}

func deniedReason(outcome lockOutcome, rt RoomType, holder *LockInfo) string {
	if outcome == lockDeniedEditing {
		return fmt.Sprintf("This %s is currently being edited by %s", rt, holder.UserName)
	}
	return fmt.Sprintf("This %s is being viewed by %s; they must release it before anyone can edit", rt, holder.UserName)
}

// ---------------------------------------------------------------------------
//  Mirror side effects
// ---------------------------------------------------------------------------

// seedLock consults the persistent mirror when a room is first created.
// A fresh enough mirrored lock survives the restart; a stale one is
// cleared in the store. Caller holds c.mu.
func (c *Coordinator) seedLock(ctx context.Context, rt RoomType, entityID string) *LockInfo {
	ml, err := c.mirror.LockState(ctx, rt, entityID)
	if err != nil {
		zap.L().Warn("collab.mirror_seed", zap.Error(err))
		return nil
	}
	if ml == nil || ml.UserID == "" {
		return nil
	}
	if time.Since(ml.LockedAt) >= time.Duration(seedStaleFactor)*c.disconnectTimeout {
		c.clearMirrorLock(rt, entityID)
		return nil
	}
	// The mirror only records who and when; seed the most restrictive
	// type so a surviving lock still excludes other editors.
	return &LockInfo{
		UserID:     ml.UserID,
		UserName:   ml.UserID,
		LockType:   LockTypeEdit,
		AcquiredAt: ml.LockedAt,
	}
}

func (c *Coordinator) persistViewers(rt RoomType, entityID string, viewers []Viewer) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := c.mirror.SaveViewers(ctx, rt, entityID, viewers); err != nil {
			zap.L().Warn("collab.mirror_viewers",
				zap.String("entity", entityID), zap.Error(err))
		}
	}()
}

func (c *Coordinator) persistLock(rt RoomType, entityID, userID string, at time.Time) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := c.mirror.SaveLock(ctx, rt, entityID, userID, at); err != nil {
			zap.L().Warn("collab.mirror_lock",
				zap.String("entity", entityID), zap.Error(err))
		}
	}()
}

func (c *Coordinator) clearMirrorLock(rt RoomType, entityID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := c.mirror.ClearLock(ctx, rt, entityID); err != nil {
			zap.L().Warn("collab.mirror_clear",
				zap.String("entity", entityID), zap.Error(err))
		}
	}()
}
