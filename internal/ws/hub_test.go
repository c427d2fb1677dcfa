package ws

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warecollabgo/internal/collab"
)

type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
}

func (f *fakeConn) write(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, data)
	return nil
}

func (f *fakeConn) writeJSON(v any) error { return nil }
func (f *fakeConn) ping() error           { return nil }

func (f *fakeConn) frameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func testClient(connID, userID string, fc *fakeConn) *Client {
	return &Client{
		ID:       connID,
		Identity: collab.Identity{UserID: userID, UserName: userID},
		conn:     fc,
		rooms:    make(map[string]struct{}),
	}
}

func env(event string) collab.Envelope {
	return collab.NewEnvelope(event, map[string]string{"k": "v"})
}

func TestHubRoomBroadcast(t *testing.T) {
	tests := []struct {
		name       string
		roomID     string
		except     string
		wantFrames map[string]int
	}{
		{
			name:       "all members receive",
			roomID:     "order:1",
			wantFrames: map[string]int{"c1": 1, "c2": 1, "c3": 0},
		},
		{
			name:       "sender excluded",
			roomID:     "order:1",
			except:     "c1",
			wantFrames: map[string]int{"c1": 0, "c2": 1, "c3": 0},
		},
		{
			name:       "no cross-room delivery",
			roomID:     "order:2",
			wantFrames: map[string]int{"c1": 0, "c2": 0, "c3": 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHub()
			conns := map[string]*fakeConn{}
			for connID, userID := range map[string]string{"c1": "alice", "c2": "bob", "c3": "carol"} {
				fc := &fakeConn{}
				conns[connID] = fc
				h.Add(testClient(connID, userID, fc))
			}
			h.JoinRoom("c1", "order:1")
			h.JoinRoom("c2", "order:1")
			h.JoinRoom("c3", "order:2")

			h.Room(tt.roomID, env("viewer_joined"), tt.except)

			for connID, want := range tt.wantFrames {
				assert.Equal(t, want, conns[connID].frameCount(), "conn %s", connID)
			}
		})
	}
}

func TestHubAll(t *testing.T) {
	h := NewHub()
	fc1, fc2 := &fakeConn{}, &fakeConn{}
	h.Add(testClient("c1", "alice", fc1))
	h.Add(testClient("c2", "bob", fc2))

	h.All(env("global_notification"))

	assert.Equal(t, 1, fc1.frameCount())
	assert.Equal(t, 1, fc2.frameCount())
}

func TestHubUserChannel(t *testing.T) {
	h := NewHub()
	fc1, fc2, fc3 := &fakeConn{}, &fakeConn{}, &fakeConn{}
	// two connections for alice (two tabs), one for bob
	h.Add(testClient("c1", "alice", fc1))
	h.Add(testClient("c2", "alice", fc2))
	h.Add(testClient("c3", "bob", fc3))

	h.User("alice", env("global_notification"))

	assert.Equal(t, 1, fc1.frameCount())
	assert.Equal(t, 1, fc2.frameCount())
	assert.Equal(t, 0, fc3.frameCount())
}

func TestHubRemoveReturnsMemberships(t *testing.T) {
	h := NewHub()
	h.Add(testClient("c1", "alice", &fakeConn{}))
	h.JoinRoom("c1", "order:1")
	h.JoinRoom("c1", "shipment:2")

	memberships := h.Remove("c1")
	assert.ElementsMatch(t, []string{"order:1", "shipment:2"}, memberships)

	// the private user channel never shows up as a membership
	assert.Nil(t, h.Remove("c1"))

	rooms, clients := h.Stats()
	assert.Equal(t, 0, rooms)
	assert.Equal(t, 0, clients)
}

func TestHubStatsExcludesUserChannels(t *testing.T) {
	h := NewHub()
	h.Add(testClient("c1", "alice", &fakeConn{}))
	h.Add(testClient("c2", "bob", &fakeConn{}))
	h.JoinRoom("c1", "order:1")

	rooms, clients := h.Stats()
	assert.Equal(t, 1, rooms)
	assert.Equal(t, 2, clients)
}

func TestHubLeaveRoomCollectsEmptySet(t *testing.T) {
	h := NewHub()
	h.Add(testClient("c1", "alice", &fakeConn{}))
	h.JoinRoom("c1", "order:1")
	h.LeaveRoom("c1", "order:1")

	require.NotContains(t, h.rooms, "order:1")
}
