package roomstate

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestStore() *Store {
	s := NewStore()
	n := 0
	s.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return s
}

func TestStore_JoinPeer(t *testing.T) {
	s := newTestStore()

	first := s.JoinPeer("ws1", "r1", "alice", "Alice", "c-alice", t0)
	assert.Len(t, first.Peers, 1)
	assert.Nil(t, first.Previous)

	second := s.JoinPeer("ws1", "r1", "bob", "Bob", "c-bob", t0.Add(time.Second))
	require.Len(t, second.Peers, 2)
	assert.Equal(t, "alice", second.Peers[0].UserID)
	assert.Equal(t, "bob", second.Peers[1].UserID)
	assert.Equal(t, RoomKey("ws1", "r1"), second.RoomKey)

	m, ok := s.GetMembershipByConnection("c-bob")
	require.True(t, ok)
	assert.Equal(t, Membership{RoomKey: "ws1:r1", WorkspaceID: "ws1", RoomID: "r1", UserID: "bob"}, m)
}

func TestStore_RejoinSameUserOverwrites(t *testing.T) {
	s := newTestStore()
	s.JoinPeer("ws1", "r1", "alice", "Alice", "c1", t0)
	res := s.JoinPeer("ws1", "r1", "alice", "Alice (laptop)", "c2", t0.Add(time.Second))

	require.Len(t, res.Peers, 1)
	assert.Equal(t, "c2", res.Peers[0].ConnectionID)
	assert.Equal(t, "Alice (laptop)", res.Peers[0].DisplayName)
	assert.Equal(t, "c1", res.ReplacedConnectionID)

	_, ok := s.GetMembershipByConnection("c1")
	assert.False(t, ok, "replaced connection must be unbound")
	assert.Nil(t, s.LeaveByConnection("c1"))
	assert.Len(t, s.GetPeers("ws1", "r1"), 1)
}

func TestStore_JoinAnotherRoomLeavesPrevious(t *testing.T) {
	s := newTestStore()
	s.JoinPeer("ws1", "r1", "alice", "Alice", "c1", t0)
	res := s.JoinPeer("ws1", "r2", "alice", "Alice", "c1", t0)

	require.NotNil(t, res.Previous)
	assert.Equal(t, "r1", res.Previous.RoomID)
	assert.True(t, res.Previous.RoomDeleted)
	assert.Empty(t, s.GetPeers("ws1", "r1"))

	rooms := s.GetAllRooms("ws1")
	require.Len(t, rooms, 1)
	assert.Equal(t, "r2", rooms[0].RoomID)
}

func TestStore_LeaveByConnection(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(*Store)
		conn        string
		wantNil     bool
		wantDeleted bool
		wantCleared bool
		wantRemoved []string
	}{
		{
			name:    "unknown connection is a no-op",
			setup:   func(s *Store) {},
			conn:    "nope",
			wantNil: true,
		},
		{
			name: "last peer deletes room",
			setup: func(s *Store) {
				s.JoinPeer("ws1", "r1", "alice", "Alice", "c-alice", t0)
			},
			conn:        "c-alice",
			wantDeleted: true,
		},
		{
			name: "screen sharer leaving clears share",
			setup: func(s *Store) {
				s.JoinPeer("ws1", "r1", "alice", "Alice", "c-alice", t0)
				s.JoinPeer("ws1", "r1", "bob", "Bob", "c-bob", t0)
				_, err := s.StartScreenShare("c-alice")
				require.NoError(t, err)
			},
			conn:        "c-alice",
			wantCleared: true,
		},
		{
			name: "crosstalk below two participants is removed",
			setup: func(s *Store) {
				s.JoinPeer("ws1", "r1", "alice", "Alice", "c-alice", t0)
				s.JoinPeer("ws1", "r1", "bob", "Bob", "c-bob", t0)
				_, err := s.StartCrosstalk("c-alice", []string{"bob"})
				require.NoError(t, err)
			},
			conn:        "c-bob",
			wantRemoved: []string{"id-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore()
			tt.setup(s)

			res := s.LeaveByConnection(tt.conn)
			if tt.wantNil {
				assert.Nil(t, res)
				return
			}
			require.NotNil(t, res)
			assert.Equal(t, tt.wantDeleted, res.RoomDeleted)
			assert.Equal(t, tt.wantCleared, res.ScreenShareCleared)
			assert.Equal(t, tt.wantRemoved, res.RemovedCrosstalkIDs)
			if tt.wantCleared {
				_, ok := s.GetActiveScreenSharer("ws1", "r1")
				assert.False(t, ok)
			}
		})
	}
}

func TestStore_UpdateHeartbeatAndPrune(t *testing.T) {
	s := newTestStore()
	s.JoinPeer("ws1", "r1", "alice", "Alice", "c-alice", t0)
	s.JoinPeer("ws1", "r1", "bob", "Bob", "c-bob", t0)
	_, err := s.StartScreenShare("c-bob")
	require.NoError(t, err)

	assert.False(t, s.UpdateHeartbeat("nope", t0))
	assert.True(t, s.UpdateHeartbeat("c-alice", t0.Add(20*time.Second)))

	evicted := s.PruneInactivePeers(15*time.Second, t0.Add(25*time.Second))
	require.Len(t, evicted, 1)
	assert.Equal(t, "bob", evicted[0].UserID)
	assert.Equal(t, "c-bob", evicted[0].ConnectionID)
	assert.True(t, evicted[0].ScreenShareCleared)

	peers := s.GetPeers("ws1", "r1")
	require.Len(t, peers, 1)
	assert.Equal(t, "alice", peers[0].UserID)

	evicted = s.PruneInactivePeers(15*time.Second, t0.Add(time.Minute))
	require.Len(t, evicted, 1)
	assert.True(t, evicted[0].RoomDeleted)
	rooms, peerCount := s.Stats()
	assert.Zero(t, rooms)
	assert.Zero(t, peerCount)
}

func TestStore_PruneKeepsPeersAtExactMaxAge(t *testing.T) {
	s := newTestStore()
	s.JoinPeer("ws1", "r1", "alice", "Alice", "c-alice", t0)

	assert.Empty(t, s.PruneInactivePeers(10*time.Second, t0.Add(10*time.Second)))
	assert.Len(t, s.PruneInactivePeers(10*time.Second, t0.Add(10*time.Second+time.Millisecond)), 1)
}

func TestStore_ScreenShare(t *testing.T) {
	s := newTestStore()

	_, err := s.StartScreenShare("c-alice")
	assert.ErrorIs(t, err, ErrNotInRoom)

	s.JoinPeer("ws1", "r1", "alice", "Alice", "c-alice", t0)
	s.JoinPeer("ws1", "r1", "bob", "Bob", "c-bob", t0)

	_, err = s.StopScreenShare("c-alice")
	assert.ErrorIs(t, err, ErrNotActiveScreenSharer)

	res, err := s.StartScreenShare("c-alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", res.UserID)

	_, err = s.StartScreenShare("c-alice")
	assert.NoError(t, err, "holder may start again")

	_, err = s.StartScreenShare("c-bob")
	assert.ErrorIs(t, err, ErrScreenShareActive)

	_, err = s.StopScreenShare("c-bob")
	assert.ErrorIs(t, err, ErrNotActiveScreenSharer)

	_, err = s.StopScreenShare("c-alice")
	require.NoError(t, err)

	_, err = s.StartScreenShare("c-bob")
	assert.NoError(t, err)
	sharer, ok := s.GetActiveScreenSharer("ws1", "r1")
	require.True(t, ok)
	assert.Equal(t, "bob", sharer)
}

func TestStore_ReadAccessors(t *testing.T) {
	s := newTestStore()
	s.JoinPeer("ws1", "r1", "alice", "Alice", "c-alice", t0)
	s.JoinPeer("ws1", "r1", "bob", "Bob", "c-bob", t0)
	s.JoinPeer("ws2", "r9", "carol", "Carol", "c-carol", t0)
	qt := s.CreateQuickTalkRoom()
	s.JoinPeer("ws1", qt, "dave", "Dave", "c-dave", t0)

	all := s.GetAllRooms("")
	assert.Len(t, all, 3)

	ws1 := s.GetAllRooms("ws1")
	require.Len(t, ws1, 2)
	assert.Equal(t, "r1", ws1[1].RoomID)
	assert.Equal(t, 2, ws1[1].PeerCount)
	assert.True(t, ws1[0].QuickTalk)

	details, ok := s.GetRoomDetails("ws1", "r1")
	require.True(t, ok)
	assert.Len(t, details.Peers, 2)
	assert.Empty(t, details.Crosstalks)

	_, ok = s.GetRoomDetails("ws1", "missing")
	assert.False(t, ok)

	conn, ok := s.FindConnection("ws1", "r1", "bob")
	require.True(t, ok)
	assert.Equal(t, "c-bob", conn)
	_, ok = s.FindConnection("ws2", "r1", "bob")
	assert.False(t, ok)
}

func TestQuickTalkRoomIDs(t *testing.T) {
	s := NewStore()
	a := s.CreateQuickTalkRoom()
	b := s.CreateQuickTalkRoom()

	assert.NotEqual(t, a, b)
	assert.True(t, IsQuickTalkRoom(a))
	assert.False(t, IsQuickTalkRoom("standup"))
}
