package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

func entry(conn, ws, user string) UserPresence {
	return UserPresence{ConnectionID: conn, WorkspaceID: ws, UserID: user, DisplayName: user, LastSeen: t0}
}

func TestStore_SetAndLookup(t *testing.T) {
	s := NewStore()
	got := s.SetPresence(entry("c1", "ws1", "alice"))
	assert.Equal(t, StatusAvailable, got.Status)

	s.SetPresence(entry("c2", "ws1", "bob"))
	s.SetPresence(entry("c3", "ws2", "carol"))

	assert.Len(t, s.GetAll("ws1"), 2)
	assert.Len(t, s.GetAll("ws2"), 1)
	assert.Empty(t, s.GetAll("ws3"))

	p, ok := s.FindByUserID("ws1", "bob")
	require.True(t, ok)
	assert.Equal(t, "c2", p.ConnectionID)

	_, ok = s.FindByUserID("ws2", "bob")
	assert.False(t, ok)

	p, ok = s.GetBySocket("c3")
	require.True(t, ok)
	assert.Equal(t, "carol", p.UserID)
}

func TestStore_MultipleConnectionsPerUser(t *testing.T) {
	s := NewStore()
	s.SetPresence(entry("c1", "ws1", "alice"))
	s.SetPresence(entry("c2", "ws1", "alice"))

	assert.Equal(t, []string{"c1", "c2"}, s.ConnectionsOf("ws1", "alice"))

	_, ok := s.RemoveByConnection("c1")
	require.True(t, ok)
	p, ok := s.FindByUserID("ws1", "alice")
	require.True(t, ok)
	assert.Equal(t, "c2", p.ConnectionID)

	_, ok = s.RemoveByConnection("c1")
	assert.False(t, ok)
}

func TestStore_SetPresenceMovesWorkspace(t *testing.T) {
	s := NewStore()
	s.SetPresence(entry("c1", "ws1", "alice"))
	s.SetPresence(entry("c1", "ws2", "alice"))

	assert.Empty(t, s.GetAll("ws1"))
	assert.Len(t, s.GetAll("ws2"), 1)
	assert.Equal(t, 1, s.Count())
}

func TestStore_CallStatus(t *testing.T) {
	tests := []struct {
		name      string
		before    Status
		wantAfter Status
	}{
		{name: "available returns to available", before: StatusAvailable, wantAfter: StatusAvailable},
		{name: "dnd survives the call", before: StatusDND, wantAfter: StatusDND},
		{name: "idle survives the call", before: StatusIdle, wantAfter: StatusIdle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			s.SetPresence(entry("c1", "ws1", "alice"))

			if tt.before != StatusAvailable {
				// dnd/idle set while already in the call
				_, ok := s.SetInCall("c1", "r1", t0)
				require.True(t, ok)
				s.SetStatus("c1", tt.before, t0)
			} else {
				p, ok := s.SetInCall("c1", "r1", t0)
				require.True(t, ok)
				assert.Equal(t, StatusInCall, p.Status)
				assert.Equal(t, "r1", p.CurrentRoom)
			}

			p, ok := s.ClearCall("c1", t0)
			require.True(t, ok)
			assert.Equal(t, tt.wantAfter, p.Status)
			assert.Empty(t, p.CurrentRoom)
		})
	}
}

func TestStore_SetInCallKeepsDND(t *testing.T) {
	s := NewStore()
	s.SetPresence(entry("c1", "ws1", "alice"))
	s.SetStatus("c1", StatusDND, t0)

	p, ok := s.SetInCall("c1", "r1", t0)
	require.True(t, ok)
	assert.Equal(t, StatusDND, p.Status)
	assert.Equal(t, "r1", p.CurrentRoom)

	p, _ = s.ClearCall("c1", t0)
	assert.Equal(t, StatusDND, p.Status)
}

func TestStore_PruneStale(t *testing.T) {
	s := NewStore()
	s.SetPresence(entry("c1", "ws1", "alice"))
	s.SetPresence(entry("c2", "ws1", "bob"))
	s.Touch("c2", t0.Add(50*time.Second))

	removed := s.PruneStale(30*time.Second, t0.Add(60*time.Second))
	require.Len(t, removed, 1)
	assert.Equal(t, "alice", removed[0].UserID)
	assert.Equal(t, 1, s.Count())
}

func TestStatus_Settable(t *testing.T) {
	assert.True(t, StatusDND.Settable())
	assert.False(t, StatusInCall.Settable())
	assert.False(t, Status("busy").Settable())
}
