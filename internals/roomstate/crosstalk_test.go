package roomstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedRoom(s *Store, users ...string) {
	for _, u := range users {
		s.JoinPeer("ws1", "r1", u, u, "c-"+u, t0)
	}
}

func TestStore_StartCrosstalkErrors(t *testing.T) {
	tests := []struct {
		name    string
		conn    string
		targets []string
		wantErr error
	}{
		{name: "not in room", conn: "c-nobody", targets: []string{"bob"}, wantErr: ErrNotInRoom},
		{name: "self target", conn: "c-alice", targets: []string{"bob", "alice"}, wantErr: ErrCannotCrosstalkSelf},
		{name: "absent target", conn: "c-alice", targets: []string{"zed"}, wantErr: ErrTargetNotInRoom},
		{name: "nil targets", conn: "c-alice", targets: nil, wantErr: ErrNoTargets},
		{name: "empty targets", conn: "c-alice", targets: []string{}, wantErr: ErrNoTargets},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore()
			seedRoom(s, "alice", "bob")

			_, err := s.StartCrosstalk(tt.conn, tt.targets)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, s.GetCrosstalks("ws1", "r1"))
		})
	}
}

func TestStore_StartCrosstalkAutoLeave(t *testing.T) {
	s := newTestStore()
	seedRoom(s, "alice", "bob", "carol")

	first, err := s.StartCrosstalk("c-alice", []string{"bob"})
	require.NoError(t, err)
	assert.Empty(t, first.AutoLeftCrosstalkIDs)
	assert.ElementsMatch(t, []string{"alice", "bob"}, first.Crosstalk.ParticipantUserIDs)

	second, err := s.StartCrosstalk("c-alice", []string{"carol"})
	require.NoError(t, err)
	assert.Equal(t, []string{first.Crosstalk.ID}, second.AutoLeftCrosstalkIDs)

	cts := s.GetCrosstalks("ws1", "r1")
	require.Len(t, cts, 1)
	assert.Equal(t, second.Crosstalk.ID, cts[0].ID)
	assert.ElementsMatch(t, []string{"alice", "carol"}, cts[0].ParticipantUserIDs)
}

func TestStore_StartCrosstalkShrinksLargerGroup(t *testing.T) {
	s := newTestStore()
	seedRoom(s, "alice", "bob", "carol", "dave")

	group, err := s.StartCrosstalk("c-alice", []string{"bob", "carol"})
	require.NoError(t, err)

	res, err := s.StartCrosstalk("c-alice", []string{"dave"})
	require.NoError(t, err)
	assert.Empty(t, res.AutoLeftCrosstalkIDs)
	require.Len(t, res.UpdatedCrosstalks, 1)
	assert.Equal(t, group.Crosstalk.ID, res.UpdatedCrosstalks[0].ID)
	assert.ElementsMatch(t, []string{"bob", "carol"}, res.UpdatedCrosstalks[0].ParticipantUserIDs)

	for _, ct := range s.GetCrosstalks("ws1", "r1") {
		if ct.ID != res.Crosstalk.ID {
			assert.False(t, ct.Has("alice"), "alice must be in one crosstalk only")
		}
	}
}

func TestStore_CrosstalkMinimumSize(t *testing.T) {
	s := newTestStore()
	seedRoom(s, "alice", "bob", "carol")

	res, err := s.StartCrosstalk("c-alice", []string{"bob", "carol"})
	require.NoError(t, err)

	left := s.LeaveByConnection("c-carol")
	require.NotNil(t, left)
	assert.Empty(t, left.RemovedCrosstalkIDs)
	require.Len(t, left.UpdatedCrosstalks, 1)

	cts := s.GetCrosstalks("ws1", "r1")
	require.Len(t, cts, 1)
	assert.ElementsMatch(t, []string{"alice", "bob"}, cts[0].ParticipantUserIDs)

	left = s.LeaveByConnection("c-bob")
	require.NotNil(t, left)
	assert.Equal(t, []string{res.Crosstalk.ID}, left.RemovedCrosstalkIDs)
	assert.Empty(t, s.GetCrosstalks("ws1", "r1"))
}

func TestStore_EndCrosstalk(t *testing.T) {
	s := newTestStore()
	seedRoom(s, "alice", "bob", "carol")

	res, err := s.StartCrosstalk("c-alice", []string{"bob"})
	require.NoError(t, err)

	_, err = s.EndCrosstalk("c-alice", "missing")
	assert.ErrorIs(t, err, ErrCrosstalkNotFound)

	_, err = s.EndCrosstalk("c-carol", res.Crosstalk.ID)
	assert.ErrorIs(t, err, ErrNotInCrosstalk)

	_, err = s.EndCrosstalk("c-nobody", res.Crosstalk.ID)
	assert.ErrorIs(t, err, ErrNotInRoom)

	ended, err := s.EndCrosstalk("c-bob", res.Crosstalk.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Crosstalk.ID, ended.Crosstalk.ID)
	assert.Empty(t, s.GetCrosstalks("ws1", "r1"))
}

func TestStore_FormCrosstalk(t *testing.T) {
	s := newTestStore()
	seedRoom(s, "alice", "bob", "carol")

	_, err := s.FormCrosstalk("ws1", "r1", "zed", []string{"bob"})
	assert.ErrorIs(t, err, ErrInviterNotInRoom)
	_, err = s.FormCrosstalk("ws1", "nope", "alice", []string{"bob"})
	assert.ErrorIs(t, err, ErrRoomNotFound)
	_, err = s.FormCrosstalk("ws1", "r1", "alice", []string{"zed"})
	assert.ErrorIs(t, err, ErrTargetNotInRoom)
	_, err = s.FormCrosstalk("ws1", "r1", "alice", nil)
	assert.ErrorIs(t, err, ErrNoTargets)
	assert.Empty(t, s.GetCrosstalks("ws1", "r1"))

	prior, err := s.StartCrosstalk("c-bob", []string{"carol"})
	require.NoError(t, err)

	res, err := s.FormCrosstalk("ws1", "r1", "alice", []string{"bob"})
	require.NoError(t, err)
	assert.Equal(t, []string{prior.Crosstalk.ID}, res.AutoLeftCrosstalkIDs)
	assert.Equal(t, "alice", res.UserID)
	assert.Len(t, s.GetCrosstalks("ws1", "r1"), 1)
}
