package roomstate

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

type room struct {
	workspaceID  string
	roomID       string
	createdAt    time.Time
	peers        map[string]*Peer
	screenSharer string
	crosstalks   map[string]*crosstalk
	invitations  map[string]*invitation
}

// Store is the authoritative in-memory state of call rooms.
//
// Store is not safe for concurrent use. Every call is expected to come from
// the single goroutine that serializes connection events and sweeps.
type Store struct {
	rooms       map[string]*room
	memberships map[string]Membership
	seq         uint64
	newID       func() string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		rooms:       make(map[string]*room),
		memberships: make(map[string]Membership),
		newID:       uuid.NewString,
	}
}

// RoomKey builds the map key of a room.
func RoomKey(workspaceID, roomID string) string {
	return workspaceID + ":" + roomID
}

func (s *Store) nextSeq() uint64 {
	s.seq++
	return s.seq
}

// JoinPeer inserts or overwrites the peer for userID and creates the room if
// needed. Re-joining with the same userID replaces the previous seat.
func (s *Store) JoinPeer(workspaceID, roomID, userID, displayName, connectionID string, now time.Time) JoinResult {
	key := RoomKey(workspaceID, roomID)
	result := JoinResult{}

	if m, ok := s.memberships[connectionID]; ok && (m.RoomKey != key || m.UserID != userID) {
		result.Previous = s.leave(connectionID, m)
	}

	r, ok := s.rooms[key]
	if !ok {
		r = &room{
			workspaceID: workspaceID,
			roomID:      roomID,
			createdAt:   now,
			peers:       make(map[string]*Peer),
			crosstalks:  make(map[string]*crosstalk),
			invitations: make(map[string]*invitation),
		}
		s.rooms[key] = r
	}

	joinedAt := now
	if existing, ok := r.peers[userID]; ok {
		if existing.ConnectionID != connectionID {
			delete(s.memberships, existing.ConnectionID)
			result.ReplacedConnectionID = existing.ConnectionID
		} else {
			joinedAt = existing.JoinedAt
		}
	}

	r.peers[userID] = &Peer{
		UserID:          userID,
		DisplayName:     displayName,
		ConnectionID:    connectionID,
		JoinedAt:        joinedAt,
		LastHeartbeatAt: now,
	}
	m := Membership{RoomKey: key, WorkspaceID: workspaceID, RoomID: roomID, UserID: userID}
	s.memberships[connectionID] = m

	result.Membership = m
	result.Peers = r.peerList()
	result.ActiveScreenSharerUserID = r.screenSharer
	result.Crosstalks = r.crosstalkList()
	return result
}

// LeaveByConnection removes the connection's peer and runs the cleanup
// cascade. It returns nil when the connection is not a member of any room.
func (s *Store) LeaveByConnection(connectionID string) *LeaveResult {
	m, ok := s.memberships[connectionID]
	if !ok {
		return nil
	}
	return s.leave(connectionID, m)
}

func (s *Store) leave(connectionID string, m Membership) *LeaveResult {
	delete(s.memberships, connectionID)

	result := &LeaveResult{Membership: m, ConnectionID: connectionID}
	r, ok := s.rooms[m.RoomKey]
	if !ok {
		result.Stale = true
		result.RoomDeleted = true
		return result
	}

	p, ok := r.peers[m.UserID]
	if !ok || p.ConnectionID != connectionID {
		result.Stale = true
		result.ActiveScreenSharerUserID = r.screenSharer
		result.RemainingPeers = len(r.peers)
		return result
	}

	delete(r.peers, m.UserID)
	if r.screenSharer == m.UserID {
		r.screenSharer = ""
		result.ScreenShareCleared = true
	}
	touched := r.removeFromCrosstalks(m.UserID)
	result.RemovedCrosstalkIDs, result.UpdatedCrosstalks = r.settle(touched)
	result.ActiveScreenSharerUserID = r.screenSharer
	result.RemainingPeers = len(r.peers)

	if len(r.peers) == 0 {
		delete(s.rooms, m.RoomKey)
		result.RoomDeleted = true
	}
	return result
}

// UpdateHeartbeat refreshes the liveness timestamp of the connection's peer.
func (s *Store) UpdateHeartbeat(connectionID string, now time.Time) bool {
	_, p, ok := s.peerByConnection(connectionID)
	if !ok {
		return false
	}
	p.LastHeartbeatAt = now
	return true
}

// PruneInactivePeers evicts every peer whose last heartbeat is older than
// maxAge, with the same cascade as LeaveByConnection.
func (s *Store) PruneInactivePeers(maxAge time.Duration, now time.Time) []LeaveResult {
	var stale []string
	for _, r := range s.rooms {
		for _, p := range r.peers {
			if now.Sub(p.LastHeartbeatAt) > maxAge {
				stale = append(stale, p.ConnectionID)
			}
		}
	}
	sort.Strings(stale)

	evicted := make([]LeaveResult, 0, len(stale))
	for _, connectionID := range stale {
		if res := s.LeaveByConnection(connectionID); res != nil {
			evicted = append(evicted, *res)
		}
	}
	return evicted
}

// resolve finds the membership and room of a connection.
func (s *Store) resolve(connectionID string) (Membership, *room, error) {
	m, ok := s.memberships[connectionID]
	if !ok {
		return Membership{}, nil, ErrNotInRoom
	}
	r, ok := s.rooms[m.RoomKey]
	if !ok {
		return m, nil, ErrRoomNotFound
	}
	return m, r, nil
}

func (s *Store) peerByConnection(connectionID string) (*room, *Peer, bool) {
	m, r, err := s.resolve(connectionID)
	if err != nil {
		return nil, nil, false
	}
	p, ok := r.peers[m.UserID]
	if !ok || p.ConnectionID != connectionID {
		return nil, nil, false
	}
	return r, p, true
}

// GetMembershipByConnection returns the reverse index entry of a connection.
func (s *Store) GetMembershipByConnection(connectionID string) (Membership, bool) {
	m, ok := s.memberships[connectionID]
	return m, ok
}

// FindConnection resolves the connection currently holding userID's seat.
func (s *Store) FindConnection(workspaceID, roomID, userID string) (string, bool) {
	r, ok := s.rooms[RoomKey(workspaceID, roomID)]
	if !ok {
		return "", false
	}
	p, ok := r.peers[userID]
	if !ok {
		return "", false
	}
	return p.ConnectionID, true
}

// GetPeers lists the peers of a room ordered by join time.
func (s *Store) GetPeers(workspaceID, roomID string) []Peer {
	r, ok := s.rooms[RoomKey(workspaceID, roomID)]
	if !ok {
		return nil
	}
	return r.peerList()
}

// GetActiveScreenSharer returns the user currently sharing, if any.
func (s *Store) GetActiveScreenSharer(workspaceID, roomID string) (string, bool) {
	r, ok := s.rooms[RoomKey(workspaceID, roomID)]
	if !ok || r.screenSharer == "" {
		return "", false
	}
	return r.screenSharer, true
}

// GetAllRooms lists room summaries. An empty workspaceID lists every room.
func (s *Store) GetAllRooms(workspaceID string) []RoomSummary {
	out := make([]RoomSummary, 0, len(s.rooms))
	for _, r := range s.rooms {
		if workspaceID != "" && r.workspaceID != workspaceID {
			continue
		}
		out = append(out, r.summary())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WorkspaceID != out[j].WorkspaceID {
			return out[i].WorkspaceID < out[j].WorkspaceID
		}
		return out[i].RoomID < out[j].RoomID
	})
	return out
}

// GetRoomDetails returns the detail view of one room.
func (s *Store) GetRoomDetails(workspaceID, roomID string) (RoomDetails, bool) {
	r, ok := s.rooms[RoomKey(workspaceID, roomID)]
	if !ok {
		return RoomDetails{}, false
	}
	return RoomDetails{
		RoomSummary: r.summary(),
		Peers:       r.peerList(),
		Crosstalks:  r.crosstalkList(),
		Invitations: r.invitationList(),
		CreatedAt:   r.createdAt,
	}, true
}

// Stats returns the number of live rooms and peers.
func (s *Store) Stats() (rooms, peers int) {
	for _, r := range s.rooms {
		peers += len(r.peers)
	}
	return len(s.rooms), peers
}

func (r *room) summary() RoomSummary {
	return RoomSummary{
		WorkspaceID:              r.workspaceID,
		RoomID:                   r.roomID,
		PeerCount:                len(r.peers),
		ActiveScreenSharerUserID: r.screenSharer,
		CrosstalkCount:           len(r.crosstalks),
		QuickTalk:                IsQuickTalkRoom(r.roomID),
	}
}

func (r *room) peerList() []Peer {
	out := make([]Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return strings.Compare(out[i].UserID, out[j].UserID) < 0
	})
	return out
}

func (r *room) hasPeer(userID string) bool {
	_, ok := r.peers[userID]
	return ok
}
