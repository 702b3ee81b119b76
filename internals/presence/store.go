// Package presence tracks which users are online in a workspace lobby,
// independently of call membership.
package presence

import (
	"sort"
	"time"
)

type Status string

const (
	StatusAvailable Status = "available"
	StatusIdle      Status = "idle"
	StatusDND       Status = "dnd"
	StatusInCall    Status = "in-call"
)

// Settable reports whether clients may pick the status themselves. In-call is
// derived from room membership.
func (s Status) Settable() bool {
	switch s {
	case StatusAvailable, StatusIdle, StatusDND:
		return true
	}
	return false
}

type UserPresence struct {
	UserID       string    `json:"userId"`
	DisplayName  string    `json:"displayName"`
	Status       Status    `json:"status"`
	CurrentRoom  string    `json:"currentRoom,omitempty"`
	LastSeen     time.Time `json:"lastSeen"`
	ConnectionID string    `json:"connectionId"`
	WorkspaceID  string    `json:"workspaceId"`
}

// Store keeps one entry per presence connection. A user connected from
// several devices has several entries.
//
// Store is not safe for concurrent use.
type Store struct {
	byConnection map[string]*UserPresence
	byWorkspace  map[string]map[string]struct{}
}

func NewStore() *Store {
	return &Store{
		byConnection: make(map[string]*UserPresence),
		byWorkspace:  make(map[string]map[string]struct{}),
	}
}

// SetPresence inserts or replaces the entry of p.ConnectionID.
func (s *Store) SetPresence(p UserPresence) UserPresence {
	if old, ok := s.byConnection[p.ConnectionID]; ok && old.WorkspaceID != p.WorkspaceID {
		s.unindex(old)
	}
	if p.Status == "" {
		p.Status = StatusAvailable
	}
	entry := p
	s.byConnection[p.ConnectionID] = &entry

	conns, ok := s.byWorkspace[p.WorkspaceID]
	if !ok {
		conns = make(map[string]struct{})
		s.byWorkspace[p.WorkspaceID] = conns
	}
	conns[p.ConnectionID] = struct{}{}
	return entry
}

// RemoveByConnection drops the entry of a connection.
func (s *Store) RemoveByConnection(connectionID string) (UserPresence, bool) {
	p, ok := s.byConnection[connectionID]
	if !ok {
		return UserPresence{}, false
	}
	delete(s.byConnection, connectionID)
	s.unindex(p)
	return *p, true
}

func (s *Store) unindex(p *UserPresence) {
	conns := s.byWorkspace[p.WorkspaceID]
	delete(conns, p.ConnectionID)
	if len(conns) == 0 {
		delete(s.byWorkspace, p.WorkspaceID)
	}
}

func (s *Store) GetBySocket(connectionID string) (UserPresence, bool) {
	p, ok := s.byConnection[connectionID]
	if !ok {
		return UserPresence{}, false
	}
	return *p, true
}

// GetAll lists the entries of a workspace ordered by user and connection.
func (s *Store) GetAll(workspaceID string) []UserPresence {
	out := make([]UserPresence, 0, len(s.byWorkspace[workspaceID]))
	for _, connectionID := range s.connections(workspaceID) {
		out = append(out, *s.byConnection[connectionID])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// FindByUserID returns the first entry of userID in the workspace.
func (s *Store) FindByUserID(workspaceID, userID string) (UserPresence, bool) {
	for _, connectionID := range s.connections(workspaceID) {
		if p := s.byConnection[connectionID]; p.UserID == userID {
			return *p, true
		}
	}
	return UserPresence{}, false
}

// ConnectionsOf lists every presence connection of userID in the workspace.
func (s *Store) ConnectionsOf(workspaceID, userID string) []string {
	var out []string
	for _, connectionID := range s.connections(workspaceID) {
		if s.byConnection[connectionID].UserID == userID {
			out = append(out, connectionID)
		}
	}
	return out
}

func (s *Store) connections(workspaceID string) []string {
	conns := s.byWorkspace[workspaceID]
	out := make([]string, 0, len(conns))
	for id := range conns {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *Store) SetStatus(connectionID string, status Status, now time.Time) (UserPresence, bool) {
	p, ok := s.byConnection[connectionID]
	if !ok {
		return UserPresence{}, false
	}
	p.Status = status
	p.LastSeen = now
	return *p, true
}

// Touch refreshes LastSeen.
func (s *Store) Touch(connectionID string, now time.Time) bool {
	p, ok := s.byConnection[connectionID]
	if !ok {
		return false
	}
	p.LastSeen = now
	return true
}

// SetInCall records the room the connection's user is in and marks the
// status in-call. A dnd user stays dnd.
func (s *Store) SetInCall(connectionID, roomID string, now time.Time) (UserPresence, bool) {
	p, ok := s.byConnection[connectionID]
	if !ok {
		return UserPresence{}, false
	}
	p.CurrentRoom = roomID
	if p.Status != StatusDND {
		p.Status = StatusInCall
	}
	p.LastSeen = now
	return *p, true
}

// ClearCall forgets the current room. Status returns to available only when
// it was in-call, so dnd or idle survive a call.
func (s *Store) ClearCall(connectionID string, now time.Time) (UserPresence, bool) {
	p, ok := s.byConnection[connectionID]
	if !ok {
		return UserPresence{}, false
	}
	p.CurrentRoom = ""
	if p.Status == StatusInCall {
		p.Status = StatusAvailable
	}
	p.LastSeen = now
	return *p, true
}

// PruneStale removes entries not seen for longer than maxAge.
func (s *Store) PruneStale(maxAge time.Duration, now time.Time) []UserPresence {
	var stale []string
	for id, p := range s.byConnection {
		if now.Sub(p.LastSeen) > maxAge {
			stale = append(stale, id)
		}
	}
	sort.Strings(stale)

	removed := make([]UserPresence, 0, len(stale))
	for _, id := range stale {
		if p, ok := s.RemoveByConnection(id); ok {
			removed = append(removed, p)
		}
	}
	return removed
}

// Count returns the number of presence connections.
func (s *Store) Count() int {
	return len(s.byConnection)
}
