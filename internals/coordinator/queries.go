package coordinator

import (
	"context"

	"github.com/huddlehq/huddle-signal/internals/presence"
	"github.com/huddlehq/huddle-signal/internals/roomstate"
)

// ConnectionInfo is what the server knows about one connection.
type ConnectionInfo struct {
	ConnectionID string                 `json:"connectionId"`
	Membership   *roomstate.Membership  `json:"membership,omitempty"`
	Presence     *presence.UserPresence `json:"presence,omitempty"`
}

type Stats struct {
	Rooms             int `json:"rooms"`
	Peers             int `json:"peers"`
	Presence          int `json:"presence"`
	PendingQuickTalks int `json:"pendingQuickTalks"`
}

// The query methods run on the event loop so they never observe a
// half-applied event.

func (c *Coordinator) Rooms(ctx context.Context, workspaceID string) ([]roomstate.RoomSummary, error) {
	var out []roomstate.RoomSummary
	err := c.Do(ctx, func() { out = c.rooms.GetAllRooms(workspaceID) })
	return out, err
}

func (c *Coordinator) Room(ctx context.Context, workspaceID, roomID string) (roomstate.RoomDetails, bool, error) {
	var (
		out roomstate.RoomDetails
		ok  bool
	)
	err := c.Do(ctx, func() { out, ok = c.rooms.GetRoomDetails(workspaceID, roomID) })
	return out, ok, err
}

func (c *Coordinator) Connection(ctx context.Context, connectionID string) (ConnectionInfo, bool, error) {
	info := ConnectionInfo{ConnectionID: connectionID}
	err := c.Do(ctx, func() {
		if m, ok := c.rooms.GetMembershipByConnection(connectionID); ok {
			info.Membership = &m
		}
		if p, ok := c.presence.GetBySocket(connectionID); ok {
			info.Presence = &p
		}
	})
	return info, info.Membership != nil || info.Presence != nil, err
}

func (c *Coordinator) Presence(ctx context.Context, workspaceID string) ([]presence.UserPresence, error) {
	var out []presence.UserPresence
	err := c.Do(ctx, func() { out = c.presence.GetAll(workspaceID) })
	return out, err
}

func (c *Coordinator) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := c.Do(ctx, func() {
		s.Rooms, s.Peers = c.rooms.Stats()
		s.Presence = c.presence.Count()
		s.PendingQuickTalks = len(c.quickTalks)
	})
	return s, err
}
