package coordinator

import (
	"time"

	"go.uber.org/zap"

	"github.com/huddlehq/huddle-signal/internals/feed"
	"github.com/huddlehq/huddle-signal/internals/presence"
	"github.com/huddlehq/huddle-signal/internals/signaling"
)

func (c *Coordinator) handlePresenceConnect(connectionID string, message signaling.Message) error {
	p, err := signaling.Decode[signaling.PresenceConnectPayload](message, c.validator)
	if err != nil {
		return err
	}

	now := c.now()
	if old, ok := c.presence.GetBySocket(connectionID); ok && (old.WorkspaceID != p.WorkspaceID || old.UserID != p.UserID) {
		c.presence.RemoveByConnection(connectionID)
		c.hub.Leave(signaling.WorkspaceGroup(old.WorkspaceID), connectionID)
		c.announceOffline(old)
	}

	entry := c.presence.SetPresence(presence.UserPresence{
		UserID:       p.UserID,
		DisplayName:  p.DisplayName,
		Status:       presence.Status(p.Status),
		LastSeen:     now,
		ConnectionID: connectionID,
		WorkspaceID:  p.WorkspaceID,
	})
	if roomID, ok := c.currentRoomOf(p.WorkspaceID, p.UserID); ok {
		entry, _ = c.presence.SetInCall(connectionID, roomID, now)
	}

	group := signaling.WorkspaceGroup(p.WorkspaceID)
	c.hub.Join(group, connectionID)
	c.send(connectionID, signaling.MessageTypePresenceSnapshot, PresenceSnapshotPayload{
		WorkspaceID: p.WorkspaceID,
		Users:       c.presence.GetAll(p.WorkspaceID),
	})
	c.publish(group, signaling.MessageTypePresenceUserOnline, entry, connectionID)
	c.publishPresenceFeed(entry, true)

	c.logger.Debug("Presence connected",
		zap.String("connectionID", connectionID),
		zap.String("workspaceID", p.WorkspaceID),
		zap.String("userID", p.UserID),
	)
	return nil
}

func (c *Coordinator) handlePresenceStatus(connectionID string, message signaling.Message) error {
	p, err := signaling.Decode[signaling.PresenceStatusPayload](message, c.validator)
	if err != nil {
		return err
	}
	entry, ok := c.presence.SetStatus(connectionID, presence.Status(p.Status), c.now())
	if !ok {
		return errNotConnected
	}
	c.publishPresenceUpdated(entry)
	return nil
}

func (c *Coordinator) handlePresenceHeartbeat(connectionID string, message signaling.Message) error {
	if !c.presence.Touch(connectionID, c.now()) {
		return errNotConnected
	}
	return nil
}

// currentRoomOf finds the room a user is seated in within a workspace.
func (c *Coordinator) currentRoomOf(workspaceID, userID string) (string, bool) {
	for _, r := range c.rooms.GetAllRooms(workspaceID) {
		if _, ok := c.rooms.FindConnection(workspaceID, r.RoomID, userID); ok {
			return r.RoomID, true
		}
	}
	return "", false
}

// markInCall flags every presence entry of the user as in the room.
func (c *Coordinator) markInCall(workspaceID, userID, roomID string, now time.Time) {
	for _, conn := range c.presence.ConnectionsOf(workspaceID, userID) {
		if entry, ok := c.presence.SetInCall(conn, roomID, now); ok {
			c.publishPresenceUpdated(entry)
		}
	}
}

// clearCall reverts the entries that still point at roomID.
func (c *Coordinator) clearCall(workspaceID, userID, roomID string, now time.Time) {
	for _, conn := range c.presence.ConnectionsOf(workspaceID, userID) {
		if current, ok := c.presence.GetBySocket(conn); !ok || current.CurrentRoom != roomID {
			continue
		}
		if entry, ok := c.presence.ClearCall(conn, now); ok {
			c.publishPresenceUpdated(entry)
		}
	}
}

func (c *Coordinator) publishPresenceUpdated(entry presence.UserPresence) {
	c.publish(signaling.WorkspaceGroup(entry.WorkspaceID), signaling.MessageTypePresenceUserUpdated, entry)
	c.publishPresenceFeed(entry, true)
}

// announceOffline reports a user offline once their last entry is gone.
func (c *Coordinator) announceOffline(p presence.UserPresence) {
	if len(c.presence.ConnectionsOf(p.WorkspaceID, p.UserID)) > 0 {
		return
	}
	c.publish(signaling.WorkspaceGroup(p.WorkspaceID), signaling.MessageTypePresenceUserOffline, PresenceOfflinePayload{
		WorkspaceID: p.WorkspaceID,
		UserID:      p.UserID,
	})
	c.publishPresenceFeed(p, false)
}

func (c *Coordinator) publishPresenceFeed(p presence.UserPresence, online bool) {
	change := feed.PresenceChanged{UserID: p.UserID, Online: online}
	if online {
		change.Status = string(p.Status)
		change.CurrentRoom = p.CurrentRoom
	}
	c.feed.PublishPresence(p.WorkspaceID, change)
}
