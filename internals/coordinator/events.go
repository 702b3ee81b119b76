package coordinator

import (
	"encoding/json"

	"go.uber.org/zap"

	appmetrics "github.com/huddlehq/huddle-signal/internals/metrics"
	"github.com/huddlehq/huddle-signal/internals/presence"
	"github.com/huddlehq/huddle-signal/internals/roomstate"
	"github.com/huddlehq/huddle-signal/internals/signaling"
)

// Why a peer left a room.
const (
	reasonLeft         = "left"
	reasonDisconnected = "disconnected"
	reasonTimeout      = "timeout"
	reasonReplaced     = "replaced"
)

// Why an invitation expired or why a quick talk was cancelled.
const (
	expiryReasonTTL             = "ttl"
	expiryReasonParticipantLeft = "participant_left"

	cancelReasonInitiator    = "cancelled"
	cancelReasonDisconnected = "initiator_disconnected"
)

type JoinedPayload struct {
	WorkspaceID              string                 `json:"workspaceId"`
	RoomID                   string                 `json:"roomId"`
	UserID                   string                 `json:"userId"`
	ConnectionID             string                 `json:"connectionId"`
	Peers                    []roomstate.Peer       `json:"peers"`
	ActiveScreenSharerUserID string                 `json:"activeScreenSharerUserId,omitempty"`
	Crosstalks               []roomstate.Crosstalk  `json:"crosstalks"`
	Invitations              []roomstate.Invitation `json:"invitations"`
}

type PeerJoinedPayload struct {
	WorkspaceID  string `json:"workspaceId"`
	RoomID       string `json:"roomId"`
	UserID       string `json:"userId"`
	DisplayName  string `json:"displayName"`
	ConnectionID string `json:"connectionId"`
}

type PeerLeftPayload struct {
	WorkspaceID string `json:"workspaceId"`
	RoomID      string `json:"roomId"`
	UserID      string `json:"userId"`
	Reason      string `json:"reason"`
}

// RelayedPayload is what the target of an offer, answer or candidate sees.
type RelayedPayload struct {
	WorkspaceID string          `json:"workspaceId"`
	RoomID      string          `json:"roomId"`
	FromUserID  string          `json:"fromUserId"`
	Description json.RawMessage `json:"description,omitempty"`
	Candidate   json.RawMessage `json:"candidate,omitempty"`
}

type ScreenSharePayload struct {
	WorkspaceID string `json:"workspaceId"`
	RoomID      string `json:"roomId"`
	UserID      string `json:"userId"`
}

type CrosstalkPayload struct {
	WorkspaceID string              `json:"workspaceId"`
	RoomID      string              `json:"roomId"`
	Crosstalk   roomstate.Crosstalk `json:"crosstalk"`
}

type CrosstalkEndedPayload struct {
	WorkspaceID string `json:"workspaceId"`
	RoomID      string `json:"roomId"`
	CrosstalkID string `json:"crosstalkId"`
}

type InvitationPayload struct {
	Invitation roomstate.Invitation `json:"invitation"`
}

type InvitationReplyPayload struct {
	Invitation  roomstate.Invitation `json:"invitation"`
	UserID      string               `json:"userId"`
	AllAccepted bool                 `json:"allAccepted,omitempty"`
	Cancelled   bool                 `json:"cancelled,omitempty"`
}

type InvitationExpiredPayload struct {
	Invitation roomstate.Invitation `json:"invitation"`
	Reason     string               `json:"reason"`
}

type PresenceSnapshotPayload struct {
	WorkspaceID string                  `json:"workspaceId"`
	Users       []presence.UserPresence `json:"users"`
}

type PresenceOfflinePayload struct {
	WorkspaceID string `json:"workspaceId"`
	UserID      string `json:"userId"`
}

type QuickTalkPayload struct {
	RoomID          string `json:"roomId"`
	WorkspaceID     string `json:"workspaceId"`
	FromUserID      string `json:"fromUserId,omitempty"`
	FromDisplayName string `json:"fromDisplayName,omitempty"`
	TargetUserID    string `json:"targetUserId,omitempty"`
	UserID          string `json:"userId,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

func (c *Coordinator) message(t signaling.MessageType, payload interface{}) (signaling.Message, bool) {
	msg, err := signaling.NewMessage(t, payload)
	if err != nil {
		c.logger.Error("Failed to build message", zap.String("type", string(t)), zap.Error(err))
		return signaling.Message{}, false
	}
	return msg, true
}

func (c *Coordinator) send(connectionID string, t signaling.MessageType, payload interface{}) {
	msg, ok := c.message(t, payload)
	if !ok {
		return
	}
	if c.hub.SendTo(connectionID, msg) {
		appmetrics.RecordSent(string(t), 1)
	}
}

func (c *Coordinator) sendMany(connectionIDs []string, t signaling.MessageType, payload interface{}) {
	msg, ok := c.message(t, payload)
	if !ok {
		return
	}
	sent := 0
	for _, id := range connectionIDs {
		if c.hub.SendTo(id, msg) {
			sent++
		}
	}
	appmetrics.RecordSent(string(t), sent)
}

func (c *Coordinator) publish(group string, t signaling.MessageType, payload interface{}, exclude ...string) {
	msg, ok := c.message(t, payload)
	if !ok {
		return
	}
	appmetrics.RecordSent(string(t), c.hub.Publish(group, msg, exclude...))
}

func (c *Coordinator) publishRoom(m roomstate.Membership, t signaling.MessageType, payload interface{}, exclude ...string) {
	c.publish(signaling.RoomGroup(m.WorkspaceID, m.RoomID), t, payload, exclude...)
}

// sendToRoomUsers delivers to the connections of the given users in a room,
// skipping users no longer present.
func (c *Coordinator) sendToRoomUsers(workspaceID, roomID string, userIDs []string, t signaling.MessageType, payload interface{}) {
	conns := make([]string, 0, len(userIDs))
	for _, userID := range userIDs {
		if conn, ok := c.rooms.FindConnection(workspaceID, roomID, userID); ok {
			conns = append(conns, conn)
		}
	}
	c.sendMany(conns, t, payload)
}

func (c *Coordinator) sendError(connectionID string, event signaling.MessageType, err error) {
	payload := toErrorPayload(err)
	payload.Event = event
	if payload.Code == signaling.CodeInternal {
		c.logger.Error("Unhandled error",
			zap.String("connectionID", connectionID),
			zap.String("event", string(event)),
			zap.Error(err),
		)
	}
	appmetrics.RecordError(payload.Code)
	c.send(connectionID, signaling.MessageTypeError, payload)
}
