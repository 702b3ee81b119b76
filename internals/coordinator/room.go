package coordinator

import (
	"time"

	"go.uber.org/zap"

	"github.com/huddlehq/huddle-signal/internals/feed"
	"github.com/huddlehq/huddle-signal/internals/roomstate"
	"github.com/huddlehq/huddle-signal/internals/signaling"
)

func (c *Coordinator) handleJoin(connectionID string, message signaling.Message) error {
	p, err := signaling.Decode[signaling.JoinPayload](message, c.validator)
	if err != nil {
		return err
	}

	now := c.now()
	res := c.rooms.JoinPeer(p.WorkspaceID, p.RoomID, p.UserID, p.DisplayName, connectionID, now)

	if res.Previous != nil {
		c.announceLeave(*res.Previous, reasonLeft, now)
	}
	if res.ReplacedConnectionID != "" {
		c.unbindReplaced(res)
	}

	c.hub.Join(signaling.RoomGroup(p.WorkspaceID, p.RoomID), connectionID)
	c.send(connectionID, signaling.MessageTypeJoined, JoinedPayload{
		WorkspaceID:              p.WorkspaceID,
		RoomID:                   p.RoomID,
		UserID:                   p.UserID,
		ConnectionID:             connectionID,
		Peers:                    res.Peers,
		ActiveScreenSharerUserID: res.ActiveScreenSharerUserID,
		Crosstalks:               res.Crosstalks,
		Invitations:              c.invitationsFor(p.WorkspaceID, p.RoomID, p.UserID),
	})
	c.publishRoom(res.Membership, signaling.MessageTypePeerJoined, PeerJoinedPayload{
		WorkspaceID:  p.WorkspaceID,
		RoomID:       p.RoomID,
		UserID:       p.UserID,
		DisplayName:  p.DisplayName,
		ConnectionID: connectionID,
	}, connectionID)

	c.markInCall(p.WorkspaceID, p.UserID, p.RoomID, now)
	c.feed.PublishRoomOccupancy(p.WorkspaceID, feed.RoomOccupancy{RoomID: p.RoomID, PeerCount: len(res.Peers)})

	c.logger.Info("Peer joined",
		zap.String("connectionID", connectionID),
		zap.String("roomKey", res.RoomKey),
		zap.String("userID", p.UserID),
		zap.Int("peers", len(res.Peers)),
	)
	return nil
}

// unbindReplaced detaches the connection that used to hold the user's seat.
// The room sees the old seat leave before the new one joins.
func (c *Coordinator) unbindReplaced(res roomstate.JoinResult) {
	stale := res.ReplacedConnectionID
	c.hub.Leave(signaling.RoomGroup(res.WorkspaceID, res.RoomID), stale)

	left := PeerLeftPayload{
		WorkspaceID: res.WorkspaceID,
		RoomID:      res.RoomID,
		UserID:      res.UserID,
		Reason:      reasonReplaced,
	}
	c.send(stale, signaling.MessageTypePeerLeft, left)
	c.publishRoom(res.Membership, signaling.MessageTypePeerLeft, left, stale)

	c.logger.Info("Peer connection replaced",
		zap.String("staleConnectionID", stale),
		zap.String("roomKey", res.RoomKey),
		zap.String("userID", res.UserID),
	)
}

func (c *Coordinator) invitationsFor(workspaceID, roomID, userID string) []roomstate.Invitation {
	out := make([]roomstate.Invitation, 0)
	for _, inv := range c.rooms.GetInvitations(workspaceID, roomID) {
		for _, id := range inv.Audience() {
			if id == userID {
				out = append(out, inv)
				break
			}
		}
	}
	return out
}

func (c *Coordinator) handleLeave(connectionID string, message signaling.Message) error {
	if _, err := signaling.Decode[signaling.Empty](message, c.validator); err != nil {
		return err
	}
	if res := c.rooms.LeaveByConnection(connectionID); res != nil {
		c.announceLeave(*res, reasonLeft, c.now())
	}
	return nil
}

// announceLeave broadcasts the cleanup cascade of a departed peer: ended and
// shrunk crosstalks, a cleared screen share, then the departure itself.
func (c *Coordinator) announceLeave(res roomstate.LeaveResult, reason string, now time.Time) {
	group := signaling.RoomGroup(res.WorkspaceID, res.RoomID)
	c.hub.Leave(group, res.ConnectionID)
	if res.Stale {
		return
	}

	for _, id := range res.RemovedCrosstalkIDs {
		c.publish(group, signaling.MessageTypeCrosstalkEnded, CrosstalkEndedPayload{
			WorkspaceID: res.WorkspaceID,
			RoomID:      res.RoomID,
			CrosstalkID: id,
		})
	}
	for _, ct := range res.UpdatedCrosstalks {
		c.publish(group, signaling.MessageTypeCrosstalkUpdated, CrosstalkPayload{
			WorkspaceID: res.WorkspaceID,
			RoomID:      res.RoomID,
			Crosstalk:   ct,
		})
	}
	if res.ScreenShareCleared {
		c.publish(group, signaling.MessageTypeScreenShareStopped, ScreenSharePayload{
			WorkspaceID: res.WorkspaceID,
			RoomID:      res.RoomID,
			UserID:      res.UserID,
		})
	}

	left := PeerLeftPayload{
		WorkspaceID: res.WorkspaceID,
		RoomID:      res.RoomID,
		UserID:      res.UserID,
		Reason:      reason,
	}
	c.publish(group, signaling.MessageTypePeerLeft, left)
	if reason == reasonTimeout {
		// The evicted connection may still be open; tell it to rejoin.
		c.send(res.ConnectionID, signaling.MessageTypePeerLeft, left)
	}

	c.clearCall(res.WorkspaceID, res.UserID, res.RoomID, now)
	c.feed.PublishRoomOccupancy(res.WorkspaceID, feed.RoomOccupancy{RoomID: res.RoomID, PeerCount: res.RemainingPeers})

	c.logger.Info("Peer left",
		zap.String("connectionID", res.ConnectionID),
		zap.String("roomKey", res.RoomKey),
		zap.String("userID", res.UserID),
		zap.String("reason", reason),
		zap.Bool("roomDeleted", res.RoomDeleted),
	)
}

func (c *Coordinator) handleHeartbeat(connectionID string, message signaling.Message) error {
	now := c.now()
	c.rooms.UpdateHeartbeat(connectionID, now)
	c.presence.Touch(connectionID, now)
	return nil
}

func (c *Coordinator) handleScreenShareStart(connectionID string, message signaling.Message) error {
	res, err := c.rooms.StartScreenShare(connectionID)
	if err != nil {
		return err
	}
	c.publishRoom(res.Membership, signaling.MessageTypeScreenShareStarted, ScreenSharePayload{
		WorkspaceID: res.WorkspaceID,
		RoomID:      res.RoomID,
		UserID:      res.UserID,
	})
	return nil
}

func (c *Coordinator) handleScreenShareStop(connectionID string, message signaling.Message) error {
	res, err := c.rooms.StopScreenShare(connectionID)
	if err != nil {
		return err
	}
	c.publishRoom(res.Membership, signaling.MessageTypeScreenShareStopped, ScreenSharePayload{
		WorkspaceID: res.WorkspaceID,
		RoomID:      res.RoomID,
		UserID:      res.UserID,
	})
	return nil
}

// membershipFor resolves the sender's room and checks that the payload
// addresses that same room.
func (c *Coordinator) membershipFor(connectionID, workspaceID, roomID string) (roomstate.Membership, error) {
	m, ok := c.rooms.GetMembershipByConnection(connectionID)
	if !ok {
		return roomstate.Membership{}, roomstate.ErrNotInRoom
	}
	if m.WorkspaceID != workspaceID || m.RoomID != roomID {
		return roomstate.Membership{}, errRoomMismatch
	}
	return m, nil
}

func (c *Coordinator) handleOffer(connectionID string, message signaling.Message) error {
	p, err := signaling.Decode[signaling.OfferPayload](message, c.validator)
	if err != nil {
		return err
	}
	return c.relay(connectionID, signaling.MessageTypeOffer, p.RelayPayload)
}

func (c *Coordinator) handleAnswer(connectionID string, message signaling.Message) error {
	p, err := signaling.Decode[signaling.AnswerPayload](message, c.validator)
	if err != nil {
		return err
	}
	return c.relay(connectionID, signaling.MessageTypeAnswer, p.RelayPayload)
}

func (c *Coordinator) handleICECandidate(connectionID string, message signaling.Message) error {
	p, err := signaling.Decode[signaling.ICECandidatePayload](message, c.validator)
	if err != nil {
		return err
	}
	return c.relay(connectionID, signaling.MessageTypeICECandidate, p.RelayPayload)
}

// relay forwards an opaque negotiation payload to exactly one peer of the
// sender's room.
func (c *Coordinator) relay(connectionID string, t signaling.MessageType, p signaling.RelayPayload) error {
	m, err := c.membershipFor(connectionID, p.WorkspaceID, p.RoomID)
	if err != nil {
		return err
	}
	target, ok := c.rooms.FindConnection(m.WorkspaceID, m.RoomID, p.ToUserID)
	if !ok {
		return errPeerNotFound
	}
	c.send(target, t, RelayedPayload{
		WorkspaceID: m.WorkspaceID,
		RoomID:      m.RoomID,
		FromUserID:  m.UserID,
		Description: p.Description,
		Candidate:   p.Candidate,
	})
	return nil
}
