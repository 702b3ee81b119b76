package coordinator

import (
	"sort"
	"time"

	"go.uber.org/zap"

	appmetrics "github.com/huddlehq/huddle-signal/internals/metrics"
	"github.com/huddlehq/huddle-signal/internals/presence"
	"github.com/huddlehq/huddle-signal/internals/signaling"
)

// pendingQuickTalk is a request waiting for the target's answer. It has no
// server side timeout; the initiator cancels or disconnects.
type pendingQuickTalk struct {
	RoomID                string    `json:"roomId"`
	WorkspaceID           string    `json:"workspaceId"`
	InitiatorUserID       string    `json:"initiatorUserId"`
	InitiatorConnectionID string    `json:"initiatorConnectionId"`
	TargetUserID          string    `json:"targetUserId"`
	CreatedAt             time.Time `json:"createdAt"`
}

func (c *Coordinator) handleQuickTalkRequest(connectionID string, message signaling.Message) error {
	p, err := signaling.Decode[signaling.QuickTalkRequestPayload](message, c.validator)
	if err != nil {
		return err
	}
	from, ok := c.presence.GetBySocket(connectionID)
	if !ok {
		return errNotConnected
	}
	if p.TargetUserID == from.UserID {
		return errQuickTalkSelf
	}
	target, ok := c.presence.FindByUserID(from.WorkspaceID, p.TargetUserID)
	if !ok {
		return errTargetMissing
	}
	if target.Status == presence.StatusDND {
		return errTargetDND
	}

	qt := &pendingQuickTalk{
		RoomID:                c.rooms.CreateQuickTalkRoom(),
		WorkspaceID:           from.WorkspaceID,
		InitiatorUserID:       from.UserID,
		InitiatorConnectionID: connectionID,
		TargetUserID:          p.TargetUserID,
		CreatedAt:             c.now(),
	}
	c.quickTalks[qt.RoomID] = qt
	appmetrics.RecordQuickTalk("requested")

	c.send(connectionID, signaling.MessageTypeQuickTalkCreated, QuickTalkPayload{
		RoomID:       qt.RoomID,
		WorkspaceID:  qt.WorkspaceID,
		TargetUserID: qt.TargetUserID,
	})
	c.sendMany(c.presence.ConnectionsOf(qt.WorkspaceID, qt.TargetUserID), signaling.MessageTypeQuickTalkIncoming, QuickTalkPayload{
		RoomID:          qt.RoomID,
		WorkspaceID:     qt.WorkspaceID,
		FromUserID:      from.UserID,
		FromDisplayName: from.DisplayName,
	})

	c.logger.Debug("Quick talk requested",
		zap.String("roomID", qt.RoomID),
		zap.String("from", from.UserID),
		zap.String("to", qt.TargetUserID),
	)
	return nil
}

// replyingQuickTalk resolves a pending request the sender is the target of.
func (c *Coordinator) replyingQuickTalk(connectionID string, message signaling.Message) (*pendingQuickTalk, presence.UserPresence, error) {
	p, err := signaling.Decode[signaling.QuickTalkReplyPayload](message, c.validator)
	if err != nil {
		return nil, presence.UserPresence{}, err
	}
	me, ok := c.presence.GetBySocket(connectionID)
	if !ok {
		return nil, presence.UserPresence{}, errNotConnected
	}
	qt, ok := c.quickTalks[p.RoomID]
	if !ok {
		return nil, presence.UserPresence{}, errNoQuickTalk
	}
	if qt.WorkspaceID != me.WorkspaceID || qt.TargetUserID != me.UserID {
		return nil, presence.UserPresence{}, errNotQuickPeer
	}
	return qt, me, nil
}

// participants lists the initiator's connection and every connection of the
// target.
func (c *Coordinator) participants(qt *pendingQuickTalk) []string {
	conns := append([]string{qt.InitiatorConnectionID}, c.presence.ConnectionsOf(qt.WorkspaceID, qt.TargetUserID)...)
	return conns
}

func (c *Coordinator) handleQuickTalkAccept(connectionID string, message signaling.Message) error {
	qt, me, err := c.replyingQuickTalk(connectionID, message)
	if err != nil {
		return err
	}
	delete(c.quickTalks, qt.RoomID)
	appmetrics.RecordQuickTalk("accepted")

	c.sendMany(c.participants(qt), signaling.MessageTypeQuickTalkAccepted, QuickTalkPayload{
		RoomID:      qt.RoomID,
		WorkspaceID: qt.WorkspaceID,
		FromUserID:  qt.InitiatorUserID,
		UserID:      me.UserID,
	})
	return nil
}

func (c *Coordinator) handleQuickTalkDecline(connectionID string, message signaling.Message) error {
	qt, me, err := c.replyingQuickTalk(connectionID, message)
	if err != nil {
		return err
	}
	delete(c.quickTalks, qt.RoomID)
	appmetrics.RecordQuickTalk("declined")

	c.sendMany(c.participants(qt), signaling.MessageTypeQuickTalkDeclined, QuickTalkPayload{
		RoomID:      qt.RoomID,
		WorkspaceID: qt.WorkspaceID,
		FromUserID:  qt.InitiatorUserID,
		UserID:      me.UserID,
	})
	return nil
}

func (c *Coordinator) handleQuickTalkCancel(connectionID string, message signaling.Message) error {
	p, err := signaling.Decode[signaling.QuickTalkReplyPayload](message, c.validator)
	if err != nil {
		return err
	}
	qt, ok := c.quickTalks[p.RoomID]
	if !ok {
		return errNoQuickTalk
	}
	me, ok := c.presence.GetBySocket(connectionID)
	if connectionID != qt.InitiatorConnectionID && (!ok || me.WorkspaceID != qt.WorkspaceID || me.UserID != qt.InitiatorUserID) {
		return errNotQuickPeer
	}
	c.cancelQuickTalk(qt, cancelReasonInitiator)
	return nil
}

func (c *Coordinator) cancelQuickTalk(qt *pendingQuickTalk, reason string) {
	delete(c.quickTalks, qt.RoomID)
	appmetrics.RecordQuickTalk(reason)

	c.sendMany(c.participants(qt), signaling.MessageTypeQuickTalkCancelled, QuickTalkPayload{
		RoomID:      qt.RoomID,
		WorkspaceID: qt.WorkspaceID,
		FromUserID:  qt.InitiatorUserID,
		Reason:      reason,
	})
}

// cancelQuickTalksFrom drops every request the connection initiated.
func (c *Coordinator) cancelQuickTalksFrom(connectionID string) {
	var ids []string
	for id, qt := range c.quickTalks {
		if qt.InitiatorConnectionID == connectionID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		c.cancelQuickTalk(c.quickTalks[id], cancelReasonDisconnected)
	}
}
