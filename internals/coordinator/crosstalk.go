package coordinator

import (
	"go.uber.org/zap"

	appmetrics "github.com/huddlehq/huddle-signal/internals/metrics"
	"github.com/huddlehq/huddle-signal/internals/roomstate"
	"github.com/huddlehq/huddle-signal/internals/signaling"
)

func (c *Coordinator) handleCrosstalkStart(connectionID string, message signaling.Message) error {
	p, err := signaling.Decode[signaling.CrosstalkStartPayload](message, c.validator)
	if err != nil {
		return err
	}
	res, err := c.rooms.StartCrosstalk(connectionID, p.TargetUserIDs)
	if err != nil {
		return err
	}
	c.announceCrosstalkFormed(res)
	return nil
}

// announceCrosstalkFormed publishes auto-left crosstalks before the new one
// so no client ever sees a user in two crosstalks.
func (c *Coordinator) announceCrosstalkFormed(res roomstate.CrosstalkStartResult) {
	for _, id := range res.AutoLeftCrosstalkIDs {
		c.publishRoom(res.Membership, signaling.MessageTypeCrosstalkEnded, CrosstalkEndedPayload{
			WorkspaceID: res.WorkspaceID,
			RoomID:      res.RoomID,
			CrosstalkID: id,
		})
	}
	for _, ct := range res.UpdatedCrosstalks {
		c.publishRoom(res.Membership, signaling.MessageTypeCrosstalkUpdated, CrosstalkPayload{
			WorkspaceID: res.WorkspaceID,
			RoomID:      res.RoomID,
			Crosstalk:   ct,
		})
	}
	c.publishRoom(res.Membership, signaling.MessageTypeCrosstalkStarted, CrosstalkPayload{
		WorkspaceID: res.WorkspaceID,
		RoomID:      res.RoomID,
		Crosstalk:   res.Crosstalk,
	})

	c.logger.Debug("Crosstalk started",
		zap.String("roomKey", res.RoomKey),
		zap.String("crosstalkID", res.Crosstalk.ID),
		zap.Strings("participants", res.Crosstalk.ParticipantUserIDs),
		zap.Strings("autoLeft", res.AutoLeftCrosstalkIDs),
	)
}

func (c *Coordinator) handleCrosstalkEnd(connectionID string, message signaling.Message) error {
	p, err := signaling.Decode[signaling.CrosstalkEndPayload](message, c.validator)
	if err != nil {
		return err
	}
	res, err := c.rooms.EndCrosstalk(connectionID, p.CrosstalkID)
	if err != nil {
		return err
	}
	c.publishRoom(res.Membership, signaling.MessageTypeCrosstalkEnded, CrosstalkEndedPayload{
		WorkspaceID: res.WorkspaceID,
		RoomID:      res.RoomID,
		CrosstalkID: res.Crosstalk.ID,
	})
	return nil
}

func (c *Coordinator) handleCrosstalkInvite(connectionID string, message signaling.Message) error {
	p, err := signaling.Decode[signaling.CrosstalkInvitePayload](message, c.validator)
	if err != nil {
		return err
	}
	m, err := c.membershipFor(connectionID, p.WorkspaceID, p.RoomID)
	if err != nil {
		return err
	}
	inv, err := c.rooms.CreateCrosstalkInvitation(m.WorkspaceID, m.RoomID, m.UserID, p.InviteeUserIDs, c.now())
	if err != nil {
		return err
	}

	appmetrics.RecordInvitation("created")
	c.sendToRoomUsers(m.WorkspaceID, m.RoomID, inv.InviteeUserIDs, signaling.MessageTypeCrosstalkInvited, InvitationPayload{Invitation: inv})
	c.send(connectionID, signaling.MessageTypeCrosstalkInviteSent, InvitationPayload{Invitation: inv})
	return nil
}

func (c *Coordinator) handleCrosstalkAccept(connectionID string, message signaling.Message) error {
	p, err := signaling.Decode[signaling.CrosstalkReplyPayload](message, c.validator)
	if err != nil {
		return err
	}
	m, err := c.membershipFor(connectionID, p.WorkspaceID, p.RoomID)
	if err != nil {
		return err
	}
	out, err := c.rooms.AcceptCrosstalkInvitation(m.WorkspaceID, m.RoomID, p.InvitationID, m.UserID)
	if err != nil {
		return err
	}

	c.sendToRoomUsers(m.WorkspaceID, m.RoomID, out.Invitation.Audience(), signaling.MessageTypeCrosstalkInviteAccepted, InvitationReplyPayload{
		Invitation:  out.Invitation,
		UserID:      m.UserID,
		AllAccepted: out.AllAccepted,
	})
	if out.AllAccepted {
		c.materialize(out.Invitation)
	}
	return nil
}

func (c *Coordinator) handleCrosstalkDecline(connectionID string, message signaling.Message) error {
	p, err := signaling.Decode[signaling.CrosstalkReplyPayload](message, c.validator)
	if err != nil {
		return err
	}
	m, err := c.membershipFor(connectionID, p.WorkspaceID, p.RoomID)
	if err != nil {
		return err
	}
	out, err := c.rooms.DeclineCrosstalkInvitation(m.WorkspaceID, m.RoomID, p.InvitationID, m.UserID)
	if err != nil {
		return err
	}

	// The decliner is no longer in the invitation's audience.
	audience := append(out.Invitation.Audience(), m.UserID)
	c.sendToRoomUsers(m.WorkspaceID, m.RoomID, audience, signaling.MessageTypeCrosstalkInviteDeclined, InvitationReplyPayload{
		Invitation:  out.Invitation,
		UserID:      m.UserID,
		AllAccepted: out.AllAccepted,
		Cancelled:   out.Cancelled,
	})

	switch {
	case out.Cancelled:
		appmetrics.RecordInvitation("declined")
	case out.AllAccepted:
		c.materialize(out.Invitation)
	}
	return nil
}

// materialize forms the crosstalk of a fully accepted invitation. It uses
// the same auto-leave rules as an explicit crosstalk start. If anyone left
// the room meanwhile the invitation is reported as expired instead.
func (c *Coordinator) materialize(inv roomstate.Invitation) {
	res, err := c.rooms.FormCrosstalk(inv.WorkspaceID, inv.RoomID, inv.InviterUserID, inv.InviteeUserIDs)
	if err != nil {
		c.logger.Info("Accepted invitation could not form a crosstalk",
			zap.String("invitationID", inv.ID),
			zap.Error(err),
		)
		appmetrics.RecordInvitation("failed")
		c.notifyInvitationExpired(inv, expiryReasonParticipantLeft)
		return
	}
	appmetrics.RecordInvitation("accepted")
	c.announceCrosstalkFormed(res)
}

func (c *Coordinator) notifyInvitationExpired(inv roomstate.Invitation, reason string) {
	c.sendToRoomUsers(inv.WorkspaceID, inv.RoomID, inv.Audience(), signaling.MessageTypeCrosstalkInviteExpired, InvitationExpiredPayload{
		Invitation: inv,
		Reason:     reason,
	})
}
