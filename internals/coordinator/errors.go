package coordinator

import (
	"errors"

	"github.com/huddlehq/huddle-signal/internals/roomstate"
	"github.com/huddlehq/huddle-signal/internals/signaling"
)

// replyError is a failure the coordinator reports to the sender.
type replyError struct {
	code      string
	message   string
	retryable bool
}

func (e *replyError) Error() string { return e.code + ": " + e.message }

func newReplyError(code, message string, retryable bool) *replyError {
	return &replyError{code: code, message: message, retryable: retryable}
}

var (
	errRateLimited   = newReplyError(signaling.CodeRateLimited, "too many messages, slow down", true)
	errRoomMismatch  = newReplyError(signaling.CodeRoomMismatch, "workspace or room does not match your membership", false)
	errPeerNotFound  = newReplyError(signaling.CodePeerNotFound, "target peer is not in the room", true)
	errNotConnected  = newReplyError(signaling.CodeNotConnected, "send presence:connect first", false)
	errTargetMissing = newReplyError(signaling.CodeTargetNotFound, "target user is not online", false)
	errTargetDND     = newReplyError(signaling.CodeTargetDND, "target user does not want to be disturbed", false)
	errQuickTalkSelf = newReplyError(signaling.CodeQuickTalkSelf, "cannot quick talk yourself", false)
	errNoQuickTalk   = newReplyError(signaling.CodeQuickTalkMissing, "quick talk request not found", false)
	errNotQuickPeer  = newReplyError(signaling.CodeNotQuickTalkPeer, "not a participant of this quick talk", false)
)

var reasonMessages = map[roomstate.Reason]string{
	roomstate.ErrNotInRoom:             "join a room first",
	roomstate.ErrRoomNotFound:          "room does not exist",
	roomstate.ErrScreenShareActive:     "someone else is already sharing their screen",
	roomstate.ErrNotActiveScreenSharer: "you are not sharing your screen",
	roomstate.ErrTargetNotInRoom:       "a target user is not in the room",
	roomstate.ErrCannotCrosstalkSelf:   "cannot start a crosstalk with yourself",
	roomstate.ErrCrosstalkNotFound:     "crosstalk does not exist",
	roomstate.ErrNotInCrosstalk:        "you are not part of this crosstalk",
	roomstate.ErrInviterNotInRoom:      "inviter is not in the room",
	roomstate.ErrInviteeNotInRoom:      "an invitee is not in the room",
	roomstate.ErrInvitationNotFound:    "invitation does not exist",
	roomstate.ErrNotInvited:            "you were not invited",
	roomstate.ErrNoTargets:             "name at least one other user",
}

// toErrorPayload maps any handler error onto the wire shape. Only store
// reasons, validation failures and reply errors are expected here.
func toErrorPayload(err error) signaling.ErrorPayload {
	var (
		reply  *replyError
		reason roomstate.Reason
		verr   *signaling.ValidationError
	)
	switch {
	case errors.As(err, &reply):
		return signaling.ErrorPayload{Code: reply.code, Message: reply.message, Retryable: reply.retryable}
	case errors.As(err, &reason):
		msg, ok := reasonMessages[reason]
		if !ok {
			msg = string(reason)
		}
		return signaling.ErrorPayload{Code: string(reason), Message: msg}
	case errors.As(err, &verr):
		return signaling.ErrorPayload{Code: signaling.CodeInvalidPayload, Message: verr.Error()}
	default:
		return signaling.ErrorPayload{Code: signaling.CodeInternal, Message: "internal error"}
	}
}
