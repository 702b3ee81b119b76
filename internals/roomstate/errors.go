package roomstate

// Reason is an expected precondition failure reported by the store. Its string
// form is the stable code sent to clients.
type Reason string

func (r Reason) Error() string { return string(r) }

const (
	ErrNotInRoom             Reason = "not_in_room"
	ErrRoomNotFound          Reason = "room_not_found"
	ErrScreenShareActive     Reason = "screen_share_already_active"
	ErrNotActiveScreenSharer Reason = "not_active_screen_sharer"
	ErrTargetNotInRoom       Reason = "target_not_in_room"
	ErrCannotCrosstalkSelf   Reason = "cannot_crosstalk_self"
	ErrCrosstalkNotFound     Reason = "crosstalk_not_found"
	ErrNotInCrosstalk        Reason = "not_in_crosstalk"
	ErrInviterNotInRoom      Reason = "inviter_not_in_room"
	ErrInviteeNotInRoom      Reason = "invitee_not_in_room"
	ErrInvitationNotFound    Reason = "invitation_not_found"
	ErrNotInvited            Reason = "not_invited"
	ErrNoTargets             Reason = "no_targets"
)
