package roomstate

import (
	"sort"
	"time"
)

type invitation struct {
	id          string
	inviter     string
	inviterName string
	invitees    []string
	accepted    map[string]struct{}
	declined    map[string]struct{}
	createdAt   time.Time
	seq         uint64
}

func (inv *invitation) snapshot(r *room) Invitation {
	return Invitation{
		ID:                 inv.id,
		WorkspaceID:        r.workspaceID,
		RoomID:             r.roomID,
		InviterUserID:      inv.inviter,
		InviterDisplayName: inv.inviterName,
		InviteeUserIDs:     append([]string(nil), inv.invitees...),
		AcceptedUserIDs:    sortedKeys(inv.accepted),
		DeclinedUserIDs:    sortedKeys(inv.declined),
		CreatedAt:          inv.createdAt,
	}
}

func (inv *invitation) invited(userID string) bool {
	for _, id := range inv.invitees {
		if id == userID {
			return true
		}
	}
	return false
}

func (inv *invitation) allAccepted() bool {
	if len(inv.invitees) == 0 {
		return false
	}
	for _, id := range inv.invitees {
		if _, ok := inv.accepted[id]; !ok {
			return false
		}
	}
	return true
}

// CreateCrosstalkInvitation opens an invitation from inviterUserID to every
// invitee. All of them must currently be in the room.
func (s *Store) CreateCrosstalkInvitation(workspaceID, roomID, inviterUserID string, inviteeUserIDs []string, now time.Time) (Invitation, error) {
	r, ok := s.rooms[RoomKey(workspaceID, roomID)]
	if !ok {
		return Invitation{}, ErrRoomNotFound
	}
	inviter, ok := r.peers[inviterUserID]
	if !ok {
		return Invitation{}, ErrInviterNotInRoom
	}

	invitees := dedupe(inviteeUserIDs)
	if len(invitees) == 0 {
		return Invitation{}, ErrNoTargets
	}
	for _, id := range invitees {
		if id == inviterUserID {
			return Invitation{}, ErrCannotCrosstalkSelf
		}
		if !r.hasPeer(id) {
			return Invitation{}, ErrInviteeNotInRoom
		}
	}

	inv := &invitation{
		id:          s.newID(),
		inviter:     inviterUserID,
		inviterName: inviter.DisplayName,
		invitees:    invitees,
		accepted:    make(map[string]struct{}),
		declined:    make(map[string]struct{}),
		createdAt:   now,
		seq:         s.nextSeq(),
	}
	r.invitations[inv.id] = inv
	return inv.snapshot(r), nil
}

func (s *Store) lookupInvitation(workspaceID, roomID, invitationID, userID string) (*room, *invitation, error) {
	r, ok := s.rooms[RoomKey(workspaceID, roomID)]
	if !ok {
		return nil, nil, ErrRoomNotFound
	}
	inv, ok := r.invitations[invitationID]
	if !ok {
		return nil, nil, ErrInvitationNotFound
	}
	if !inv.invited(userID) {
		return nil, nil, ErrNotInvited
	}
	return r, inv, nil
}

// AcceptCrosstalkInvitation records userID's acceptance. Once every invitee
// has accepted the invitation is removed and AllAccepted is reported.
func (s *Store) AcceptCrosstalkInvitation(workspaceID, roomID, invitationID, userID string) (InvitationOutcome, error) {
	r, inv, err := s.lookupInvitation(workspaceID, roomID, invitationID, userID)
	if err != nil {
		return InvitationOutcome{}, err
	}

	inv.accepted[userID] = struct{}{}
	out := InvitationOutcome{}
	if inv.allAccepted() {
		delete(r.invitations, inv.id)
		out.AllAccepted = true
	}
	out.Invitation = inv.snapshot(r)
	return out, nil
}

// DeclineCrosstalkInvitation withdraws userID from the invitation. The
// invitation is removed when nobody is left to answer, and resolves as
// accepted when everyone remaining already accepted.
func (s *Store) DeclineCrosstalkInvitation(workspaceID, roomID, invitationID, userID string) (InvitationOutcome, error) {
	r, inv, err := s.lookupInvitation(workspaceID, roomID, invitationID, userID)
	if err != nil {
		return InvitationOutcome{}, err
	}

	remaining := inv.invitees[:0]
	for _, id := range inv.invitees {
		if id != userID {
			remaining = append(remaining, id)
		}
	}
	inv.invitees = remaining
	delete(inv.accepted, userID)
	inv.declined[userID] = struct{}{}

	out := InvitationOutcome{}
	switch {
	case len(inv.invitees) == 0:
		delete(r.invitations, inv.id)
		out.Cancelled = true
	case inv.allAccepted():
		delete(r.invitations, inv.id)
		out.AllAccepted = true
	}
	out.Invitation = inv.snapshot(r)
	return out, nil
}

// ExpireCrosstalkInvitations removes every invitation at least InvitationTTL
// old and returns them.
func (s *Store) ExpireCrosstalkInvitations(now time.Time) []ExpiredInvitation {
	var expired []ExpiredInvitation
	keys := make([]string, 0, len(s.rooms))
	for key := range s.rooms {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		r := s.rooms[key]
		for _, inv := range r.sortedInvitations() {
			if now.Sub(inv.createdAt) >= InvitationTTL {
				delete(r.invitations, inv.id)
				expired = append(expired, ExpiredInvitation{Invitation: inv.snapshot(r)})
			}
		}
	}
	return expired
}

// GetCrosstalkInvitation returns a pending invitation.
func (s *Store) GetCrosstalkInvitation(workspaceID, roomID, invitationID string) (Invitation, bool) {
	r, ok := s.rooms[RoomKey(workspaceID, roomID)]
	if !ok {
		return Invitation{}, false
	}
	inv, ok := r.invitations[invitationID]
	if !ok {
		return Invitation{}, false
	}
	return inv.snapshot(r), true
}

// GetInvitations lists the pending invitations of a room.
func (s *Store) GetInvitations(workspaceID, roomID string) []Invitation {
	r, ok := s.rooms[RoomKey(workspaceID, roomID)]
	if !ok {
		return nil
	}
	return r.invitationList()
}

func (r *room) sortedInvitations() []*invitation {
	out := make([]*invitation, 0, len(r.invitations))
	for _, inv := range r.invitations {
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func (r *room) invitationList() []Invitation {
	invs := r.sortedInvitations()
	out := make([]Invitation, 0, len(invs))
	for _, inv := range invs {
		out = append(out, inv.snapshot(r))
	}
	return out
}
