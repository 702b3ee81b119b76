package roomstate

import "sort"

type crosstalk struct {
	id           string
	initiator    string
	participants map[string]struct{}
	seq          uint64
}

func (c *crosstalk) snapshot() Crosstalk {
	return Crosstalk{
		ID:                 c.id,
		InitiatorUserID:    c.initiator,
		ParticipantUserIDs: sortedKeys(c.participants),
	}
}

// StartCrosstalk forms a crosstalk between the connection's user and
// targetUserIDs. Every participant first leaves the crosstalk it is in.
func (s *Store) StartCrosstalk(connectionID string, targetUserIDs []string) (CrosstalkStartResult, error) {
	m, r, err := s.resolve(connectionID)
	if err != nil {
		return CrosstalkStartResult{}, err
	}

	targets := dedupe(targetUserIDs)
	if len(targets) == 0 {
		return CrosstalkStartResult{}, ErrNoTargets
	}
	for _, id := range targets {
		if id == m.UserID {
			return CrosstalkStartResult{}, ErrCannotCrosstalkSelf
		}
	}
	for _, id := range targets {
		if !r.hasPeer(id) {
			return CrosstalkStartResult{}, ErrTargetNotInRoom
		}
	}

	result := s.form(r, m.UserID, targets)
	result.Membership = m
	return result, nil
}

// FormCrosstalk creates a crosstalk on behalf of initiatorUserID, used when a
// crosstalk invitation was accepted by everyone. It applies the same
// auto-leave rule as StartCrosstalk.
func (s *Store) FormCrosstalk(workspaceID, roomID, initiatorUserID string, targetUserIDs []string) (CrosstalkStartResult, error) {
	key := RoomKey(workspaceID, roomID)
	r, ok := s.rooms[key]
	if !ok {
		return CrosstalkStartResult{}, ErrRoomNotFound
	}
	if !r.hasPeer(initiatorUserID) {
		return CrosstalkStartResult{}, ErrInviterNotInRoom
	}

	targets := dedupe(targetUserIDs)
	if len(targets) == 0 {
		return CrosstalkStartResult{}, ErrNoTargets
	}
	for _, id := range targets {
		if id == initiatorUserID {
			return CrosstalkStartResult{}, ErrCannotCrosstalkSelf
		}
		if !r.hasPeer(id) {
			return CrosstalkStartResult{}, ErrTargetNotInRoom
		}
	}

	result := s.form(r, initiatorUserID, targets)
	result.Membership = Membership{RoomKey: key, WorkspaceID: workspaceID, RoomID: roomID, UserID: initiatorUserID}
	return result, nil
}

func (s *Store) form(r *room, initiator string, targets []string) CrosstalkStartResult {
	members := append([]string{initiator}, targets...)

	touched := make(map[string]struct{})
	for _, id := range members {
		for ct := range r.removeFromCrosstalks(id) {
			touched[ct] = struct{}{}
		}
	}
	autoLeft, updated := r.settle(touched)

	ct := &crosstalk{
		id:           s.newID(),
		initiator:    initiator,
		participants: make(map[string]struct{}, len(members)),
		seq:          s.nextSeq(),
	}
	for _, id := range members {
		ct.participants[id] = struct{}{}
	}
	r.crosstalks[ct.id] = ct

	return CrosstalkStartResult{
		Crosstalk:            ct.snapshot(),
		AutoLeftCrosstalkIDs: autoLeft,
		UpdatedCrosstalks:    updated,
	}
}

// EndCrosstalk removes a crosstalk the connection's user participates in.
func (s *Store) EndCrosstalk(connectionID, crosstalkID string) (CrosstalkEndResult, error) {
	m, r, err := s.resolve(connectionID)
	if err != nil {
		return CrosstalkEndResult{}, err
	}
	ct, ok := r.crosstalks[crosstalkID]
	if !ok {
		return CrosstalkEndResult{}, ErrCrosstalkNotFound
	}
	if _, ok := ct.participants[m.UserID]; !ok {
		return CrosstalkEndResult{}, ErrNotInCrosstalk
	}
	delete(r.crosstalks, crosstalkID)
	return CrosstalkEndResult{Membership: m, Crosstalk: ct.snapshot()}, nil
}

// GetCrosstalks lists the crosstalks of a room in creation order.
func (s *Store) GetCrosstalks(workspaceID, roomID string) []Crosstalk {
	r, ok := s.rooms[RoomKey(workspaceID, roomID)]
	if !ok {
		return nil
	}
	return r.crosstalkList()
}

// removeFromCrosstalks drops userID from every crosstalk of the room and
// returns the ids it touched. Groups below two participants are deleted by
// settle.
func (r *room) removeFromCrosstalks(userID string) map[string]struct{} {
	touched := make(map[string]struct{})
	for id, ct := range r.crosstalks {
		if _, ok := ct.participants[userID]; ok {
			delete(ct.participants, userID)
			touched[id] = struct{}{}
		}
	}
	return touched
}

// settle deletes touched crosstalks left with fewer than two participants and
// snapshots the survivors.
func (r *room) settle(touched map[string]struct{}) (removed []string, updated []Crosstalk) {
	cts := make([]*crosstalk, 0, len(touched))
	for id := range touched {
		if ct, ok := r.crosstalks[id]; ok {
			cts = append(cts, ct)
		}
	}
	sort.Slice(cts, func(i, j int) bool { return cts[i].seq < cts[j].seq })

	for _, ct := range cts {
		if len(ct.participants) < 2 {
			delete(r.crosstalks, ct.id)
			removed = append(removed, ct.id)
			continue
		}
		updated = append(updated, ct.snapshot())
	}
	return removed, updated
}

func (r *room) crosstalkList() []Crosstalk {
	cts := make([]*crosstalk, 0, len(r.crosstalks))
	for _, ct := range r.crosstalks {
		cts = append(cts, ct)
	}
	sort.Slice(cts, func(i, j int) bool { return cts[i].seq < cts[j].seq })

	out := make([]Crosstalk, 0, len(cts))
	for _, ct := range cts {
		out = append(out, ct.snapshot())
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
