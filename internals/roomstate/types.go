package roomstate

import (
	"sort"
	"time"
)

// InvitationTTL is how long a crosstalk invitation stays open.
const InvitationTTL = 30 * time.Second

// Peer is one user's membership record within a room.
type Peer struct {
	UserID          string    `json:"userId"`
	DisplayName     string    `json:"displayName"`
	ConnectionID    string    `json:"connectionId"`
	JoinedAt        time.Time `json:"joinedAt"`
	LastHeartbeatAt time.Time `json:"lastHeartbeatAt"`
}

// Membership is the reverse index entry for a connection.
type Membership struct {
	RoomKey     string `json:"roomKey"`
	WorkspaceID string `json:"workspaceId"`
	RoomID      string `json:"roomId"`
	UserID      string `json:"userId"`
}

// Crosstalk is a snapshot of a private side conversation inside a room.
type Crosstalk struct {
	ID                 string   `json:"id"`
	InitiatorUserID    string   `json:"initiatorUserId"`
	ParticipantUserIDs []string `json:"participantUserIds"`
}

// Has reports whether userID participates in the crosstalk.
func (c Crosstalk) Has(userID string) bool {
	for _, id := range c.ParticipantUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Invitation is a snapshot of a pending crosstalk invitation.
type Invitation struct {
	ID                 string    `json:"invitationId"`
	WorkspaceID        string    `json:"workspaceId"`
	RoomID             string    `json:"roomId"`
	InviterUserID      string    `json:"inviterUserId"`
	InviterDisplayName string    `json:"inviterDisplayName"`
	InviteeUserIDs     []string  `json:"inviteeUserIds"`
	AcceptedUserIDs    []string  `json:"acceptedUserIds"`
	DeclinedUserIDs    []string  `json:"declinedUserIds"`
	CreatedAt          time.Time `json:"createdAt"`
}

// Audience returns the inviter followed by every invitee.
func (inv Invitation) Audience() []string {
	out := make([]string, 0, len(inv.InviteeUserIDs)+1)
	out = append(out, inv.InviterUserID)
	out = append(out, inv.InviteeUserIDs...)
	return out
}

// RoomSummary is the list view of a room.
type RoomSummary struct {
	WorkspaceID              string `json:"workspaceId"`
	RoomID                   string `json:"roomId"`
	PeerCount                int    `json:"peerCount"`
	ActiveScreenSharerUserID string `json:"activeScreenSharerUserId,omitempty"`
	CrosstalkCount           int    `json:"crosstalkCount"`
	QuickTalk                bool   `json:"quickTalk"`
}

// RoomDetails is the detail view of a room.
type RoomDetails struct {
	RoomSummary
	Peers       []Peer       `json:"peers"`
	Crosstalks  []Crosstalk  `json:"crosstalks"`
	Invitations []Invitation `json:"invitations"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// JoinResult is returned by JoinPeer.
type JoinResult struct {
	Membership
	Peers                    []Peer
	ActiveScreenSharerUserID string
	Crosstalks               []Crosstalk
	// Previous is set when the connection was a member of another room, or
	// joined under another user, and had to leave first.
	Previous *LeaveResult
	// ReplacedConnectionID is the connection that previously held this
	// user's seat in the room.
	ReplacedConnectionID string
}

// LeaveResult describes the cleanup cascade of a departing peer.
type LeaveResult struct {
	Membership
	ConnectionID             string
	ScreenShareCleared       bool
	ActiveScreenSharerUserID string
	RemovedCrosstalkIDs      []string
	UpdatedCrosstalks        []Crosstalk
	RemainingPeers           int
	RoomDeleted              bool
	// Stale is set when the connection no longer held the seat, so nobody
	// actually left.
	Stale bool
}

// ScreenShareResult is returned by the screen share operations.
type ScreenShareResult struct {
	Membership
}

// CrosstalkStartResult is returned when a crosstalk is formed. Ended and
// updated crosstalks must be announced before the new one.
type CrosstalkStartResult struct {
	Membership
	Crosstalk            Crosstalk
	AutoLeftCrosstalkIDs []string
	UpdatedCrosstalks    []Crosstalk
}

// CrosstalkEndResult is returned by EndCrosstalk.
type CrosstalkEndResult struct {
	Membership
	Crosstalk Crosstalk
}

// InvitationOutcome is returned by accept and decline.
type InvitationOutcome struct {
	Invitation Invitation
	// AllAccepted is set when every remaining invitee has accepted. The
	// invitation has been removed and the caller should form the crosstalk.
	AllAccepted bool
	// Cancelled is set when the last invitee declined.
	Cancelled bool
}

// ExpiredInvitation is an invitation removed by the TTL sweep.
type ExpiredInvitation struct {
	Invitation Invitation
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
