package signaling

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/pion/webrtc/v3"

	"github.com/huddlehq/huddle-signal/internals/presence"
)

var safeIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]+$`)

const maxDisplayNameLength = 256

// ValidationError reports a malformed inbound payload.
type ValidationError struct {
	Field   string
	Problem string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Problem
	}
	return e.Field + " " + e.Problem
}

// Validator checks inbound payload fields.
type Validator struct {
	MaxIDLength int
}

func (v Validator) id(field, value string) error {
	if value == "" {
		return &ValidationError{Field: field, Problem: "is required"}
	}
	if len(value) > v.MaxIDLength {
		return &ValidationError{Field: field, Problem: fmt.Sprintf("exceeds maximum length of %d", v.MaxIDLength)}
	}
	if !safeIDPattern.MatchString(value) {
		return &ValidationError{Field: field, Problem: "contains invalid characters"}
	}
	return nil
}

func (v Validator) ids(field string, values []string) error {
	if len(values) == 0 {
		return &ValidationError{Field: field, Problem: "must not be empty"}
	}
	for _, value := range values {
		if err := v.id(field, value); err != nil {
			return err
		}
	}
	return nil
}

func (v Validator) displayName(value string) error {
	if value == "" {
		return &ValidationError{Field: "displayName", Problem: "is required"}
	}
	if len(value) > maxDisplayNameLength {
		return &ValidationError{Field: "displayName", Problem: fmt.Sprintf("exceeds maximum length of %d", maxDisplayNameLength)}
	}
	return nil
}

// Payload is an inbound payload that can check its own shape.
type Payload interface {
	Validate(v Validator) error
}

// Decode unmarshals and validates the data of an inbound message. Clients
// that send data as a JSON encoded string are tolerated.
func Decode[T Payload](msg Message, v Validator) (T, error) {
	var out T
	data := msg.Data
	if len(data) == 0 {
		data = []byte("{}")
	}
	if err := json.Unmarshal(data, &out); err != nil {
		var inner string
		if err2 := json.Unmarshal(data, &inner); err2 != nil {
			return out, &ValidationError{Problem: "data is not a JSON object"}
		}
		if err3 := json.Unmarshal([]byte(inner), &out); err3 != nil {
			return out, &ValidationError{Problem: "data is not a JSON object"}
		}
	}
	if err := out.Validate(v); err != nil {
		return out, err
	}
	return out, nil
}

// Empty is the payload of events that carry no data.
type Empty struct{}

func (Empty) Validate(Validator) error { return nil }

type PresenceConnectPayload struct {
	WorkspaceID string `json:"workspaceId"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Status      string `json:"status,omitempty"`
}

func (p PresenceConnectPayload) Validate(v Validator) error {
	if err := v.id("workspaceId", p.WorkspaceID); err != nil {
		return err
	}
	if err := v.id("userId", p.UserID); err != nil {
		return err
	}
	if err := v.displayName(p.DisplayName); err != nil {
		return err
	}
	if p.Status == "" || presence.Status(p.Status).Settable() {
		return nil
	}
	return &ValidationError{Field: "status", Problem: "must be one of available, idle, dnd"}
}

type PresenceStatusPayload struct {
	Status string `json:"status"`
}

func (p PresenceStatusPayload) Validate(Validator) error {
	if presence.Status(p.Status).Settable() {
		return nil
	}
	return &ValidationError{Field: "status", Problem: "must be one of available, idle, dnd"}
}

type JoinPayload struct {
	WorkspaceID string `json:"workspaceId"`
	RoomID      string `json:"roomId"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

func (p JoinPayload) Validate(v Validator) error {
	if err := v.id("workspaceId", p.WorkspaceID); err != nil {
		return err
	}
	if err := v.id("roomId", p.RoomID); err != nil {
		return err
	}
	if err := v.id("userId", p.UserID); err != nil {
		return err
	}
	return v.displayName(p.DisplayName)
}

// RelayPayload carries an offer, answer or ICE candidate to one peer. The
// description and candidate are forwarded exactly as received.
type RelayPayload struct {
	WorkspaceID string          `json:"workspaceId"`
	RoomID      string          `json:"roomId"`
	ToUserID    string          `json:"toUserId"`
	Description json.RawMessage `json:"description,omitempty"`
	Candidate   json.RawMessage `json:"candidate,omitempty"`
}

func (p RelayPayload) route(v Validator) error {
	if err := v.id("workspaceId", p.WorkspaceID); err != nil {
		return err
	}
	if err := v.id("roomId", p.RoomID); err != nil {
		return err
	}
	return v.id("toUserId", p.ToUserID)
}

// OfferPayload is a RelayPayload whose description must be an offer.
type OfferPayload struct{ RelayPayload }

func (p OfferPayload) Validate(v Validator) error {
	if err := p.route(v); err != nil {
		return err
	}
	return checkDescription(p.Description, webrtc.SDPTypeOffer)
}

// AnswerPayload is a RelayPayload whose description must be an answer.
type AnswerPayload struct{ RelayPayload }

func (p AnswerPayload) Validate(v Validator) error {
	if err := p.route(v); err != nil {
		return err
	}
	return checkDescription(p.Description, webrtc.SDPTypeAnswer, webrtc.SDPTypePranswer)
}

// ICECandidatePayload is a RelayPayload carrying a candidate. An empty
// candidate string signals end-of-candidates and is allowed.
type ICECandidatePayload struct{ RelayPayload }

func (p ICECandidatePayload) Validate(v Validator) error {
	if err := p.route(v); err != nil {
		return err
	}
	if len(p.Candidate) == 0 {
		return &ValidationError{Field: "candidate", Problem: "is required"}
	}
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(p.Candidate, &init); err != nil {
		return &ValidationError{Field: "candidate", Problem: "is not an ICE candidate object"}
	}
	return nil
}

// checkDescription only looks at the description type; the SDP body is
// opaque to the server.
func checkDescription(raw json.RawMessage, allowed ...webrtc.SDPType) error {
	if len(raw) == 0 {
		return &ValidationError{Field: "description", Problem: "is required"}
	}
	var desc struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}
	if err := json.Unmarshal(raw, &desc); err != nil {
		return &ValidationError{Field: "description", Problem: "is not a session description"}
	}
	if desc.SDP == "" {
		return &ValidationError{Field: "description.sdp", Problem: "is required"}
	}
	got := webrtc.NewSDPType(desc.Type)
	for _, t := range allowed {
		if got == t {
			return nil
		}
	}
	return &ValidationError{Field: "description.type", Problem: fmt.Sprintf("must be %s", allowed[0])}
}

type CrosstalkStartPayload struct {
	TargetUserIDs []string `json:"targetUserIds"`
}

func (p CrosstalkStartPayload) Validate(v Validator) error {
	return v.ids("targetUserIds", p.TargetUserIDs)
}

type CrosstalkEndPayload struct {
	CrosstalkID string `json:"crosstalkId"`
}

func (p CrosstalkEndPayload) Validate(v Validator) error {
	return v.id("crosstalkId", p.CrosstalkID)
}

type CrosstalkInvitePayload struct {
	WorkspaceID    string   `json:"workspaceId"`
	RoomID         string   `json:"roomId"`
	InviteeUserIDs []string `json:"inviteeUserIds"`
}

func (p CrosstalkInvitePayload) Validate(v Validator) error {
	if err := v.id("workspaceId", p.WorkspaceID); err != nil {
		return err
	}
	if err := v.id("roomId", p.RoomID); err != nil {
		return err
	}
	return v.ids("inviteeUserIds", p.InviteeUserIDs)
}

// CrosstalkReplyPayload answers an invitation (accept or decline).
type CrosstalkReplyPayload struct {
	WorkspaceID  string `json:"workspaceId"`
	RoomID       string `json:"roomId"`
	InvitationID string `json:"invitationId"`
}

func (p CrosstalkReplyPayload) Validate(v Validator) error {
	if err := v.id("workspaceId", p.WorkspaceID); err != nil {
		return err
	}
	if err := v.id("roomId", p.RoomID); err != nil {
		return err
	}
	return v.id("invitationId", p.InvitationID)
}

type QuickTalkRequestPayload struct {
	TargetUserID string `json:"targetUserId"`
}

func (p QuickTalkRequestPayload) Validate(v Validator) error {
	return v.id("targetUserId", p.TargetUserID)
}

// QuickTalkReplyPayload accepts, declines or cancels a pending quick talk.
type QuickTalkReplyPayload struct {
	RoomID string `json:"roomId"`
}

func (p QuickTalkReplyPayload) Validate(v Validator) error {
	return v.id("roomId", p.RoomID)
}
