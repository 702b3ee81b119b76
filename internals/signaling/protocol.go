package signaling

import (
	"encoding/json"
	"fmt"
	"time"
)

type MessageType string

// Inbound events.
const (
	MessageTypePresenceConnect   MessageType = "presence:connect"
	MessageTypePresenceStatus    MessageType = "presence:status"
	MessageTypePresenceHeartbeat MessageType = "presence:heartbeat"

	MessageTypeJoin             MessageType = "signal:join"
	MessageTypeLeave            MessageType = "signal:leave"
	MessageTypeHeartbeat        MessageType = "signal:heartbeat"
	MessageTypeOffer            MessageType = "signal:offer"
	MessageTypeAnswer           MessageType = "signal:answer"
	MessageTypeICECandidate     MessageType = "signal:ice-candidate"
	MessageTypeScreenShareStart MessageType = "signal:screen-share-start"
	MessageTypeScreenShareStop  MessageType = "signal:screen-share-stop"
	MessageTypeCrosstalkStart   MessageType = "signal:crosstalk-start"
	MessageTypeCrosstalkEnd     MessageType = "signal:crosstalk-end"
	MessageTypeCrosstalkInvite  MessageType = "signal:crosstalk-invite"
	MessageTypeCrosstalkAccept  MessageType = "signal:crosstalk-accept"
	MessageTypeCrosstalkDecline MessageType = "signal:crosstalk-decline"

	MessageTypeQuickTalkRequest MessageType = "quick-talk:request"
	MessageTypeQuickTalkAccept  MessageType = "quick-talk:accept"
	MessageTypeQuickTalkDecline MessageType = "quick-talk:decline"
	MessageTypeQuickTalkCancel  MessageType = "quick-talk:cancel"
)

// Outbound events.
const (
	MessageTypeJoined                  MessageType = "signal:joined"
	MessageTypePeerJoined              MessageType = "signal:peer-joined"
	MessageTypePeerLeft                MessageType = "signal:peer-left"
	MessageTypeScreenShareStarted      MessageType = "signal:screen-share-started"
	MessageTypeScreenShareStopped      MessageType = "signal:screen-share-stopped"
	MessageTypeCrosstalkStarted        MessageType = "signal:crosstalk-started"
	MessageTypeCrosstalkUpdated        MessageType = "signal:crosstalk-updated"
	MessageTypeCrosstalkEnded          MessageType = "signal:crosstalk-ended"
	MessageTypeCrosstalkInvited        MessageType = "signal:crosstalk-invited"
	MessageTypeCrosstalkInviteSent     MessageType = "signal:crosstalk-invite-sent"
	MessageTypeCrosstalkInviteAccepted MessageType = "signal:crosstalk-invite-accepted"
	MessageTypeCrosstalkInviteDeclined MessageType = "signal:crosstalk-invite-declined"
	MessageTypeCrosstalkInviteExpired  MessageType = "signal:crosstalk-invite-expired"
	MessageTypeError                   MessageType = "signal:error"

	MessageTypePresenceSnapshot    MessageType = "presence:snapshot"
	MessageTypePresenceUserOnline  MessageType = "presence:user-online"
	MessageTypePresenceUserUpdated MessageType = "presence:user-updated"
	MessageTypePresenceUserOffline MessageType = "presence:user-offline"

	MessageTypeQuickTalkCreated   MessageType = "quick-talk:created"
	MessageTypeQuickTalkIncoming  MessageType = "quick-talk:incoming"
	MessageTypeQuickTalkAccepted  MessageType = "quick-talk:accepted"
	MessageTypeQuickTalkDeclined  MessageType = "quick-talk:declined"
	MessageTypeQuickTalkCancelled MessageType = "quick-talk:cancelled"
)

// Message is the envelope of every frame in both directions.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	From      string          `json:"from,omitempty"`
	To        string          `json:"to,omitempty"`
}

// NewMessage marshals payload into a message of the given type.
func NewMessage(t MessageType, payload interface{}) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Message{Type: t, Data: data, Timestamp: time.Now()}, nil
}

// Error codes that are not store reasons.
const (
	CodeInvalidPayload   = "invalid_payload"
	CodeUnknownEvent     = "unknown_event"
	CodeRateLimited      = "rate_limited"
	CodeRoomMismatch     = "room_mismatch"
	CodePeerNotFound     = "peer_not_found"
	CodeNotConnected     = "not_connected"
	CodeTargetNotFound   = "target_not_found"
	CodeTargetDND        = "target_dnd"
	CodeQuickTalkSelf    = "cannot_quick_talk_self"
	CodeQuickTalkMissing = "quick_talk_not_found"
	CodeNotQuickTalkPeer = "not_quick_talk_participant"
	CodeInternal         = "internal_error"
)

// ErrorPayload is the data of a signal:error message.
type ErrorPayload struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Retryable bool        `json:"retryable"`
	Event     MessageType `json:"event,omitempty"`
}
