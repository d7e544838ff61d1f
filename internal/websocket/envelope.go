package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrInvalidEnvelope = errors.New("invalid broadcast envelope")
	ErrMissingRoomID   = errors.New("room-scoped envelope missing room id")
	ErrRoomNotFound    = errors.New("room not found")
)

// EnvelopeType tags every frame exchanged over a connection and every
// broadcast request. The set is closed: anything outside it is rejected
// at the boundary.
type EnvelopeType string

const (
	// Inbound control frames (client -> coordinator only).
	EnvelopeRoomJoin  EnvelopeType = "room:join"
	EnvelopeRoomLeave EnvelopeType = "room:leave"

	// Room-scoped broadcasts.
	EnvelopeChatMessage       EnvelopeType = "chat:message"
	EnvelopeNotificationsRead EnvelopeType = "notifications:read"
	EnvelopePointsAwarded     EnvelopeType = "points:awarded"

	// Global broadcasts, delivered to every live session.
	EnvelopeNotificationCreated EnvelopeType = "notification:created"
	EnvelopeNotificationDeleted EnvelopeType = "notification:deleted"
	EnvelopeNotificationCleared EnvelopeType = "notification:cleared"
)

func (t EnvelopeType) String() string {
	return string(t)
}

// Envelope is the tagged wire structure. Payload stays raw until the tag is
// known, then decodes into exactly one of the payload structs below.
type Envelope struct {
	Type    EnvelopeType    `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// RoomID accepts both JSON strings and numbers, since chat clients send the
// conversation id either way.
type RoomID string

func (r *RoomID) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty room id")
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = RoomID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*r = RoomID(n.String())
	return nil
}

func (r RoomID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(r))
}

func (r RoomID) String() string {
	return string(r)
}

// ChatMessageRecord mirrors the persisted message row as it appears on the
// wire, heart-point columns included.
type ChatMessageRecord struct {
	ID                   int64    `json:"id"`
	ConversationID       int64    `json:"conversation_id"`
	UserID               *int64   `json:"user_id"`
	Content              string   `json:"content"`
	IsAI                 bool     `json:"is_ai"`
	SenderName           string   `json:"sender_name"`
	CreatedAt            string   `json:"created_at"`
	EligibilityStatus    string   `json:"eligibility_status"`
	EligibilityReasons   []string `json:"eligibility_reasons"`
	HeartPointsReceived  int      `json:"heart_points_received"`
	HeartPointsAwardedAt *string  `json:"heart_points_awarded_at"`
	HeartPointsAwardedBy *string  `json:"heart_points_awarded_by"`
}

type ChatMessagePayload struct {
	RoomID  RoomID            `json:"roomId"`
	Message ChatMessageRecord `json:"message"`
}

type NotificationCreatedPayload struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"userId"`
	ChatID    *int64 `json:"chatId"`
	Kind      string `json:"kind"`
	Preview   string `json:"preview"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"createdAt"`
}

type NotificationDeletedPayload struct {
	NotificationID int64  `json:"notificationId"`
	ChatID         *int64 `json:"chatId,omitempty"`
}

type NotificationClearedPayload struct {
	ChatIDs []int64 `json:"chatIds"`
}

// NotificationsReadPayload is room-scoped: the chat id doubles as the room id.
type NotificationsReadPayload struct {
	ChatID RoomID `json:"chatId"`
}

type PointsAwardedPayload struct {
	RoomID    RoomID  `json:"roomId"`
	MessageID int64   `json:"messageId"`
	Points    int     `json:"points"`
	Type      string  `json:"type"`
	AwardedBy *string `json:"awardedBy"`
	AwardedAt string  `json:"awardedAt"`
}

// RoomControlPayload is the body of room:join / room:leave client frames.
type RoomControlPayload struct {
	RoomID RoomID `json:"roomId"`
}

// Delivery describes where a validated envelope goes.
type Delivery struct {
	Global bool
	RoomID string
}

// ValidateBroadcast checks an envelope against the closed tag set and
// returns its delivery scope. Control tags (room:join / room:leave) are not
// broadcastable and are rejected alongside unknown tags.
func ValidateBroadcast(env *Envelope) (Delivery, error) {
	if env == nil || env.Type == "" {
		return Delivery{}, ErrInvalidEnvelope
	}
	switch env.Type {
	case EnvelopeChatMessage:
		var p ChatMessagePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return Delivery{}, fmt.Errorf("%w: %s payload: %v", ErrInvalidEnvelope, env.Type, err)
		}
		if p.RoomID == "" {
			return Delivery{}, ErrMissingRoomID
		}
		return Delivery{RoomID: p.RoomID.String()}, nil

	case EnvelopeNotificationsRead:
		var p NotificationsReadPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return Delivery{}, fmt.Errorf("%w: %s payload: %v", ErrInvalidEnvelope, env.Type, err)
		}
		if p.ChatID == "" {
			return Delivery{}, ErrMissingRoomID
		}
		return Delivery{RoomID: p.ChatID.String()}, nil

	case EnvelopePointsAwarded:
		var p PointsAwardedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return Delivery{}, fmt.Errorf("%w: %s payload: %v", ErrInvalidEnvelope, env.Type, err)
		}
		if p.Type != "HP" && p.Type != "H2HP" {
			return Delivery{}, fmt.Errorf("%w: unknown points type %q", ErrInvalidEnvelope, p.Type)
		}
		if p.RoomID == "" {
			return Delivery{}, ErrMissingRoomID
		}
		return Delivery{RoomID: p.RoomID.String()}, nil

	case EnvelopeNotificationCreated:
		var p NotificationCreatedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return Delivery{}, fmt.Errorf("%w: %s payload: %v", ErrInvalidEnvelope, env.Type, err)
		}
		return Delivery{Global: true}, nil

	case EnvelopeNotificationDeleted:
		var p NotificationDeletedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return Delivery{}, fmt.Errorf("%w: %s payload: %v", ErrInvalidEnvelope, env.Type, err)
		}
		return Delivery{Global: true}, nil

	case EnvelopeNotificationCleared:
		var p NotificationClearedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return Delivery{}, fmt.Errorf("%w: %s payload: %v", ErrInvalidEnvelope, env.Type, err)
		}
		return Delivery{Global: true}, nil
	}
	return Delivery{}, fmt.Errorf("%w: unknown type %q", ErrInvalidEnvelope, env.Type)
}

// NewEnvelope builds an envelope from a payload struct. Intended for the
// HTTP handlers that persist a record and then push it to live sessions.
func NewEnvelope(t EnvelopeType, payload interface{}) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{Type: t, Payload: raw}, nil
}

// parseClientFrame decodes an inbound control frame. A nil frame with a nil
// error means the tag was recognized but is not a client control frame and
// should be ignored.
func parseClientFrame(data []byte) (*clientFrame, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	switch env.Type {
	case EnvelopeRoomJoin, EnvelopeRoomLeave:
		var p RoomControlPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		if p.RoomID == "" {
			return nil, fmt.Errorf("frame %s missing roomId", env.Type)
		}
		return &clientFrame{kind: env.Type, roomID: p.RoomID.String()}, nil
	}
	return nil, nil
}

type clientFrame struct {
	kind   EnvelopeType
	roomID string
}
