package websocket

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestValidateBroadcastScopes(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		global  bool
		roomID  string
		wantErr error
	}{
		{
			name:   "ChatMessageStringRoom",
			raw:    `{"type":"chat:message","payload":{"roomId":"42","message":{"id":1,"conversation_id":42,"content":"hi","sender_name":"a","created_at":"2024-01-01T00:00:00Z"}}}`,
			roomID: "42",
		},
		{
			name:   "ChatMessageNumericRoom",
			raw:    `{"type":"chat:message","payload":{"roomId":42,"message":{"id":1,"conversation_id":42,"content":"hi","sender_name":"a","created_at":"2024-01-01T00:00:00Z"}}}`,
			roomID: "42",
		},
		{
			name:    "ChatMessageNoRoom",
			raw:     `{"type":"chat:message","payload":{"message":{"id":1}}}`,
			wantErr: ErrMissingRoomID,
		},
		{
			name:   "NotificationCreatedIsGlobal",
			raw:    `{"type":"notification:created","payload":{"id":1,"userId":2,"kind":"mention","preview":"hey","read":false,"createdAt":"2024-01-01T00:00:00Z"}}`,
			global: true,
		},
		{
			name:   "NotificationDeletedIsGlobal",
			raw:    `{"type":"notification:deleted","payload":{"notificationId":5,"chatId":42}}`,
			global: true,
		},
		{
			name:   "NotificationClearedIsGlobal",
			raw:    `{"type":"notification:cleared","payload":{"chatIds":[1,2,3]}}`,
			global: true,
		},
		{
			name:   "NotificationsReadChatIDActsAsRoom",
			raw:    `{"type":"notifications:read","payload":{"chatId":42}}`,
			roomID: "42",
		},
		{
			name:   "PointsAwarded",
			raw:    `{"type":"points:awarded","payload":{"roomId":"42","messageId":7,"points":3,"type":"HP","awardedBy":"bob","awardedAt":"2024-01-01T00:00:00Z"}}`,
			roomID: "42",
		},
		{
			name:    "PointsAwardedBadType",
			raw:     `{"type":"points:awarded","payload":{"roomId":"42","messageId":7,"points":3,"type":"XP","awardedAt":"2024-01-01T00:00:00Z"}}`,
			wantErr: ErrInvalidEnvelope,
		},
		{
			name:    "UnknownTag",
			raw:     `{"type":"not:a:real:tag","payload":{}}`,
			wantErr: ErrInvalidEnvelope,
		},
		{
			name:    "ControlFrameRejected",
			raw:     `{"type":"room:join","payload":{"roomId":"42"}}`,
			wantErr: ErrInvalidEnvelope,
		},
		{
			name:    "EmptyType",
			raw:     `{"payload":{}}`,
			wantErr: ErrInvalidEnvelope,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var env Envelope
			if err := json.Unmarshal([]byte(tc.raw), &env); err != nil {
				t.Fatalf("test input does not parse: %v", err)
			}
			d, err := ValidateBroadcast(&env)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("want %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.Global != tc.global {
				t.Errorf("global = %v, want %v", d.Global, tc.global)
			}
			if d.RoomID != tc.roomID {
				t.Errorf("roomID = %q, want %q", d.RoomID, tc.roomID)
			}
		})
	}
}

func TestParseClientFrame(t *testing.T) {
	t.Run("Join", func(t *testing.T) {
		f, err := parseClientFrame([]byte(`{"type":"room:join","payload":{"roomId":"42"}}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if f.kind != EnvelopeRoomJoin || f.roomID != "42" {
			t.Fatalf("got %+v", f)
		}
	})

	t.Run("NumericRoomID", func(t *testing.T) {
		f, err := parseClientFrame([]byte(`{"type":"room:leave","payload":{"roomId":42}}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if f.kind != EnvelopeRoomLeave || f.roomID != "42" {
			t.Fatalf("got %+v", f)
		}
	})

	t.Run("Malformed", func(t *testing.T) {
		if _, err := parseClientFrame([]byte(`{not json`)); err == nil {
			t.Fatal("expected error for malformed frame")
		}
	})

	t.Run("MissingRoomID", func(t *testing.T) {
		if _, err := parseClientFrame([]byte(`{"type":"room:join","payload":{}}`)); err == nil {
			t.Fatal("expected error for join without roomId")
		}
	})

	t.Run("NonControlTagIgnored", func(t *testing.T) {
		f, err := parseClientFrame([]byte(`{"type":"chat:message","payload":{"roomId":"1"}}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if f != nil {
			t.Fatalf("non-control frame should be ignored, got %+v", f)
		}
	})
}

func TestEnvelopeRoundTrip(t *testing.T) {
	awardedBy := "bob"
	env, err := NewEnvelope(EnvelopePointsAwarded, PointsAwardedPayload{
		RoomID:    "42",
		MessageID: 7,
		Points:    3,
		Type:      "H2HP",
		AwardedBy: &awardedBy,
		AwardedAt: "2024-01-01T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	d, err := ValidateBroadcast(env)
	if err != nil {
		t.Fatalf("ValidateBroadcast: %v", err)
	}
	if d.RoomID != "42" || d.Global {
		t.Fatalf("unexpected delivery %+v", d)
	}
}
