package websocket

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func chatEnvelope(t *testing.T, roomID string) *Envelope {
	t.Helper()
	env, err := NewEnvelope(EnvelopeChatMessage, ChatMessagePayload{
		RoomID: RoomID(roomID),
		Message: ChatMessageRecord{
			ID:             1,
			ConversationID: 42,
			Content:        "hello",
			SenderName:     "alice",
			CreatedAt:      "2024-01-01T00:00:00Z",
		},
	})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	return env
}

func TestJoinLeaveIdempotence(t *testing.T) {
	hub := createTestHub(newMockStore())
	s, _ := createTestSession(hub, "1")

	hub.joinRoom(s, "42")
	hub.joinRoom(s, "42")

	if got := hub.RoomMembers("42"); len(got) != 1 || got[0] != s.ID() {
		t.Fatalf("expected exactly one membership entry, got %v", got)
	}
	if got := s.Rooms(); len(got) != 1 {
		t.Fatalf("expected session to hold one room, got %v", got)
	}

	hub.leaveRoom(s, "42")
	hub.leaveRoom(s, "42")

	if hub.RoomCount() != 0 {
		t.Fatalf("expected empty room to be deleted, have %d rooms", hub.RoomCount())
	}
	if len(s.Rooms()) != 0 {
		t.Fatalf("expected session room set to be empty, got %v", s.Rooms())
	}
}

func TestDisconnectCleansAllRooms(t *testing.T) {
	hub := createTestHub(newMockStore())
	s, _ := createTestSession(hub, "1")
	other, _ := createTestSession(hub, "2")

	hub.joinRoom(s, "a")
	hub.joinRoom(s, "b")
	hub.joinRoom(s, "c")
	hub.joinRoom(other, "b")

	hub.handleDisconnect(s.ID())

	for _, roomID := range []string{"a", "c"} {
		if members := hub.RoomMembers(roomID); members != nil {
			t.Errorf("room %q should be gone after disconnect, got members %v", roomID, members)
		}
	}
	if members := hub.RoomMembers("b"); len(members) != 1 || members[0] != other.ID() {
		t.Errorf("room b should keep only the other session, got %v", members)
	}
	if hub.SessionCount() != 1 {
		t.Errorf("registry should hold 1 session, has %d", hub.SessionCount())
	}

	// Second disconnect for the same id is a safe no-op.
	hub.handleDisconnect(s.ID())
	if hub.SessionCount() != 1 {
		t.Errorf("repeat disconnect changed the registry, now %d sessions", hub.SessionCount())
	}
}

func TestBroadcastCountsOnlyLiveSessions(t *testing.T) {
	hub := createTestHub(newMockStore())
	s1, c1 := createTestSession(hub, "1")
	s2, c2 := createTestSession(hub, "2")
	s3, c3 := createTestSession(hub, "3")

	hub.joinRoom(s1, "42")
	hub.joinRoom(s2, "42")
	hub.joinRoom(s3, "42")

	// s2's connection dies silently.
	c2.Close()
	s2.markClosed()

	res := hub.deliver(chatEnvelope(t, "42"), Delivery{RoomID: "42"})
	if res.err != nil {
		t.Fatalf("deliver: %v", res.err)
	}
	if res.recipients != 2 {
		t.Fatalf("expected 2 recipients, got %d", res.recipients)
	}
	if len(c1.sent()) != 1 || len(c3.sent()) != 1 {
		t.Errorf("open sessions should each have one frame, got %d and %d", len(c1.sent()), len(c3.sent()))
	}
	if len(c2.sent()) != 0 {
		t.Errorf("closed session received %d frames", len(c2.sent()))
	}

	// The dead session was disconnected inline.
	if hub.SessionCount() != 2 {
		t.Errorf("dead session should be evicted, registry has %d", hub.SessionCount())
	}
	for _, id := range hub.RoomMembers("42") {
		if id == s2.ID() {
			t.Errorf("dead session still listed in room membership")
		}
	}
}

func TestGlobalBroadcastIgnoresRoomMembership(t *testing.T) {
	hub := createTestHub(newMockStore())
	s1, c1 := createTestSession(hub, "1")
	_, c2 := createTestSession(hub, "2")
	s3, c3 := createTestSession(hub, "3")

	hub.joinRoom(s1, "a")
	hub.joinRoom(s3, "b")
	// s2 is in no room at all.

	env, err := NewEnvelope(EnvelopeNotificationCleared, NotificationClearedPayload{ChatIDs: []int64{1, 2}})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	delivery, err := ValidateBroadcast(env)
	if err != nil {
		t.Fatalf("ValidateBroadcast: %v", err)
	}
	if !delivery.Global {
		t.Fatalf("notification:cleared should be global")
	}

	res := hub.deliver(env, delivery)
	if res.recipients != 3 {
		t.Fatalf("expected all 3 sessions, got %d", res.recipients)
	}
	for i, c := range []*mockConn{c1, c2, c3} {
		if len(c.sent()) != 1 {
			t.Errorf("session %d received %d frames, want 1", i+1, len(c.sent()))
		}
	}
}

func TestBroadcastErrors(t *testing.T) {
	hub := createTestHub(newMockStore())
	go hub.Run()
	defer hub.Stop()

	t.Run("UnknownTag", func(t *testing.T) {
		n, err := hub.Broadcast(&Envelope{Type: "not:a:real:tag", Payload: json.RawMessage(`{}`)})
		if !errors.Is(err, ErrInvalidEnvelope) {
			t.Fatalf("expected ErrInvalidEnvelope, got %v", err)
		}
		if n != 0 {
			t.Fatalf("expected zero recipients, got %d", n)
		}
	})

	t.Run("ControlTagNotBroadcastable", func(t *testing.T) {
		_, err := hub.Broadcast(&Envelope{Type: EnvelopeRoomJoin, Payload: json.RawMessage(`{"roomId":"1"}`)})
		if !errors.Is(err, ErrInvalidEnvelope) {
			t.Fatalf("expected ErrInvalidEnvelope, got %v", err)
		}
	})

	t.Run("MissingRoomID", func(t *testing.T) {
		env, _ := NewEnvelope(EnvelopeNotificationsRead, NotificationsReadPayload{})
		_, err := hub.Broadcast(env)
		if !errors.Is(err, ErrMissingRoomID) {
			t.Fatalf("expected ErrMissingRoomID, got %v", err)
		}
	})

	t.Run("RoomNotFound", func(t *testing.T) {
		_, err := hub.Broadcast(chatEnvelope(t, "no-such-room"))
		if !errors.Is(err, ErrRoomNotFound) {
			t.Fatalf("expected ErrRoomNotFound, got %v", err)
		}
	})
}

// The concrete two-session scenario: both receive, one disconnects, the
// remaining one still receives.
func TestRoomBroadcastScenario(t *testing.T) {
	hub := createTestHub(newMockStore())
	a, connA := createTestSession(hub, "alice")
	b, connB := createTestSession(hub, "bob")

	hub.joinRoom(a, "42")
	hub.joinRoom(b, "42")

	res := hub.deliver(chatEnvelope(t, "42"), Delivery{RoomID: "42"})
	if res.recipients != 2 {
		t.Fatalf("first broadcast: expected 2 recipients, got %d", res.recipients)
	}

	var got Envelope
	if err := json.Unmarshal(connA.sent()[0], &got); err != nil {
		t.Fatalf("delivered frame is not a valid envelope: %v", err)
	}
	if got.Type != EnvelopeChatMessage {
		t.Fatalf("delivered frame has type %q", got.Type)
	}

	hub.handleDisconnect(a.ID())

	res = hub.deliver(chatEnvelope(t, "42"), Delivery{RoomID: "42"})
	if res.recipients != 1 {
		t.Fatalf("second broadcast: expected 1 recipient, got %d", res.recipients)
	}
	if len(connB.sent()) != 2 {
		t.Fatalf("remaining session should hold 2 frames, has %d", len(connB.sent()))
	}
	if len(connA.sent()) != 1 {
		t.Fatalf("disconnected session should still hold only 1 frame, has %d", len(connA.sent()))
	}
}

func TestMembershipSnapshotPersistence(t *testing.T) {
	store := newMockStore()
	hub := createTestHub(store)
	go hub.snapshotWriter()
	defer hub.Stop()

	s1, _ := createTestSession(hub, "1")
	s2, _ := createTestSession(hub, "2")

	hub.joinRoom(s1, "42")
	hub.joinRoom(s2, "42")
	hub.joinRoom(s2, "7")

	waitFor(t, func() bool {
		snap := store.latestSnapshot()
		return len(snap["42"]) == 2 && len(snap["7"]) == 1
	}, "snapshot after joins")

	hub.handleDisconnect(s2.ID())

	waitFor(t, func() bool {
		snap := store.latestSnapshot()
		_, has7 := snap["7"]
		return len(snap["42"]) == 1 && !has7
	}, "snapshot after disconnect drops drained rooms")
}

// A session id recovered into the index without a live registry entry is
// healed on the next broadcast rather than trusted for delivery.
func TestBroadcastHealsGhostMembers(t *testing.T) {
	hub := createTestHub(newMockStore())
	s, _ := createTestSession(hub, "1")
	hub.joinRoom(s, "42")

	hub.mu.Lock()
	hub.rooms["42"]["ghost-session-id"] = struct{}{}
	hub.mu.Unlock()

	res := hub.deliver(chatEnvelope(t, "42"), Delivery{RoomID: "42"})
	if res.recipients != 1 {
		t.Fatalf("expected 1 recipient, got %d", res.recipients)
	}
	for _, id := range hub.RoomMembers("42") {
		if id == "ghost-session-id" {
			t.Fatalf("ghost entry survived broadcast")
		}
	}
}

func TestRecoveredSnapshotNotUsedForDelivery(t *testing.T) {
	store := newMockStore()
	store.seed = map[string][]string{"42": {"stale-a", "stale-b"}}
	hub := createTestHub(store)
	hub.loadSnapshot()

	recovered := hub.RecoveredRooms()
	if len(recovered["42"]) != 2 {
		t.Fatalf("expected recovered membership to be exposed, got %v", recovered)
	}

	// The live index starts empty: a broadcast sees no room at all.
	res := hub.deliver(chatEnvelope(t, "42"), Delivery{RoomID: "42"})
	if !errors.Is(res.err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound for recovered-only room, got %v", res.err)
	}
}

func TestAttachAndBroadcastThroughRunLoop(t *testing.T) {
	hub := createTestHub(newMockStore())
	go hub.Run()
	defer hub.Stop()

	conn := newMockConn()
	s, err := hub.Attach(conn, Identity{UserID: "9", DisplayName: "carol"})
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	waitFor(t, func() bool { return hub.SessionCount() == 1 }, "session registered")

	// Join via the frame channel, as the read pump would.
	hub.frames <- &sessionFrame{session: s, frame: &clientFrame{kind: EnvelopeRoomJoin, roomID: "42"}}
	waitFor(t, func() bool { return len(hub.RoomMembers("42")) == 1 }, "join processed")

	n, err := hub.Broadcast(chatEnvelope(t, "42"))
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 recipient, got %d", n)
	}

	// Closing the connection ends the read pump, which unregisters.
	conn.Close()
	waitFor(t, func() bool { return hub.SessionCount() == 0 }, "session unregistered on close")
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
