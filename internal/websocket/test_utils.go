package websocket

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errConnClosed = errors.New("connection closed")

// mockConn implements the Conn interface for tests. ReadMessage blocks until
// the connection is closed, like an idle websocket peer.
type mockConn struct {
	mu       sync.Mutex
	messages [][]byte
	closed   bool
	done     chan struct{}
}

func newMockConn() *mockConn {
	return &mockConn{done: make(chan struct{})}
}

func (m *mockConn) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errConnClosed
	}
	if data != nil {
		m.messages = append(m.messages, data)
	}
	return nil
}

func (m *mockConn) ReadMessage() (int, []byte, error) {
	<-m.done
	return 0, nil, errConnClosed
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

func (m *mockConn) SetReadLimit(int64)                {}
func (m *mockConn) SetReadDeadline(time.Time) error   { return nil }
func (m *mockConn) SetWriteDeadline(time.Time) error  { return nil }
func (m *mockConn) SetPongHandler(func(string) error) {}

func (m *mockConn) sent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.messages))
	copy(out, m.messages)
	return out
}

// mockStore records membership snapshots and presence changes in memory.
type mockStore struct {
	mu        sync.Mutex
	snapshots []map[string][]string
	seed      map[string][]string
	online    map[string]bool
}

func newMockStore() *mockStore {
	return &mockStore{online: make(map[string]bool)}
}

func (s *mockStore) SaveMembershipSnapshot(_ context.Context, rooms map[string][]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := make(map[string][]string, len(rooms))
	for room, ids := range rooms {
		snap[room] = append([]string(nil), ids...)
	}
	s.snapshots = append(s.snapshots, snap)
	return nil
}

func (s *mockStore) LoadMembershipSnapshot(_ context.Context) (map[string][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seed, nil
}

func (s *mockStore) SetUserOnline(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online[userID] = true
	return nil
}

func (s *mockStore) SetUserOffline(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online[userID] = false
	return nil
}

func (s *mockStore) latestSnapshot() map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.snapshots) == 0 {
		return nil
	}
	return s.snapshots[len(s.snapshots)-1]
}

func createTestHub(store StateStore) *Hub {
	return NewHub(store, time.Minute, nil)
}

// createTestSession builds a session with a mock connection and places it in
// the registry directly, bypassing the run loop the way the hub loop itself
// would.
func createTestSession(h *Hub, userID string) (*Session, *mockConn) {
	conn := newMockConn()
	s := newSession(h, conn, Identity{UserID: userID, DisplayName: "user-" + userID})
	h.addSession(s)
	return s, conn
}
