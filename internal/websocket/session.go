package websocket

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size allowed from peer; clients only send small
	// room:join / room:leave control frames
	maxFrameSize = 1024
)

var ErrSessionClosed = errors.New("session closed")

// Conn is the subset of *websocket.Conn the hub needs. Tests substitute a
// mock; production code always passes a gorilla connection.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	Close() error
}

// Identity is extracted once from the verified token at connect time and
// never changes for the session's lifetime.
type Identity struct {
	UserID      string
	DisplayName string
}

// Session is one authenticated live connection. The connection handle is
// exclusively owned here: nothing else writes to it.
type Session struct {
	id       string
	identity Identity
	hub      *Hub
	conn     Conn

	// rooms is mutated only by the hub loop; the mutex exists for
	// read-side accessors called from HTTP handlers.
	rooms map[string]struct{}
	mu    sync.RWMutex

	// writeMu serializes frame writes between broadcasts and the ping loop.
	writeMu sync.Mutex

	closed int32

	ctx    context.Context
	cancel context.CancelFunc
}

func newSession(hub *Hub, conn Conn, identity Identity) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:       uuid.New().String(),
		identity: identity,
		hub:      hub,
		conn:     conn,
		rooms:    make(map[string]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Identity() Identity {
	return s.identity
}

// Rooms returns a copy of the session's joined room ids.
func (s *Session) Rooms() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rooms := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		rooms = append(rooms, id)
	}
	return rooms
}

func (s *Session) inRoom(roomID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[roomID]
	return ok
}

func (s *Session) addRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[roomID] = struct{}{}
}

func (s *Session) removeRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
}

// IsOpen reports whether the connection is still usable. Broadcasts and the
// reaper treat a non-open session as an implicit disconnect.
func (s *Session) IsOpen() bool {
	return atomic.LoadInt32(&s.closed) == 0
}

func (s *Session) markClosed() {
	if atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		s.cancel()
	}
}

// shutdown closes the underlying connection. Safe to call repeatedly.
func (s *Session) shutdown() {
	s.markClosed()
	if err := s.conn.Close(); err != nil {
		slog.Debug("error closing connection", "sessionID", s.id, "userID", s.identity.UserID, "error", err)
	}
}

// write sends one serialized envelope. A failed write marks the session
// closed so the hub evicts it.
func (s *Session) write(data []byte) error {
	if !s.IsOpen() {
		return ErrSessionClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.markClosed()
		return err
	}
	return nil
}

// readPump consumes inbound control frames until the connection dies, then
// hands the session back to the hub for cleanup.
func (s *Session) readPump() {
	defer func() {
		s.markClosed()
		select {
		case s.hub.unregister <- s:
		case <-s.hub.ctx.Done():
		case <-time.After(5 * time.Second):
			slog.Warn("timeout sending unregister request", "sessionID", s.id, "userID", s.identity.UserID)
		}
		if err := s.conn.Close(); err != nil {
			slog.Debug("error closing connection", "sessionID", s.id, "error", err)
		}
	}()

	s.conn.SetReadLimit(maxFrameSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		if !s.IsOpen() {
			return websocket.ErrCloseSent
		}
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("websocket read error", "sessionID", s.id, "userID", s.identity.UserID, "error", err)
			} else {
				slog.Debug("websocket connection closed", "sessionID", s.id, "userID", s.identity.UserID)
			}
			return
		}

		frame, err := parseClientFrame(raw)
		if err != nil {
			// A malformed frame never costs the client its connection.
			slog.Warn("discarding malformed frame", "sessionID", s.id, "userID", s.identity.UserID, "error", err)
			continue
		}
		if frame == nil {
			continue
		}

		select {
		case s.hub.frames <- &sessionFrame{session: s, frame: frame}:
		case <-s.ctx.Done():
			return
		case <-time.After(5 * time.Second):
			slog.Warn("timeout handing frame to hub", "sessionID", s.id, "userID", s.identity.UserID)
		}
	}
}

// pingLoop keeps the connection alive; a failed ping marks the session dead
// and lets the read deadline tear it down.
func (s *Session) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !s.IsOpen() {
				return
			}
			s.writeMu.Lock()
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := s.conn.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				slog.Debug("ping failed", "sessionID", s.id, "userID", s.identity.UserID, "error", err)
				s.markClosed()
				return
			}
		case <-s.ctx.Done():
			return
		}
	}
}
