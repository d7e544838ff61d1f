package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"
)

var ErrHubClosed = errors.New("hub is shut down")

// StateStore persists the durable side of the hub: the room membership
// snapshot (overwritten wholesale on every change) and user presence. The
// snapshot is bookkeeping for restarts, never a delivery source; only
// sessions in the in-memory registry receive broadcasts.
type StateStore interface {
	SaveMembershipSnapshot(ctx context.Context, rooms map[string][]string) error
	LoadMembershipSnapshot(ctx context.Context) (map[string][]string, error)
	SetUserOnline(ctx context.Context, userID string) error
	SetUserOffline(ctx context.Context, userID string) error
}

type sessionFrame struct {
	session *Session
	frame   *clientFrame
}

type broadcastResult struct {
	recipients int
	err        error
}

type broadcastRequest struct {
	env      *Envelope
	delivery Delivery
	reply    chan broadcastResult
}

// Hub is the connection coordinator: the single logical owner of the session
// registry and the room membership index. All mutations are funneled through
// its run loop, so one connect, disconnect, inbound frame, broadcast, or reap
// sweep completes before the next is considered.
type Hub struct {
	// Session registry: sessionID -> live session.
	sessions map[string]*Session

	// Room membership index: roomID -> set of sessionID. Entries are
	// deleted as soon as they drain empty.
	rooms map[string]map[string]struct{}

	// Membership recovered from the snapshot at startup. Intended
	// membership only; live sessions re-register on reconnect.
	recovered map[string][]string

	register   chan *Session
	unregister chan *Session
	frames     chan *sessionFrame
	broadcasts chan *broadcastRequest

	// snapshots holds at most the latest pending snapshot; a dedicated
	// writer goroutine drains it so persistence never blocks the loop.
	snapshots chan map[string][]string

	store        StateStore
	reapInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	// mu guards the maps for read-only accessors called outside the loop.
	mu sync.RWMutex

	logger *slog.Logger
}

func NewHub(store StateStore, reapInterval time.Duration, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if reapInterval <= 0 {
		reapInterval = 60 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		sessions:     make(map[string]*Session),
		rooms:        make(map[string]map[string]struct{}),
		register:     make(chan *Session),
		unregister:   make(chan *Session),
		frames:       make(chan *sessionFrame),
		broadcasts:   make(chan *broadcastRequest),
		snapshots:    make(chan map[string][]string, 1),
		store:        store,
		reapInterval: reapInterval,
		ctx:          ctx,
		cancel:       cancel,
		logger:       logger,
	}
}

// Run drives the coordinator loop until Stop is called.
func (h *Hub) Run() {
	h.loadSnapshot()
	go h.snapshotWriter()

	reap := time.NewTicker(h.reapInterval)
	defer reap.Stop()

	for {
		select {
		case s := <-h.register:
			h.addSession(s)

		case s := <-h.unregister:
			h.handleDisconnect(s.id)

		case sf := <-h.frames:
			h.dispatchFrame(sf.session, sf.frame)

		case req := <-h.broadcasts:
			req.reply <- h.deliver(req.env, req.delivery)

		case <-reap.C:
			h.reapStale()

		case <-h.ctx.Done():
			h.logger.Info("hub shutting down")
			return
		}
	}
}

func (h *Hub) Stop() {
	h.cancel()
}

// Attach registers an already-authenticated connection and starts its pumps.
// Called by the upgrade handler after token verification succeeds.
func (h *Hub) Attach(conn Conn, identity Identity) (*Session, error) {
	s := newSession(h, conn, identity)
	select {
	case h.register <- s:
	case <-h.ctx.Done():
		conn.Close()
		return nil, ErrHubClosed
	case <-time.After(5 * time.Second):
		conn.Close()
		return nil, errors.New("timeout registering session")
	}
	go s.readPump()
	go s.pingLoop()
	return s, nil
}

// Broadcast validates the envelope, then fans it out on the hub loop. The
// returned count is the number of live sessions that accepted the frame;
// zero recipients is a valid result, not an error.
func (h *Hub) Broadcast(env *Envelope) (int, error) {
	delivery, err := ValidateBroadcast(env)
	if err != nil {
		return 0, err
	}
	req := &broadcastRequest{env: env, delivery: delivery, reply: make(chan broadcastResult, 1)}
	select {
	case h.broadcasts <- req:
	case <-h.ctx.Done():
		return 0, ErrHubClosed
	}
	res := <-req.reply
	return res.recipients, res.err
}

func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// RoomMembers returns the session ids currently joined to a room.
func (h *Hub) RoomMembers(roomID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members, ok := h.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// RecoveredRooms exposes the membership reloaded from the snapshot at
// startup, for reconciliation and debugging.
func (h *Hub) RecoveredRooms() map[string][]string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string][]string, len(h.recovered))
	for room, ids := range h.recovered {
		out[room] = append([]string(nil), ids...)
	}
	return out
}

func (h *Hub) addSession(s *Session) {
	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()

	h.logger.Info("session registered", "sessionID", s.id, "userID", s.identity.UserID)

	if h.store != nil {
		go func() {
			if err := h.store.SetUserOnline(h.ctx, s.identity.UserID); err != nil {
				h.logger.Error("failed to set user online", "userID", s.identity.UserID, "error", err)
			}
		}()
	}
}

func (h *Hub) dispatchFrame(s *Session, f *clientFrame) {
	switch f.kind {
	case EnvelopeRoomJoin:
		h.joinRoom(s, f.roomID)
	case EnvelopeRoomLeave:
		h.leaveRoom(s, f.roomID)
	}
}

// joinRoom is idempotent: rejoining a room the session already holds is a
// no-op and does not rewrite the snapshot.
func (h *Hub) joinRoom(s *Session, roomID string) {
	if s.inRoom(roomID) {
		return
	}
	s.addRoom(roomID)

	h.mu.Lock()
	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		h.rooms[roomID] = members
	}
	members[s.id] = struct{}{}
	h.mu.Unlock()

	h.logger.Info("session joined room", "sessionID", s.id, "userID", s.identity.UserID, "roomID", roomID)
	h.persistSnapshot()
}

func (h *Hub) leaveRoom(s *Session, roomID string) {
	if !s.inRoom(roomID) {
		return
	}
	s.removeRoom(roomID)
	h.removeMember(roomID, s.id)

	h.logger.Info("session left room", "sessionID", s.id, "userID", s.identity.UserID, "roomID", roomID)
	h.persistSnapshot()
}

// removeMember drops a session id from a room and deletes the room entry
// once it drains empty, so no dangling empty rooms accumulate.
func (h *Hub) removeMember(roomID, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(members, sessionID)
	if len(members) == 0 {
		delete(h.rooms, roomID)
	}
}

// handleDisconnect removes the session from the registry and from every room
// it joined. Idempotent: the second call for the same id is a no-op.
func (h *Hub) handleDisconnect(sessionID string) {
	h.mu.Lock()
	s, ok := h.sessions[sessionID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, sessionID)
	h.mu.Unlock()

	for _, roomID := range s.Rooms() {
		h.removeMember(roomID, sessionID)
	}
	s.shutdown()

	h.logger.Info("session disconnected", "sessionID", sessionID, "userID", s.identity.UserID)
	h.persistSnapshot()

	if h.store != nil {
		go func() {
			if err := h.store.SetUserOffline(h.ctx, s.identity.UserID); err != nil {
				h.logger.Error("failed to set user offline", "userID", s.identity.UserID, "error", err)
			}
		}()
	}
}

// deliver fans one validated envelope out to its target sessions. Dead
// connections found along the way are disconnected inline and excluded from
// the recipient count; one bad session never aborts delivery to the rest.
func (h *Hub) deliver(env *Envelope, d Delivery) broadcastResult {
	data, err := json.Marshal(env)
	if err != nil {
		return broadcastResult{err: err}
	}

	var targets []*Session
	if d.Global {
		h.mu.RLock()
		targets = make([]*Session, 0, len(h.sessions))
		for _, s := range h.sessions {
			targets = append(targets, s)
		}
		h.mu.RUnlock()
	} else {
		h.mu.Lock()
		members, ok := h.rooms[d.RoomID]
		if !ok {
			h.mu.Unlock()
			return broadcastResult{err: ErrRoomNotFound}
		}
		healed := false
		targets = make([]*Session, 0, len(members))
		for sid := range members {
			s, live := h.sessions[sid]
			if !live {
				// Stale entry, e.g. left over from a crash: heal lazily.
				delete(members, sid)
				healed = true
				continue
			}
			targets = append(targets, s)
		}
		if len(members) == 0 {
			delete(h.rooms, d.RoomID)
		}
		h.mu.Unlock()
		if healed {
			h.persistSnapshot()
		}
	}

	recipients := 0
	for _, s := range targets {
		if !s.IsOpen() {
			h.handleDisconnect(s.id)
			continue
		}
		if err := s.write(data); err != nil {
			h.logger.Debug("dropping dead session during broadcast", "sessionID", s.id, "error", err)
			h.handleDisconnect(s.id)
			continue
		}
		recipients++
	}

	h.logger.Debug("broadcast delivered", "type", env.Type, "roomID", d.RoomID, "global", d.Global, "recipients", recipients)
	return broadcastResult{recipients: recipients}
}

// persistSnapshot queues the current membership for the writer goroutine.
// Only the newest pending snapshot matters, since each write overwrites the
// whole record.
func (h *Hub) persistSnapshot() {
	if h.store == nil {
		return
	}
	h.mu.RLock()
	snap := make(map[string][]string, len(h.rooms))
	for roomID, members := range h.rooms {
		ids := make([]string, 0, len(members))
		for sid := range members {
			ids = append(ids, sid)
		}
		sort.Strings(ids)
		snap[roomID] = ids
	}
	h.mu.RUnlock()

	select {
	case h.snapshots <- snap:
	default:
		select {
		case <-h.snapshots:
		default:
		}
		h.snapshots <- snap
	}
}

func (h *Hub) snapshotWriter() {
	for {
		select {
		case snap := <-h.snapshots:
			if err := h.store.SaveMembershipSnapshot(h.ctx, snap); err != nil {
				h.logger.Error("failed to persist membership snapshot", "error", err)
			}
		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Hub) loadSnapshot() {
	if h.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
	defer cancel()
	snap, err := h.store.LoadMembershipSnapshot(ctx)
	if err != nil {
		h.logger.Warn("could not load membership snapshot", "error", err)
		return
	}
	h.mu.Lock()
	h.recovered = snap
	h.mu.Unlock()
	if len(snap) > 0 {
		h.logger.Info("recovered membership snapshot", "rooms", len(snap))
	}
}
