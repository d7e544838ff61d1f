package websocket

// reapStale sweeps the registry for sessions whose connection is no longer
// open and evicts each one. Runs on the hub loop at reapInterval. Each
// eviction is isolated: a failure closing one connection never stops the
// sweep from reaching the rest.
func (h *Hub) reapStale() {
	h.mu.RLock()
	stale := make([]string, 0)
	for id, s := range h.sessions {
		if !s.IsOpen() {
			stale = append(stale, id)
		}
	}
	h.mu.RUnlock()

	if len(stale) == 0 {
		return
	}
	h.logger.Info("reaping stale sessions", "count", len(stale))
	for _, id := range stale {
		h.handleDisconnect(id)
	}
}
