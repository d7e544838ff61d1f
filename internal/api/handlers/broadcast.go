package handlers

import (
	"errors"
	"net/http"

	ws "heartchat-service/internal/websocket"

	"github.com/gin-gonic/gin"
)

// BroadcastHandler serves the internal broadcast endpoint used by sibling
// components to push events to connected clients.
type BroadcastHandler struct {
	hub *ws.Hub
}

func NewBroadcastHandler(hub *ws.Hub) *BroadcastHandler {
	return &BroadcastHandler{hub: hub}
}

// HandleBroadcast validates the envelope and fans it out. Zero recipients is
// a success: it means the room has no live listeners right now.
func (h *BroadcastHandler) HandleBroadcast(c *gin.Context) {
	var env ws.Envelope
	if err := c.ShouldBindJSON(&env); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body is not a valid envelope"})
		return
	}

	recipients, err := h.hub.Broadcast(&env)
	if err != nil {
		switch {
		case errors.Is(err, ws.ErrInvalidEnvelope), errors.Is(err, ws.ErrMissingRoomID):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, ws.ErrRoomNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "broadcast failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "recipients": recipients})
}

// HandleRooms exposes live and recovered membership for debugging.
func (h *BroadcastHandler) HandleRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"sessions":  h.hub.SessionCount(),
		"rooms":     h.hub.RoomCount(),
		"recovered": h.hub.RecoveredRooms(),
	})
}
