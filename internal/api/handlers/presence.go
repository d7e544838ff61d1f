package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// PresenceStore is the read side of the presence records the hub maintains
// in Redis.
type PresenceStore interface {
	GetOnlineUsers(ctx context.Context) ([]string, error)
	IsUserOnline(ctx context.Context, userID string) (bool, error)
}

// PresenceHandler serves the internal presence endpoints next to the room
// debug endpoint.
type PresenceHandler struct {
	store PresenceStore
}

func NewPresenceHandler(store PresenceStore) *PresenceHandler {
	return &PresenceHandler{store: store}
}

// List returns every user currently marked online.
func (h *PresenceHandler) List(c *gin.Context) {
	users, err := h.store.GetOnlineUsers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load presence"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"online": users, "count": len(users)})
}

// Check reports whether one user is online.
func (h *PresenceHandler) Check(c *gin.Context) {
	userID := c.Param("id")
	online, err := h.store.IsUserOnline(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check presence"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": userID, "online": online})
}
