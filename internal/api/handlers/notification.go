package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"heartchat-service/internal/models"
	"heartchat-service/internal/repositories/postgres"
	ws "heartchat-service/internal/websocket"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	notifications *postgres.NotificationRepository
	hub           *ws.Hub
}

func NewNotificationHandler(notifications *postgres.NotificationRepository, hub *ws.Hub) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, hub: hub}
}

func (h *NotificationHandler) List(c *gin.Context) {
	userID := c.GetUint("user_id")
	ns, err := h.notifications.FindByUserID(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load notifications"})
		return
	}
	c.JSON(http.StatusOK, ns)
}

// Create persists a notification and pushes notification:created to every
// live session.
func (h *NotificationHandler) Create(c *gin.Context) {
	var req models.CreateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	n := &models.Notification{
		UserID:  req.UserID,
		ChatID:  req.ChatID,
		Kind:    req.Kind,
		Preview: req.Preview,
	}
	if err := h.notifications.Create(n); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save notification"})
		return
	}

	payload := ws.NotificationCreatedPayload{
		ID:        int64(n.ID),
		UserID:    int64(n.UserID),
		Kind:      n.Kind,
		Preview:   n.Preview,
		Read:      n.Read,
		CreatedAt: n.CreatedAt.UTC().Format(time.RFC3339),
	}
	if n.ChatID != nil {
		id := int64(*n.ChatID)
		payload.ChatID = &id
	}
	h.broadcast(ws.EnvelopeNotificationCreated, payload)

	c.JSON(http.StatusCreated, n)
}

func (h *NotificationHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}

	n, err := h.notifications.FindByID(uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
		return
	}
	if err := h.notifications.Delete(uint(id)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete notification"})
		return
	}

	payload := ws.NotificationDeletedPayload{NotificationID: int64(n.ID)}
	if n.ChatID != nil {
		chatID := int64(*n.ChatID)
		payload.ChatID = &chatID
	}
	h.broadcast(ws.EnvelopeNotificationDeleted, payload)

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Clear removes every notification for the given chats and announces it
// globally.
func (h *NotificationHandler) Clear(c *gin.Context) {
	userID := c.GetUint("user_id")

	var req models.ClearNotificationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.notifications.ClearByChatIDs(userID, req.ChatIDs); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear notifications"})
		return
	}

	chatIDs := make([]int64, len(req.ChatIDs))
	for i, id := range req.ChatIDs {
		chatIDs[i] = int64(id)
	}
	h.broadcast(ws.EnvelopeNotificationCleared, ws.NotificationClearedPayload{ChatIDs: chatIDs})

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// MarkRead marks a chat's notifications read and tells that chat's room.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID := c.GetUint("user_id")
	chatID, err := strconv.ParseUint(c.Param("chatId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	if err := h.notifications.MarkReadByChatID(userID, uint(chatID)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark notifications read"})
		return
	}

	h.broadcast(ws.EnvelopeNotificationsRead, ws.NotificationsReadPayload{
		ChatID: ws.RoomID(strconv.FormatUint(chatID, 10)),
	})

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *NotificationHandler) broadcast(t ws.EnvelopeType, payload interface{}) {
	env, err := ws.NewEnvelope(t, payload)
	if err != nil {
		slog.Error("failed to build notification envelope", "type", t, "error", err)
		return
	}
	if _, err := h.hub.Broadcast(env); err != nil {
		// notifications:read targets a room that may have no live members
		slog.Warn("notification broadcast failed", "type", t, "error", err)
	}
}
