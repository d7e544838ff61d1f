package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"heartchat-service/internal/adapters/kafka"
	"heartchat-service/internal/models"
	"heartchat-service/internal/repositories/postgres"
	ws "heartchat-service/internal/websocket"

	"github.com/gin-gonic/gin"
)

type MessageHandler struct {
	messages *postgres.MessageRepository
	users    *postgres.UserRepository
	hub      *ws.Hub
	producer *kafka.Producer
}

func NewMessageHandler(messages *postgres.MessageRepository, users *postgres.UserRepository, hub *ws.Hub, producer *kafka.Producer) *MessageHandler {
	return &MessageHandler{messages: messages, users: users, hub: hub, producer: producer}
}

// PostMessage persists a message, fans it out to the conversation's room,
// and publishes it to the event stream. Broadcast and stream failures do not
// fail the request: the message is already durable.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	userID := c.GetUint("user_id")
	username := c.GetString("username")

	var req models.PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg := &models.Message{
		ConversationID:    req.ConversationID,
		UserID:            &userID,
		Content:           req.Content,
		SenderName:        username,
		EligibilityStatus: models.EligibilityPending,
		AttachmentURL:     req.AttachmentURL,
	}
	if err := h.messages.Create(msg); err != nil {
		slog.Error("failed to persist message", "userID", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save message"})
		return
	}

	roomID := strconv.FormatUint(uint64(msg.ConversationID), 10)
	env, err := ws.NewEnvelope(ws.EnvelopeChatMessage, ws.ChatMessagePayload{
		RoomID:  ws.RoomID(roomID),
		Message: toWireMessage(msg),
	})
	if err == nil {
		if _, err := h.hub.Broadcast(env); err != nil {
			slog.Warn("message broadcast failed", "messageID", msg.ID, "roomID", roomID, "error", err)
		}
	}

	if h.producer != nil {
		if err := h.producer.Publish(roomID, msg); err != nil {
			slog.Warn("failed to publish message event", "messageID", msg.ID, "error", err)
		}
	}

	c.JSON(http.StatusCreated, msg)
}

// GetConversationMessages pages a conversation's history.
func (h *MessageHandler) GetConversationMessages(c *gin.Context) {
	conversationID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	msgs, err := h.messages.FindByConversationID(uint(conversationID), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// AwardPoints records a heart-point award and broadcasts it to the message's
// room.
func (h *MessageHandler) AwardPoints(c *gin.Context) {
	messageID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	var req models.AwardPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	awardedBy := c.GetString("username")
	msg, err := h.messages.AwardPoints(uint(messageID), req.Points, awardedBy)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}
	if msg.UserID != nil {
		if err := h.users.AddHeartPoints(*msg.UserID, req.Points); err != nil {
			slog.Error("failed to credit user points", "userID", *msg.UserID, "error", err)
		}
	}

	roomID := strconv.FormatUint(uint64(msg.ConversationID), 10)
	env, err := ws.NewEnvelope(ws.EnvelopePointsAwarded, ws.PointsAwardedPayload{
		RoomID:    ws.RoomID(roomID),
		MessageID: int64(msg.ID),
		Points:    req.Points,
		Type:      req.Type,
		AwardedBy: &awardedBy,
		AwardedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err == nil {
		if _, err := h.hub.Broadcast(env); err != nil {
			slog.Warn("points broadcast failed", "messageID", msg.ID, "error", err)
		}
	}

	c.JSON(http.StatusOK, msg)
}

func toWireMessage(msg *models.Message) ws.ChatMessageRecord {
	record := ws.ChatMessageRecord{
		ID:                  int64(msg.ID),
		ConversationID:      int64(msg.ConversationID),
		Content:             msg.Content,
		IsAI:                msg.IsAI,
		SenderName:          msg.SenderName,
		CreatedAt:           msg.CreatedAt.UTC().Format(time.RFC3339),
		EligibilityStatus:   string(msg.EligibilityStatus),
		EligibilityReasons:  msg.EligibilityReasons,
		HeartPointsReceived: msg.HeartPointsReceived,
	}
	if msg.UserID != nil {
		id := int64(*msg.UserID)
		record.UserID = &id
	}
	if msg.HeartPointsAwardedAt != nil {
		at := msg.HeartPointsAwardedAt.UTC().Format(time.RFC3339)
		record.HeartPointsAwardedAt = &at
	}
	record.HeartPointsAwardedBy = msg.HeartPointsAwardedBy
	return record
}
