package handlers

import (
	"log/slog"
	"net/http"
	"os"
	"strings"

	"heartchat-service/internal/auth"
	ws "heartchat-service/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		allowedOrigins := []string{
			"http://localhost:3000",
			"https://localhost:3000",
		}
		if customOrigins := os.Getenv("ALLOWED_ORIGINS"); customOrigins != "" {
			for _, o := range strings.Split(customOrigins, ",") {
				allowedOrigins = append(allowedOrigins, strings.TrimSpace(o))
			}
		}
		for _, allowed := range allowedOrigins {
			if origin == allowed {
				return true
			}
		}
		// Allow localhost variations for development
		return origin != "" && (strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1"))
	},
}

type WSHandler struct {
	hub       *ws.Hub
	jwtSecret string
}

func NewWSHandler(hub *ws.Hub, jwtSecret string) *WSHandler {
	return &WSHandler{hub: hub, jwtSecret: jwtSecret}
}

// HandleWebSocket authenticates the bearer token from the `token` query
// parameter and upgrades the connection. Verification failures are rejected
// with 401 before any upgrade happens.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	tokenString := c.Query("token")
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token is required"})
		return
	}
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")

	identity, err := auth.Verify(tokenString, h.jwtSecret)
	if err != nil {
		slog.Warn("websocket auth failed", "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "userID", identity.UserID, "error", err)
		return
	}

	session, err := h.hub.Attach(conn, ws.Identity{
		UserID:      identity.UserID,
		DisplayName: identity.DisplayName,
	})
	if err != nil {
		slog.Error("failed to attach session", "userID", identity.UserID, "error", err)
		return
	}
	slog.Info("websocket connection established", "sessionID", session.ID(), "userID", identity.UserID)
}
