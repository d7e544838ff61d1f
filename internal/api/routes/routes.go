package routes

import (
	"time"

	"heartchat-service/internal/adapters/kafka"
	"heartchat-service/internal/adapters/storage"
	"heartchat-service/internal/api/handlers"
	"heartchat-service/internal/api/middleware"
	"heartchat-service/internal/repositories/postgres"
	"heartchat-service/internal/services"
	"heartchat-service/internal/websocket"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Router struct {
	engine              *gin.Engine
	wsHandler           *handlers.WSHandler
	broadcastHandler    *handlers.BroadcastHandler
	presenceHandler     *handlers.PresenceHandler
	messageHandler      *handlers.MessageHandler
	notificationHandler *handlers.NotificationHandler
	authHandler         *handlers.AuthHandler
	uploadHandler       *handlers.UploadHandler
	rateLimitMW         *middleware.RateLimitMiddleware
	authMW              *middleware.AuthMiddleware
}

func NewRouter(
	hub *websocket.Hub,
	roomState *services.RoomStateService,
	db *gorm.DB,
	producer *kafka.Producer,
	store *storage.MinIOClient,
	jwtSecret string,
	jwtTTL time.Duration,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS())
	engine.Use(middleware.LogAPI())

	userRepo := postgres.NewUserRepository(db)
	messageRepo := postgres.NewMessageRepository(db)
	notificationRepo := postgres.NewNotificationRepository(db)

	userService := services.NewUserService(userRepo, jwtSecret, jwtTTL)

	var uploadHandler *handlers.UploadHandler
	if store != nil {
		uploadHandler = handlers.NewUploadHandler(store)
	}

	return &Router{
		engine:              engine,
		wsHandler:           handlers.NewWSHandler(hub, jwtSecret),
		broadcastHandler:    handlers.NewBroadcastHandler(hub),
		presenceHandler:     handlers.NewPresenceHandler(roomState),
		messageHandler:      handlers.NewMessageHandler(messageRepo, userRepo, hub, producer),
		notificationHandler: handlers.NewNotificationHandler(notificationRepo, hub),
		authHandler:         handlers.NewAuthHandler(userService),
		uploadHandler:       uploadHandler,
		rateLimitMW:         middleware.NewRateLimitMiddleware(roomState),
		authMW:              middleware.NewAuthMiddleware(jwtSecret),
	}
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := r.engine.Group("/api/v1")

	// WebSocket endpoint; the token travels as a query parameter because
	// browser WebSocket clients cannot set headers.
	api.GET("/ws", r.wsHandler.HandleWebSocket)

	// Internal fan-out endpoints, meant to sit behind the service mesh.
	internal := api.Group("/internal")
	{
		internal.POST("/broadcast", r.broadcastHandler.HandleBroadcast)
		internal.GET("/rooms", r.broadcastHandler.HandleRooms)
		internal.GET("/presence", r.presenceHandler.List)
		internal.GET("/presence/:id", r.presenceHandler.Check)
	}

	// Authenticated routes
	auth := api.Group("/")
	auth.Use(r.authMW.RequireAuth())
	{
		messages := auth.Group("/messages")
		messages.Use(r.rateLimitMW.RateLimit(200, time.Minute))
		{
			messages.POST("/", r.messageHandler.PostMessage)
			messages.GET("/conversation/:id", r.messageHandler.GetConversationMessages)
			messages.POST("/:id/points", r.messageHandler.AwardPoints)
		}

		notifications := auth.Group("/notifications")
		notifications.Use(r.rateLimitMW.RateLimit(100, time.Minute))
		{
			notifications.GET("/", r.notificationHandler.List)
			notifications.POST("/", r.notificationHandler.Create)
			notifications.DELETE("/:id", r.notificationHandler.Delete)
			notifications.POST("/clear", r.notificationHandler.Clear)
			notifications.POST("/read/:chatId", r.notificationHandler.MarkRead)
		}

		if r.uploadHandler != nil {
			uploads := auth.Group("/uploads")
			uploads.Use(r.rateLimitMW.RateLimit(30, time.Minute))
			{
				uploads.POST("/", r.uploadHandler.Upload)
			}
		}
	}

	// Public routes (no authentication required)
	public := api.Group("/")
	{
		authRoutes := public.Group("/auth")
		authRoutes.Use(r.rateLimitMW.RateLimitIP(50, time.Minute))
		{
			authRoutes.POST("/register", r.authHandler.Register)
			authRoutes.POST("/login", r.authHandler.Login)
		}
	}
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
