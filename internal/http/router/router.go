package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/p2p-exchange-backend/internal/config"
	"github.com/ignatzorin/p2p-exchange-backend/internal/http/handlers"
	"github.com/ignatzorin/p2p-exchange-backend/internal/http/middleware"
	"github.com/ignatzorin/p2p-exchange-backend/internal/service"
)

func SetupRouter(
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	offerHandler *handlers.OfferHandler,
	tradeHandler *handlers.TradeHandler,
	tradeRoomHandler *handlers.TradeRoomHandler,
	disputeHandler *handlers.DisputeHandler,
	notificationHandler *handlers.NotificationHandler,
	mediaHandler *handlers.MediaHandler,
	wsHandler *handlers.WSHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authRateLimit := middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod)
	authGroup.Use(authRateLimit)
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.POST("/logout", authHandler.Logout)
	}

	// Публичные маршруты
	api.GET("/offers", offerHandler.List)
	api.GET("/offers/:id", middleware.UUIDValidator("id"), offerHandler.Get)
	api.GET("/users/:id/profile", middleware.UUIDValidator("id"), authHandler.GetUserProfile)
	api.GET("/ws", wsHandler.Handle)
	api.GET("/trades/:id/ws", middleware.UUIDValidator("id"), wsHandler.HandleTradeRoom)

	// Защищённые маршруты
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	{
		protected.GET("/me", authHandler.Me)
		protected.PATCH("/me", authHandler.UpdateMe)

		protected.POST("/offers", offerHandler.Create)
		protected.PATCH("/offers/:id", middleware.UUIDValidator("id"), offerHandler.Update)
		protected.DELETE("/offers/:id", middleware.UUIDValidator("id"), offerHandler.Deactivate)

		protected.POST("/trades", tradeHandler.Create)
		protected.GET("/trades/my", tradeHandler.ListMy)
		protected.GET("/trades/:id", middleware.UUIDValidator("id"), tradeHandler.Get)
		protected.GET("/trades/:id/events", middleware.UUIDValidator("id"), tradeHandler.ListEvents)
		protected.POST("/trades/:id/actions", middleware.UUIDValidator("id"), tradeHandler.Action)

		protected.GET("/trades/:id/messages", middleware.UUIDValidator("id"), tradeRoomHandler.ListMessages)
		protected.POST("/trades/:id/messages", middleware.UUIDValidator("id"), tradeRoomHandler.SendMessage)

		protected.GET("/trades/:id/disputes", middleware.UUIDValidator("id"), disputeHandler.ListByTrade)
		protected.GET("/disputes/my", disputeHandler.ListMy)
		protected.GET("/disputes/open", disputeHandler.ListOpen)
		protected.GET("/disputes/:id", middleware.UUIDValidator("id"), disputeHandler.Get)
		protected.POST("/disputes/:id/resolve", middleware.UUIDValidator("id"), disputeHandler.Resolve)

		protected.GET("/notifications", notificationHandler.List)
		protected.GET("/notifications/unread/count", notificationHandler.CountUnread)
		protected.PUT("/notifications/:id/read", middleware.UUIDValidator("id"), notificationHandler.MarkRead)
		protected.PUT("/notifications/read-all", notificationHandler.MarkAllRead)
		protected.DELETE("/notifications/:id", middleware.UUIDValidator("id"), notificationHandler.Delete)

		protected.POST("/media", mediaHandler.Upload)
		protected.GET("/media/:id", middleware.UUIDValidator("id"), mediaHandler.Download)
	}

	return r
}
