package http

import (
	"time"

	"github.com/gin-gonic/gin"

	appsvc "aichat/internal/app"
	"aichat/internal/bootstrap"
	"aichat/internal/cache"
	"aichat/internal/repository"
	"aichat/internal/transport/http/handler"
	"aichat/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), middleware.CORS(app.Config.CORS.AllowedOrigins))

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	userRepo := repository.NewUserRepository(app.MySQL)
	convRepo := repository.NewConversationRepository(app.MySQL)
	messageRepo := repository.NewMessageRepository(app.MySQL)
	attachRepo := repository.NewAttachmentRepository(app.MySQL)

	historyCache := cache.NewHistoryCache(
		app.Redis,
		time.Duration(app.Config.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(app.Config.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)

	authService := appsvc.NewAuthService(
		userRepo,
		app.Config.Auth.JWTSecret,
		time.Duration(app.Config.Auth.JWTExpireMinute)*time.Minute,
	)
	fileService := appsvc.NewFileService(
		attachRepo,
		app.Blobs,
		app.Config.Uploads.MaxImageBytes,
		app.Config.Uploads.MaxFileBytes,
	)
	conversationService := appsvc.NewConversationService(
		convRepo,
		messageRepo,
		historyCache,
		app.Config.LLM.Model,
	)
	chatService := appsvc.NewChatService(
		convRepo,
		messageRepo,
		app.AI,
		fileService,
		historyCache,
		app.UsagePub,
		app.Config.LLM.MaxContextMessages,
		time.Duration(app.Config.LLM.TimeoutSeconds)*time.Second,
	)

	authHandler := handler.NewAuthHandler(authService)
	convHandler := handler.NewConversationHandler(conversationService)
	chatHandler := handler.NewChatHandler(chatService)
	fileHandler := handler.NewFileHandler(fileService)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", middleware.AuthJWT(app.Config.Auth.JWTSecret), authHandler.Me)

	authed := v1.Group("")
	authed.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))

	authed.POST("/conversations", convHandler.Create)
	authed.GET("/conversations", convHandler.List)
	authed.GET("/conversations/:id", convHandler.Get)
	authed.PATCH("/conversations/:id", convHandler.Update)
	authed.DELETE("/conversations/:id", convHandler.Delete)
	authed.GET("/conversations/:id/messages", convHandler.GetMessages)

	authed.POST("/conversations/:id/messages", chatHandler.SendMessage)
	authed.POST("/conversations/:id/messages/stream", chatHandler.StreamMessage)

	authed.POST("/files", fileHandler.Upload)
	authed.GET("/files/:id", fileHandler.Get)
	authed.DELETE("/files/:id", fileHandler.Delete)

	return router
}
