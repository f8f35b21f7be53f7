package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/DAHP-ChatMeNow/ChatMeNowBE/internal/config"
	"github.com/DAHP-ChatMeNow/ChatMeNowBE/internal/handler"
	"github.com/DAHP-ChatMeNow/ChatMeNowBE/internal/middleware"
	"github.com/DAHP-ChatMeNow/ChatMeNowBE/pkg/jwt"
)

// SetupRouter 设置路由
func SetupRouter(
	cfg *config.Config,
	jwtService *jwt.Service,
	chatHandler *handler.ChatHandler,
	notificationHandler *handler.NotificationHandler,
) *gin.Engine {
	// 设置 Gin 模式
	gin.SetMode(cfg.App.Mode)

	r := gin.New()

	// 全局中间件
	r.Use(gin.Recovery())
	r.Use(middleware.CORS(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowCredentials,
	))

	// Swagger 文档路由
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// API v1，全部需要登录
	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(jwtService))
	{
		conversations := v1.Group("/conversations")
		{
			conversations.GET("", chatHandler.GetConversations)
			conversations.POST("", chatHandler.CreateGroup)
			conversations.GET("/:id", chatHandler.GetConversationDetails)
			conversations.DELETE("/:id", chatHandler.Dissolve)
			conversations.GET("/:id/partner", chatHandler.GetPrivatePartner)
			conversations.GET("/:id/messages", chatHandler.ListMessages)
			conversations.POST("/:id/read", chatHandler.MarkRead)
			conversations.POST("/:id/members", chatHandler.AddMembers)
			conversations.DELETE("/:id/members/:memberId", chatHandler.RemoveMember)
		}

		v1.GET("/private/:partnerId", chatHandler.GetOrCreatePrivate)

		messages := v1.Group("/messages")
		{
			messages.POST("", chatHandler.SendMessage)
			messages.POST("/:id/unsend", chatHandler.UnsendMessage)
		}

		notifications := v1.Group("/notifications")
		{
			notifications.GET("", notificationHandler.List)
			notifications.POST("/read-all", notificationHandler.MarkAllRead)
			notifications.POST("/:id/read", notificationHandler.MarkRead)
			notifications.DELETE("/:id", notificationHandler.Delete)
		}
	}

	return r
}
