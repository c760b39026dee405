package router

import (
	"github.com/labstack/echo/v4"

	"bazaarchat/internal/adapter/api/handler"
	"bazaarchat/internal/adapter/api/middleware"
	"bazaarchat/internal/infrastructure/ratelimit"
)

func SetupConversationRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, limiter *ratelimit.RateLimiter) {
	conversationHandler := handler.GetConversationHandler()
	openLimit := middleware.RateLimit(limiter, ratelimit.ActionOpenConversation)

	items := e.Group("/v1/items/:itemId/conversation")
	items.Use(authMiddleware.Authenticate)
	items.GET("", conversationHandler.OpenItemConversation, openLimit)
	items.POST("/messages", conversationHandler.SendItemMessage)

	direct := e.Group("/v1/direct/:peer")
	direct.Use(authMiddleware.Authenticate)
	direct.GET("", conversationHandler.OpenDirectConversation, openLimit)
	direct.POST("/messages", conversationHandler.SendDirectMessage)

	conversations := e.Group("/v1/conversations")
	conversations.Use(authMiddleware.Authenticate)
	conversations.GET("", conversationHandler.ListConversations)
	conversations.GET("/:id/messages", conversationHandler.GetMessages)
	conversations.POST("/:id/messages", conversationHandler.SendConversationMessage)
}
