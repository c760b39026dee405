package router

import (
	"github.com/labstack/echo/v4"

	"bazaarchat/internal/adapter/api/handler"
	"bazaarchat/internal/adapter/api/middleware"
	"bazaarchat/internal/infrastructure/ratelimit"
)

func SetupNotificationRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, limiter *ratelimit.RateLimiter) {
	notificationHandler := handler.GetNotificationHandler()

	notifications := e.Group("/v1/notifications")
	notifications.Use(authMiddleware.Authenticate)
	notifications.GET("", notificationHandler.ListNotifications)
	notifications.GET("/unread", notificationHandler.UnreadCounts)
	notifications.PUT("/read", notificationHandler.MarkAsRead)

	e.POST("/v1/items/:itemId/events", notificationHandler.ReportTransactionEvent,
		authMiddleware.Authenticate,
		middleware.RateLimit(limiter, ratelimit.ActionTransactionEvent),
	)
}
