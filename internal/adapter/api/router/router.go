package router

import (
	"github.com/labstack/echo/v4"

	"bazaarchat/internal/adapter/api/middleware"
	"bazaarchat/internal/infrastructure/ratelimit"
)

func Setup(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, limiter *ratelimit.RateLimiter) {
	SetupHealthRouter(e)
	SetupMetricsRouter(e)
	SetupConversationRouter(e, authMiddleware, limiter)
	SetupNotificationRouter(e, authMiddleware, limiter)
	SetupWebSocketRouter(e, authMiddleware)
}
